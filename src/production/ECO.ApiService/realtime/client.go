package realtime

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

const maxInboundMessage = 1024

// Upgrader accepts any origin; CORS for the HTTP API is handled by middleware
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// ClientOptions tunes per-connection delivery
type ClientOptions struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 16
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Client is a websocket subscriber with a buffered outbound queue
type Client struct {
	id    string
	topic ecomodels.Topic
	conn  *websocket.Conn
	opts  ClientOptions

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection. Messages queued by Send are written once Run starts the pumps.
func NewClient(conn *websocket.Conn, topic ecomodels.Topic, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:    uuid.NewString(),
		topic: topic,
		conn:  conn,
		opts:  opts,
		send:  make(chan []byte, opts.SendBuffer),
		done:  make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Topic() ecomodels.Topic { return c.topic }

// Send queues msg without blocking. A full queue means the client is too slow.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowConsumer
	}
}

// WriteNow writes msg synchronously. Only valid before Run starts the write pump.
func (c *Client) WriteNow(msg []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Client) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith sends a close frame with code and tears the connection down once
func (c *Client) CloseWith(code int, text string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(c.opts.WriteTimeout))
		_ = c.conn.Close()
	})
}

// Run pumps messages until the peer goes away, then calls onClose once
func (c *Client) Run(onClose func()) {
	go c.writePump()
	c.readPump()
	c.Close()
	if onClose != nil {
		onClose()
	}
}

func (c *Client) pongWait() time.Duration {
	return c.opts.PingInterval * 5 / 2
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		// inbound frames are ignored; reading drives pong and close handling
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
