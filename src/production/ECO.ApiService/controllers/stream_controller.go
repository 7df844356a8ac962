package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/realtime"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// StreamController upgrades dashboard clients to websocket subscriptions
type StreamController struct {
	registry *realtime.Registry
	computer SnapshotComputer
	opts     realtime.ClientOptions
	logger   *logger.Logger
}

func NewStreamController(registry *realtime.Registry, computer SnapshotComputer, opts realtime.ClientOptions, log *logger.Logger) *StreamController {
	return &StreamController{
		registry: registry,
		computer: computer,
		opts:     opts,
		logger:   log.WithComponent("stream"),
	}
}

func (c *StreamController) RegisterRoutes(router *gin.Engine) {
	// catch-all so /ws/energy and /ws/energy/ both reach the handler
	router.GET("/ws/*topic", c.Subscribe)
}

// Subscribe sends the current snapshot, then streams updates until the
// client disconnects
func (c *StreamController) Subscribe(ctx *gin.Context) {
	topic, err := ecomodels.ParseTopic(ctx.Param("topic"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	conn, err := realtime.Upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		c.logger.Logger.Warn().Err(err).Str("topic", string(topic)).Msg("Websocket upgrade failed")
		return
	}

	client := realtime.NewClient(conn, topic, c.opts)
	log := c.logger.WithTopic(string(topic)).WithField("conn_id", client.ID())

	if err := c.registry.Subscribe(client.Topic(), client); err != nil {
		log.ErrorWithError(err, "Subscribe failed")
		client.CloseWith(websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	unsubscribe := func() {
		c.registry.Unsubscribe(client.Topic(), client)
		log.Debug("Subscriber disconnected")
	}

	snap, err := c.computer.Compute(ctx.Request.Context(), topic)
	if err == nil {
		var msg []byte
		if msg, err = snap.Message(ecomodels.MessageInitialData); err == nil {
			err = client.WriteNow(msg)
		}
	}
	if err != nil {
		log.ErrorWithError(err, "Initial snapshot failed")
		client.CloseWith(websocket.CloseInternalServerErr, "initial snapshot failed")
		unsubscribe()
		return
	}

	log.Debug("Subscriber connected")
	client.Run(unsubscribe)
}
