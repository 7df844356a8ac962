package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
)

// ReadingEvent announces that a reading has been committed
type ReadingEvent struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler runs the local fan-out for an event
type Handler func(ctx context.Context, ev ReadingEvent)

// Relay carries reading events from the ingesting instance to every
// instance holding subscribers
type Relay interface {
	Publish(ctx context.Context, ev ReadingEvent) error
}

// LocalRelay hands events straight to the in-process handler
type LocalRelay struct {
	handle Handler
}

func NewLocalRelay(h Handler) *LocalRelay {
	return &LocalRelay{handle: h}
}

func (l *LocalRelay) Publish(ctx context.Context, ev ReadingEvent) error {
	l.handle(ctx, ev)
	return nil
}

// RedisRelay fans events out through a redis pub/sub channel so every
// API instance refreshes its own subscribers
type RedisRelay struct {
	client  *redis.Client
	channel string
	handle  Handler
	log     *logger.Logger
}

func NewRedisRelay(client *redis.Client, channel string, h Handler, log *logger.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		handle:  h,
		log:     log.WithComponent("relay").WithField("channel", channel),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev ReadingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal reading event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish reading event: %w", err)
	}
	return nil
}

// Run consumes the channel until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("Relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ReadingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Logger.Warn().Err(err).Str("payload", msg.Payload).Msg("Discarding malformed relay message")
				continue
			}
			r.handle(ctx, ev)
		}
	}
}
