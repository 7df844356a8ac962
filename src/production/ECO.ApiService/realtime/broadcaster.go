package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/metrics"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
	"golang.org/x/sync/errgroup"
)

// Computer produces the snapshot for one topic
type Computer interface {
	Compute(ctx context.Context, topic ecomodels.Topic) (ecomodels.Snapshot, error)
}

// TopicReport summarizes one topic of a broadcast
type TopicReport struct {
	Delivered int
	Failed    int
	Err       error
}

// Report is keyed by topic
type Report map[ecomodels.Topic]TopicReport

// Broadcaster recomputes every topic after a write and pushes it to subscribers
type Broadcaster struct {
	registry *Registry
	computer Computer
	log      *logger.Logger

	mu    sync.RWMutex
	relay Relay
}

// NewBroadcaster creates a broadcaster that relays in-process until UseRelay swaps it
func NewBroadcaster(registry *Registry, computer Computer, log *logger.Logger) *Broadcaster {
	b := &Broadcaster{
		registry: registry,
		computer: computer,
		log:      log.WithComponent("realtime"),
	}
	b.relay = NewLocalRelay(b.HandleEvent)
	return b
}

// UseRelay swaps the path between Trigger and Broadcast
func (b *Broadcaster) UseRelay(r Relay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = r
}

// Trigger announces a committed reading. Failures are logged, never returned.
func (b *Broadcaster) Trigger(ctx context.Context, rd ecomodels.Reading) {
	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()

	ev := ReadingEvent{ID: rd.ID, CreatedAt: rd.CreatedAt}
	if err := relay.Publish(ctx, ev); err != nil {
		b.log.Logger.Error().Err(err).Int64("reading_id", rd.ID).Msg("Relay publish failed, broadcasting locally")
		b.Broadcast(ctx, ecomodels.MessageDataUpdate)
	}
}

// HandleEvent is the relay callback
func (b *Broadcaster) HandleEvent(ctx context.Context, ev ReadingEvent) {
	b.log.Logger.Debug().Int64("reading_id", ev.ID).Msg("Fan-out triggered")
	b.Broadcast(ctx, ecomodels.MessageDataUpdate)
}

// Broadcast pushes a fresh snapshot of every topic. Topics run concurrently
// and one failing topic or connection never affects the others.
func (b *Broadcaster) Broadcast(ctx context.Context, kind string) Report {
	var (
		mu     sync.Mutex
		report = make(Report, len(ecomodels.Topics))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range ecomodels.Topics {
		g.Go(func() error {
			tr := b.broadcastTopic(gctx, topic, kind)
			mu.Lock()
			report[topic] = tr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (b *Broadcaster) broadcastTopic(ctx context.Context, topic ecomodels.Topic, kind string) (tr TopicReport) {
	log := b.log.WithTopic(string(topic))
	started := time.Now()
	defer metrics.ObserveBroadcast(string(topic), started)

	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error().Interface("panic", r).Msg("Broadcast panicked")
			tr.Err = errors.New("broadcast panicked")
		}
	}()

	subs := b.registry.Subscribers(topic)
	if len(subs) == 0 {
		return tr
	}

	snap, err := b.computer.Compute(ctx, topic)
	if err != nil {
		log.ErrorWithError(err, "Snapshot computation failed")
		tr.Err = err
		return tr
	}
	msg, err := snap.Message(kind)
	if err != nil {
		log.ErrorWithError(err, "Snapshot encoding failed")
		tr.Err = err
		return tr
	}

	for _, conn := range subs {
		if err := conn.Send(msg); err != nil {
			derr := &ecomodels.DeliveryError{ConnID: conn.ID(), Topic: topic, Err: err}
			log.Logger.Debug().Err(derr).Msg("Dropping subscriber")
			metrics.DeliveryFailures.WithLabelValues(string(topic)).Inc()
			b.registry.Unsubscribe(topic, conn)
			conn.Close()
			tr.Failed++
			continue
		}
		tr.Delivered++
	}

	return tr
}
