package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

type fakeConn struct {
	id      string
	sendErr error

	mu     sync.Mutex
	got    [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got...)
}

// fakeComputer returns a one-label snapshot per topic, or an error for failing topics
type fakeComputer struct {
	failing map[ecomodels.Topic]error
	calls   sync.Map
}

func (f *fakeComputer) Compute(_ context.Context, topic ecomodels.Topic) (ecomodels.Snapshot, error) {
	n, _ := f.calls.LoadOrStore(topic, new(int))
	*(n.(*int))++
	if err := f.failing[topic]; err != nil {
		return ecomodels.Snapshot{}, err
	}
	return ecomodels.Snapshot{
		Topic:  topic,
		Labels: []string{"12:00:00"},
		Series: []ecomodels.Series{{Key: string(topic) + "_data", Values: []float64{1}}},
	}, nil
}

func TestRegistryRejectsUnknownTopic(t *testing.T) {
	reg := NewRegistry()

	err := reg.Subscribe(ecomodels.Topic("weather"), newFakeConn("a"))
	require.Error(t, err)
	assert.True(t, ecomodels.IsInvalidTopic(err))

	assert.Empty(t, reg.Subscribers(ecomodels.Topic("weather")))
	_, phantom := reg.Counts()[ecomodels.Topic("weather")]
	assert.False(t, phantom)
	for _, topic := range ecomodels.Topics {
		assert.Zero(t, reg.Count(topic))
	}
}

func TestRegistrySubscribeIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newFakeConn("a")

	require.NoError(t, reg.Subscribe(ecomodels.TopicEnergy, c))
	require.NoError(t, reg.Subscribe(ecomodels.TopicEnergy, c))
	assert.Equal(t, 1, reg.Count(ecomodels.TopicEnergy))

	reg.Unsubscribe(ecomodels.TopicEnergy, c)
	reg.Unsubscribe(ecomodels.TopicEnergy, c)
	reg.Unsubscribe(ecomodels.Topic("nope"), c)
	assert.Zero(t, reg.Count(ecomodels.TopicEnergy))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i))
			topic := ecomodels.Topics[i%len(ecomodels.Topics)]
			assert.NoError(t, reg.Subscribe(topic, c))
			_ = reg.Subscribers(topic)
			if i%2 == 0 {
				reg.Unsubscribe(topic, c)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range reg.Counts() {
		total += n
	}
	assert.Equal(t, 25, total)
}

func TestBroadcastIsolatesBrokenSubscriber(t *testing.T) {
	reg := NewRegistry()
	comp := &fakeComputer{}
	b := NewBroadcaster(reg, comp, logger.Nop())

	broken := newFakeConn("broken")
	broken.sendErr = ErrClientClosed
	healthy := newFakeConn("healthy-hw")
	require.NoError(t, reg.Subscribe(ecomodels.TopicHardware, broken))
	require.NoError(t, reg.Subscribe(ecomodels.TopicHardware, healthy))

	others := map[ecomodels.Topic]*fakeConn{}
	for _, topic := range ecomodels.Topics {
		if topic == ecomodels.TopicHardware {
			continue
		}
		c := newFakeConn("sub-" + string(topic))
		others[topic] = c
		require.NoError(t, reg.Subscribe(topic, c))
	}

	report := b.Broadcast(context.Background(), ecomodels.MessageDataUpdate)

	assert.Equal(t, 1, report[ecomodels.TopicHardware].Delivered)
	assert.Equal(t, 1, report[ecomodels.TopicHardware].Failed)
	assert.Len(t, healthy.messages(), 1)
	for topic, c := range others {
		require.Len(t, c.messages(), 1, topic)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(c.messages()[0], &msg))
		assert.Equal(t, ecomodels.MessageDataUpdate, msg["type"])
		assert.Contains(t, msg, string(topic)+"_data")
	}

	// the broken connection is dropped and closed
	assert.Equal(t, 1, reg.Count(ecomodels.TopicHardware))
	assert.True(t, broken.closed)
}

func TestBroadcastIsolatesFailingTopic(t *testing.T) {
	reg := NewRegistry()
	storeDown := &ecomodels.StoreError{Op: "latest", Err: errors.New("connection refused")}
	comp := &fakeComputer{failing: map[ecomodels.Topic]error{ecomodels.TopicScores: storeDown}}
	b := NewBroadcaster(reg, comp, logger.Nop())

	conns := map[ecomodels.Topic]*fakeConn{}
	for _, topic := range ecomodels.Topics {
		c := newFakeConn(string(topic))
		conns[topic] = c
		require.NoError(t, reg.Subscribe(topic, c))
	}

	report := b.Broadcast(context.Background(), ecomodels.MessageDataUpdate)

	assert.ErrorIs(t, report[ecomodels.TopicScores].Err, storeDown)
	assert.Empty(t, conns[ecomodels.TopicScores].messages())
	for _, topic := range ecomodels.Topics {
		if topic == ecomodels.TopicScores {
			continue
		}
		assert.NoError(t, report[topic].Err)
		assert.Len(t, conns[topic].messages(), 1, topic)
	}
	// a store failure does not evict subscribers
	assert.Equal(t, 1, reg.Count(ecomodels.TopicScores))
}

func TestBroadcastSkipsTopicsWithoutSubscribers(t *testing.T) {
	reg := NewRegistry()
	comp := &fakeComputer{}
	b := NewBroadcaster(reg, comp, logger.Nop())
	require.NoError(t, reg.Subscribe(ecomodels.TopicEnergy, newFakeConn("e")))

	b.Broadcast(context.Background(), ecomodels.MessageDataUpdate)

	_, computedEnergy := comp.calls.Load(ecomodels.TopicEnergy)
	_, computedNetwork := comp.calls.Load(ecomodels.TopicNetwork)
	assert.True(t, computedEnergy)
	assert.False(t, computedNetwork)
}

func TestTriggerUsesLocalRelayByDefault(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, &fakeComputer{}, logger.Nop())
	c := newFakeConn("d")
	require.NoError(t, reg.Subscribe(ecomodels.TopicDashboard, c))

	b.Trigger(context.Background(), ecomodels.Reading{ID: 7, CreatedAt: time.Now()})
	assert.Len(t, c.messages(), 1)
}

func TestTriggerFallsBackWhenRelayUnavailable(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, &fakeComputer{}, logger.Nop())
	c := newFakeConn("n")
	require.NoError(t, reg.Subscribe(ecomodels.TopicNetwork, c))

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	b.UseRelay(NewRedisRelay(client, "ecotrack:test", b.HandleEvent, logger.Nop()))

	b.Trigger(context.Background(), ecomodels.Reading{ID: 1, CreatedAt: time.Now()})
	assert.Len(t, c.messages(), 1)
}

func TestLocalRelayInvokesHandler(t *testing.T) {
	var got ReadingEvent
	relay := NewLocalRelay(func(_ context.Context, ev ReadingEvent) { got = ev })

	require.NoError(t, relay.Publish(context.Background(), ReadingEvent{ID: 42}))
	assert.Equal(t, int64(42), got.ID)
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRelayDeliversPublishedEvents(t *testing.T) {
	const channel = "ecotrack:readings"
	mr, client := newMiniredisClient(t)

	reg := NewRegistry()
	b := NewBroadcaster(reg, &fakeComputer{}, logger.Nop())
	c := newFakeConn("d")
	require.NoError(t, reg.Subscribe(ecomodels.TopicDashboard, c))

	relay := NewRedisRelay(client, channel, b.HandleEvent, logger.Nop())
	b.UseRelay(relay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// malformed payloads are skipped and the relay keeps consuming
	mr.Publish(channel, "not json")
	b.Trigger(ctx, ecomodels.Reading{ID: 3, CreatedAt: time.Now()})

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	msgs := c.messages()
	require.Len(t, msgs, 1)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0], &body))
	assert.Equal(t, ecomodels.MessageDataUpdate, body["type"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestRedisRelayPublishEncodesEvent(t *testing.T) {
	const channel = "ecotrack:readings"
	_, client := newMiniredisClient(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	relay := NewRedisRelay(client, channel, func(context.Context, ReadingEvent) {}, logger.Nop())
	require.NoError(t, relay.Publish(ctx, ReadingEvent{ID: 11, CreatedAt: created}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev ReadingEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, int64(11), ev.ID)
	assert.True(t, created.Equal(ev.CreatedAt))
}
