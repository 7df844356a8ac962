package realtime

import (
	"sync"

	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/metrics"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// Conn is one subscriber. Send must not block.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close()
}

// Registry maps each topic to its live subscribers, keyed by connection id
type Registry struct {
	mu     sync.RWMutex
	topics map[ecomodels.Topic]map[string]Conn
}

// NewRegistry creates an empty registry for every known topic
func NewRegistry() *Registry {
	topics := make(map[ecomodels.Topic]map[string]Conn, len(ecomodels.Topics))
	for _, t := range ecomodels.Topics {
		topics[t] = make(map[string]Conn)
	}
	return &Registry{topics: topics}
}

// Subscribe adds conn under topic. Subscribing the same connection twice is a no-op.
func (r *Registry) Subscribe(topic ecomodels.Topic, conn Conn) error {
	if !topic.Valid() {
		return &ecomodels.InvalidTopicError{Topic: string(topic)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic][conn.ID()] = conn
	metrics.Subscribers.WithLabelValues(string(topic)).Set(float64(len(r.topics[topic])))
	return nil
}

// Unsubscribe removes conn. Unknown topics and absent connections are ignored.
func (r *Registry) Unsubscribe(topic ecomodels.Topic, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		return
	}
	if _, ok := subs[conn.ID()]; !ok {
		return
	}
	delete(subs, conn.ID())
	metrics.Subscribers.WithLabelValues(string(topic)).Set(float64(len(subs)))
}

// Subscribers returns a copy of the current subscriber set
func (r *Registry) Subscribers(topic ecomodels.Topic) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.topics[topic]
	out := make([]Conn, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

// Count returns the number of subscribers on topic
func (r *Registry) Count(topic ecomodels.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Counts reports subscribers for every topic
func (r *Registry) Counts() map[ecomodels.Topic]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[ecomodels.Topic]int, len(r.topics))
	for t, subs := range r.topics {
		out[t] = len(subs)
	}
	return out
}
