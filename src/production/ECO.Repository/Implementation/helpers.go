package implementation

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// monotonicClock hands out strictly increasing timestamps at microsecond
// resolution, which both timestamptz and sqlite keep intact.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{now: time.Now}
}

func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Observe moves the clock forward past a timestamp already in the store
func (c *monotonicClock) Observe(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t.UTC()
	}
}

func prepareInput(in ecomodels.ReadingInput) (ecomodels.ReadingInput, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return in, err
	}
	return in, nil
}

func validateLimit(limit int) error {
	if limit <= 0 {
		return &ecomodels.ValidationError{Field: "limit", Message: fmt.Sprintf("must be a positive integer, got %d", limit)}
	}
	return nil
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ecomodels.StoreError{Op: op, Err: err}
}

// ensureRecommendations keeps null or empty payloads out of the JSON column
func ensureRecommendations(raw []byte) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}
