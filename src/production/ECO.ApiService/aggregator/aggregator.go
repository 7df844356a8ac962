// Package aggregator turns stored readings into per-topic dashboard snapshots.
package aggregator

import (
	"context"
	"math"
	"strconv"
	"time"

	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// DefaultWindow is how many recent readings feed the charts and table
const DefaultWindow = 10

const labelLayout = "15:04:05"

// Store is the read side of the reading repository
type Store interface {
	Latest(ctx context.Context, limit int) ([]ecomodels.Reading, error)
	All(ctx context.Context) ([]ecomodels.Reading, error)
}

// Aggregator computes snapshots. Output depends only on store contents,
// the window and the label location.
type Aggregator struct {
	store  Store
	window int
	loc    *time.Location
}

// New creates an aggregator. A non-positive window falls back to
// DefaultWindow and a nil location to UTC.
func New(store Store, window int, loc *time.Location) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: store, window: window, loc: loc}
}

// Compute builds the snapshot for topic. Store failures are returned as is.
func (a *Aggregator) Compute(ctx context.Context, topic ecomodels.Topic) (ecomodels.Snapshot, error) {
	v, ok := views[topic]
	if !ok {
		return ecomodels.Snapshot{}, &ecomodels.InvalidTopicError{Topic: string(topic)}
	}

	latest, err := a.store.Latest(ctx, a.window)
	if err != nil {
		return ecomodels.Snapshot{}, err
	}
	all, err := a.store.All(ctx)
	if err != nil {
		return ecomodels.Snapshot{}, err
	}

	return a.build(topic, v, latest, all), nil
}

func (a *Aggregator) build(topic ecomodels.Topic, v view, latest, all []ecomodels.Reading) ecomodels.Snapshot {
	snap := ecomodels.Snapshot{
		Topic:    topic,
		Labels:   make([]string, 0, len(latest)),
		Series:   make([]ecomodels.Series, len(v.series)),
		Rows:     make([]ecomodels.Row, 0, len(latest)),
		Averages: make([]ecomodels.Average, len(v.averages)),
	}

	for i, m := range v.series {
		snap.Series[i] = ecomodels.Series{Key: m.key, Values: make([]float64, 0, len(latest))}
	}

	// latest is newest first; charts run oldest to newest
	for i := len(latest) - 1; i >= 0; i-- {
		rd := latest[i]
		snap.Labels = append(snap.Labels, rd.CreatedAt.In(a.loc).Format(labelLayout))
		for j, m := range v.series {
			snap.Series[j].Values = append(snap.Series[j].Values, m.value(rd))
		}
	}

	for _, rd := range latest {
		row := make(ecomodels.Row, 0, len(v.columns))
		for _, c := range v.columns {
			row = append(row, ecomodels.Field{Key: c.key, Value: c.value(rd)})
		}
		snap.Rows = append(snap.Rows, row)
	}

	for i, avg := range v.averages {
		snap.Averages[i] = ecomodels.Average{
			Key:     avg.key,
			Value:   mean(all, avg.value, avg.integer),
			Integer: avg.integer,
		}
	}

	return snap
}

// mean is zero for an empty set. Counts are truncated, everything else
// is rounded to one decimal on the exact binary value, ties to even.
func mean(readings []ecomodels.Reading, value func(ecomodels.Reading) float64, integer bool) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, rd := range readings {
		sum += value(rd)
	}
	m := sum / float64(len(readings))
	if integer {
		return math.Trunc(m)
	}
	return roundTenth(m)
}

func roundTenth(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}
