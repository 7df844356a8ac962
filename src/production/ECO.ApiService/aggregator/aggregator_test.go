package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// fakeStore keeps readings in insertion order
type fakeStore struct {
	readings []ecomodels.Reading
	err      error
}

func (f *fakeStore) add(in ecomodels.ReadingInput) {
	in.Normalize()
	id := int64(len(f.readings) + 1)
	f.readings = append(f.readings, ecomodels.Reading{
		ID:           id,
		ReadingInput: in,
		CreatedAt:    time.Date(2025, 3, 1, 9, 0, int(id), 0, time.UTC),
	})
}

func (f *fakeStore) Latest(_ context.Context, limit int) ([]ecomodels.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ecomodels.Reading, 0, limit)
	for i := len(f.readings) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.readings[i])
	}
	return out, nil
}

func (f *fakeStore) All(_ context.Context) ([]ecomodels.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]ecomodels.Reading(nil), f.readings...), nil
}

func decode(t *testing.T, snap ecomodels.Snapshot) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestComputeIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 12; i++ {
		store.add(ecomodels.ReadingInput{HardwareSensorID: "hw", CPUUsage: float64(i * 3), Recommendations: json.RawMessage(`{"b":1,"a":2}`)})
	}
	agg := New(store, 10, time.UTC)

	for _, topic := range ecomodels.Topics {
		first, err := agg.Compute(context.Background(), topic)
		require.NoError(t, err)
		second, err := agg.Compute(context.Background(), topic)
		require.NoError(t, err)

		a, err := first.Message(ecomodels.MessageDataUpdate)
		require.NoError(t, err)
		b, err := second.Message(ecomodels.MessageDataUpdate)
		require.NoError(t, err)
		assert.Equal(t, a, b, "topic %s", topic)
	}
}

func TestComputeWithNoReadings(t *testing.T) {
	agg := New(&fakeStore{}, 10, time.UTC)

	for _, topic := range ecomodels.Topics {
		snap, err := agg.Compute(context.Background(), topic)
		require.NoError(t, err)

		assert.Empty(t, snap.Labels)
		assert.Empty(t, snap.Rows)
		for _, s := range snap.Series {
			assert.Empty(t, s.Values, "%s/%s", topic, s.Key)
		}
		for _, a := range snap.Averages {
			assert.Zero(t, a.Value, "%s/%s", topic, a.Key)
		}
	}
}

func TestEnergyAverages(t *testing.T) {
	store := &fakeStore{}
	for _, w := range []float64{100, 200, 300} {
		store.add(ecomodels.ReadingInput{EnergySensorID: "en-1", PowerWatts: w, ActiveDevices: w / 100, Overheating: 1})
	}
	store.add(ecomodels.ReadingInput{EnergySensorID: "en-1", PowerWatts: 200, ActiveDevices: 4})

	snap, err := New(store, 10, time.UTC).Compute(context.Background(), ecomodels.TopicEnergy)
	require.NoError(t, err)

	out := decode(t, snap)
	assert.Equal(t, 200.0, out["avg_power"])
	// (1+2+3+4)/4 = 2.5 truncates to 2
	assert.Equal(t, 2.0, out["avg_active"])
	assert.Equal(t, 0.8, out["avg_overheating"])
}

func TestRoundingTable(t *testing.T) {
	store := &fakeStore{}
	store.add(ecomodels.ReadingInput{NetworkSensorID: "n", NetworkLoadMbps: 10.04, RequestsPerMin: 99, CloudDependencyScore: 1})
	store.add(ecomodels.ReadingInput{NetworkSensorID: "n", NetworkLoadMbps: 10.12, RequestsPerMin: 100, CloudDependencyScore: 2})

	snap, err := New(store, 10, time.UTC).Compute(context.Background(), ecomodels.TopicNetwork)
	require.NoError(t, err)

	load, _ := snap.AverageValue("avg_network_load")
	reqs, _ := snap.AverageValue("avg_requests")
	cloud, _ := snap.AverageValue("avg_cloud")
	assert.Equal(t, 10.1, load)
	assert.Equal(t, 99.0, reqs)
	assert.Equal(t, 1.5, cloud)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"avg_requests":99`)
}

func TestHalfTenthsRoundToEven(t *testing.T) {
	store := &fakeStore{}
	for _, v := range []float64{0, 0, 0, 1} {
		store.add(ecomodels.ReadingInput{HardwareSensorID: "hw", CPUUsage: v, RAMUsage: v * 3})
	}

	snap, err := New(store, 10, time.UTC).Compute(context.Background(), ecomodels.TopicHardware)
	require.NoError(t, err)

	cpu, _ := snap.AverageValue("avg_cpu")
	ram, _ := snap.AverageValue("avg_ram")
	assert.Equal(t, 0.2, cpu)
	assert.Equal(t, 0.8, ram)
}

func TestRoundTenth(t *testing.T) {
	cases := map[float64]float64{
		0.25:   0.2,
		0.75:   0.8,
		2.5:    2.5,
		10.08:  10.1,
		-0.25:  -0.2,
		0.35:   0.3,
		33.333: 33.3,
	}
	for in, want := range cases {
		assert.Equal(t, want, roundTenth(in), "%v", in)
	}
}

func TestWindowOrdering(t *testing.T) {
	store := &fakeStore{}
	for i := 1; i <= 12; i++ {
		store.add(ecomodels.ReadingInput{HardwareSensorID: "hw", CPUUsage: float64(i)})
	}

	snap, err := New(store, 10, time.UTC).Compute(context.Background(), ecomodels.TopicDashboard)
	require.NoError(t, err)

	cpu := snap.SeriesValues("cpu_data")
	require.Len(t, cpu, 10)
	assert.Equal(t, 3.0, cpu[0])
	assert.Equal(t, 12.0, cpu[9])

	require.Len(t, snap.Labels, 10)
	assert.Equal(t, "09:00:03", snap.Labels[0])
	assert.Equal(t, "09:00:12", snap.Labels[9])

	require.Len(t, snap.Rows, 10)
	assert.Equal(t, int64(12), snap.Rows[0][0].Value)

	// averages cover every stored reading, not just the window
	avg, _ := snap.AverageValue("avg_cpu")
	assert.Equal(t, 6.5, avg)
}

func TestLabelsUseConfiguredZone(t *testing.T) {
	store := &fakeStore{}
	store.add(ecomodels.ReadingInput{HardwareSensorID: "hw"})

	paris := time.FixedZone("CET", 3600)
	snap, err := New(store, 10, paris).Compute(context.Background(), ecomodels.TopicHardware)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00:01"}, snap.Labels)
}

func TestScoresRowCarriesRecommendations(t *testing.T) {
	store := &fakeStore{}
	store.add(ecomodels.ReadingInput{HardwareSensorID: "hw", EcoScore: 55, Recommendations: json.RawMessage(`{"tip":"repair"}`)})

	snap, err := New(store, 10, time.UTC).Compute(context.Background(), ecomodels.TopicScores)
	require.NoError(t, err)

	out := decode(t, snap)
	rows := out["latest_data"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"tip": "repair"}, row["recommendations"])
	assert.Equal(t, 55.0, row["eco_score"])
	assert.Contains(t, row, "created_at")
}

func TestComputeErrors(t *testing.T) {
	_, err := New(&fakeStore{}, 10, time.UTC).Compute(context.Background(), ecomodels.Topic("quiz"))
	assert.True(t, ecomodels.IsInvalidTopic(err))

	boom := &ecomodels.StoreError{Op: "latest", Err: errors.New("connection reset")}
	_, err = New(&fakeStore{err: boom}, 10, time.UTC).Compute(context.Background(), ecomodels.TopicEnergy)
	assert.ErrorIs(t, err, boom)
}

func TestEveryTopicHasAView(t *testing.T) {
	for _, topic := range ecomodels.Topics {
		v, ok := views[topic]
		require.True(t, ok, topic)
		assert.Equal(t, "id", v.columns[0].key)
		assert.Equal(t, "created_at", v.columns[len(v.columns)-1].key)
	}
}
