package ecomodels

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	for _, raw := range []string{"dashboard", "Energy", "scores/", "/network/"} {
		_, err := ParseTopic(raw)
		assert.NoError(t, err, raw)
	}

	_, err := ParseTopic("quiz")
	require.Error(t, err)
	assert.True(t, IsInvalidTopic(err))
}

func TestSnapshotMessageKeepsKeyOrder(t *testing.T) {
	s := Snapshot{
		Topic:  TopicNetwork,
		Labels: []string{"10:00:00"},
		Series: []Series{{Key: "network_load_data", Values: []float64{12.5}}},
		Rows:   []Row{{{"id", int64(1)}, {"network_sensor_id", "net-1"}}},
		Averages: []Average{
			{Key: "avg_network_load", Value: 12.5},
			{Key: "avg_requests", Value: 41.9, Integer: true},
		},
	}

	b, err := s.Message(MessageDataUpdate)
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"data_update","chart_labels":["10:00:00"],"network_load_data":[12.5],`+
			`"latest_data":[{"id":1,"network_sensor_id":"net-1"}],"avg_network_load":12.5,"avg_requests":41}`,
		string(b))
}

func TestEmptySnapshotUsesEmptyArrays(t *testing.T) {
	s := Snapshot{
		Topic:    TopicHardware,
		Series:   []Series{{Key: "cpu_data"}},
		Averages: []Average{{Key: "avg_cpu"}},
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chart_labels":[],"cpu_data":[],"latest_data":[],"avg_cpu":0}`, string(b))
}

func TestNormalizeAndValidate(t *testing.T) {
	in := ReadingInput{CPUUsage: 20}
	in.Normalize()
	assert.Equal(t, UnknownSensor, in.HardwareSensorID)
	assert.Equal(t, UnknownSensor, in.OS)
	assert.JSONEq(t, `{}`, string(in.Recommendations))

	err := in.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "hardware_sensor_id", verr.Field)

	in.EnergySensorID = "energy-7"
	assert.NoError(t, in.Validate())
}

func TestNewPageMeta(t *testing.T) {
	meta, offset, ok := NewPageMeta(20, 2, 8)
	require.True(t, ok)
	assert.Equal(t, 8, offset)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.True(t, meta.HasPrevious)
	assert.Equal(t, 9, *meta.StartIndex)
	assert.Equal(t, 16, *meta.EndIndex)

	meta, _, ok = NewPageMeta(20, 3, 8)
	require.True(t, ok)
	assert.False(t, meta.HasNext)
	assert.Equal(t, 20, *meta.EndIndex)

	meta, _, ok = NewPageMeta(20, 4, 8)
	assert.False(t, ok)
	assert.False(t, meta.HasNext)
	assert.Nil(t, meta.StartIndex)

	meta, _, ok = NewPageMeta(0, 1, 8)
	require.True(t, ok)
	assert.Equal(t, 1, meta.TotalPages)
	assert.Equal(t, 0, *meta.StartIndex)
}
