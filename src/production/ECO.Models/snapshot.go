package ecomodels

import (
	"bytes"
	"encoding/json"
)

// Field is one key/value pair of an ordered JSON object
type Field struct {
	Key   string
	Value interface{}
}

// Row is a JSON object whose keys keep their declaration order
type Row []Field

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKeyValue(&buf, f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Series is a chart metric aligned with Snapshot.Labels
type Series struct {
	Key    string
	Values []float64
}

// Average is a whole-store mean. Integer averages are rendered without decimals.
type Average struct {
	Key     string
	Value   float64
	Integer bool
}

// Snapshot is the display-ready view of one topic. It is never persisted.
type Snapshot struct {
	Topic    Topic
	Labels   []string
	Series   []Series
	Rows     []Row
	Averages []Average
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return s.encode("")
}

// Message renders the snapshot flattened into a typed push message
func (s Snapshot) Message(kind string) ([]byte, error) {
	return s.encode(kind)
}

// SeriesValues returns the values of a series, or nil when absent
func (s Snapshot) SeriesValues(key string) []float64 {
	for _, sr := range s.Series {
		if sr.Key == key {
			return sr.Values
		}
	}
	return nil
}

// AverageValue looks an average up by key
func (s Snapshot) AverageValue(key string) (float64, bool) {
	for _, a := range s.Averages {
		if a.Key == key {
			return a.Value, true
		}
	}
	return 0, false
}

func (s Snapshot) encode(kind string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if kind != "" {
		if err := writeKeyValue(&buf, "type", kind); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}

	labels := s.Labels
	if labels == nil {
		labels = []string{}
	}
	if err := writeKeyValue(&buf, "chart_labels", labels); err != nil {
		return nil, err
	}

	for _, sr := range s.Series {
		values := sr.Values
		if values == nil {
			values = []float64{}
		}
		buf.WriteByte(',')
		if err := writeKeyValue(&buf, sr.Key, values); err != nil {
			return nil, err
		}
	}

	rows := s.Rows
	if rows == nil {
		rows = []Row{}
	}
	buf.WriteByte(',')
	if err := writeKeyValue(&buf, "latest_data", rows); err != nil {
		return nil, err
	}

	for _, a := range s.Averages {
		buf.WriteByte(',')
		var v interface{} = a.Value
		if a.Integer {
			v = int64(a.Value)
		}
		if err := writeKeyValue(&buf, a.Key, v); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKeyValue(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
