// Package ingest decodes reading payloads in either flat or nested form.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// MaxBodyBytes caps a single ingestion payload
const MaxBodyBytes = 1 << 20

const (
	blockHardware = "hardware"
	blockEnergy   = "energy"
	blockNetwork  = "network"
	blockScores   = "scores"
)

// payload resolves a field from its nested block first, then from the top level
type payload struct {
	root   map[string]any
	blocks map[string]map[string]any
}

// Decode parses raw into a ReadingInput. Missing fields keep their zero
// value; malformed ones produce a ValidationError naming the field.
func Decode(raw []byte) (ecomodels.ReadingInput, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var root map[string]any
	if err := decoder.Decode(&root); err != nil {
		return ecomodels.ReadingInput{}, &ecomodels.ValidationError{Field: "body", Message: "invalid JSON object: " + err.Error()}
	}
	if root == nil {
		return ecomodels.ReadingInput{}, &ecomodels.ValidationError{Field: "body", Message: "expected a JSON object"}
	}

	return DecodeMap(root)
}

// DecodeMap is Decode for an already parsed object
func DecodeMap(root map[string]any) (ecomodels.ReadingInput, error) {
	p := payload{root: root, blocks: make(map[string]map[string]any, 4)}
	for _, name := range []string{blockHardware, blockEnergy, blockNetwork, blockScores} {
		value, ok := root[name]
		if !ok || value == nil {
			continue
		}
		block, ok := value.(map[string]any)
		if !ok {
			return ecomodels.ReadingInput{}, &ecomodels.ValidationError{Field: name, Message: fmt.Sprintf("must be an object, got %s", typeName(value))}
		}
		p.blocks[name] = block
	}

	var in ecomodels.ReadingInput
	steps := []func() error{
		func() error { return p.str(blockHardware, "sensor_id", "hardware_sensor_id", &in.HardwareSensorID) },
		func() error { return p.integer(blockHardware, "timestamp", "hardware_timestamp", &in.HardwareTimestamp) },
		func() error { return p.num(blockHardware, "age_years", "age_years", &in.AgeYears) },
		func() error { return p.num(blockHardware, "cpu_usage", "cpu_usage", &in.CPUUsage) },
		func() error { return p.num(blockHardware, "ram_usage", "ram_usage", &in.RAMUsage) },
		func() error { return p.num(blockHardware, "battery_health", "battery_health", &in.BatteryHealth) },
		func() error { return p.str(blockHardware, "os", "os", &in.OS) },
		func() error { return p.boolean(blockHardware, "win11_compat", "win11_compat", &in.Win11Compat) },

		func() error { return p.str(blockEnergy, "sensor_id", "energy_sensor_id", &in.EnergySensorID) },
		func() error { return p.integer(blockEnergy, "timestamp", "energy_timestamp", &in.EnergyTimestamp) },
		func() error { return p.num(blockEnergy, "power_watts", "power_watts", &in.PowerWatts) },
		func() error { return p.num(blockEnergy, "active_devices", "active_devices", &in.ActiveDevices) },
		func() error { return p.num(blockEnergy, "overheating", "overheating", &in.Overheating) },
		func() error { return p.num(blockEnergy, "co2_equiv_g", "co2_equiv_g", &in.CO2EquivG) },

		func() error { return p.str(blockNetwork, "sensor_id", "network_sensor_id", &in.NetworkSensorID) },
		func() error { return p.integer(blockNetwork, "timestamp", "network_timestamp", &in.NetworkTimestamp) },
		func() error { return p.num(blockNetwork, "network_load_mbps", "network_load_mbps", &in.NetworkLoadMbps) },
		func() error { return p.num(blockNetwork, "requests_per_min", "requests_per_min", &in.RequestsPerMin) },
		func() error {
			return p.num(blockNetwork, "cloud_dependency_score", "cloud_dependency_score", &in.CloudDependencyScore)
		},

		func() error { return p.num(blockScores, "eco_score", "eco_score", &in.EcoScore) },
		func() error { return p.num(blockScores, "obsolescence_score", "obsolescence_score", &in.ObsolescenceScore) },
		func() error { return p.num(blockScores, "bigtech_dependency", "bigtech_dependency", &in.BigtechDependency) },
		func() error { return p.num(blockScores, "co2_savings_kg_year", "co2_savings_kg_year", &in.CO2SavingsKgYear) },
		func() error { return p.object(blockScores, "recommendations", "recommendations", &in.Recommendations) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return ecomodels.ReadingInput{}, err
		}
	}

	return in, nil
}

func (p payload) lookup(block, nestedKey, flatKey string) (any, bool) {
	if b, ok := p.blocks[block]; ok {
		if v, ok := b[nestedKey]; ok && v != nil {
			return v, true
		}
		if v, ok := b[flatKey]; ok && v != nil {
			return v, true
		}
	}
	if v, ok := p.root[flatKey]; ok && v != nil {
		return v, true
	}
	return nil, false
}

func (p payload) str(block, nestedKey, flatKey string, dst *string) error {
	v, ok := p.lookup(block, nestedKey, flatKey)
	if !ok {
		return nil
	}
	switch typed := v.(type) {
	case string:
		*dst = strings.TrimSpace(typed)
	case json.Number:
		*dst = typed.String()
	default:
		return invalid(flatKey, "a string", v)
	}
	return nil
}

func (p payload) num(block, nestedKey, flatKey string, dst *float64) error {
	v, ok := p.lookup(block, nestedKey, flatKey)
	if !ok {
		return nil
	}
	f, err := parseFloat(v)
	if err != nil {
		return invalid(flatKey, "a number", v)
	}
	*dst = f
	return nil
}

func (p payload) integer(block, nestedKey, flatKey string, dst *int64) error {
	v, ok := p.lookup(block, nestedKey, flatKey)
	if !ok {
		return nil
	}
	n, err := parseInt64(v)
	if err != nil {
		return invalid(flatKey, "an integer", v)
	}
	*dst = n
	return nil
}

func (p payload) boolean(block, nestedKey, flatKey string, dst *bool) error {
	v, ok := p.lookup(block, nestedKey, flatKey)
	if !ok {
		return nil
	}
	switch typed := v.(type) {
	case bool:
		*dst = typed
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return invalid(flatKey, "a boolean", v)
		}
		*dst = b
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return invalid(flatKey, "a boolean", v)
		}
		*dst = f != 0
	default:
		return invalid(flatKey, "a boolean", v)
	}
	return nil
}

func (p payload) object(block, nestedKey, flatKey string, dst *json.RawMessage) error {
	v, ok := p.lookup(block, nestedKey, flatKey)
	if !ok {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return invalid(flatKey, "an object", v)
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return &ecomodels.ValidationError{Field: flatKey, Message: err.Error()}
	}
	*dst = raw
	return nil
}

func parseFloat(value any) (float64, error) {
	var f float64
	var err error
	switch typed := value.(type) {
	case json.Number:
		f, err = typed.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(typed), 64)
	case float64:
		f = typed
	case bool:
		if typed {
			f = 1
		}
	default:
		return 0, fmt.Errorf("unsupported number type %T", value)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

func parseInt64(value any) (int64, error) {
	switch typed := value.(type) {
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return n, nil
		}
		f, err := typed.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case string:
		s := strings.TrimSpace(typed)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case float64:
		return int64(typed), nil
	default:
		return 0, fmt.Errorf("unsupported integer type %T", value)
	}
}

func invalid(field, want string, got any) error {
	return &ecomodels.ValidationError{Field: field, Message: fmt.Sprintf("must be %s, got %s", want, typeName(got))}
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
