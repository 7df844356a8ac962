package ecomodels

import (
	"encoding/json"
	"time"
)

const UnknownSensor = "unknown"

// ReadingInput carries the client-supplied fields of a reading
type ReadingInput struct {
	// Hardware
	HardwareSensorID  string  `json:"hardware_sensor_id"`
	HardwareTimestamp int64   `json:"hardware_timestamp"`
	AgeYears          float64 `json:"age_years"`
	CPUUsage          float64 `json:"cpu_usage"`
	RAMUsage          float64 `json:"ram_usage"`
	BatteryHealth     float64 `json:"battery_health"`
	OS                string  `json:"os"`
	Win11Compat       bool    `json:"win11_compat"`

	// Energy
	EnergySensorID  string  `json:"energy_sensor_id"`
	EnergyTimestamp int64   `json:"energy_timestamp"`
	PowerWatts      float64 `json:"power_watts"`
	ActiveDevices   float64 `json:"active_devices"`
	Overheating     float64 `json:"overheating"`
	CO2EquivG       float64 `json:"co2_equiv_g"`

	// Network
	NetworkSensorID      string  `json:"network_sensor_id"`
	NetworkTimestamp     int64   `json:"network_timestamp"`
	NetworkLoadMbps      float64 `json:"network_load_mbps"`
	RequestsPerMin       float64 `json:"requests_per_min"`
	CloudDependencyScore float64 `json:"cloud_dependency_score"`

	// Scores
	EcoScore          float64         `json:"eco_score"`
	ObsolescenceScore float64         `json:"obsolescence_score"`
	BigtechDependency float64         `json:"bigtech_dependency"`
	CO2SavingsKgYear  float64         `json:"co2_savings_kg_year"`
	Recommendations   json.RawMessage `json:"recommendations"`
}

// Reading is one persisted sample. It is never updated after insert.
type Reading struct {
	ID int64 `json:"id"`
	ReadingInput
	CreatedAt time.Time `json:"created_at"`
}

// Normalize fills the defaults for fields a sender left out
func (in *ReadingInput) Normalize() {
	if in.HardwareSensorID == "" {
		in.HardwareSensorID = UnknownSensor
	}
	if in.EnergySensorID == "" {
		in.EnergySensorID = UnknownSensor
	}
	if in.NetworkSensorID == "" {
		in.NetworkSensorID = UnknownSensor
	}
	if in.OS == "" {
		in.OS = UnknownSensor
	}
	if len(in.Recommendations) == 0 || string(in.Recommendations) == "null" {
		in.Recommendations = json.RawMessage(`{}`)
	}
}

// Validate enforces the minimal identifying fields
func (in ReadingInput) Validate() error {
	if isUnknown(in.HardwareSensorID) && isUnknown(in.EnergySensorID) && isUnknown(in.NetworkSensorID) {
		return &ValidationError{
			Field:   "hardware_sensor_id",
			Message: "at least one of hardware_sensor_id, energy_sensor_id or network_sensor_id is required",
		}
	}
	if !json.Valid(in.Recommendations) {
		return &ValidationError{Field: "recommendations", Message: "must be valid JSON"}
	}
	return nil
}

func isUnknown(id string) bool {
	return id == "" || id == UnknownSensor
}

// FormatCreatedAt renders created_at the way API rows expose it
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

// HistoryRow is the union serialization used by the paginated history table
func (r Reading) HistoryRow() Row {
	return Row{
		{"id", r.ID},
		{"hardware_sensor_id", r.HardwareSensorID},
		{"cpu_usage", r.CPUUsage},
		{"ram_usage", r.RAMUsage},
		{"power_watts", r.PowerWatts},
		{"eco_score", r.EcoScore},
		{"co2_equiv_g", r.CO2EquivG},
		{"battery_health", r.BatteryHealth},
		{"age_years", r.AgeYears},
		{"overheating", r.Overheating},
		{"active_devices", r.ActiveDevices},
		{"network_load_mbps", r.NetworkLoadMbps},
		{"requests_per_min", r.RequestsPerMin},
		{"cloud_dependency_score", r.CloudDependencyScore},
		{"obsolescence_score", r.ObsolescenceScore},
		{"bigtech_dependency", r.BigtechDependency},
		{"co2_savings_kg_year", r.CO2SavingsKgYear},
		{"created_at", FormatCreatedAt(r.CreatedAt)},
	}
}

// DetailRow serializes every stored field of the reading
func (r Reading) DetailRow() Row {
	recs := r.Recommendations
	if len(recs) == 0 {
		recs = json.RawMessage(`{}`)
	}
	return Row{
		{"id", r.ID},
		{"hardware_sensor_id", r.HardwareSensorID},
		{"hardware_timestamp", r.HardwareTimestamp},
		{"age_years", r.AgeYears},
		{"cpu_usage", r.CPUUsage},
		{"ram_usage", r.RAMUsage},
		{"battery_health", r.BatteryHealth},
		{"os", r.OS},
		{"win11_compat", r.Win11Compat},
		{"energy_sensor_id", r.EnergySensorID},
		{"energy_timestamp", r.EnergyTimestamp},
		{"power_watts", r.PowerWatts},
		{"active_devices", r.ActiveDevices},
		{"overheating", r.Overheating},
		{"co2_equiv_g", r.CO2EquivG},
		{"network_sensor_id", r.NetworkSensorID},
		{"network_timestamp", r.NetworkTimestamp},
		{"network_load_mbps", r.NetworkLoadMbps},
		{"requests_per_min", r.RequestsPerMin},
		{"cloud_dependency_score", r.CloudDependencyScore},
		{"eco_score", r.EcoScore},
		{"obsolescence_score", r.ObsolescenceScore},
		{"bigtech_dependency", r.BigtechDependency},
		{"co2_savings_kg_year", r.CO2SavingsKgYear},
		{"recommendations", recs},
		{"created_at", FormatCreatedAt(r.CreatedAt)},
	}
}
