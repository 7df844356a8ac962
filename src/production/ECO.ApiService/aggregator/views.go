package aggregator

import (
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

type metric struct {
	key   string
	value func(ecomodels.Reading) float64
}

type column struct {
	key   string
	value func(ecomodels.Reading) interface{}
}

type average struct {
	key     string
	value   func(ecomodels.Reading) float64
	integer bool
}

// view declares what one topic exposes. Key names are part of the wire format.
type view struct {
	series   []metric
	columns  []column
	averages []average
}

var (
	cpu          = func(r ecomodels.Reading) float64 { return r.CPUUsage }
	ram          = func(r ecomodels.Reading) float64 { return r.RAMUsage }
	battery      = func(r ecomodels.Reading) float64 { return r.BatteryHealth }
	age          = func(r ecomodels.Reading) float64 { return r.AgeYears }
	power        = func(r ecomodels.Reading) float64 { return r.PowerWatts }
	co2          = func(r ecomodels.Reading) float64 { return r.CO2EquivG }
	overheating  = func(r ecomodels.Reading) float64 { return r.Overheating }
	active       = func(r ecomodels.Reading) float64 { return r.ActiveDevices }
	netLoad      = func(r ecomodels.Reading) float64 { return r.NetworkLoadMbps }
	requests     = func(r ecomodels.Reading) float64 { return r.RequestsPerMin }
	cloud        = func(r ecomodels.Reading) float64 { return r.CloudDependencyScore }
	eco          = func(r ecomodels.Reading) float64 { return r.EcoScore }
	obsolescence = func(r ecomodels.Reading) float64 { return r.ObsolescenceScore }
	bigtech      = func(r ecomodels.Reading) float64 { return r.BigtechDependency }
	co2Savings   = func(r ecomodels.Reading) float64 { return r.CO2SavingsKgYear }
)

func num(f func(ecomodels.Reading) float64) func(ecomodels.Reading) interface{} {
	return func(r ecomodels.Reading) interface{} { return f(r) }
}

var (
	colID               = column{"id", func(r ecomodels.Reading) interface{} { return r.ID }}
	colHardwareSensorID = column{"hardware_sensor_id", func(r ecomodels.Reading) interface{} { return r.HardwareSensorID }}
	colEnergySensorID   = column{"energy_sensor_id", func(r ecomodels.Reading) interface{} { return r.EnergySensorID }}
	colNetworkSensorID  = column{"network_sensor_id", func(r ecomodels.Reading) interface{} { return r.NetworkSensorID }}
	colRecommendations  = column{"recommendations", func(r ecomodels.Reading) interface{} { return r.Recommendations }}
	colCreatedAt        = column{"created_at", func(r ecomodels.Reading) interface{} { return ecomodels.FormatCreatedAt(r.CreatedAt) }}
)

var views = map[ecomodels.Topic]view{
	ecomodels.TopicDashboard: {
		series: []metric{
			{"cpu_data", cpu},
			{"ram_data", ram},
			{"power_data", power},
			{"eco_data", eco},
			{"co2_data", co2},
		},
		columns: []column{
			colID,
			colHardwareSensorID,
			{"cpu_usage", num(cpu)},
			{"ram_usage", num(ram)},
			{"power_watts", num(power)},
			{"eco_score", num(eco)},
			colCreatedAt,
		},
		averages: []average{
			{key: "avg_cpu", value: cpu},
			{key: "avg_ram", value: ram},
			{key: "avg_power", value: power},
			{key: "avg_eco", value: eco},
		},
	},
	ecomodels.TopicHardware: {
		series: []metric{
			{"cpu_data", cpu},
			{"ram_data", ram},
			{"battery_data", battery},
			{"age_data", age},
		},
		columns: []column{
			colID,
			colHardwareSensorID,
			{"cpu_usage", num(cpu)},
			{"ram_usage", num(ram)},
			{"battery_health", num(battery)},
			{"age_years", num(age)},
			colCreatedAt,
		},
		averages: []average{
			{key: "avg_cpu", value: cpu},
			{key: "avg_ram", value: ram},
			{key: "avg_battery", value: battery},
			{key: "avg_age", value: age},
		},
	},
	ecomodels.TopicEnergy: {
		series: []metric{
			{"power_data", power},
			{"co2_data", co2},
			{"overheating_data", overheating},
			{"active_devices_data", active},
		},
		columns: []column{
			colID,
			colEnergySensorID,
			{"power_watts", num(power)},
			{"co2_equiv_g", num(co2)},
			{"overheating", num(overheating)},
			{"active_devices", num(active)},
			colCreatedAt,
		},
		averages: []average{
			{key: "avg_power", value: power},
			{key: "avg_co2", value: co2},
			{key: "avg_overheating", value: overheating},
			{key: "avg_active", value: active, integer: true},
		},
	},
	ecomodels.TopicNetwork: {
		series: []metric{
			{"network_load_data", netLoad},
			{"requests_data", requests},
			{"cloud_dependency_data", cloud},
		},
		columns: []column{
			colID,
			colNetworkSensorID,
			{"network_load_mbps", num(netLoad)},
			{"requests_per_min", num(requests)},
			{"cloud_dependency_score", num(cloud)},
			colCreatedAt,
		},
		averages: []average{
			{key: "avg_network_load", value: netLoad},
			{key: "avg_requests", value: requests, integer: true},
			{key: "avg_cloud", value: cloud},
		},
	},
	ecomodels.TopicScores: {
		series: []metric{
			{"eco_data", eco},
			{"obsolescence_data", obsolescence},
			{"bigtech_data", bigtech},
			{"co2_savings_data", co2Savings},
		},
		columns: []column{
			colID,
			{"eco_score", num(eco)},
			{"obsolescence_score", num(obsolescence)},
			{"bigtech_dependency", num(bigtech)},
			{"co2_savings_kg_year", num(co2Savings)},
			colRecommendations,
			colCreatedAt,
		},
		averages: []average{
			{key: "avg_eco", value: eco},
			{key: "avg_obsolescence", value: obsolescence},
			{key: "avg_bigtech", value: bigtech},
			{key: "avg_co2_savings", value: co2Savings},
		},
	},
}
