// Package storage provides SQLite persistence for sensor telemetry,
// soil analyses and actuation history.
package storage

import "time"

// Sensor type codes used in the sensor_readings table.
const (
	SensorMoisture = "moisture"
	SensorSoilTemp = "soil_temperature"
	SensorAirTemp  = "air_temperature"
	SensorRainfall = "rainfall"
)

// SensorReading is one scalar telemetry sample for a zone.
type SensorReading struct {
	ID         int64     `json:"id"`
	ZoneID     string    `json:"zone_id"`
	SensorType string    `json:"sensor_type"`
	SensorID   string    `json:"sensor_id,omitempty"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NPKReading is a complete nitrogen/phosphorus/potassium triple for a zone.
type NPKReading struct {
	ID         int64     `json:"id"`
	ZoneID     string    `json:"zone_id"`
	Nitrogen   float64   `json:"nitrogen"`
	Phosphorus float64   `json:"phosphorus"`
	Potassium  float64   `json:"potassium"`
	Timestamp  time.Time `json:"timestamp"`
}

// HumidityReading is an air humidity sample with derived comfort fields.
type HumidityReading struct {
	ID          int64     `json:"id"`
	ZoneID      string    `json:"zone_id"`
	Humidity    float64   `json:"humidity"`
	Temperature float64   `json:"temperature,omitempty"`
	HeatIndex   float64   `json:"heat_index,omitempty"`
	DewPoint    float64   `json:"dew_point,omitempty"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// WaterLevelReading is a reservoir level sample.
type WaterLevelReading struct {
	ID             int64     `json:"id"`
	LevelPercent   float64   `json:"level_percent"`
	CurrentLiters  float64   `json:"current_liters,omitempty"`
	CapacityLiters float64   `json:"capacity_liters,omitempty"`
	TankStatus     string    `json:"tank_status,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// IrrigationEvent records one completed (or attempted) pump run.
type IrrigationEvent struct {
	ID             int64     `json:"id"`
	ZoneID         string    `json:"zone_id"`
	AmountMM       float64   `json:"amount_mm"`
	VolumeLiters   float64   `json:"volume_liters"`
	DurationMin    float64   `json:"duration_min"`
	MoistureBefore float64   `json:"moisture_before"`
	MoistureAfter  float64   `json:"moisture_after"`
	Trigger        string    `json:"trigger"` // "decision", "forced", "rule_fallback"
	Confidence     float64   `json:"confidence"`
	ModelVersion   string    `json:"model_version,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// FertilizerEvent records one fertilizer application command.
type FertilizerEvent struct {
	ID            int64     `json:"id"`
	ZoneID        string    `json:"zone_id"`
	Nutrient      string    `json:"nutrient"` // N, P or K
	AmountKgPerHa float64   `json:"amount_kg_per_ha"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SoilAnalysis records the outcome of a moisture evaluation for later review.
type SoilAnalysis struct {
	ID               int64     `json:"id"`
	ZoneID           string    `json:"zone_id"`
	MoisturePct      float64   `json:"moisture_pct"`
	PAWPercent       float64   `json:"paw_percent"`
	Status           string    `json:"status"`
	IrrigationNeeded bool      `json:"irrigation_needed"`
	Timestamp        time.Time `json:"timestamp"`
}

// ZoneMetrics is the latest known value per sensor category for a zone.
// Nil fields mean no reading has been stored yet.
type ZoneMetrics struct {
	ZoneID      string     `json:"zone_id"`
	Moisture    *float64   `json:"moisture,omitempty"`
	MoistureAt  *time.Time `json:"moisture_at,omitempty"`
	SoilTemp    *float64   `json:"soil_temperature,omitempty"`
	AirTemp     *float64   `json:"air_temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	Rainfall    *float64   `json:"rainfall,omitempty"`
	Nitrogen    *float64   `json:"nitrogen,omitempty"`
	Phosphorus  *float64   `json:"phosphorus,omitempty"`
	Potassium   *float64   `json:"potassium,omitempty"`
	WaterLevel  *float64   `json:"water_level,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// HasMoisture reports whether the snapshot contains a moisture value, the
// minimum needed to run a decision.
func (m *ZoneMetrics) HasMoisture() bool {
	return m.Moisture != nil
}

// Stats summarizes row counts per table for the maintenance CLI.
type Stats struct {
	SensorReadings    int64 `json:"sensor_readings"`
	NPKReadings       int64 `json:"npk_readings"`
	HumidityReadings  int64 `json:"humidity_readings"`
	WaterLevels       int64 `json:"water_level_readings"`
	IrrigationEvents  int64 `json:"irrigation_events"`
	FertilizerEvents  int64 `json:"fertilizer_events"`
	SoilAnalyses      int64 `json:"soil_analyses"`
	TotalVolumeLiters float64
}
