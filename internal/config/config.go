// Package config loads and validates the controller configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NutrientThresholds holds the status band boundaries for one nutrient (mg/kg).
type NutrientThresholds struct {
	CriticalLow float64 `yaml:"critical_low"`
	Low         float64 `yaml:"low"`
	OptimalMin  float64 `yaml:"optimal_min"`
	OptimalMax  float64 `yaml:"optimal_max"`
}

// CropRequirement holds the minimum nutrient levels a crop needs (mg/kg).
type CropRequirement struct {
	Nitrogen   float64 `yaml:"nitrogen"`
	Phosphorus float64 `yaml:"phosphorus"`
	Potassium  float64 `yaml:"potassium"`
}

// DeficitRate converts a measured nutrient deficit into a fertilizer
// application amount: amount_kg_per_ha = (deficit / Step) * RateKgPerHa.
// The constants are empirical and deployment specific, hence configurable.
type DeficitRate struct {
	Step        float64 `yaml:"step"`
	RateKgPerHa float64 `yaml:"rate_kg_per_ha"`
}

// Config represents the controller configuration file structure.
type Config struct {
	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Soil struct {
		FieldCapacity float64 `yaml:"field_capacity"`
		WiltingPoint  float64 `yaml:"wilting_point"`
		Type          string  `yaml:"type"` // sand, loam, clay
	} `yaml:"soil"`

	Irrigation struct {
		ThresholdPAWPercent float64 `yaml:"threshold_paw_percentage"`
		ApplicationRateMM   float64 `yaml:"application_rate_mm"`
		MinIntervalHours    float64 `yaml:"min_interval_hours"`
		ForcedCyclePeriod   int     `yaml:"forced_cycle_period"`
		BaseVolumeMM        float64 `yaml:"base_volume_mm"`
		NutrientLowFactor   float64 `yaml:"nutrient_low_factor"`
	} `yaml:"irrigation"`

	Pump struct {
		FlowRateLPM float64            `yaml:"flow_rate_lpm"`
		AreaSqm     float64            `yaml:"area_sqm"`
		Absorption  map[string]float64 `yaml:"absorption"`
	} `yaml:"pump"`

	NPK struct {
		Thresholds       map[string]NutrientThresholds `yaml:"thresholds"`
		CropRequirements map[string]CropRequirement    `yaml:"crop_requirements"`
		DeficitRates     map[string]DeficitRate        `yaml:"deficit_rates"`
		DefaultCrop      string                        `yaml:"default_crop"`
	} `yaml:"npk"`

	Predictor struct {
		Enabled        bool   `yaml:"enabled"`
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"predictor"`

	Job struct {
		IntervalMinutes   int    `yaml:"interval_minutes"`
		DefaultZone       string `yaml:"default_zone"`
		ActiveWindowHours int    `yaml:"active_window_hours"`
		StopTimeoutSecs   int    `yaml:"stop_timeout_seconds"`
	} `yaml:"job"`

	Web struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"web"`
}

// Default returns the default configuration.
func Default() Config {
	var cfg Config
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "irrigation-controller"
	cfg.Database.Path = "/var/lib/agrosense/irrigation.db"

	cfg.Soil.FieldCapacity = 33.0
	cfg.Soil.WiltingPoint = 12.0
	cfg.Soil.Type = "loam"

	cfg.Irrigation.ThresholdPAWPercent = 50.0
	cfg.Irrigation.ApplicationRateMM = 10.0
	cfg.Irrigation.MinIntervalHours = 6.0
	cfg.Irrigation.ForcedCyclePeriod = 3
	cfg.Irrigation.BaseVolumeMM = 10.0
	cfg.Irrigation.NutrientLowFactor = 0.8

	cfg.Pump.FlowRateLPM = 20.0
	cfg.Pump.AreaSqm = 100.0
	cfg.Pump.Absorption = map[string]float64{
		"sand": 0.3,
		"loam": 0.5,
		"clay": 0.7,
	}

	cfg.NPK.Thresholds = map[string]NutrientThresholds{
		"nitrogen":   {CriticalLow: 20, Low: 40, OptimalMin: 60, OptimalMax: 120},
		"phosphorus": {CriticalLow: 10, Low: 20, OptimalMin: 30, OptimalMax: 60},
		"potassium":  {CriticalLow: 50, Low: 100, OptimalMin: 150, OptimalMax: 300},
	}
	cfg.NPK.CropRequirements = map[string]CropRequirement{
		"wheat": {Nitrogen: 80, Phosphorus: 30, Potassium: 150},
		"maize": {Nitrogen: 100, Phosphorus: 35, Potassium: 180},
	}
	cfg.NPK.DeficitRates = map[string]DeficitRate{
		"nitrogen":   {Step: 20, RateKgPerHa: 5.0},
		"phosphorus": {Step: 10, RateKgPerHa: 4.5},
		"potassium":  {Step: 50, RateKgPerHa: 6.0},
	}
	cfg.NPK.DefaultCrop = "wheat"

	cfg.Predictor.Enabled = false
	cfg.Predictor.TimeoutSeconds = 10

	cfg.Job.IntervalMinutes = 30
	cfg.Job.DefaultZone = "zone-1"
	cfg.Job.ActiveWindowHours = 24
	cfg.Job.StopTimeoutSecs = 5

	cfg.Web.Enabled = true
	cfg.Web.Listen = ":8080"

	return cfg
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable. Called once at startup;
// a bad configuration is fatal, never detected mid-loop.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Soil.FieldCapacity <= c.Soil.WiltingPoint {
		return fmt.Errorf("soil.field_capacity (%.1f) must be above soil.wilting_point (%.1f)",
			c.Soil.FieldCapacity, c.Soil.WiltingPoint)
	}
	if c.Irrigation.ForcedCyclePeriod < 1 {
		return fmt.Errorf("irrigation.forced_cycle_period must be at least 1")
	}
	if c.Pump.FlowRateLPM <= 0 {
		return fmt.Errorf("pump.flow_rate_lpm must be positive")
	}
	if c.Predictor.Enabled && c.Predictor.URL == "" {
		return fmt.Errorf("predictor.url is required when predictor.enabled is true")
	}
	if c.Job.IntervalMinutes < 1 {
		return fmt.Errorf("job.interval_minutes must be at least 1")
	}
	return nil
}

// MinInterval returns the minimum time between irrigations for a zone.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Irrigation.MinIntervalHours * float64(time.Hour))
}

// PredictorTimeout returns the request timeout for the remote predictor.
func (c *Config) PredictorTimeout() time.Duration {
	return time.Duration(c.Predictor.TimeoutSeconds) * time.Second
}

// JobInterval returns the scheduled job tick interval.
func (c *Config) JobInterval() time.Duration {
	return time.Duration(c.Job.IntervalMinutes) * time.Minute
}

// ActiveWindow returns the trailing window in which a zone counts as active.
func (c *Config) ActiveWindow() time.Duration {
	return time.Duration(c.Job.ActiveWindowHours) * time.Hour
}

// Absorption returns the soil absorption coefficient for the given soil type,
// defaulting to loam when unknown.
func (c *Config) AbsorptionFor(soilType string) float64 {
	if v, ok := c.Pump.Absorption[soilType]; ok {
		return v
	}
	return 0.5
}
