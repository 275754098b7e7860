package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
mqtt:
  broker: tcp://broker.example:1883
soil:
  type: clay
irrigation:
  min_interval_hours: 12
job:
  default_zone: field-7
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://broker.example:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Soil.Type != "clay" {
		t.Errorf("soil type = %q", cfg.Soil.Type)
	}
	if cfg.Irrigation.MinIntervalHours != 12 {
		t.Errorf("min interval = %.1f", cfg.Irrigation.MinIntervalHours)
	}
	// Untouched fields keep their defaults.
	if cfg.Soil.FieldCapacity != 33.0 || cfg.Pump.FlowRateLPM != 20.0 {
		t.Error("defaults lost on partial override")
	}
	if cfg.Job.DefaultZone != "field-7" {
		t.Errorf("default zone = %q", cfg.Job.DefaultZone)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadCalibration(t *testing.T) {
	cfg := Default()
	cfg.Soil.FieldCapacity = 10
	cfg.Soil.WiltingPoint = 12
	if err := cfg.Validate(); err == nil {
		t.Fatal("field capacity below wilting point must not validate")
	}
}

func TestValidateRequiresPredictorURL(t *testing.T) {
	cfg := Default()
	cfg.Predictor.Enabled = true
	cfg.Predictor.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled predictor without URL must not validate")
	}
}

func TestAbsorptionFallback(t *testing.T) {
	cfg := Default()
	if got := cfg.AbsorptionFor("clay"); got != 0.7 {
		t.Errorf("clay = %.1f, want 0.7", got)
	}
	if got := cfg.AbsorptionFor("volcanic"); got != 0.5 {
		t.Errorf("unknown soil = %.1f, want loam fallback 0.5", got)
	}
}
