package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndQuerySensorReadings(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	for i, v := range []float64{22.5, 24.0, 25.5} {
		_, err := db.InsertSensorReading(&SensorReading{
			ZoneID:     "zone-1",
			SensorType: SensorMoisture,
			SensorID:   "probe-a",
			Value:      v,
			Unit:       "%",
			Timestamp:  now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	readings, err := db.GetSensorReadings("zone-1", SensorMoisture, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	// Newest first.
	if readings[0].Value != 25.5 {
		t.Errorf("first reading = %.1f, want 25.5", readings[0].Value)
	}
	if readings[0].SensorID != "probe-a" || readings[0].Unit != "%" {
		t.Errorf("metadata lost: %+v", readings[0])
	}
}

func TestActiveZonesWindow(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	insert := func(zone string, ts time.Time) {
		_, err := db.InsertSensorReading(&SensorReading{
			ZoneID: zone, SensorType: SensorMoisture, Value: 20, Timestamp: ts,
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("zone-1", now.Add(-1*time.Hour))
	insert("zone-2", now.Add(-30*time.Hour)) // outside a 24h window
	insert("zone-3", now.Add(-23*time.Hour))

	zones, err := db.ActiveZones(24 * time.Hour)
	if err != nil {
		t.Fatalf("ActiveZones: %v", err)
	}
	if len(zones) != 2 || zones[0] != "zone-1" || zones[1] != "zone-3" {
		t.Errorf("active zones = %v, want [zone-1 zone-3]", zones)
	}
}

func TestZoneMetricsSnapshot(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	seed := []struct {
		sensorType string
		value      float64
	}{
		{SensorMoisture, 28.0},
		{SensorSoilTemp, 19.5},
		{SensorAirTemp, 31.0},
		{SensorRainfall, 0.0},
	}
	for _, s := range seed {
		if _, err := db.InsertSensorReading(&SensorReading{
			ZoneID: "zone-1", SensorType: s.sensorType, Value: s.value, Timestamp: now,
		}); err != nil {
			t.Fatalf("insert %s: %v", s.sensorType, err)
		}
	}
	// Older moisture value must not win.
	if _, err := db.InsertSensorReading(&SensorReading{
		ZoneID: "zone-1", SensorType: SensorMoisture, Value: 10.0, Timestamp: now.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertNPKReading(&NPKReading{
		ZoneID: "zone-1", Nitrogen: 70, Phosphorus: 40, Potassium: 180, Timestamp: now,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertHumidityReading(&HumidityReading{
		ZoneID: "zone-1", Humidity: 55, Status: "OPTIMAL", Timestamp: now,
	}); err != nil {
		t.Fatal(err)
	}

	m, err := db.ZoneMetrics("zone-1")
	if err != nil {
		t.Fatalf("ZoneMetrics: %v", err)
	}
	if !m.HasMoisture() || *m.Moisture != 28.0 {
		t.Errorf("moisture = %v, want 28.0", m.Moisture)
	}
	if m.AirTemp == nil || *m.AirTemp != 31.0 {
		t.Errorf("air temp = %v, want 31.0", m.AirTemp)
	}
	if m.Humidity == nil || *m.Humidity != 55.0 {
		t.Errorf("humidity = %v, want 55.0", m.Humidity)
	}
	if m.Nitrogen == nil || *m.Nitrogen != 70.0 {
		t.Errorf("nitrogen = %v, want 70.0", m.Nitrogen)
	}
}

func TestZoneMetricsEmptyZone(t *testing.T) {
	db := testDB(t)

	m, err := db.ZoneMetrics("zone-ghost")
	if err != nil {
		t.Fatalf("ZoneMetrics on empty zone: %v", err)
	}
	if m.HasMoisture() {
		t.Error("expected no moisture for an unknown zone")
	}
}

func TestIrrigationHistory(t *testing.T) {
	db := testDB(t)

	last, err := db.LastIrrigationTime("zone-1")
	if err != nil {
		t.Fatalf("LastIrrigationTime: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("expected zero time for never-irrigated zone, got %v", last)
	}

	ts := time.Now().Add(-2 * time.Hour)
	_, err = db.InsertIrrigationEvent(&IrrigationEvent{
		ZoneID: "zone-1", AmountMM: 10, VolumeLiters: 1000, DurationMin: 50,
		MoistureBefore: 25, MoistureAfter: 30, Trigger: "decision",
		Confidence: 0.82, ModelVersion: "scoring-v1", Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	last, err = db.LastIrrigationTime("zone-1")
	if err != nil {
		t.Fatalf("LastIrrigationTime: %v", err)
	}
	if last.IsZero() {
		t.Fatal("expected non-zero last irrigation time")
	}

	events, err := db.GetIrrigationEvents("zone-1", 5)
	if err != nil {
		t.Fatalf("GetIrrigationEvents: %v", err)
	}
	if len(events) != 1 || events[0].VolumeLiters != 1000 || events[0].Trigger != "decision" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestStatsAndPrune(t *testing.T) {
	db := testDB(t)

	old := time.Now().Add(-48 * time.Hour)
	if _, err := db.InsertSensorReading(&SensorReading{
		ZoneID: "zone-1", SensorType: SensorMoisture, Value: 20, Timestamp: old,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertIrrigationEvent(&IrrigationEvent{
		ZoneID: "zone-1", AmountMM: 8, VolumeLiters: 800, DurationMin: 40,
		Trigger: "forced", Timestamp: old,
	}); err != nil {
		t.Fatal(err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.SensorReadings != 1 || stats.IrrigationEvents != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalVolumeLiters != 800 {
		t.Errorf("total volume = %.0f, want 800", stats.TotalVolumeLiters)
	}

	pruned, err := db.PruneBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d rows, want 1", pruned)
	}

	stats, err = db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	// Actuation history survives pruning.
	if stats.SensorReadings != 0 || stats.IrrigationEvents != 1 {
		t.Errorf("post-prune stats = %+v", stats)
	}
}
