package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	-- Scalar telemetry (moisture, temperatures, rainfall)
	CREATE TABLE IF NOT EXISTS sensor_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		sensor_type TEXT NOT NULL,
		sensor_id TEXT,
		value REAL NOT NULL,
		unit TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sensor_readings_zone ON sensor_readings(zone_id, sensor_type);
	CREATE INDEX IF NOT EXISTS idx_sensor_readings_timestamp ON sensor_readings(timestamp);

	-- Complete NPK triples
	CREATE TABLE IF NOT EXISTS npk_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		nitrogen REAL NOT NULL,
		phosphorus REAL NOT NULL,
		potassium REAL NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_npk_readings_zone ON npk_readings(zone_id);
	CREATE INDEX IF NOT EXISTS idx_npk_readings_timestamp ON npk_readings(timestamp);

	-- Air humidity with derived fields
	CREATE TABLE IF NOT EXISTS humidity_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		humidity REAL NOT NULL,
		temperature REAL,
		heat_index REAL,
		dew_point REAL,
		status TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_humidity_readings_zone ON humidity_readings(zone_id);

	-- Reservoir level samples
	CREATE TABLE IF NOT EXISTS water_level_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level_percent REAL NOT NULL,
		current_liters REAL,
		capacity_liters REAL,
		tank_status TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_water_level_timestamp ON water_level_readings(timestamp);

	-- Completed or attempted pump runs
	CREATE TABLE IF NOT EXISTS irrigation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		amount_mm REAL NOT NULL,
		volume_liters REAL NOT NULL,
		duration_min REAL NOT NULL,
		moisture_before REAL,
		moisture_after REAL,
		trigger TEXT NOT NULL,
		confidence REAL,
		model_version TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_irrigation_events_zone ON irrigation_events(zone_id);
	CREATE INDEX IF NOT EXISTS idx_irrigation_events_timestamp ON irrigation_events(timestamp);

	-- Fertilizer applications
	CREATE TABLE IF NOT EXISTS fertilizer_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		nutrient TEXT NOT NULL,
		amount_kg_per_ha REAL NOT NULL,
		reason TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fertilizer_events_zone ON fertilizer_events(zone_id);

	-- Soil moisture evaluations
	CREATE TABLE IF NOT EXISTS soil_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		moisture_pct REAL NOT NULL,
		paw_percent REAL NOT NULL,
		status TEXT NOT NULL,
		irrigation_needed INTEGER NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_soil_analyses_zone ON soil_analyses(zone_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// --- Telemetry Operations ---

// InsertSensorReading inserts a scalar telemetry sample
func (db *DB) InsertSensorReading(r *SensorReading) (int64, error) {
	query := `INSERT INTO sensor_readings (zone_id, sensor_type, sensor_id, value, unit, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, r.ZoneID, r.SensorType, r.SensorID, r.Value, r.Unit, r.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetSensorReadings retrieves recent readings for a zone and sensor type
func (db *DB) GetSensorReadings(zoneID, sensorType string, limit int) ([]*SensorReading, error) {
	query := `SELECT id, zone_id, sensor_type, sensor_id, value, unit, timestamp
		FROM sensor_readings WHERE zone_id = ? AND sensor_type = ?
		ORDER BY timestamp DESC LIMIT ?`

	rows, err := db.conn.Query(query, zoneID, sensorType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*SensorReading
	for rows.Next() {
		r := &SensorReading{}
		var sensorID, unit sql.NullString
		if err := rows.Scan(&r.ID, &r.ZoneID, &r.SensorType, &sensorID, &r.Value, &unit, &r.Timestamp); err != nil {
			return nil, err
		}
		r.SensorID = sensorID.String
		r.Unit = unit.String
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertNPKReading inserts a complete NPK triple
func (db *DB) InsertNPKReading(r *NPKReading) (int64, error) {
	query := `INSERT INTO npk_readings (zone_id, nitrogen, phosphorus, potassium, timestamp)
		VALUES (?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, r.ZoneID, r.Nitrogen, r.Phosphorus, r.Potassium, r.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestNPKReading retrieves the most recent NPK triple for a zone
func (db *DB) GetLatestNPKReading(zoneID string) (*NPKReading, error) {
	query := `SELECT id, zone_id, nitrogen, phosphorus, potassium, timestamp
		FROM npk_readings WHERE zone_id = ? ORDER BY timestamp DESC LIMIT 1`

	r := &NPKReading{}
	err := db.conn.QueryRow(query, zoneID).Scan(&r.ID, &r.ZoneID, &r.Nitrogen,
		&r.Phosphorus, &r.Potassium, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// InsertHumidityReading inserts an air humidity sample
func (db *DB) InsertHumidityReading(r *HumidityReading) (int64, error) {
	query := `INSERT INTO humidity_readings (zone_id, humidity, temperature, heat_index, dew_point, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, r.ZoneID, r.Humidity, r.Temperature,
		r.HeatIndex, r.DewPoint, r.Status, r.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetHumidityReadings retrieves recent humidity samples for a zone
func (db *DB) GetHumidityReadings(zoneID string, limit int) ([]*HumidityReading, error) {
	query := `SELECT id, zone_id, humidity, temperature, heat_index, dew_point, status, timestamp
		FROM humidity_readings WHERE zone_id = ? ORDER BY timestamp DESC LIMIT ?`

	rows, err := db.conn.Query(query, zoneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*HumidityReading
	for rows.Next() {
		r := &HumidityReading{}
		var temp, heat, dew sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.ZoneID, &r.Humidity, &temp, &heat, &dew, &r.Status, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Temperature = temp.Float64
		r.HeatIndex = heat.Float64
		r.DewPoint = dew.Float64
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertWaterLevelReading inserts a reservoir level sample
func (db *DB) InsertWaterLevelReading(r *WaterLevelReading) (int64, error) {
	query := `INSERT INTO water_level_readings (level_percent, current_liters, capacity_liters, tank_status, timestamp)
		VALUES (?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, r.LevelPercent, r.CurrentLiters, r.CapacityLiters, r.TankStatus, r.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestWaterLevel retrieves the most recent reservoir level sample
func (db *DB) GetLatestWaterLevel() (*WaterLevelReading, error) {
	query := `SELECT id, level_percent, current_liters, capacity_liters, tank_status, timestamp
		FROM water_level_readings ORDER BY timestamp DESC LIMIT 1`

	r := &WaterLevelReading{}
	var current, capacity sql.NullFloat64
	var status sql.NullString
	err := db.conn.QueryRow(query).Scan(&r.ID, &r.LevelPercent, &current, &capacity, &status, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	r.CurrentLiters = current.Float64
	r.CapacityLiters = capacity.Float64
	r.TankStatus = status.String
	return r, nil
}

// --- Actuation History ---

// InsertIrrigationEvent records a pump run
func (db *DB) InsertIrrigationEvent(e *IrrigationEvent) (int64, error) {
	query := `INSERT INTO irrigation_events
		(zone_id, amount_mm, volume_liters, duration_min, moisture_before, moisture_after,
		trigger, confidence, model_version, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, e.ZoneID, e.AmountMM, e.VolumeLiters, e.DurationMin,
		e.MoistureBefore, e.MoistureAfter, e.Trigger, e.Confidence, e.ModelVersion, e.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetIrrigationEvents retrieves recent pump runs for a zone
func (db *DB) GetIrrigationEvents(zoneID string, limit int) ([]*IrrigationEvent, error) {
	query := `SELECT id, zone_id, amount_mm, volume_liters, duration_min, moisture_before,
		moisture_after, trigger, confidence, model_version, timestamp
		FROM irrigation_events WHERE zone_id = ? ORDER BY timestamp DESC LIMIT ?`

	rows, err := db.conn.Query(query, zoneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*IrrigationEvent
	for rows.Next() {
		e := &IrrigationEvent{}
		var before, after, conf sql.NullFloat64
		var model sql.NullString
		if err := rows.Scan(&e.ID, &e.ZoneID, &e.AmountMM, &e.VolumeLiters, &e.DurationMin,
			&before, &after, &e.Trigger, &conf, &model, &e.Timestamp); err != nil {
			return nil, err
		}
		e.MoistureBefore = before.Float64
		e.MoistureAfter = after.Float64
		e.Confidence = conf.Float64
		e.ModelVersion = model.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastIrrigationTime returns the timestamp of the most recent pump run for a
// zone, or the zero time when the zone has never been irrigated.
func (db *DB) LastIrrigationTime(zoneID string) (time.Time, error) {
	var ts time.Time
	err := db.conn.QueryRow(
		"SELECT timestamp FROM irrigation_events WHERE zone_id = ? ORDER BY timestamp DESC LIMIT 1",
		zoneID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, err
}

// InsertFertilizerEvent records a fertilizer application
func (db *DB) InsertFertilizerEvent(e *FertilizerEvent) (int64, error) {
	query := `INSERT INTO fertilizer_events (zone_id, nutrient, amount_kg_per_ha, reason, timestamp)
		VALUES (?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, e.ZoneID, e.Nutrient, e.AmountKgPerHa, e.Reason, e.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetFertilizerEvents retrieves recent fertilizer applications for a zone
func (db *DB) GetFertilizerEvents(zoneID string, limit int) ([]*FertilizerEvent, error) {
	query := `SELECT id, zone_id, nutrient, amount_kg_per_ha, reason, timestamp
		FROM fertilizer_events WHERE zone_id = ? ORDER BY timestamp DESC LIMIT ?`

	rows, err := db.conn.Query(query, zoneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*FertilizerEvent
	for rows.Next() {
		e := &FertilizerEvent{}
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.ZoneID, &e.Nutrient, &e.AmountKgPerHa, &reason, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertSoilAnalysis records a moisture evaluation
func (db *DB) InsertSoilAnalysis(a *SoilAnalysis) (int64, error) {
	query := `INSERT INTO soil_analyses (zone_id, moisture_pct, paw_percent, status, irrigation_needed, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, a.ZoneID, a.MoisturePct, a.PAWPercent,
		a.Status, a.IrrigationNeeded, a.Timestamp)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// --- Decision Support Queries ---

// ActiveZones returns the zones with at least one moisture reading inside the
// window ending now. Zones silent for longer than the window are not evaluated.
func (db *DB) ActiveZones(window time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-window)
	query := `SELECT DISTINCT zone_id FROM sensor_readings
		WHERE sensor_type = ? AND timestamp >= ? ORDER BY zone_id`

	rows, err := db.conn.Query(query, SensorMoisture, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []string
	for rows.Next() {
		var z string
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// ZoneMetrics assembles the latest known value per sensor category for a zone.
func (db *DB) ZoneMetrics(zoneID string) (*ZoneMetrics, error) {
	m := &ZoneMetrics{ZoneID: zoneID}

	latest := func(sensorType string) (*float64, *time.Time, error) {
		var v float64
		var ts time.Time
		err := db.conn.QueryRow(
			`SELECT value, timestamp FROM sensor_readings
			WHERE zone_id = ? AND sensor_type = ? ORDER BY timestamp DESC LIMIT 1`,
			zoneID, sensorType).Scan(&v, &ts)
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return &v, &ts, nil
	}

	var err error
	var ts *time.Time
	if m.Moisture, ts, err = latest(SensorMoisture); err != nil {
		return nil, err
	}
	m.MoistureAt = ts
	if m.SoilTemp, ts, err = latest(SensorSoilTemp); err != nil {
		return nil, err
	}
	if m.AirTemp, ts, err = latest(SensorAirTemp); err != nil {
		return nil, err
	}
	if m.Rainfall, ts, err = latest(SensorRainfall); err != nil {
		return nil, err
	}

	var hum float64
	err = db.conn.QueryRow(
		`SELECT humidity FROM humidity_readings WHERE zone_id = ? ORDER BY timestamp DESC LIMIT 1`,
		zoneID).Scan(&hum)
	if err == nil {
		m.Humidity = &hum
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	if npk, err := db.GetLatestNPKReading(zoneID); err == nil {
		m.Nitrogen = &npk.Nitrogen
		m.Phosphorus = &npk.Phosphorus
		m.Potassium = &npk.Potassium
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	if wl, err := db.GetLatestWaterLevel(); err == nil {
		m.WaterLevel = &wl.LevelPercent
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	m.LastUpdated = time.Now()
	return m, nil
}

// --- Maintenance ---

// GetStats returns row counts and the cumulative pumped volume
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	count := func(table string, dst *int64) error {
		return db.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(dst)
	}
	if err := count("sensor_readings", &s.SensorReadings); err != nil {
		return nil, err
	}
	if err := count("npk_readings", &s.NPKReadings); err != nil {
		return nil, err
	}
	if err := count("humidity_readings", &s.HumidityReadings); err != nil {
		return nil, err
	}
	if err := count("water_level_readings", &s.WaterLevels); err != nil {
		return nil, err
	}
	if err := count("irrigation_events", &s.IrrigationEvents); err != nil {
		return nil, err
	}
	if err := count("fertilizer_events", &s.FertilizerEvents); err != nil {
		return nil, err
	}
	if err := count("soil_analyses", &s.SoilAnalyses); err != nil {
		return nil, err
	}

	err := db.conn.QueryRow("SELECT COALESCE(SUM(volume_liters), 0) FROM irrigation_events").Scan(&s.TotalVolumeLiters)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PruneBefore deletes telemetry older than the cutoff. Actuation history is
// kept indefinitely.
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"sensor_readings", "npk_readings", "humidity_readings", "water_level_readings", "soil_analyses"} {
		res, err := db.conn.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Query runs a free-form read-only statement for the maintenance CLI.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}
