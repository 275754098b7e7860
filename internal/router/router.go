// Package router classifies inbound telemetry, maintains per-zone state,
// persists raw readings and drives the evaluation chain for completed
// readings.
package router

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/agrosense/irrigation-controller/internal/actuator"
	"github.com/agrosense/irrigation-controller/internal/analysis"
	"github.com/agrosense/irrigation-controller/internal/config"
	"github.com/agrosense/irrigation-controller/internal/decision"
	"github.com/agrosense/irrigation-controller/internal/storage"
	"github.com/agrosense/irrigation-controller/internal/transport"
)

// Category is the sensor class a topic resolves to.
type Category string

const (
	CategoryNitrogen   Category = "nitrogen"
	CategoryPhosphorus Category = "phosphorus"
	CategoryPotassium  Category = "potassium"
	CategoryMoisture   Category = "moisture"
	CategorySoilTemp   Category = "soil_temperature"
	CategoryAirTemp    Category = "air_temperature"
	CategoryHumidity   Category = "humidity"
	CategoryWaterLevel Category = "water_level"
	CategoryRainfall   Category = "rainfall"
	CategoryUnknown    Category = "unknown"
)

// Classify maps a topic to its sensor category.
func Classify(topic string) Category {
	switch topic {
	case transport.TopicNitrogen:
		return CategoryNitrogen
	case transport.TopicPhosphorus:
		return CategoryPhosphorus
	case transport.TopicPotassium:
		return CategoryPotassium
	case transport.TopicMoisture:
		return CategoryMoisture
	case transport.TopicSoilTemp:
		return CategorySoilTemp
	case transport.TopicAirTemp:
		return CategoryAirTemp
	case transport.TopicHumidity:
		return CategoryHumidity
	case transport.TopicWaterLevel:
		return CategoryWaterLevel
	case transport.TopicRainfall:
		return CategoryRainfall
	default:
		return CategoryUnknown
	}
}

// Humidity status bands.
const (
	HumidityTooDry   = "TOO_DRY"
	HumidityLow      = "LOW"
	HumidityOptimal  = "OPTIMAL"
	HumidityHigh     = "HIGH"
	HumidityTooHumid = "TOO_HUMID"
)

// HumidityStatus classifies relative humidity for greenhouse conditions.
func HumidityStatus(humidity float64) string {
	switch {
	case humidity < 30:
		return HumidityTooDry
	case humidity < 40:
		return HumidityLow
	case humidity < 70:
		return HumidityOptimal
	case humidity < 85:
		return HumidityHigh
	default:
		return HumidityTooHumid
	}
}

// Reservoir warning thresholds.
const (
	waterLevelCritical = 20.0
	waterLevelLow      = 40.0
)

// Store is the append-only persistence the router writes telemetry to.
type Store interface {
	InsertSensorReading(r *storage.SensorReading) (int64, error)
	InsertNPKReading(r *storage.NPKReading) (int64, error)
	InsertHumidityReading(r *storage.HumidityReading) (int64, error)
	InsertWaterLevelReading(r *storage.WaterLevelReading) (int64, error)
	InsertSoilAnalysis(a *storage.SoilAnalysis) (int64, error)
}

// npkAccumulator buffers single-nutrient updates until all three are
// present. Values are retained after firing; later updates overwrite in
// place so a slow sensor never blocks the triple indefinitely.
type npkAccumulator struct {
	nitrogen   *float64
	phosphorus *float64
	potassium  *float64
}

func (a *npkAccumulator) complete() bool {
	return a.nitrogen != nil && a.phosphorus != nil && a.potassium != nil
}

// zoneState is the router's view of a zone's latest telemetry.
type zoneState struct {
	moisture    *float64
	temperature *float64
	humidity    *float64
	rainfall    *float64
	npk         npkAccumulator
	cropType    string
	updatedAt   time.Time
}

const statsEvery = 50

// Router dispatches inbound telemetry. Malformed payloads are logged and
// dropped; they never propagate to the transport layer.
type Router struct {
	cfg        *config.Config
	store      Store
	moisture   *analysis.MoistureEvaluator
	nutrients  *analysis.NutrientEvaluator
	engine     decision.Engine
	controller *actuator.Controller
	pub        transport.Publisher

	mu       sync.Mutex
	zones    map[string]*zoneState
	water    *float64 // latest reservoir level, shared across zones
	msgCount int
	counts   map[Category]int
}

// New wires a router to its collaborators.
func New(cfg *config.Config, store Store, moisture *analysis.MoistureEvaluator,
	nutrients *analysis.NutrientEvaluator, engine decision.Engine,
	controller *actuator.Controller, pub transport.Publisher) *Router {
	return &Router{
		cfg:        cfg,
		store:      store,
		moisture:   moisture,
		nutrients:  nutrients,
		engine:     engine,
		controller: controller,
		pub:        pub,
		zones:      make(map[string]*zoneState),
		counts:     make(map[Category]int),
	}
}

// Subscribe attaches the router to all sensor topics on a client.
func (r *Router) Subscribe(client transport.Client) error {
	return client.Subscribe(transport.TopicSensorsRoot, r.HandleMessage)
}

// HandleMessage classifies and processes one inbound message.
func (r *Router) HandleMessage(msg transport.Message) {
	category := Classify(msg.Topic)
	if category == CategoryUnknown {
		log.Printf("router: unknown topic %s, dropping", msg.Topic)
		return
	}

	var p transport.SensorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Printf("router: malformed payload on %s: %v", msg.Topic, err)
		return
	}

	zoneID := p.ZoneID
	if zoneID == "" {
		zoneID = r.cfg.Job.DefaultZone
	}

	r.countMessage(category)

	switch category {
	case CategoryNitrogen, CategoryPhosphorus, CategoryPotassium:
		r.handleNutrient(category, zoneID, p)
	case CategoryMoisture:
		r.handleMoisture(zoneID, p)
	case CategorySoilTemp, CategoryAirTemp:
		r.handleTemperature(category, zoneID, p)
	case CategoryHumidity:
		r.handleHumidity(zoneID, p)
	case CategoryWaterLevel:
		r.handleWaterLevel(p)
	case CategoryRainfall:
		r.handleRainfall(zoneID, p)
	}
}

func (r *Router) countMessage(category Category) {
	r.mu.Lock()
	r.msgCount++
	r.counts[category]++
	count := r.msgCount
	var summary []byte
	if count%statsEvery == 0 {
		summary, _ = json.Marshal(r.counts)
	}
	r.mu.Unlock()

	if summary != nil {
		log.Printf("router: processed %d messages: %s", count, summary)
	}
}

func (r *Router) zone(zoneID string) *zoneState {
	z, ok := r.zones[zoneID]
	if !ok {
		z = &zoneState{cropType: r.cfg.NPK.DefaultCrop}
		r.zones[zoneID] = z
	}
	return z
}

// handleNutrient stores the reading and runs accumulate-then-fire: the NPK
// analysis runs only when all three nutrients are present for the zone.
func (r *Router) handleNutrient(category Category, zoneID string, p transport.SensorPayload) {
	if p.Value == nil {
		log.Printf("router: %s reading for %s missing value, dropping", category, zoneID)
		return
	}
	value := *p.Value

	r.mu.Lock()
	z := r.zone(zoneID)
	switch category {
	case CategoryNitrogen:
		z.npk.nitrogen = &value
	case CategoryPhosphorus:
		z.npk.phosphorus = &value
	case CategoryPotassium:
		z.npk.potassium = &value
	}
	z.updatedAt = time.Now()
	fire := z.npk.complete()
	var n, ph, k float64
	var crop string
	if fire {
		n, ph, k = *z.npk.nitrogen, *z.npk.phosphorus, *z.npk.potassium
		crop = z.cropType
	}
	r.mu.Unlock()

	if _, err := r.store.InsertSensorReading(&storage.SensorReading{
		ZoneID:     zoneID,
		SensorType: string(category),
		SensorID:   p.SensorID,
		Value:      value,
		Unit:       p.Unit,
		Timestamp:  parseTime(p.Timestamp),
	}); err != nil {
		log.Printf("router: store %s reading for %s: %v", category, zoneID, err)
	}

	if !fire {
		return
	}

	if _, err := r.store.InsertNPKReading(&storage.NPKReading{
		ZoneID:     zoneID,
		Nitrogen:   n,
		Phosphorus: ph,
		Potassium:  k,
		Timestamp:  time.Now(),
	}); err != nil {
		log.Printf("router: store NPK triple for %s: %v", zoneID, err)
	}

	npk := r.nutrients.AnalyzeNPK(zoneID, n, ph, k, crop)
	r.publishZone(zoneID, "npk_analysis", npk)

	if npk.FertilizationNeeded {
		r.controller.ApplyFertilizer(zoneID, npk.Recommendations)
	}
}

// handleMoisture stores the reading, evaluates soil water and drives the
// decide→act chain synchronously. Values the controller republished after a
// pump run are stored but do not re-enter the chain.
func (r *Router) handleMoisture(zoneID string, p transport.SensorPayload) {
	if p.Value == nil {
		log.Printf("router: moisture reading for %s missing value, dropping", zoneID)
		return
	}
	value := *p.Value

	r.mu.Lock()
	z := r.zone(zoneID)
	z.moisture = &value
	z.updatedAt = time.Now()
	r.mu.Unlock()

	if _, err := r.store.InsertSensorReading(&storage.SensorReading{
		ZoneID:     zoneID,
		SensorType: storage.SensorMoisture,
		SensorID:   p.SensorID,
		Value:      value,
		Unit:       p.Unit,
		Timestamp:  parseTime(p.Timestamp),
	}); err != nil {
		log.Printf("router: store moisture for %s: %v", zoneID, err)
	}

	ma := r.moisture.Analyze(value)
	if _, err := r.store.InsertSoilAnalysis(&storage.SoilAnalysis{
		ZoneID:           zoneID,
		MoisturePct:      ma.CurrentMoisturePct,
		PAWPercent:       ma.PAWPercent,
		Status:           string(ma.Status),
		IrrigationNeeded: ma.IrrigationNeeded,
		Timestamp:        time.Now(),
	}); err != nil {
		log.Printf("router: store soil analysis for %s: %v", zoneID, err)
	}
	r.publishZone(zoneID, "soil_analysis", ma)

	if p.Source == "irrigation-controller" {
		// Derived value from our own pump run; the loop must not feed itself.
		return
	}

	m := r.buildMetrics(zoneID)
	d := r.engine.Decide(context.Background(), m)
	r.publishZone(zoneID, "ml_decision", d)
	r.controller.ProcessDecision(zoneID, d, m)
}

func (r *Router) handleTemperature(category Category, zoneID string, p transport.SensorPayload) {
	if p.Value == nil {
		log.Printf("router: temperature reading for %s missing value, dropping", zoneID)
		return
	}
	value := *p.Value

	sensorType := storage.SensorAirTemp
	if category == CategorySoilTemp {
		sensorType = storage.SensorSoilTemp
	}

	r.mu.Lock()
	z := r.zone(zoneID)
	z.temperature = &value
	z.updatedAt = time.Now()
	r.mu.Unlock()

	if _, err := r.store.InsertSensorReading(&storage.SensorReading{
		ZoneID:     zoneID,
		SensorType: sensorType,
		SensorID:   p.SensorID,
		Value:      value,
		Unit:       p.Unit,
		Timestamp:  parseTime(p.Timestamp),
	}); err != nil {
		log.Printf("router: store temperature for %s: %v", zoneID, err)
	}
}

func (r *Router) handleHumidity(zoneID string, p transport.SensorPayload) {
	humidity := p.Humidity
	if humidity == nil {
		humidity = p.Value
	}
	if humidity == nil {
		log.Printf("router: humidity reading for %s missing value, dropping", zoneID)
		return
	}

	r.mu.Lock()
	z := r.zone(zoneID)
	z.humidity = humidity
	if p.Temperature != nil {
		z.temperature = p.Temperature
	}
	z.updatedAt = time.Now()
	r.mu.Unlock()

	status := HumidityStatus(*humidity)
	reading := &storage.HumidityReading{
		ZoneID:    zoneID,
		Humidity:  *humidity,
		Status:    status,
		Timestamp: parseTime(p.Timestamp),
	}
	if p.Temperature != nil {
		reading.Temperature = *p.Temperature
	}
	if p.HeatIndex != nil {
		reading.HeatIndex = *p.HeatIndex
	}
	if p.DewPoint != nil {
		reading.DewPoint = *p.DewPoint
	}
	if _, err := r.store.InsertHumidityReading(reading); err != nil {
		log.Printf("router: store humidity for %s: %v", zoneID, err)
	}

	if status != HumidityOptimal {
		r.publishZone(zoneID, "humidity_status", map[string]interface{}{
			"humidity": *humidity,
			"status":   status,
		})
	}
}

func (r *Router) handleWaterLevel(p transport.SensorPayload) {
	level := p.LevelPercent
	if level == nil {
		level = p.Value
	}
	if level == nil {
		log.Println("router: water level reading missing value, dropping")
		return
	}
	value := *level

	r.mu.Lock()
	r.water = &value
	r.mu.Unlock()

	reading := &storage.WaterLevelReading{
		LevelPercent: *level,
		TankStatus:   p.TankStatus,
		Timestamp:    parseTime(p.Timestamp),
	}
	if p.CurrentLiters != nil {
		reading.CurrentLiters = *p.CurrentLiters
	}
	if p.CapacityLiters != nil {
		reading.CapacityLiters = *p.CapacityLiters
	}
	if _, err := r.store.InsertWaterLevelReading(reading); err != nil {
		log.Printf("router: store water level: %v", err)
	}

	switch {
	case *level < waterLevelCritical:
		log.Printf("router: reservoir critically low at %.1f%%", *level)
		r.publishJob("water_level_critical", map[string]interface{}{"level_percent": *level})
	case *level < waterLevelLow:
		log.Printf("router: reservoir low at %.1f%%", *level)
		r.publishJob("water_level_low", map[string]interface{}{"level_percent": *level})
	}
}

func (r *Router) handleRainfall(zoneID string, p transport.SensorPayload) {
	if p.Value == nil {
		log.Printf("router: rainfall reading for %s missing value, dropping", zoneID)
		return
	}
	value := *p.Value

	r.mu.Lock()
	z := r.zone(zoneID)
	z.rainfall = &value
	z.updatedAt = time.Now()
	r.mu.Unlock()

	if _, err := r.store.InsertSensorReading(&storage.SensorReading{
		ZoneID:     zoneID,
		SensorType: storage.SensorRainfall,
		SensorID:   p.SensorID,
		Value:      value,
		Unit:       p.Unit,
		Timestamp:  parseTime(p.Timestamp),
	}); err != nil {
		log.Printf("router: store rainfall for %s: %v", zoneID, err)
	}
}

// buildMetrics assembles a decision snapshot from the router's zone state.
func (r *Router) buildMetrics(zoneID string) decision.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := decision.NewMetrics(zoneID)
	z := r.zone(zoneID)
	if z.moisture != nil {
		m.Moisture = *z.moisture
	}
	if z.temperature != nil {
		m.Temperature = *z.temperature
	}
	if z.humidity != nil {
		m.Humidity = *z.humidity
	}
	if z.rainfall != nil {
		m.Rainfall24h = *z.rainfall
	}
	if r.water != nil {
		m.WaterLevel = *r.water
	}
	if z.npk.complete() {
		m.Nitrogen = *z.npk.nitrogen
		m.Phosphorus = *z.npk.phosphorus
		m.Potassium = *z.npk.potassium
		npk := r.nutrients.AnalyzeNPK(zoneID, m.Nitrogen, m.Phosphorus, m.Potassium, z.cropType)
		m.NPKStatus = string(npk.OverallStatus)
	}
	return m
}

// MessageCount returns the number of messages processed so far.
func (r *Router) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgCount
}

func (r *Router) publishZone(zoneID, event string, data interface{}) {
	if err := r.pub.PublishZoneEvent(zoneID, event, data); err != nil {
		log.Printf("router: publish %s for %s: %v", event, zoneID, err)
	}
}

func (r *Router) publishJob(event string, data interface{}) {
	if err := r.pub.PublishJobEvent(event, data); err != nil {
		log.Printf("router: publish %s: %v", event, err)
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
