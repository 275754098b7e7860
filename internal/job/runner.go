// Package job runs the periodic control loop: enumerate active zones,
// gather metrics, decide, actuate.
package job

import (
	"context"
	"fmt"
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

// MetricsStore supplies the zone enumeration and snapshot queries the
// runner needs each tick.
type MetricsStore interface {
	ActiveZones(window time.Duration) ([]string, error)
	ZoneMetrics(zoneID string) (*storage.ZoneMetrics, error)
}

// Runner drives the control loop on a fixed interval. Start and Stop are
// idempotent; Stop waits for an in-flight tick within a bounded window and
// then proceeds with shutdown regardless.
type Runner struct {
	cfg        *config.Config
	store      MetricsStore
	engine     decision.Engine
	controller *actuator.Controller
	nutrients  *analysis.NutrientEvaluator
	pub        transport.Publisher

	mu        sync.Mutex
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	execCount int
	lastExec  time.Time
}

// NewRunner wires a runner to its collaborators.
func NewRunner(cfg *config.Config, store MetricsStore, engine decision.Engine,
	controller *actuator.Controller, nutrients *analysis.NutrientEvaluator,
	pub transport.Publisher) *Runner {
	return &Runner{
		cfg:        cfg,
		store:      store,
		engine:     engine,
		controller: controller,
		nutrients:  nutrients,
		pub:        pub,
	}
}

// Start launches the periodic loop. Calling Start on a running runner logs
// a warning and returns without effect.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Println("job: already running, ignoring start")
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	if err := r.pub.PublishJobEvent("job_started", map[string]interface{}{
		"interval_minutes": r.cfg.Job.IntervalMinutes,
	}); err != nil {
		log.Printf("job: publish job_started: %v", err)
	}

	r.wg.Add(1)
	go r.loop()

	log.Printf("job: started, interval %d minutes", r.cfg.Job.IntervalMinutes)
}

// Stop halts the loop, waiting up to the configured join window for an
// in-flight tick. Stopping a stopped runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(r.cfg.Job.StopTimeoutSecs) * time.Second
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("job: tick did not finish within %s, proceeding with shutdown", timeout)
	}

	if err := r.pub.PublishJobEvent("job_stopped", map[string]interface{}{
		"executions": r.Executions(),
	}); err != nil {
		log.Printf("job: publish job_stopped: %v", err)
	}
	log.Println("job: stopped")
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Executions returns the number of completed ticks.
func (r *Runner) Executions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execCount
}

// LastExecution returns when the most recent tick began, zero before the
// first tick.
func (r *Runner) LastExecution() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastExec
}

// IntervalMinutes reports the configured tick interval.
func (r *Runner) IntervalMinutes() int {
	return r.cfg.Job.IntervalMinutes
}

func (r *Runner) loop() {
	defer r.wg.Done()

	// First pass runs immediately; the ticker paces the rest.
	r.RunOnce(context.Background())

	ticker := time.NewTicker(r.cfg.JobInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(context.Background())
		case <-r.stopChan:
			return
		}
	}
}

// RunOnce executes a single control-loop tick: one evaluation pass over all
// active zones. Exposed for the CLI's run-once mode and tests.
func (r *Runner) RunOnce(ctx context.Context) {
	r.mu.Lock()
	r.execCount++
	execution := r.execCount
	r.lastExec = time.Now()
	r.mu.Unlock()

	if err := r.pub.PublishJobEvent("execution_started", map[string]interface{}{
		"execution": execution,
	}); err != nil {
		log.Printf("job: publish execution_started: %v", err)
	}

	zones, err := r.store.ActiveZones(r.cfg.ActiveWindow())
	if err != nil {
		log.Printf("job: enumerate active zones: %v", err)
	}
	if len(zones) == 0 {
		zones = []string{r.cfg.Job.DefaultZone}
	}

	if err := r.pub.PublishJobEvent("zones_evaluation", map[string]interface{}{
		"zones": zones,
		"count": len(zones),
	}); err != nil {
		log.Printf("job: publish zones_evaluation: %v", err)
	}

	actions := 0
	for _, zone := range zones {
		if r.processZone(ctx, zone) {
			actions++
		}
	}

	if err := r.pub.PublishJobEvent("execution_completed", map[string]interface{}{
		"execution": execution,
		"zones":     len(zones),
		"actions":   actions,
	}); err != nil {
		log.Printf("job: publish execution_completed: %v", err)
	}
}

// processZone evaluates one zone. Any failure is reported as a zone event
// and never aborts the remaining zones in the tick.
func (r *Runner) processZone(ctx context.Context, zoneID string) (acted bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("job: panic processing zone %s: %v", zoneID, p)
			r.publishZone(zoneID, "zone_error", map[string]interface{}{
				"error": fmt.Sprint(p),
			})
			acted = false
		}
	}()

	snapshot, err := r.store.ZoneMetrics(zoneID)
	if err != nil {
		log.Printf("job: gather metrics for %s: %v", zoneID, err)
		r.publishZone(zoneID, "zone_error", map[string]interface{}{"error": err.Error()})
		return false
	}
	if !snapshot.HasMoisture() {
		r.publishZone(zoneID, "no_metrics", map[string]interface{}{
			"reason": "no moisture reading available",
		})
		return false
	}

	m := r.buildMetrics(zoneID, snapshot)
	r.publishZone(zoneID, "metrics_gathered", m)

	d := r.engine.Decide(ctx, m)
	r.publishZone(zoneID, "ml_decision", d)

	out := r.controller.ProcessDecision(zoneID, d, m)
	return out.Acted
}

// buildMetrics converts a storage snapshot into engine metrics, filling
// neutral defaults for sensors that have not reported.
func (r *Runner) buildMetrics(zoneID string, s *storage.ZoneMetrics) decision.Metrics {
	m := decision.NewMetrics(zoneID)
	if s.Moisture != nil {
		m.Moisture = *s.Moisture
	}
	if s.AirTemp != nil {
		m.Temperature = *s.AirTemp
	} else if s.SoilTemp != nil {
		m.Temperature = *s.SoilTemp
	}
	if s.Humidity != nil {
		m.Humidity = *s.Humidity
	}
	if s.Rainfall != nil {
		m.Rainfall24h = *s.Rainfall
	}
	if s.WaterLevel != nil {
		m.WaterLevel = *s.WaterLevel
	}
	if s.Nitrogen != nil && s.Phosphorus != nil && s.Potassium != nil {
		m.Nitrogen = *s.Nitrogen
		m.Phosphorus = *s.Phosphorus
		m.Potassium = *s.Potassium
		npk := r.nutrients.AnalyzeNPK(zoneID, m.Nitrogen, m.Phosphorus, m.Potassium, "")
		m.NPKStatus = string(npk.OverallStatus)
	}
	return m
}

func (r *Runner) publishZone(zoneID, event string, data interface{}) {
	if err := r.pub.PublishZoneEvent(zoneID, event, data); err != nil {
		log.Printf("job: publish %s for %s: %v", event, zoneID, err)
	}
}
