package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agrosense/irrigation-controller/internal/actuator"
	"github.com/agrosense/irrigation-controller/internal/analysis"
	"github.com/agrosense/irrigation-controller/internal/config"
	"github.com/agrosense/irrigation-controller/internal/decision"
	"github.com/agrosense/irrigation-controller/internal/storage"
	"github.com/agrosense/irrigation-controller/internal/transport"
)

type fakeMetricsStore struct {
	zones      []string
	zonesErr   error
	metrics    map[string]*storage.ZoneMetrics
	metricsErr map[string]error
}

func (s *fakeMetricsStore) ActiveZones(time.Duration) ([]string, error) {
	return s.zones, s.zonesErr
}

func (s *fakeMetricsStore) ZoneMetrics(zoneID string) (*storage.ZoneMetrics, error) {
	if err := s.metricsErr[zoneID]; err != nil {
		return nil, err
	}
	if m, ok := s.metrics[zoneID]; ok {
		return m, nil
	}
	return &storage.ZoneMetrics{ZoneID: zoneID}, nil
}

type nullStore struct{}

func (nullStore) InsertIrrigationEvent(*storage.IrrigationEvent) (int64, error) { return 1, nil }
func (nullStore) InsertFertilizerEvent(*storage.FertilizerEvent) (int64, error) { return 1, nil }

func f(v float64) *float64 { return &v }

func newTestRunner(store MetricsStore) (*Runner, *transport.Fake) {
	cfg := config.Default()
	pub := transport.NewFake()
	pump := actuator.NewPump(cfg.Pump.FlowRateLPM, cfg.Pump.AreaSqm)
	controller := actuator.NewController(&cfg, pump, pub, nullStore{})
	engine := decision.NewScoringEngine(cfg.Irrigation.BaseVolumeMM, cfg.Irrigation.NutrientLowFactor)
	nutrients := analysis.NewNutrientEvaluator(&cfg)
	return NewRunner(&cfg, store, engine, controller, nutrients, pub), pub
}

func TestRunOnceDryZoneActs(t *testing.T) {
	store := &fakeMetricsStore{
		zones: []string{"z1"},
		metrics: map[string]*storage.ZoneMetrics{
			"z1": {ZoneID: "z1", Moisture: f(25), AirTemp: f(32), Humidity: f(30)},
		},
	}
	r, pub := newTestRunner(store)

	r.RunOnce(context.Background())

	for _, want := range []string{
		"execution_started", "zones_evaluation", "metrics_gathered",
		"ml_decision", "irrigation_started", "irrigation_completed", "execution_completed",
	} {
		if !pub.HasEvent(want) {
			t.Errorf("missing event %q; got %v", want, pub.EventNames())
		}
	}
	if len(pub.IrrigationCommands) != 1 {
		t.Errorf("got %d commands, want 1", len(pub.IrrigationCommands))
	}
	if r.Executions() != 1 {
		t.Errorf("executions = %d, want 1", r.Executions())
	}
}

func TestRunOnceFallsBackToDefaultZone(t *testing.T) {
	store := &fakeMetricsStore{zones: nil}
	r, pub := newTestRunner(store)

	r.RunOnce(context.Background())

	// The default zone has no metrics stored, so it reports no_metrics.
	found := false
	for _, e := range pub.Events {
		if e.Event.Event == "no_metrics" && e.Event.ZoneID == "zone-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected no_metrics for default zone, got %v", pub.EventNames())
	}
}

func TestRunOnceZoneErrorIsolation(t *testing.T) {
	store := &fakeMetricsStore{
		zones:      []string{"bad", "good"},
		metricsErr: map[string]error{"bad": errors.New("query failed")},
		metrics: map[string]*storage.ZoneMetrics{
			"good": {ZoneID: "good", Moisture: f(25)},
		},
	}
	r, pub := newTestRunner(store)

	r.RunOnce(context.Background())

	if !pub.HasEvent("zone_error") {
		t.Errorf("expected zone_error, got %v", pub.EventNames())
	}
	// The failing zone must not block the healthy one.
	processed := false
	for _, e := range pub.Events {
		if e.Event.Event == "metrics_gathered" && e.Event.ZoneID == "good" {
			processed = true
		}
	}
	if !processed {
		t.Error("healthy zone was not processed after a zone error")
	}
	if !pub.HasEvent("execution_completed") {
		t.Error("tick did not complete")
	}
}

func TestRunOnceComputesNPKStatus(t *testing.T) {
	store := &fakeMetricsStore{
		zones: []string{"z1"},
		metrics: map[string]*storage.ZoneMetrics{
			"z1": {
				ZoneID: "z1", Moisture: f(25),
				Nitrogen: f(10), Phosphorus: f(40), Potassium: f(180),
			},
		},
	}
	r, pub := newTestRunner(store)

	r.RunOnce(context.Background())

	var gathered decision.Metrics
	for _, e := range pub.Events {
		if e.Event.Event == "metrics_gathered" {
			gathered = e.Event.Data.(decision.Metrics)
		}
	}
	if gathered.NPKStatus != "CRITICAL" {
		t.Errorf("npk status = %q, want CRITICAL (nitrogen at 10)", gathered.NPKStatus)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	store := &fakeMetricsStore{}
	r, pub := newTestRunner(store)

	r.Start()
	if !r.Running() {
		t.Fatal("runner should be running after start")
	}
	r.Start() // second start is a warning, not a second loop
	r.Stop()
	if r.Running() {
		t.Fatal("runner should be stopped")
	}
	r.Stop() // second stop is a no-op

	starts := 0
	stops := 0
	for _, e := range pub.Events {
		switch e.Event.Event {
		case "job_started":
			starts++
		case "job_stopped":
			stops++
		}
	}
	if starts != 1 || stops != 1 {
		t.Errorf("job_started=%d job_stopped=%d, want 1/1", starts, stops)
	}
}

func TestStartRunsFirstPassImmediately(t *testing.T) {
	store := &fakeMetricsStore{}
	r, pub := newTestRunner(store)

	r.Start()
	defer r.Stop()

	// The configured interval is minutes; the first pass must not wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for r.Executions() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.Executions() != 1 {
		t.Fatalf("executions = %d, want first pass immediately after start", r.Executions())
	}
	if !pub.HasEvent("execution_completed") {
		t.Errorf("events = %v, want execution_completed", pub.EventNames())
	}
	if r.LastExecution().IsZero() {
		t.Error("last execution not stamped")
	}
}

func TestStopWaitsForTick(t *testing.T) {
	store := &fakeMetricsStore{}
	r, _ := newTestRunner(store)

	r.Start()
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return promptly with no tick in flight")
	}
}
