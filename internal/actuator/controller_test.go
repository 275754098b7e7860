package actuator

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agrosense/irrigation-controller/internal/analysis"
	"github.com/agrosense/irrigation-controller/internal/config"
	"github.com/agrosense/irrigation-controller/internal/decision"
	"github.com/agrosense/irrigation-controller/internal/storage"
	"github.com/agrosense/irrigation-controller/internal/transport"
)

type fakeStore struct {
	irrigation []*storage.IrrigationEvent
	fertilizer []*storage.FertilizerEvent
	err        error
}

func (s *fakeStore) InsertIrrigationEvent(e *storage.IrrigationEvent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.irrigation = append(s.irrigation, e)
	return int64(len(s.irrigation)), nil
}

func (s *fakeStore) InsertFertilizerEvent(e *storage.FertilizerEvent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.fertilizer = append(s.fertilizer, e)
	return int64(len(s.fertilizer)), nil
}

func newTestController() (*Controller, *transport.Fake, *fakeStore) {
	cfg := config.Default()
	pub := transport.NewFake()
	store := &fakeStore{}
	pump := NewPump(cfg.Pump.FlowRateLPM, cfg.Pump.AreaSqm)
	return NewController(&cfg, pump, pub, store), pub, store
}

func TestDryZoneIrrigates(t *testing.T) {
	c, pub, store := newTestController()

	m := decision.NewMetrics("z1")
	m.Moisture = 28
	d := decision.Decision{ShouldAct: true, Confidence: 0.7, RecommendedAmountMM: 12, Reason: "Low moisture"}

	out := c.ProcessDecision("z1", d, m)
	if !out.Acted || out.Forced {
		t.Fatalf("outcome = %+v, want unforced action", out)
	}
	if out.Result.MoistureAfter <= 28 {
		t.Errorf("moisture after = %.2f, want > 28", out.Result.MoistureAfter)
	}

	names := pub.EventNames()
	started, completed := -1, -1
	for i, n := range names {
		switch n {
		case "irrigation_started":
			started = i
		case "irrigation_completed":
			completed = i
		}
	}
	if started == -1 || completed == -1 || started > completed {
		t.Errorf("event order = %v, want irrigation_started before irrigation_completed", names)
	}

	if len(pub.IrrigationCommands) != 1 {
		t.Fatalf("got %d commands, want 1", len(pub.IrrigationCommands))
	}
	cmd := pub.IrrigationCommands[0]
	if cmd.ZoneID != "z1" || cmd.AmountMM != 12 || !cmd.Automated || cmd.CommandID == "" {
		t.Errorf("command = %+v", cmd)
	}

	if len(pub.SensorValues) != 1 || pub.SensorValues[0].Topic != transport.TopicMoisture {
		t.Errorf("expected one moisture republish, got %+v", pub.SensorValues)
	}

	if len(store.irrigation) != 1 || store.irrigation[0].Trigger != "decision" {
		t.Errorf("stored events = %+v", store.irrigation)
	}
}

func TestSkipWhenDecisionSaysNo(t *testing.T) {
	c, pub, store := newTestController()

	m := decision.NewMetrics("z2")
	m.Moisture = 80
	d := decision.Decision{ShouldAct: false, Reason: "Conditions adequate"}

	out := c.ProcessDecision("z2", d, m)
	if out.Acted {
		t.Fatal("expected skip")
	}
	if len(pub.IrrigationCommands) != 0 || len(store.irrigation) != 0 {
		t.Error("skip must not publish commands or store events")
	}
	if !pub.HasEvent("irrigation_skipped") {
		t.Errorf("events = %v, want irrigation_skipped", pub.EventNames())
	}
	var skip transport.PublishedEvent
	for _, e := range pub.Events {
		if e.Event.Event == "irrigation_skipped" {
			skip = e
		}
	}
	data := skip.Event.Data.(map[string]interface{})
	if !strings.Contains(data["reason"].(string), "adequate") {
		t.Errorf("skip reason = %v", data["reason"])
	}
}

func TestForcedIrrigationEveryThirdCycle(t *testing.T) {
	c, pub, _ := newTestController()

	m := decision.NewMetrics("z3")
	noAct := decision.Decision{ShouldAct: false, Reason: "Conditions adequate"}

	for i := 1; i <= 2; i++ {
		if out := c.ProcessDecision("z3", noAct, m); out.Acted {
			t.Fatalf("iteration %d: unexpected action", i)
		}
	}

	out := c.ProcessDecision("z3", noAct, m)
	if !out.Acted || !out.Forced {
		t.Fatalf("iteration 3: outcome = %+v, want forced action", out)
	}
	if out.Reason != "Forced irrigation (iteration 3)" {
		t.Errorf("reason = %q", out.Reason)
	}
	if len(pub.IrrigationCommands) != 1 {
		t.Errorf("got %d commands, want 1", len(pub.IrrigationCommands))
	}
}

func TestMinimumIntervalGate(t *testing.T) {
	c, pub, _ := newTestController()

	m := decision.NewMetrics("z1")
	m.Moisture = 25
	act := decision.Decision{ShouldAct: true, RecommendedAmountMM: 10, Reason: "Low moisture"}

	if out := c.ProcessDecision("z1", act, m); !out.Acted {
		t.Fatalf("first cycle should act: %+v", out)
	}

	out := c.ProcessDecision("z1", act, m)
	if out.Acted {
		t.Fatal("second cycle inside the minimum interval must skip")
	}
	if !strings.Contains(out.Reason, "hours") {
		t.Errorf("reason = %q, want hours-remaining", out.Reason)
	}
	if len(pub.IrrigationCommands) != 1 {
		t.Errorf("got %d commands, want 1", len(pub.IrrigationCommands))
	}
}

func TestForcedOverridesMinimumInterval(t *testing.T) {
	c, _, _ := newTestController()

	m := decision.NewMetrics("z1")
	m.Moisture = 25
	act := decision.Decision{ShouldAct: true, RecommendedAmountMM: 10, Reason: "Low moisture"}

	c.ProcessDecision("z1", act, m) // iteration 1: acts
	c.ProcessDecision("z1", act, m) // iteration 2: rate limited

	out := c.ProcessDecision("z1", act, m) // iteration 3: forced
	if !out.Acted || !out.Forced {
		t.Fatalf("outcome = %+v, want forced action despite interval", out)
	}
}

func TestCommandPublishFailureVoidsAction(t *testing.T) {
	c, pub, store := newTestController()
	pub.PublishError = errors.New("broker down")

	m := decision.NewMetrics("z1")
	m.Moisture = 25
	d := decision.Decision{ShouldAct: true, RecommendedAmountMM: 10, Reason: "Low moisture"}

	out := c.ProcessDecision("z1", d, m)
	if out.Acted {
		t.Fatal("action must be voided when the command cannot be published")
	}
	if len(store.irrigation) != 0 {
		t.Error("no event should be stored for a voided action")
	}
	if !c.LastAction("z1").IsZero() {
		t.Error("last action time must not be stamped for a voided action")
	}
}

func TestStorageFailureDoesNotBlockIrrigation(t *testing.T) {
	c, pub, store := newTestController()
	store.err = errors.New("disk full")

	m := decision.NewMetrics("z1")
	m.Moisture = 25
	d := decision.Decision{ShouldAct: true, RecommendedAmountMM: 10, Reason: "Low moisture"}

	out := c.ProcessDecision("z1", d, m)
	if !out.Acted {
		t.Fatal("irrigation must proceed when only the audit write fails")
	}
	if !pub.HasEvent("storage_error") {
		t.Errorf("events = %v, want storage_error", pub.EventNames())
	}
	if !pub.HasEvent("irrigation_completed") {
		t.Errorf("events = %v, want irrigation_completed", pub.EventNames())
	}
}

func TestApplyFertilizer(t *testing.T) {
	c, pub, store := newTestController()

	recs := []analysis.FertilizerRecommendation{
		{Nutrient: "N", AmountKgPerHa: 12.5, Reason: "Nitrogen deficit: 50.0 mg/kg below optimal"},
		{Nutrient: "P", AmountKgPerHa: 4.5, Reason: "Phosphorus deficit: 10.0 mg/kg below optimal"},
	}
	c.ApplyFertilizer("z1", recs)

	if len(pub.FertilizerCommands) != 2 {
		t.Fatalf("got %d commands, want 2", len(pub.FertilizerCommands))
	}
	if pub.FertilizerCommands[0].Nutrient != "N" || pub.FertilizerCommands[0].AmountKg != 12.5 {
		t.Errorf("command = %+v", pub.FertilizerCommands[0])
	}
	if len(store.fertilizer) != 2 {
		t.Errorf("stored %d fertilizer events, want 2", len(store.fertilizer))
	}
}

func TestIterationCountersAreIndependentPerZone(t *testing.T) {
	c, _, _ := newTestController()

	m := decision.NewMetrics("za")
	noAct := decision.Decision{ShouldAct: false, Reason: "ok"}

	c.ProcessDecision("za", noAct, m)
	c.ProcessDecision("za", noAct, m)
	c.ProcessDecision("zb", noAct, m)

	if c.Iteration("za") != 2 || c.Iteration("zb") != 1 {
		t.Errorf("iterations: za=%d zb=%d, want 2/1", c.Iteration("za"), c.Iteration("zb"))
	}
}

func TestNoDoubleFireWithinInterval(t *testing.T) {
	c, _, _ := newTestController()

	m := decision.NewMetrics("z1")
	m.Moisture = 20
	act := decision.Decision{ShouldAct: true, RecommendedAmountMM: 10, Reason: "dry"}

	actions := 0
	forced := 0
	start := time.Now()
	for i := 0; i < 6; i++ {
		out := c.ProcessDecision("z1", act, m)
		if out.Acted {
			actions++
			if out.Forced {
				forced++
			}
		}
	}
	// All six cycles run well inside one minimum interval.
	if time.Since(start) > time.Minute {
		t.Skip("test ran implausibly slowly")
	}
	if actions > 1+forced {
		t.Errorf("%d actions with %d forced overrides inside one interval", actions, forced)
	}
}

func TestConcurrentCyclesSingleZone(t *testing.T) {
	c, pub, _ := newTestController()

	m := decision.NewMetrics("z1")
	m.Moisture = 20
	act := decision.Decision{ShouldAct: true, RecommendedAmountMM: 10, Reason: "dry"}

	const workers = 8
	const cycles = 25

	var wg sync.WaitGroup
	var mu sync.Mutex
	actions, forced := 0, 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < cycles; i++ {
				out := c.ProcessDecision("z1", act, m)
				if out.Acted {
					mu.Lock()
					actions++
					if out.Forced {
						forced++
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// All cycles run well inside one minimum interval, so only the first
	// decision action and the forced-cycle fires may pass the gate.
	if actions > 1+forced {
		t.Errorf("%d actions with %d forced overrides across concurrent cycles", actions, forced)
	}
	if len(pub.IrrigationCommands) != actions {
		t.Errorf("%d commands published for %d actions", len(pub.IrrigationCommands), actions)
	}
	if c.Iteration("z1") != workers*cycles {
		t.Errorf("iteration = %d, want %d", c.Iteration("z1"), workers*cycles)
	}
}
