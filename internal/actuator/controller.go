package actuator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrosense/irrigation-controller/internal/analysis"
	"github.com/agrosense/irrigation-controller/internal/config"
	"github.com/agrosense/irrigation-controller/internal/decision"
	"github.com/agrosense/irrigation-controller/internal/storage"
	"github.com/agrosense/irrigation-controller/internal/transport"
)

// Store is the append-only persistence the controller needs.
type Store interface {
	InsertIrrigationEvent(e *storage.IrrigationEvent) (int64, error)
	InsertFertilizerEvent(e *storage.FertilizerEvent) (int64, error)
}

// Outcome reports what the controller did with one decision.
type Outcome struct {
	Acted  bool
	Forced bool
	Reason string
	Result *RunResult
}

// zoneControl is the per-zone rate-limit state. The zone mutex is held for
// the whole gate-and-act sequence so two concurrent cycles for the same zone
// cannot both pass the gate.
type zoneControl struct {
	mu         sync.Mutex
	lastAction time.Time
	iteration  int
}

// Controller turns decisions into actuator commands. It owns the per-zone
// iteration counters and last-action timestamps and is the single authority
// on whether an action fires.
type Controller struct {
	cfg   *config.Config
	pump  *Pump
	pub   transport.Publisher
	store Store

	mu    sync.Mutex
	zones map[string]*zoneControl
}

// NewController wires a controller to its pump, publisher and store.
func NewController(cfg *config.Config, pump *Pump, pub transport.Publisher, store Store) *Controller {
	return &Controller{
		cfg:   cfg,
		pump:  pump,
		pub:   pub,
		store: store,
		zones: make(map[string]*zoneControl),
	}
}

func (c *Controller) zone(zoneID string) *zoneControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	zc, ok := c.zones[zoneID]
	if !ok {
		zc = &zoneControl{}
		c.zones[zoneID] = zc
	}
	return zc
}

// ProcessDecision applies the gate policy to a decision and, when the gate
// opens, executes the pump run with its side effects. Gate order: forced
// cycle, then the decision itself, then the minimum interval.
func (c *Controller) ProcessDecision(zoneID string, d decision.Decision, m decision.Metrics) Outcome {
	zc := c.zone(zoneID)
	zc.mu.Lock()
	defer zc.mu.Unlock()

	zc.iteration++
	iter := zc.iteration

	if c.cfg.Irrigation.ForcedCyclePeriod > 0 && iter%c.cfg.Irrigation.ForcedCyclePeriod == 0 {
		reason := fmt.Sprintf("Forced irrigation (iteration %d)", iter)
		amount := d.RecommendedAmountMM
		if amount <= 0 {
			amount = c.cfg.Irrigation.ApplicationRateMM
		}
		return c.act(zc, zoneID, amount, "forced", reason, d, m)
	}

	if !d.ShouldAct {
		c.publishSkip(zoneID, d.Reason)
		return Outcome{Reason: d.Reason}
	}

	if !zc.lastAction.IsZero() {
		elapsed := time.Since(zc.lastAction)
		if minInterval := c.cfg.MinInterval(); elapsed < minInterval {
			remaining := (minInterval - elapsed).Hours()
			reason := fmt.Sprintf("Rate limited: %.1f hours until next irrigation", remaining)
			c.publishSkip(zoneID, reason)
			return Outcome{Reason: reason}
		}
	}

	return c.act(zc, zoneID, d.RecommendedAmountMM, "decision", d.Reason, d, m)
}

// act runs the pump and performs the side effects of an actuation: command
// publish, moisture republish, event trail, storage append. Publish or
// storage failures are logged and surfaced as events without aborting the
// run, except a failed command publish which voids the action entirely.
func (c *Controller) act(zc *zoneControl, zoneID string, amountMM float64, trigger, reason string, d decision.Decision, m decision.Metrics) Outcome {
	forced := trigger == "forced"
	now := time.Now().UTC()

	if err := c.pub.PublishIrrigationEvent(zoneID, "irrigation_started", map[string]interface{}{
		"amount_mm": amountMM,
		"trigger":   trigger,
		"reason":    reason,
	}); err != nil {
		log.Printf("actuator: publish irrigation_started for %s: %v", zoneID, err)
	}

	cmd := transport.IrrigationCommand{
		CommandID: uuid.NewString(),
		ZoneID:    zoneID,
		AmountMM:  amountMM,
		Timestamp: now.Format(time.RFC3339),
		Automated: true,
	}
	if err := c.pub.PublishIrrigationCommand(cmd); err != nil {
		log.Printf("actuator: command publish for %s failed: %v", zoneID, err)
		c.publishEvent(zoneID, "irrigation_failed", map[string]interface{}{
			"error":  err.Error(),
			"reason": reason,
		})
		return Outcome{Forced: forced, Reason: "command publish failed: " + err.Error()}
	}

	absorption := c.cfg.AbsorptionFor(c.cfg.Soil.Type)
	result := c.pump.Run(amountMM, m.Moisture, absorption)

	if err := c.pub.PublishSensorValue(transport.TopicMoisture, transport.SensorPayload{
		Timestamp: now.Format(time.RFC3339),
		ZoneID:    zoneID,
		Value:     &result.MoistureAfter,
		Unit:      "%",
		Source:    "irrigation-controller",
	}); err != nil {
		log.Printf("actuator: moisture republish for %s failed: %v", zoneID, err)
		c.publishEvent(zoneID, "publish_failed", map[string]interface{}{"error": err.Error()})
	}

	if _, err := c.store.InsertIrrigationEvent(&storage.IrrigationEvent{
		ZoneID:         zoneID,
		AmountMM:       amountMM,
		VolumeLiters:   result.VolumeLiters,
		DurationMin:    result.DurationMin,
		MoistureBefore: result.MoistureBefore,
		MoistureAfter:  result.MoistureAfter,
		Trigger:        trigger,
		Confidence:     d.Confidence,
		ModelVersion:   d.ModelVersion,
		Timestamp:      now,
	}); err != nil {
		log.Printf("actuator: record irrigation for %s failed: %v", zoneID, err)
		c.publishEvent(zoneID, "storage_error", map[string]interface{}{"error": err.Error()})
	}

	if err := c.pub.PublishIrrigationEvent(zoneID, "irrigation_completed", map[string]interface{}{
		"amount_mm":      result.AmountMM,
		"volume_liters":  result.VolumeLiters,
		"duration_min":   result.DurationMin,
		"moisture_after": result.MoistureAfter,
		"trigger":        trigger,
	}); err != nil {
		log.Printf("actuator: publish irrigation_completed for %s: %v", zoneID, err)
	}

	zc.lastAction = time.Now()
	log.Printf("actuator: irrigated %s with %.1fmm (%.0fL over %.1fmin, %s)",
		zoneID, amountMM, result.VolumeLiters, result.DurationMin, trigger)

	return Outcome{Acted: true, Forced: forced, Reason: reason, Result: &result}
}

// ApplyFertilizer dispatches one command per recommendation. A failure on
// one nutrient does not block the others.
func (c *Controller) ApplyFertilizer(zoneID string, recs []analysis.FertilizerRecommendation) {
	now := time.Now().UTC()
	for _, rec := range recs {
		cmd := transport.FertilizerCommand{
			CommandID: uuid.NewString(),
			ZoneID:    zoneID,
			Nutrient:  rec.Nutrient,
			AmountKg:  rec.AmountKgPerHa,
			Timestamp: now.Format(time.RFC3339),
			Automated: true,
		}
		if err := c.pub.PublishFertilizerCommand(cmd); err != nil {
			log.Printf("actuator: fertilizer command for %s/%s failed: %v", zoneID, rec.Nutrient, err)
			c.publishEvent(zoneID, "fertilizer_failed", map[string]interface{}{
				"nutrient": rec.Nutrient,
				"error":    err.Error(),
			})
			continue
		}

		if _, err := c.store.InsertFertilizerEvent(&storage.FertilizerEvent{
			ZoneID:        zoneID,
			Nutrient:      rec.Nutrient,
			AmountKgPerHa: rec.AmountKgPerHa,
			Reason:        rec.Reason,
			Timestamp:     now,
		}); err != nil {
			log.Printf("actuator: record fertilizer for %s failed: %v", zoneID, err)
			c.publishEvent(zoneID, "storage_error", map[string]interface{}{"error": err.Error()})
		}

		c.publishEvent(zoneID, "fertilizer_command_sent", map[string]interface{}{
			"nutrient":         rec.Nutrient,
			"amount_kg_per_ha": rec.AmountKgPerHa,
			"reason":           rec.Reason,
		})
	}
}

// Iteration returns the current cycle counter for a zone.
func (c *Controller) Iteration(zoneID string) int {
	zc := c.zone(zoneID)
	zc.mu.Lock()
	defer zc.mu.Unlock()
	return zc.iteration
}

// LastAction returns the time of the zone's last actuation.
func (c *Controller) LastAction(zoneID string) time.Time {
	zc := c.zone(zoneID)
	zc.mu.Lock()
	defer zc.mu.Unlock()
	return zc.lastAction
}

func (c *Controller) publishSkip(zoneID, reason string) {
	c.publishEvent(zoneID, "irrigation_skipped", map[string]interface{}{"reason": reason})
}

func (c *Controller) publishEvent(zoneID, event string, data map[string]interface{}) {
	if err := c.pub.PublishZoneEvent(zoneID, event, data); err != nil {
		log.Printf("actuator: publish %s for %s: %v", event, zoneID, err)
	}
}
