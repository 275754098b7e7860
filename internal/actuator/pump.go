// Package actuator executes irrigation and fertilizer decisions: it models
// the pump run, enforces per-zone rate limiting and forced cycles, and
// performs the command/event/storage side effects of each action.
package actuator

import (
	"math"
	"sync"
)

// Pump models the irrigation pump serving all zones. Volume and duration
// are derived from the application depth and the zone area; the moisture
// estimate after a run depends on the soil absorption coefficient.
type Pump struct {
	FlowRateLPM float64
	AreaSqm     float64

	mu          sync.Mutex
	totalLiters float64
	totalRuns   int
}

// RunResult describes one completed pump run.
type RunResult struct {
	AmountMM       float64 `json:"amount_mm"`
	VolumeLiters   float64 `json:"volume_liters"`
	DurationMin    float64 `json:"duration_minutes"`
	MoistureBefore float64 `json:"moisture_before"`
	MoistureAfter  float64 `json:"moisture_after"`
}

// NewPump returns a pump with the given flow rate and irrigated area.
func NewPump(flowRateLPM, areaSqm float64) *Pump {
	return &Pump{FlowRateLPM: flowRateLPM, AreaSqm: areaSqm}
}

// Run computes the volume and duration for an application depth and the
// resulting moisture estimate. 10mm over 1m² is 10 liters; every 10mm raises
// moisture by 5 points scaled by the soil's absorption coefficient.
func (p *Pump) Run(amountMM, currentMoisture, absorption float64) RunResult {
	volume := amountMM * p.AreaSqm
	duration := 0.0
	if p.FlowRateLPM > 0 {
		duration = volume / p.FlowRateLPM
	}

	increase := (amountMM / 10) * 5 * absorption
	after := math.Min(currentMoisture+increase, 100)

	p.mu.Lock()
	p.totalLiters += volume
	p.totalRuns++
	p.mu.Unlock()

	return RunResult{
		AmountMM:       amountMM,
		VolumeLiters:   volume,
		DurationMin:    duration,
		MoistureBefore: currentMoisture,
		MoistureAfter:  after,
	}
}

// Totals returns the cumulative pumped volume and run count.
func (p *Pump) Totals() (liters float64, runs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalLiters, p.totalRuns
}
