// Package analysis derives soil water and nutrient status from raw sensor
// values. Evaluators here are pure: they hold calibration constants only and
// never touch storage or transport.
package analysis

import "math"

// MoistureStatus classifies plant-available water.
type MoistureStatus string

const (
	MoistureCritical MoistureStatus = "CRITICAL"
	MoistureLow      MoistureStatus = "LOW"
	MoistureAdequate MoistureStatus = "ADEQUATE"
	MoistureOptimal  MoistureStatus = "OPTIMAL"
)

// MoistureAnalysis is the result of evaluating one soil moisture reading.
type MoistureAnalysis struct {
	CurrentMoisturePct  float64        `json:"current_moisture_pct"`
	PAWPercent          float64        `json:"paw_percentage"`
	FieldCapacity       float64        `json:"field_capacity"`
	WiltingPoint        float64        `json:"wilting_point"`
	Status              MoistureStatus `json:"status"`
	IrrigationNeeded    bool           `json:"irrigation_needed"`
	RecommendedAmountMM float64        `json:"recommended_amount_mm"`
}

// MoistureEvaluator converts raw soil moisture into plant-available water.
// The IrrigationNeeded flag it produces is advisory: the actuation controller
// owns the authoritative gate (rate limiting, forced cycles).
type MoistureEvaluator struct {
	FieldCapacity     float64
	WiltingPoint      float64
	ThresholdPAW      float64
	ApplicationRateMM float64
}

// NewMoistureEvaluator returns an evaluator with the given calibration.
func NewMoistureEvaluator(fieldCapacity, wiltingPoint, thresholdPAW, applicationRateMM float64) *MoistureEvaluator {
	return &MoistureEvaluator{
		FieldCapacity:     fieldCapacity,
		WiltingPoint:      wiltingPoint,
		ThresholdPAW:      thresholdPAW,
		ApplicationRateMM: applicationRateMM,
	}
}

// Analyze computes the PAW percentage and status band for a moisture reading.
// Invalid inputs (NaN, negative, >100) clamp to the nearest valid boundary.
func (e *MoistureEvaluator) Analyze(moisturePct float64) MoistureAnalysis {
	if math.IsNaN(moisturePct) {
		moisturePct = e.WiltingPoint
	}
	if moisturePct < 0 {
		moisturePct = 0
	}
	if moisturePct > 100 {
		moisturePct = 100
	}

	var paw float64
	switch {
	case moisturePct <= e.WiltingPoint:
		paw = 0
	case moisturePct >= e.FieldCapacity:
		paw = 100
	default:
		paw = (moisturePct - e.WiltingPoint) / (e.FieldCapacity - e.WiltingPoint) * 100
	}

	var status MoistureStatus
	switch {
	case paw < 30:
		status = MoistureCritical
	case paw < 50:
		status = MoistureLow
	case paw < 70:
		status = MoistureAdequate
	default:
		status = MoistureOptimal
	}

	needed := paw < e.ThresholdPAW
	amount := 0.0
	if needed {
		amount = e.ApplicationRateMM
	}

	return MoistureAnalysis{
		CurrentMoisturePct:  moisturePct,
		PAWPercent:          paw,
		FieldCapacity:       e.FieldCapacity,
		WiltingPoint:        e.WiltingPoint,
		Status:              status,
		IrrigationNeeded:    needed,
		RecommendedAmountMM: amount,
	}
}
