// Package decision turns a zone metrics snapshot into an irrigate/skip
// decision. Two interchangeable engines exist: a local weighted-scoring
// engine and a remote predictor client that degrades to rule-based
// fallback when the service is unreachable.
package decision

import (
	"context"
	"fmt"
	"strings"
)

// Metrics is the snapshot a decision is computed from. Construct with
// NewMetrics so absent sensors carry neutral defaults instead of zeros.
type Metrics struct {
	ZoneID      string  `json:"zone_id"`
	Moisture    float64 `json:"moisture_percent"`
	Temperature float64 `json:"temperature_celsius"`
	Humidity    float64 `json:"humidity_percent"`
	Rainfall24h float64 `json:"rainfall_mm_24h"`
	Nitrogen    float64 `json:"nitrogen,omitempty"`
	Phosphorus  float64 `json:"phosphorus,omitempty"`
	Potassium   float64 `json:"potassium,omitempty"`
	NPKStatus   string  `json:"npk_status,omitempty"`
	WaterLevel  float64 `json:"water_level,omitempty"`
}

// NewMetrics returns a snapshot with neutral defaults for sensors that have
// not reported: moisture 50%, temperature 25°C, humidity 60%, no rainfall.
func NewMetrics(zoneID string) Metrics {
	return Metrics{
		ZoneID:      zoneID,
		Moisture:    50,
		Temperature: 25,
		Humidity:    60,
		Rainfall24h: 0,
		NPKStatus:   "OPTIMAL",
	}
}

// Decision is the immutable outcome of one evaluation.
type Decision struct {
	ShouldAct           bool    `json:"should_act"`
	Confidence          float64 `json:"confidence"`
	RecommendedAmountMM float64 `json:"recommended_amount_mm"`
	Reason              string  `json:"reason"`
	ModelVersion        string  `json:"model_version"`
	Score               float64 `json:"irrigation_score,omitempty"`
}

// Engine produces a decision from a metrics snapshot. Implementations never
// return an error: degraded paths yield a low-confidence decision with a
// distinguishable model version instead.
type Engine interface {
	Decide(ctx context.Context, m Metrics) Decision
}

// Scoring weights and normalization constants for the local engine.
const (
	scoringModelVersion = "scoring-v1"

	weightMoisture = 0.4
	weightTemp     = 0.2
	weightHumidity = 0.2
	weightRainfall = 0.2

	tempBaseline = 25.0
	tempRange    = 20.0
	rainRange    = 10.0

	actThreshold = 0.5
)

// ScoringEngine is the deterministic local strategy: a weighted sum of
// moisture deficit, temperature excess, humidity deficit and rainfall
// absence decides whether to irrigate.
type ScoringEngine struct {
	BaseVolumeMM      float64
	NutrientLowFactor float64
}

// NewScoringEngine returns a scoring engine with the given volume base and
// the reduction factor applied when nutrients are depleted.
func NewScoringEngine(baseVolumeMM, nutrientLowFactor float64) *ScoringEngine {
	return &ScoringEngine{
		BaseVolumeMM:      baseVolumeMM,
		NutrientLowFactor: nutrientLowFactor,
	}
}

// Decide computes the weighted irrigation score for the snapshot.
func (e *ScoringEngine) Decide(_ context.Context, m Metrics) Decision {
	moistureScore := (100 - m.Moisture) / 100
	tempScore := max0((m.Temperature - tempBaseline) / tempRange)
	humidityScore := (100 - m.Humidity) / 100
	rainScore := max0((rainRange - m.Rainfall24h) / rainRange)

	score := moistureScore*weightMoisture +
		tempScore*weightTemp +
		humidityScore*weightHumidity +
		rainScore*weightRainfall

	shouldAct := score > actThreshold
	confidence := score
	if confidence > 1.0 {
		confidence = 1.0
	}

	amount := 0.0
	if shouldAct {
		amount = e.BaseVolumeMM * (1 + moistureScore)
		if m.NPKStatus == "CRITICAL" || m.NPKStatus == "LOW" {
			amount *= e.NutrientLowFactor
		}
	}

	return Decision{
		ShouldAct:           shouldAct,
		Confidence:          confidence,
		RecommendedAmountMM: amount,
		Reason:              scoringReason(m),
		ModelVersion:        scoringModelVersion,
		Score:               score,
	}
}

func scoringReason(m Metrics) string {
	var reasons []string
	if m.Moisture < 40 {
		reasons = append(reasons, fmt.Sprintf("Low moisture (%.1f%%)", m.Moisture))
	}
	if m.Temperature > 30 {
		reasons = append(reasons, fmt.Sprintf("High temperature (%.1f°C)", m.Temperature))
	}
	if m.Humidity < 40 {
		reasons = append(reasons, fmt.Sprintf("Low humidity (%.1f%%)", m.Humidity))
	}
	if m.Rainfall24h < 2 {
		reasons = append(reasons, fmt.Sprintf("No recent rainfall (%.1fmm)", m.Rainfall24h))
	}
	if len(reasons) == 0 {
		return "Conditions adequate"
	}
	return strings.Join(reasons, ", ")
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
