package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/agrosense/irrigation-controller/internal/config"
)

// Nutrient names as used in topics, config keys and analyses.
const (
	Nitrogen   = "nitrogen"
	Phosphorus = "phosphorus"
	Potassium  = "potassium"
)

// NutrientStatus classifies one nutrient level against its thresholds.
type NutrientStatus string

const (
	NutrientCritical  NutrientStatus = "CRITICAL"
	NutrientLow       NutrientStatus = "LOW"
	NutrientDeficient NutrientStatus = "DEFICIENT"
	NutrientOptimal   NutrientStatus = "OPTIMAL"
	NutrientExcess    NutrientStatus = "EXCESS"
)

// NutrientAnalysis is the evaluation of a single nutrient reading.
type NutrientAnalysis struct {
	Nutrient   string                    `json:"nutrient"`
	Value      float64                   `json:"value"`
	Status     NutrientStatus            `json:"status"`
	Thresholds config.NutrientThresholds `json:"thresholds"`
}

// FertilizerRecommendation is a deficit-based application suggestion.
type FertilizerRecommendation struct {
	Nutrient      string  `json:"nutrient"` // short code: N, P or K
	AmountKgPerHa float64 `json:"amount_kg_per_ha"`
	Reason        string  `json:"reason"`
}

// NPKAnalysis is the combined evaluation of a complete NPK triple.
type NPKAnalysis struct {
	ZoneID              string                     `json:"zone_id"`
	CropType            string                     `json:"crop_type"`
	Nitrogen            NutrientAnalysis           `json:"nitrogen"`
	Phosphorus          NutrientAnalysis           `json:"phosphorus"`
	Potassium           NutrientAnalysis           `json:"potassium"`
	FertilizationNeeded bool                       `json:"fertilization_needed"`
	Recommendations     []FertilizerRecommendation `json:"recommendations"`
	OverallStatus       NutrientStatus             `json:"overall_status"`
}

// NutrientEvaluator maps nutrient readings to status bands and fertilizer
// recommendations using configured thresholds and crop requirements.
type NutrientEvaluator struct {
	thresholds   map[string]config.NutrientThresholds
	cropReqs     map[string]config.CropRequirement
	deficitRates map[string]config.DeficitRate
	defaultCrop  string
}

// NewNutrientEvaluator builds an evaluator from the NPK configuration section.
func NewNutrientEvaluator(cfg *config.Config) *NutrientEvaluator {
	return &NutrientEvaluator{
		thresholds:   cfg.NPK.Thresholds,
		cropReqs:     cfg.NPK.CropRequirements,
		deficitRates: cfg.NPK.DeficitRates,
		defaultCrop:  cfg.NPK.DefaultCrop,
	}
}

// AnalyzeNutrient classifies a single nutrient value by ordered boundary
// comparison against its configured thresholds.
func (e *NutrientEvaluator) AnalyzeNutrient(nutrient string, value float64) NutrientAnalysis {
	t := e.thresholds[strings.ToLower(nutrient)]

	var status NutrientStatus
	switch {
	case value < t.CriticalLow:
		status = NutrientCritical
	case value < t.Low:
		status = NutrientLow
	case value < t.OptimalMin:
		status = NutrientDeficient
	case value <= t.OptimalMax:
		status = NutrientOptimal
	default:
		status = NutrientExcess
	}

	return NutrientAnalysis{
		Nutrient:   strings.ToUpper(nutrient[:1]) + strings.ToLower(nutrient[1:]),
		Value:      value,
		Status:     status,
		Thresholds: t,
	}
}

// AnalyzeNPK evaluates a complete NPK triple for a zone and derives
// fertilizer recommendations for any deficient nutrient.
func (e *NutrientEvaluator) AnalyzeNPK(zoneID string, nitrogen, phosphorus, potassium float64, cropType string) NPKAnalysis {
	if cropType == "" {
		cropType = e.defaultCrop
	}

	n := e.AnalyzeNutrient(Nitrogen, nitrogen)
	p := e.AnalyzeNutrient(Phosphorus, phosphorus)
	k := e.AnalyzeNutrient(Potassium, potassium)

	req := e.cropReqs[cropType]

	var recs []FertilizerRecommendation
	if rec, ok := e.recommend(Nitrogen, "N", n.Status, nitrogen, req.Nitrogen); ok {
		recs = append(recs, rec)
	}
	if rec, ok := e.recommend(Phosphorus, "P", p.Status, phosphorus, req.Phosphorus); ok {
		recs = append(recs, rec)
	}
	if rec, ok := e.recommend(Potassium, "K", k.Status, potassium, req.Potassium); ok {
		recs = append(recs, rec)
	}

	return NPKAnalysis{
		ZoneID:              zoneID,
		CropType:            cropType,
		Nitrogen:            n,
		Phosphorus:          p,
		Potassium:           k,
		FertilizationNeeded: len(recs) > 0,
		Recommendations:     recs,
		OverallStatus:       overallStatus(n.Status, p.Status, k.Status),
	}
}

// recommend computes a deficit-based application amount. A recommendation is
// emitted only when the nutrient is below its band and the deficit against
// the crop minimum is positive.
func (e *NutrientEvaluator) recommend(nutrient, code string, status NutrientStatus, value, cropMin float64) (FertilizerRecommendation, bool) {
	if status != NutrientCritical && status != NutrientLow && status != NutrientDeficient {
		return FertilizerRecommendation{}, false
	}
	deficit := cropMin - value
	if deficit <= 0 {
		return FertilizerRecommendation{}, false
	}

	rate := e.deficitRates[nutrient]
	step := rate.Step
	if step <= 0 {
		step = 1
	}
	amount := deficit / step * rate.RateKgPerHa

	name := strings.ToUpper(nutrient[:1]) + strings.ToLower(nutrient[1:])
	return FertilizerRecommendation{
		Nutrient:      code,
		AmountKgPerHa: round1(amount),
		Reason:        fmt.Sprintf("%s deficit: %.1f mg/kg below optimal", name, deficit),
	}, true
}

// overallStatus is the worst status among the three nutrients, with
// precedence CRITICAL > LOW/DEFICIENT > EXCESS > OPTIMAL.
func overallStatus(statuses ...NutrientStatus) NutrientStatus {
	hasDeficient := false
	hasExcess := false
	for _, s := range statuses {
		switch s {
		case NutrientCritical:
			return NutrientCritical
		case NutrientLow, NutrientDeficient:
			hasDeficient = true
		case NutrientExcess:
			hasExcess = true
		}
	}
	if hasDeficient {
		return NutrientDeficient
	}
	if hasExcess {
		return NutrientExcess
	}
	return NutrientOptimal
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
