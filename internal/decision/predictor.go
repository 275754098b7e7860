package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const fallbackModelVersion = "fallback-v1.0"

// predictorResponse is the remote service's answer.
type predictorResponse struct {
	ShouldIrrigate      bool    `json:"should_irrigate"`
	Confidence          float64 `json:"confidence"`
	RecommendedAmountMM float64 `json:"recommended_amount_mm"`
	Reason              string  `json:"reason"`
	ModelVersion        string  `json:"model_version"`
}

// PredictorEngine delegates the decision to a remote scoring service. Any
// transport failure (timeout, refused connection, bad status, malformed
// body) degrades to a local rule-based fallback; the engine never surfaces
// an error to its caller.
type PredictorEngine struct {
	url    string
	client *http.Client
}

// NewPredictorEngine returns an engine calling the service at url with the
// given per-request timeout.
func NewPredictorEngine(url string, timeout time.Duration) *PredictorEngine {
	return &PredictorEngine{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Decide posts the metrics snapshot to the predictor and returns its
// decision, or the rule-based fallback when the service misbehaves.
func (e *PredictorEngine) Decide(ctx context.Context, m Metrics) Decision {
	resp, err := e.predict(ctx, m)
	if err != nil {
		log.Printf("predictor: %v, using rule-based fallback for zone %s", err, m.ZoneID)
		return fallbackDecision(m)
	}
	return Decision{
		ShouldAct:           resp.ShouldIrrigate,
		Confidence:          resp.Confidence,
		RecommendedAmountMM: resp.RecommendedAmountMM,
		Reason:              resp.Reason,
		ModelVersion:        resp.ModelVersion,
	}
}

func (e *PredictorEngine) predict(ctx context.Context, m Metrics) (*predictorResponse, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out predictorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// fallbackDecision is the degraded three-rule path used when the predictor
// is unavailable. It is deliberately conservative and tagged with a distinct
// model version so audits can tell primary from fallback decisions.
func fallbackDecision(m Metrics) Decision {
	shouldAct := false
	amount := 0.0
	reason := "Fallback: "

	switch {
	case m.Moisture < 30:
		shouldAct = true
		amount = 15.0
		reason += "Critical moisture level"
	case m.Moisture < 40 && m.Temperature > 30:
		shouldAct = true
		amount = 10.0
		reason += "Low moisture with high temperature"
	case m.Moisture < 45 && m.Humidity < 30:
		shouldAct = true
		amount = 8.0
		reason += "Low moisture with low humidity"
	default:
		reason += "Moisture levels adequate"
	}

	return Decision{
		ShouldAct:           shouldAct,
		Confidence:          0.5,
		RecommendedAmountMM: amount,
		Reason:              reason,
		ModelVersion:        fallbackModelVersion,
	}
}
