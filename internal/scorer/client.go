// Package scorer calls the external diabetes-risk scoring service.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/pkg/circuitbreaker"
	"github.com/diarisk/health-api/pkg/metrics"
)

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxFailures    int
	BreakerTimeout time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "risk-scorer",
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.BreakerTimeout,
		}),
		metrics: m,
	}
}

// scoreRequest is the scoring service's wire format; feature keys are
// capitalized on that side.
type scoreRequest struct {
	Pregnancies   float64 `json:"Pregnancies"`
	Glucose       float64 `json:"Glucose"`
	BloodPressure float64 `json:"BloodPressure"`
	Insulin       float64 `json:"Insulin"`
	BMI           float64 `json:"BMI"`
	Age           float64 `json:"Age"`
}

type scoreResponse struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	RiskLevel   string  `json:"risk_level"`
}

// Score submits the biomarker tuple plus the derived age and returns the
// model's risk assessment. Timeouts are bounded by the client timeout and the
// request context; failures are never retried here.
func (c *Client) Score(ctx context.Context, b model.Biomarkers, age int) (*model.Prediction, error) {
	var prediction *model.Prediction

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var timer *prometheus.Timer
		if c.metrics != nil {
			timer = prometheus.NewTimer(c.metrics.ScorerLatency)
			defer timer.ObserveDuration()
		}

		body, err := json.Marshal(scoreRequest{
			Pregnancies:   b.Pregnancies,
			Glucose:       b.Glucose,
			BloodPressure: b.BloodPressure,
			Insulin:       b.Insulin,
			BMI:           b.BMI,
			Age:           float64(age),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal scoring request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build scoring request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("scoring request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("scoring service returned status %d", resp.StatusCode)
		}

		var parsed scoreResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("failed to decode scoring response: %w", err)
		}

		prediction = &model.Prediction{
			Probability: parsed.Probability,
			RiskLevel:   parsed.RiskLevel,
		}
		return nil
	})

	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		c.metrics.ScorerRequests.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		return nil, err
	}
	return prediction, nil
}
