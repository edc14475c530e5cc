package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/pkg/circuitbreaker"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL:        url,
		Timeout:        500 * time.Millisecond,
		MaxFailures:    2,
		BreakerTimeout: time.Minute,
	}, nil)
}

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)

		var req map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 110.0, req["Glucose"])
		assert.Equal(t, 41.0, req["Age"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"prediction":  1,
			"probability": 0.73,
			"risk_level":  "High Risk",
		})
	}))
	defer srv.Close()

	prediction, err := newTestClient(srv.URL).Score(context.Background(), model.Biomarkers{
		Glucose:       110,
		BloodPressure: 70,
		Insulin:       80,
		BMI:           24,
	}, 41)
	require.NoError(t, err)
	assert.Equal(t, 0.73, prediction.Probability)
	assert.Equal(t, "High Risk", prediction.RiskLevel)
}

func TestScoreUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Score(context.Background(), model.Biomarkers{Glucose: 100}, 30)
	assert.Error(t, err)
}

func TestScoreBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	_, err := c.Score(ctx, model.Biomarkers{Glucose: 100}, 30)
	require.Error(t, err)
	_, err = c.Score(ctx, model.Biomarkers{Glucose: 100}, 30)
	require.Error(t, err)

	_, err = c.Score(ctx, model.Biomarkers{Glucose: 100}, 30)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestScoreTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Score(context.Background(), model.Biomarkers{Glucose: 100}, 30)
	assert.Error(t, err)
}
