package webhook

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
)

func quietConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Quiet = true
	return cfg
}

func TestSendDeliversPayload(t *testing.T) {
	var received models.WebhookResponse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, quietConfig())
	err := client.Send(models.WebhookItem{
		RequestID: "req-42",
		Summary: models.AnalysisSummary{
			ExperimentID:      "exp-1",
			CycleCount:        2,
			CapacityRetention: []float64{100, 90},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "req-42", received.ID)
	assert.True(t, received.Success)
	assert.Equal(t, 2, received.Summary.CycleCount)
	assert.Equal(t, []float64{100, 90}, received.Summary.CapacityRetention)
}

func TestSendSanitizesNaN(t *testing.T) {
	var received models.WebhookResponse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, quietConfig())
	err := client.Send(models.WebhookItem{
		RequestID: "req-nan",
		Summary: models.AnalysisSummary{
			CapacityRetention: []float64{100, math.NaN()},
			FitSlope:          math.Inf(1),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 0}, received.Summary.CapacityRetention)
	assert.Equal(t, 0.0, received.Summary.FitSlope)
}

func TestSendReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, quietConfig())
	err := client.Send(models.WebhookItem{RequestID: "req-err"})
	assert.ErrorContains(t, err, "status 500")
}

func TestSendCarriesFailure(t *testing.T) {
	var received models.WebhookResponse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, quietConfig())
	err := client.Send(models.WebhookItem{
		RequestID: "req-fail",
		Error:     "experiment has no records",
	})
	require.NoError(t, err)

	assert.False(t, received.Success)
	assert.Equal(t, "experiment has no records", received.Error)
}
