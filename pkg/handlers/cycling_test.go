package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
	"github.com/echemtools/cyclekit/pkg/worker"
)

func stubProcessor(req models.CyclingRequest, cfg *config.Config) (models.AnalysisSummary, error) {
	return models.AnalysisSummary{ExperimentID: req.ExperimentID, CycleCount: 1}, nil
}

func newTestPool(t *testing.T) *worker.Pool {
	t.Helper()
	pool := worker.New(worker.Options{Workers: 2, Processor: stubProcessor})
	t.Cleanup(pool.Shutdown)
	return pool
}

func validRequest() models.CyclingRequest {
	start := time.Date(2022, 6, 15, 10, 0, 0, 0, time.UTC)
	return models.CyclingRequest{
		ExperimentID: "exp-1",
		Records: []models.RecordPayload{{
			ID:        "c0",
			Type:      "charge",
			Timestamp: start,
			Time:      []float64{0, 1, 2},
			Voltage:   []float64{1.2, 1.2, 1.2},
			Current:   []float64{0.8, 0.8, 0.8},
		}},
	}
}

func TestCyclingHandlerAcceptsRequest(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Quiet = true
	handler := NewCyclingHandler(cfg, newTestPool(t), stubProcessor)

	body, err := json.Marshal(validRequest())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cycling", bytes.NewReader(body))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])
	assert.NotEmpty(t, response["request_id"])
}

func TestCyclingHandlerRejectsBadRequests(t *testing.T) {
	handler := NewCyclingHandler(config.DefaultConfig(), newTestPool(t), stubProcessor)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cycling", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cycling", strings.NewReader("{broken")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cycling", strings.NewReader(`{"experiment_id":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCyclingHandlerAnswersPreflight(t *testing.T) {
	handler := NewCyclingHandler(config.DefaultConfig(), newTestPool(t), stubProcessor)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/cycling", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
