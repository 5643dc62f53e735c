package handlers

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/internal/utils"
	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
	"github.com/echemtools/cyclekit/pkg/worker"
)

// CyclingHandler handles single experiment analysis requests
type CyclingHandler struct {
	config     *config.Config
	workerPool *worker.Pool
	processor  ProcessorFunc
}

// ProcessorFunc defines the signature for cycling data analysis
type ProcessorFunc func(req models.CyclingRequest, cfg *config.Config) (models.AnalysisSummary, error)

// NewCyclingHandler creates a new cycling handler
func NewCyclingHandler(cfg *config.Config, pool *worker.Pool, processor ProcessorFunc) *CyclingHandler {
	return &CyclingHandler{
		config:     cfg,
		workerPool: pool,
		processor:  processor,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *CyclingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setupCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request models.CyclingRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if len(request.Records) == 0 {
		h.writeError(w, "No records provided", http.StatusBadRequest)
		return
	}

	// Generate unique ID for this request
	requestID := utils.GenerateID()

	// Process data asynchronously
	go h.processAsync(requestID, request)

	// Return immediate response
	response := map[string]interface{}{
		"success":    true,
		"request_id": requestID,
		"message":    "Processing started",
	}

	if !h.config.Quiet {
		log.Infof("HTTP Request received - ID: %s, Records: %d", requestID, len(request.Records))
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// processAsync handles asynchronous analysis of one experiment
func (h *CyclingHandler) processAsync(requestID string, request models.CyclingRequest) {
	summary, err := h.processor(request, h.config)

	webhook := models.WebhookItem{
		RequestID: requestID,
		Summary:   summary,
	}
	if err != nil {
		webhook.Error = err.Error()
	}

	h.workerPool.QueueWebhook(webhook)
}

// setupCORS sets up CORS headers
func (h *CyclingHandler) setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writeError writes an error response
func (h *CyclingHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
