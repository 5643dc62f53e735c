package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/internal/utils"
	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
	"github.com/echemtools/cyclekit/pkg/worker"
)

// BatchHandler handles batch analysis requests
type BatchHandler struct {
	config     *config.Config
	server     *config.ServerConfig
	workerPool *worker.Pool
	processor  ProcessorFunc
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(cfg *config.Config, srv *config.ServerConfig, pool *worker.Pool, processor ProcessorFunc) *BatchHandler {
	if srv == nil {
		srv = config.DefaultServerConfig()
	}
	return &BatchHandler{
		config:     cfg,
		server:     srv,
		workerPool: pool,
		processor:  processor,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setupCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var batch models.CyclingBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if len(batch.Experiments) == 0 {
		h.writeError(w, "No experiments provided in batch", http.StatusBadRequest)
		return
	}

	// Iterations index the timing slice, so they must form a permutation of
	// [0, n) before any job is submitted.
	seen := make(map[int]bool, len(batch.Experiments))
	for _, item := range batch.Experiments {
		if item.Iteration < 0 || item.Iteration >= len(batch.Experiments) {
			h.writeError(w, fmt.Sprintf("Iteration %d out of range [0, %d)", item.Iteration, len(batch.Experiments)), http.StatusBadRequest)
			return
		}
		if seen[item.Iteration] {
			h.writeError(w, fmt.Sprintf("Duplicate iteration %d in batch", item.Iteration), http.StatusBadRequest)
			return
		}
		seen[item.Iteration] = true
	}

	log.Infof("🔄 Batch processing started - ID: %s, Experiments: %d", batch.BatchID, len(batch.Experiments))

	// Process batch asynchronously
	go h.processBatchAsync(batch)

	// Return immediate response
	response := map[string]interface{}{
		"success":     true,
		"batch_id":    batch.BatchID,
		"experiments": len(batch.Experiments),
		"message":     "Batch processing started with worker pool",
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// processBatchAsync handles asynchronous batch processing
func (h *BatchHandler) processBatchAsync(batch models.CyclingBatch) {
	batchStartTime := time.Now()
	timings := make([]models.AnalysisTiming, len(batch.Experiments))
	resultsReceived := 0

	// Submit all jobs to worker pool
	for _, item := range batch.Experiments {
		job := h.createWorkItem(item, batch.BatchID)
		h.workerPool.SubmitJob(job)
	}

	// Collect results from worker pool
	for resultsReceived < len(batch.Experiments) {
		if result, ok := h.workerPool.GetResult(); ok {
			h.processResult(result, timings)
			resultsReceived++
		} else {
			// No results available yet, small delay to prevent busy waiting
			time.Sleep(1 * time.Millisecond)
		}
	}

	totalBatchTime := time.Since(batchStartTime)

	// Save timing results to file
	h.saveTimingResults(batch.BatchID, totalBatchTime, timings)

	log.Infof("🎉 Batch processing completed - ID: %s, Total time: %v", batch.BatchID, totalBatchTime)
}

// createWorkItem converts a batch item to a work item
func (h *BatchHandler) createWorkItem(item models.BatchItem, batchID string) models.WorkItem {
	return models.WorkItem{
		ID:        item.Iteration,
		RequestID: utils.GenerateID(),
		BatchID:   batchID,
		Iteration: item.Iteration,
		Request:   item.Request,
		StartTime: time.Now(),
	}
}

// processResult records timing for a work result and queues its webhook
func (h *BatchHandler) processResult(result models.WorkResult, timings []models.AnalysisTiming) {
	timings[result.Iteration] = models.AnalysisTiming{
		Iteration:      result.Iteration,
		ProcessingTime: result.ProcessingTime,
		CycleCount:     result.Summary.CycleCount,
		Success:        result.Success,
	}

	webhook := models.WebhookItem{
		RequestID: fmt.Sprintf("%s_iter_%03d", result.RequestID, result.Iteration),
		Summary:   result.Summary,
		Error:     result.Error,
	}

	h.workerPool.QueueWebhook(webhook)

	if !h.config.Quiet {
		log.Infof("✅ Processed experiment iteration %d", result.Iteration)
	}
}

// saveTimingResults appends timing data to a CSV file for performance analysis
func (h *BatchHandler) saveTimingResults(batchID string, totalTime time.Duration, timings []models.AnalysisTiming) {
	filename := h.server.TimingFile
	concurrency := h.server.WorkerCount

	// Check if file exists to decide on header
	var writeHeader bool
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		writeHeader = true
	}

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Errorf("Error opening timing file: %v", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if writeHeader {
		header := []string{
			"Timestamp",
			"BatchID",
			"TotalExperiments",
			"Concurrency",
			"TotalBatchTime_ms",
			"AvgExperimentTime_ms",
			"MinExperimentTime_ms",
			"MaxExperimentTime_ms",
			"SuccessRate",
			"AvgCycleCount",
			"ExperimentsPerSecond",
			"EfficiencyScore",
		}
		if err := writer.Write(header); err != nil {
			log.Errorf("Error writing timing header: %v", err)
			return
		}
	}

	// Calculate statistics
	var totalProcessingTime time.Duration
	var minTime, maxTime time.Duration = time.Hour, 0
	var successful int
	var totalCycles int

	for _, timing := range timings {
		totalProcessingTime += timing.ProcessingTime
		if timing.ProcessingTime < minTime {
			minTime = timing.ProcessingTime
		}
		if timing.ProcessingTime > maxTime {
			maxTime = timing.ProcessingTime
		}
		if timing.Success {
			successful++
			totalCycles += timing.CycleCount
		}
	}

	numExperiments := len(timings)
	avgTime := totalProcessingTime / time.Duration(numExperiments)
	successRate := float64(successful) / float64(numExperiments) * 100
	avgCycles := 0.0
	if successful > 0 {
		avgCycles = float64(totalCycles) / float64(successful)
	}

	experimentsPerSecond := float64(numExperiments) / totalTime.Seconds()

	// Efficiency score: how well we utilized the concurrency
	// Perfect efficiency = 1.0 (linear speedup), poor efficiency < 0.5
	theoreticalTime := avgTime * time.Duration(numExperiments)
	efficiencyScore := theoreticalTime.Seconds() / totalTime.Seconds() / float64(concurrency)

	record := []string{
		time.Now().Format(time.RFC3339),
		batchID,
		fmt.Sprintf("%d", numExperiments),
		fmt.Sprintf("%d", concurrency),
		fmt.Sprintf("%.2f", float64(totalTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.2f", float64(avgTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.2f", float64(minTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.2f", float64(maxTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.1f", successRate),
		fmt.Sprintf("%.1f", avgCycles),
		fmt.Sprintf("%.2f", experimentsPerSecond),
		fmt.Sprintf("%.3f", efficiencyScore),
	}

	if err := writer.Write(record); err != nil {
		log.Errorf("Error writing timing record: %v", err)
		return
	}

	log.Infof("📊 Timing saved: %d experiments, %d goroutines, %.2f ms total, %.2f%% success, %.3f efficiency",
		numExperiments, concurrency, float64(totalTime.Nanoseconds())/1000000.0, successRate, efficiencyScore)
}

// setupCORS sets up CORS headers
func (h *BatchHandler) setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writeError writes an error response
func (h *BatchHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
