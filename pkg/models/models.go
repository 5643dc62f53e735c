package models

import (
	"time"
)

// RecordPayload is one parsed half-cycle record submitted over HTTP: raw
// time/voltage/current series plus the metadata the reconstruction engine
// needs.
type RecordPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Time      []float64 `json:"time"`
	Voltage   []float64 `json:"voltage"`
	Current   []float64 `json:"current"`
}

// CyclingRequest represents an incoming experiment analysis request.
type CyclingRequest struct {
	ExperimentID string          `json:"experiment_id"`
	Records      []RecordPayload `json:"records"`
	CustomOrder  [][]string      `json:"custom_order,omitempty"`
	Clean        bool            `json:"clean"`
	Reference    int             `json:"reference"`
}

// BatchItem is a single experiment within a batch, tagged with its position.
type BatchItem struct {
	Request   CyclingRequest `json:"request"`
	Iteration int            `json:"iteration"`
}

// CyclingBatch represents a batch of experiments to analyze.
type CyclingBatch struct {
	BatchID     string      `json:"batch_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Experiments []BatchItem `json:"experiments"`
}

// AnalysisSummary is the per-experiment result produced by the processor.
type AnalysisSummary struct {
	ExperimentID        string    `json:"experiment_id"`
	CycleCount          int       `json:"cycle_count"`
	HiddenCount         int       `json:"hidden_count"`
	Numbers             []int     `json:"numbers"`
	ChargeCapacities    []float64 `json:"charge_capacities"`
	DischargeCapacities []float64 `json:"discharge_capacities"`
	CapacityRetention   []float64 `json:"capacity_retention"`
	CoulombEfficiencies []float64 `json:"coulomb_efficiencies"`
	EnergyEfficiencies  []float64 `json:"energy_efficiencies"`
	VoltageEfficiencies []float64 `json:"voltage_efficiencies"`
	Fitted              bool      `json:"fitted"`
	FitSlope            float64   `json:"fit_slope"`
	FitIntercept        float64   `json:"fit_intercept"`
	FitCorrelation      float64   `json:"fit_correlation"`
	CapacityFade        float64   `json:"capacity_fade"`
}

// WorkItem represents a single analysis task queued on the worker pool.
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Iteration int
	Request   CyclingRequest
	StartTime time.Time
}

// WorkResult contains the outcome of one analysis task.
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Iteration      int
	Summary        AnalysisSummary
	ProcessingTime time.Duration
	Success        bool
	Error          string
}

// WebhookItem represents a webhook delivery task.
type WebhookItem struct {
	RequestID string
	Summary   AnalysisSummary
	Error     string
}

// WebhookResponse is the payload posted to the downstream webhook.
type WebhookResponse struct {
	ID      string          `json:"id"`
	Time    string          `json:"time"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Summary AnalysisSummary `json:"summary"`
}

// AnalysisTiming tracks performance metrics for an individual experiment.
type AnalysisTiming struct {
	Iteration      int           `json:"iteration"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	CycleCount     int           `json:"cycle_count"`
	Success        bool          `json:"success"`
}
