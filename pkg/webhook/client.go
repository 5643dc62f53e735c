package webhook

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
)

// Client handles webhook HTTP requests with optimized connection pooling
type Client struct {
	url        string
	httpClient *http.Client
	config     *config.Config
	bufferPool sync.Pool // Pool for JSON marshaling buffers
}

// NewClient creates a new webhook client with optimized connection pooling
func NewClient(url string, cfg *config.Config) *Client {
	// Create optimized transport with connection pooling
	transport := &http.Transport{
		// Connection pooling settings
		MaxIdleConns:        100,              // Maximum idle connections
		MaxIdleConnsPerHost: 20,               // Maximum idle connections per host
		IdleConnTimeout:     90 * time.Second, // Idle connection timeout

		// Dial timeout settings
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // Connection timeout
			KeepAlive: 30 * time.Second, // Keep-alive probe interval
		}).DialContext,

		// TLS settings
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false, // Set to true for development only
		},

		// Response header timeout
		ResponseHeaderTimeout: 30 * time.Second,

		// Disable compression for better performance on small payloads
		DisableCompression: true,

		// Force HTTP/1.1 for better connection reuse
		ForceAttemptHTTP2: false,
	}

	client := &Client{
		url:    url,
		config: cfg,
		httpClient: &http.Client{
			Timeout:   45 * time.Second, // Total request timeout
			Transport: transport,
		},
		// Buffer pool for JSON marshaling to reduce GC pressure
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 1024)) // Pre-allocate 1KB buffer
			},
		},
	}

	return client
}

// Send posts an analysis summary to the downstream webhook
func (c *Client) Send(webhook models.WebhookItem) error {
	payload := models.WebhookResponse{
		ID:      webhook.RequestID,
		Time:    time.Now().Format(time.RFC3339Nano),
		Success: webhook.Error == "",
		Error:   webhook.Error,
		Summary: sanitizeSummary(webhook.Summary),
	}

	// Get buffer from pool and marshal to JSON
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()                 // Clear buffer
	defer c.bufferPool.Put(buf) // Return to pool

	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	// Send HTTP request with pooled buffer
	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if !c.config.Quiet {
		log.Infof("Webhook sent - ID: %s, Cycles: %d, Status: %d",
			webhook.RequestID, webhook.Summary.CycleCount, resp.StatusCode)
	}

	// Check for HTTP errors
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return nil
}

// sanitizeSummary replaces NaN and Inf values so the payload stays valid
// JSON. Retention series legitimately carry NaN for charge-only cycles.
func sanitizeSummary(s models.AnalysisSummary) models.AnalysisSummary {
	s.ChargeCapacities = sanitizeSeries(s.ChargeCapacities)
	s.DischargeCapacities = sanitizeSeries(s.DischargeCapacities)
	s.CapacityRetention = sanitizeSeries(s.CapacityRetention)
	s.CoulombEfficiencies = sanitizeSeries(s.CoulombEfficiencies)
	s.EnergyEfficiencies = sanitizeSeries(s.EnergyEfficiencies)
	s.VoltageEfficiencies = sanitizeSeries(s.VoltageEfficiencies)
	s.FitSlope = sanitizeFloat(s.FitSlope)
	s.FitIntercept = sanitizeFloat(s.FitIntercept)
	s.FitCorrelation = sanitizeFloat(s.FitCorrelation)
	s.CapacityFade = sanitizeFloat(s.CapacityFade)
	return s
}

func sanitizeSeries(values []float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = sanitizeFloat(v)
	}
	return out
}

// sanitizeFloat cleans float64 values for JSON compatibility
func sanitizeFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0.0
	}
	return value
}
