package worker

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
)

// Pool manages concurrent cycling analysis workers.
type Pool struct {
	jobs         chan models.WorkItem
	results      chan models.WorkResult
	webhookQueue chan models.WebhookItem
	workers      int
	shutdown     chan struct{}
	wg           sync.WaitGroup
	processor    ProcessorFunc
	cfg          *config.Config
	sender       WebhookSender
}

// ProcessorFunc defines the signature for cycling data analysis.
type ProcessorFunc func(req models.CyclingRequest, cfg *config.Config) (models.AnalysisSummary, error)

// WebhookSender delivers queued webhook items downstream.
type WebhookSender interface {
	Send(models.WebhookItem) error
}

// Options holds configuration for creating a new worker pool.
type Options struct {
	Workers   int
	Processor ProcessorFunc
	Config    *config.Config
	Sender    WebhookSender
}

// New creates a new worker pool with the given configuration.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}

	// do not block queueing new jobs, and results even if the workers are already busy jobs/results * 2
	pool := &Pool{
		jobs:         make(chan models.WorkItem, opts.Workers*2),
		results:      make(chan models.WorkResult, opts.Workers*2),
		webhookQueue: make(chan models.WebhookItem, opts.Workers*4), // 4x buffer for async webhooks - possibly slower operation, that's why extended buffer
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		cfg:          opts.Config,
		sender:       opts.Sender,
	}

	pool.start()
	return pool
}

// start initializes and starts all workers
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	// Start webhook processor
	p.wg.Add(1)
	go p.webhookProcessor()

	log.Infof("🔧 Worker pool started with %d workers", p.workers)
}

// worker processes analysis jobs from the jobs channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			result := p.processJob(job)
			p.results <- result

		case <-p.shutdown:
			return
		}
	}
}

// processJob runs one analysis and packages the outcome.
func (p *Pool) processJob(job models.WorkItem) models.WorkResult {
	startTime := time.Now()
	summary, err := p.processor(job.Request, p.cfg)
	processingTime := time.Since(startTime)

	result := models.WorkResult{
		ID:             job.ID,
		RequestID:      job.RequestID,
		BatchID:        job.BatchID,
		Iteration:      job.Iteration,
		Summary:        summary,
		ProcessingTime: processingTime,
		Success:        err == nil,
	}
	if err != nil {
		result.Error = err.Error()
		log.WithFields(log.Fields{
			"request_id": job.RequestID,
			"worker":     job.ID,
		}).Warnf("analysis failed: %v", err)
	}
	return result
}

// webhookProcessor handles webhook requests asynchronously
func (p *Pool) webhookProcessor() {
	defer p.wg.Done()

	for {
		select {
		case webhook := <-p.webhookQueue:
			// Process webhook asynchronously without blocking workers
			go p.sendWebhook(webhook)

		case <-p.shutdown:
			return
		}
	}
}

// sendWebhook delivers one webhook through the configured sender.
func (p *Pool) sendWebhook(webhook models.WebhookItem) {
	if p.sender == nil {
		log.Debugf("No webhook sender configured, dropping webhook for %s", webhook.RequestID)
		return
	}
	if err := p.sender.Send(webhook); err != nil {
		log.Warnf("Webhook delivery failed for %s: %v", webhook.RequestID, err)
	}
}

// SubmitJob submits a job to the worker pool
func (p *Pool) SubmitJob(job models.WorkItem) {
	select {
	case p.jobs <- job:
		// Job submitted successfully
	default:
		log.Warn("⚠️  Worker pool jobs channel full, job may be delayed")
		p.jobs <- job // Block until space available
	}
}

// GetResult retrieves a result from the worker pool (non-blocking)
func (p *Pool) GetResult() (models.WorkResult, bool) {
	select {
	case result := <-p.results:
		return result, true
	default:
		return models.WorkResult{}, false
	}
}

// QueueWebhook queues a webhook for async processing
func (p *Pool) QueueWebhook(webhook models.WebhookItem) {
	select {
	case p.webhookQueue <- webhook:
		// Webhook queued successfully
	default:
		log.Warnf("⚠️  Webhook queue full, dropping webhook for %s", webhook.RequestID)
	}
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown() {
	log.Info("🛑 Shutting down worker pool...")
	close(p.shutdown)
	p.wg.Wait()
	log.Info("✅ Worker pool shutdown complete")
}
