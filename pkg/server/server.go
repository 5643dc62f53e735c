package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/internal/processing"
	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/handlers"
	"github.com/echemtools/cyclekit/pkg/models"
	"github.com/echemtools/cyclekit/pkg/profiling"
	"github.com/echemtools/cyclekit/pkg/webhook"
	"github.com/echemtools/cyclekit/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config        *config.Config
	serverConfig  *config.ServerConfig
	workerPool    *worker.Pool
	webhookClient *webhook.Client
	httpServer    *http.Server
	profiler      *profiling.Profiler
	middleware    *profiling.Middleware
}

// Options holds configuration for creating a new server
type Options struct {
	Config       *config.Config
	ServerConfig *config.ServerConfig
	Processor    handlers.ProcessorFunc
}

// New creates a new server instance
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.ServerConfig == nil {
		opts.ServerConfig = config.DefaultServerConfig()
	}
	if opts.Processor == nil {
		opts.Processor = processing.Analyze
	}

	webhookClient := webhook.NewClient(opts.ServerConfig.WebhookURL, opts.Config)

	workerPool := worker.New(worker.Options{
		Workers:   opts.ServerConfig.WorkerCount,
		Processor: worker.ProcessorFunc(opts.Processor),
		Config:    opts.Config,
		Sender:    webhookClient,
	})

	profiler := profiling.New(opts.ServerConfig)
	middleware := profiling.NewMiddleware(opts.ServerConfig.EnableProfiling)

	server := &Server{
		config:        opts.Config,
		serverConfig:  opts.ServerConfig,
		workerPool:    workerPool,
		webhookClient: webhookClient,
		profiler:      profiler,
		middleware:    middleware,
	}

	server.setupRoutes(opts.Processor)
	return server
}

// setupRoutes configures HTTP routes and handlers
func (s *Server) setupRoutes(processor handlers.ProcessorFunc) {
	mux := http.NewServeMux()

	cyclingHandler := handlers.NewCyclingHandler(s.config, s.workerPool, processor)
	batchHandler := handlers.NewBatchHandler(s.config, s.serverConfig, s.workerPool, processor)

	// Register routes with profiling middleware
	mux.Handle("/cycling", s.middleware.ProfiledHandler("cycling-single", cyclingHandler))
	mux.Handle("/cycling/batch", s.middleware.ProfiledHandler("cycling-batch", batchHandler))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/debug/gc", s.gcHandler)
	mux.HandleFunc("/debug/memory", s.memoryHandler)

	s.httpServer = &http.Server{
		Addr:         ":" + s.serverConfig.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Analyze exposes the configured processor for direct use
func (s *Server) Analyze(req models.CyclingRequest) (models.AnalysisSummary, error) {
	return processing.Analyze(req, s.config)
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// gcHandler triggers garbage collection and returns stats
func (s *Server) gcHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	profiling.ForceGC()
	stats := profiling.GetGCStats()

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"gc_runs": %d,
		"pause_total_ms": %.3f,
		"pause_recent_us": %.3f,
		"cpu_percent": %.2f,
		"last_gc": "%s",
		"timestamp": "%s"
	}`,
		stats.NumGC,
		float64(stats.PauseTotal.Nanoseconds())/1000000.0,
		float64(stats.PauseRecent.Nanoseconds())/1000.0,
		stats.GCCPUPercent,
		stats.LastGC.Format(time.RFC3339),
		time.Now().Format(time.RFC3339))
}

// memoryHandler provides current memory statistics
func (s *Server) memoryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	profiling.LogGCStats()

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"message":"Memory stats logged to console","timestamp":"%s"}`,
		time.Now().Format(time.RFC3339))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if err := s.profiler.Start(); err != nil {
		log.Errorf("❌ Failed to start profiler: %v", err)
	}

	log.Infof("🚀 Starting HTTP server on port %s", s.serverConfig.Port)
	log.Infof("  - Single: http://localhost:%s/cycling", s.serverConfig.Port)
	log.Infof("  - Batch:  http://localhost:%s/cycling/batch", s.serverConfig.Port)
	log.Infof("  - Health: http://localhost:%s/health", s.serverConfig.Port)
	log.Infof("  - GC:     http://localhost:%s/debug/gc", s.serverConfig.Port)
	log.Infof("  - Memory: http://localhost:%s/debug/memory", s.serverConfig.Port)

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("🛑 Shutting down server...")

	if err := s.profiler.Stop(); err != nil {
		log.Warnf("⚠️ Profiler shutdown error: %v", err)
	}

	s.workerPool.Shutdown()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown error: %w", err)
	}

	log.Info("✅ Server shutdown complete")
	return nil
}
