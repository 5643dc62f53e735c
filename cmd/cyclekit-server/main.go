package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	log "github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/internal/processing"
	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/server"
)

var version = "<not set>"

type argSpec struct {
	Config    string `arg:"--config" help:"YAML configuration file"`
	Port      string `arg:"-p,--port" help:"HTTP listen port"`
	Workers   int    `arg:"--workers" help:"Number of analysis workers"`
	Webhook   string `arg:"--webhook" help:"Downstream webhook URL"`
	Profiling bool   `arg:"--profile" help:"Enable pprof profiling"`
	Quiet     bool   `arg:"-q,--quiet" help:"Suppress per-request logging"`
}

func (argSpec) Version() string {
	return version
}

func main() {
	args := argSpec{}
	arg.MustParse(&args)

	cfg := config.DefaultConfig()
	srvCfg := config.DefaultServerConfig()
	if args.Config != "" {
		loadedCfg, loadedSrv, err := config.Load(args.Config)
		if err != nil {
			log.Fatalf("❌ Failed to load config: %v", err)
		}
		cfg, srvCfg = loadedCfg, loadedSrv
	}

	// Flags override the config file.
	if args.Port != "" {
		srvCfg.Port = args.Port
	}
	if args.Workers > 0 {
		srvCfg.WorkerCount = args.Workers
	}
	if args.Webhook != "" {
		srvCfg.WebhookURL = args.Webhook
	}
	if args.Profiling {
		srvCfg.EnableProfiling = true
	}
	if args.Quiet {
		cfg.Quiet = true
	}

	srv := server.New(server.Options{
		Config:       cfg,
		ServerConfig: srvCfg,
		Processor:    processing.Analyze,
	})

	setupGracefulShutdown(srv)

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// setupGracefulShutdown sets up graceful shutdown handling
func setupGracefulShutdown(srv *server.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("🛑 Received shutdown signal...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("Error during shutdown: %v", err)
		}
		os.Exit(0)
	}()
}
