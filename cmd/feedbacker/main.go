// Package main is the entry point for the feedbacker service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedbacker/internal/analysis"
	"feedbacker/internal/analysis/runtime"
	"feedbacker/internal/config"
	"feedbacker/internal/fetcher"
	"feedbacker/internal/logger"
	"feedbacker/internal/observability"
	"feedbacker/internal/scheduler"
	"feedbacker/internal/server"
	"feedbacker/internal/server/handlers"
	"feedbacker/internal/store"
	"feedbacker/internal/store/postgres"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: feedbacker.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(cfg.Verbose)

	ctx := context.Background()
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	if *migrateFlag {
		lg.Info("running database migrations")
		if err := postgres.Migrate(st.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		lg.Info("migrations completed")
	}

	// Tracing is optional; without a collector endpoint spans stay off.
	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.Init(ctx, "feedbacker", cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				lg.Warn("failed to shutdown tracer", "error", err)
			}
		}()
	}

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			lg.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Analysis runtime backend.
	var rt runtime.Runtime
	switch cfg.Runtime {
	case "docker":
		rt, err = runtime.NewDockerRuntime()
		if err != nil {
			log.Fatalf("Failed to init docker runtime: %v", err)
		}
	default:
		rt = runtime.NewExecRuntime()
	}

	runner, err := analysis.New(analysis.Config{
		CheckCommand: cfg.CheckCommand,
		CheckImage:   cfg.CheckImage,
	}, rt, lg)
	if err != nil {
		log.Fatalf("Failed to init analysis runner: %v", err)
	}

	ftch := fetcher.New(fetcher.Config{SSHKeyPath: cfg.SSHKeyPath}, lg)

	defaults := make([]store.AnalysisKind, len(cfg.DefaultAnalyses))
	for i, name := range cfg.DefaultAnalyses {
		defaults[i] = store.AnalysisKind(name)
	}

	sched := scheduler.New(scheduler.Config{
		Workers:         cfg.Workers,
		QueueCapacity:   cfg.QueueCapacity,
		WorkDir:         cfg.WorkDir,
		FetchTimeout:    cfg.FetchTimeout,
		AnalysisTimeout: cfg.AnalysisTimeout,
		Retry: scheduler.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.RetryBaseBackoff,
			MaxBackoff:  cfg.RetryMaxBackoff,
		},
		StoreAttempts:   cfg.StoreAttempts,
		DefaultAnalyses: defaults,
	}, st, ftch, runner, lg)

	if err := observability.RegisterQueueDepthGauge(sched.QueueDepth); err != nil {
		lg.Warn("failed to register queue depth gauge", "error", err)
	}

	// Pick up jobs stranded by a previous crash before accepting traffic.
	if err := sched.Recover(ctx); err != nil {
		log.Fatalf("Failed to recover unfinished jobs: %v", err)
	}

	schedCtx, stopSched := context.WithCancel(ctx)
	go func() {
		if err := sched.Run(schedCtx); err != nil && err != context.Canceled {
			lg.Error("scheduler stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	h := handlers.New(sched, st)
	srv := server.New(addr, h, metricsHandler, cfg.RateLimit, cfg.RateLimitBurst)

	go func() {
		lg.Info("feedbacker starting", "addr", addr, "environment", cfg.Environment)
		if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
			lg.Error("server stopped", "error", err)
		}
	}()

	// Graceful shutdown: stop intake first, then drain in-flight jobs.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", "error", err)
	}

	stopSched()
	select {
	case <-sched.Done():
		lg.Info("scheduler drained")
	case <-shutdownCtx.Done():
		lg.Warn("shutdown deadline reached before scheduler drained")
	}
}
