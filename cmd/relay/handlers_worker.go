package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/observability"
)

// runWorker implements the worker command. It shares config and the queue
// file with the gateway but runs nothing else of it.
func runWorker(ctx context.Context, configPath string, debug bool, metricsAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := buildLogger(cfg, debug)

	log.Info(ctx, "starting relay worker",
		"version", version,
		"config", configPath,
		"queue", cfg.Queue.Path,
		"workers", cfg.Queue.Workers,
	)

	tracer, stopTracer := buildTracer(cfg)

	// The worker has no gateway listener, so metrics need their own
	// address to be scrapable.
	var metrics *observability.Metrics
	var metricsServer *http.Server
	if metricsAddr != "" {
		metrics = observability.NewMetrics()
		metricsServer = startMetricsServer(metricsAddr, log)
	}

	registry, err := buildRegistry(cfg, log, metrics, tracer)
	if err != nil {
		return fmt.Errorf("failed to build backends: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	worker := jobs.NewWorker(store, registry, jobs.WorkerConfig{
		Workers:         cfg.Queue.Workers,
		PollInterval:    cfg.Queue.PollInterval,
		WatchPath:       cfg.Queue.Path,
		Retention:       cfg.Queue.Retention,
		PruneSchedule:   cfg.Queue.PruneSchedule,
		RetryDelay:      cfg.Queue.RetryDelay,
		RetrySignatures: cfg.Queue.RetrySignatures,
		Logger:          log.Slog().With("component", "worker"),
		Metrics:         metrics,
		Tracer:          tracer,
		Notifier:        buildNotifier(cfg, log),
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	log.Info(ctx, "relay worker started", "worker_id", worker.ID())

	<-ctx.Done()
	log.Info(ctx, "shutdown signal received, stopping worker")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "worker stop incomplete", "error", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := stopTracer(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
	}

	log.Info(context.Background(), "relay worker stopped")
	return nil
}

// startMetricsServer serves /metrics and /health for the worker process.
func startMetricsServer(addr string, log *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "metrics server error", "error", err)
		}
	}()
	return srv
}
