package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/relay/internal/gateway"
	"github.com/haasonsaas/relay/internal/observability"
)

// runServe implements the serve command: configuration loading, stack
// wiring, and graceful shutdown on SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := buildLogger(cfg, debug)

	log.Info(ctx, "starting relay gateway",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	tracer, stopTracer := buildTracer(cfg)
	metrics := observability.NewMetrics()

	registry, err := buildRegistry(cfg, log, metrics, tracer)
	if err != nil {
		return fmt.Errorf("failed to build backends: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	server := gateway.NewServer(cfg.Server, registry, store, gateway.Options{
		Logger:  log.Slog().With("component", "gateway"),
		Metrics: metrics,
		Tracer:  tracer,
	})

	// Cancel on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	<-ctx.Done()
	log.Info(ctx, "shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := stopTracer(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
	}

	log.Info(context.Background(), "relay gateway stopped gracefully")
	return nil
}
