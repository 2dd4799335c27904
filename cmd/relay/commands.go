// Package main provides the CLI entry point for the relay gateway.
//
// commands.go contains the helpers shared by every command: environment and
// config loading, and the builders for the logging/metrics/tracing stack,
// the backend registry and the job store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/notify"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/providers"
	"github.com/haasonsaas/relay/internal/runner"
)

const defaultConfigName = "relay.yaml"

// loadEnvFile loads environment variables before any config read. An
// explicitly named file must exist; the implicit .env is best effort.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded environment from .env")
	}
	return nil
}

// resolveConfigPath determines the configuration file path based on:
// 1. Explicit path provided by the user
// 2. RELAY_CONFIG environment variable
// 3. Default config path
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" && path != defaultConfigName {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("RELAY_CONFIG")); env != "" {
		return env
	}
	return defaultConfigName
}

// loadConfig reads the config file. A missing file at the default path is
// not an error: relay runs fine on built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigName {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			slog.Info("no config file found, using defaults", "path", path)
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// buildLogger builds the redacting logger from config and installs its slog
// form as the process default.
func buildLogger(cfg *config.Config, debug bool) *observability.Logger {
	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	log := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(log.Slog())
	return log
}

// buildTracer builds the tracer from config. Disabled tracing yields a
// no-op tracer and shutdown.
func buildTracer(cfg *config.Config) (*observability.Tracer, func(context.Context) error) {
	if !cfg.Tracing.Enabled {
		return observability.NewTracer(observability.TraceConfig{})
	}
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:    "relay",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		// Plaintext OTLP; TLS terminates at the collector.
		EnableInsecure: true,
	})
}

// buildRegistry assembles the subprocess runner and the backend registry.
func buildRegistry(cfg *config.Config, log *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*providers.Registry, error) {
	run := runner.New(runner.Config{
		CaptureLimit: cfg.Runner.CaptureLimit,
		GracePeriod:  cfg.Runner.GracePeriod,
		Logger:       log.Slog().With("component", "runner"),
	})
	return providers.NewRegistry(cfg.Providers, providers.Options{
		Runner:  run,
		Logger:  log.Slog(),
		Metrics: metrics,
		Tracer:  tracer,
	})
}

// openStore opens the shared SQLite job store named in config.
func openStore(cfg *config.Config) (jobs.Store, error) {
	store, err := jobs.NewSQLiteStore(cfg.Queue.Path)
	if err != nil {
		return nil, fmt.Errorf("open job store %s: %w", cfg.Queue.Path, err)
	}
	return store, nil
}

// buildNotifier builds the outbound notifier: Telegram when configured,
// otherwise a no-op.
func buildNotifier(cfg *config.Config, log *observability.Logger) notify.Notifier {
	if !cfg.Telegram.Enabled {
		return notify.Noop{}
	}
	n, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log.Slog().With("component", "notify"))
	if err != nil {
		log.Warn(context.Background(), "telegram notifier unavailable, notifications disabled", "error", err)
		return notify.Noop{}
	}
	return n
}
