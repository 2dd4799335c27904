// Package main provides the CLI entry point for the relay gateway.
//
// relay exposes an OpenAI-compatible chat-completions API whose backends are
// hosted model providers (OpenAI, Anthropic, Gemini) or local agent CLIs run
// as subprocesses (codex, opencode, cursor, gemini). Requests either execute
// synchronously (with optional SSE streaming) or are queued as durable jobs
// in a shared SQLite file and executed by a separate worker process.
//
// # Basic Usage
//
// Start the gateway:
//
//	relay serve --config relay.yaml
//
// Start a worker for the job queue:
//
//	relay worker
//
// Inspect the queue:
//
//	relay jobs list
//
// # Environment Variables
//
//   - RELAY_CONFIG: path to the configuration file (default: relay.yaml)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: hosted backend keys,
//     referenced from config via ${...} expansion
//   - TELEGRAM_BOT_TOKEN: bot token for rate-limit notifications
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
	envFile string
)

func main() {
	// Default logging until a command loads config and rebuilds the stack.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "relay - OpenAI-compatible gateway for hosted models and local agent CLIs",
		Long: `relay exposes an OpenAI-compatible chat-completions API whose backends are
hosted model APIs (OpenAI, Anthropic, Gemini) or local agent CLIs run as
subprocesses (codex, opencode, cursor, gemini).

Requests execute synchronously (with optional SSE streaming) or are queued
as durable jobs in a shared SQLite file and executed by 'relay worker'.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"Load environment variables from this file before reading config (default: .env if present)")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildWorkerCmd(),
		buildJobsCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
