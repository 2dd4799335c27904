package main

import (
	"github.com/spf13/cobra"
)

// buildWorkerCmd creates the "worker" command that runs the job queue
// consumer as its own process.
func buildWorkerCmd() *cobra.Command {
	var (
		configPath  string
		debug       bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start a job queue worker",
		Long: `Start a worker that claims jobs from the shared SQLite queue and executes
them against the configured backends.

Workers run as a separate process from the gateway; both open the same queue
file. Rate-limited jobs are re-submitted after a delay, and terminal jobs
older than the retention window are pruned on a cron schedule.`,
		Example: `  # Start a worker with default config
  relay worker

  # Expose worker metrics for scraping
  relay worker --metrics-addr 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), resolveConfigPath(configPath), debug, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to configuration file (YAML or JSON5)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve /metrics and /health on this address (empty disables)")

	return cmd
}
