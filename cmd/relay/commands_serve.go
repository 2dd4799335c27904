package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway.
// This is the primary command for running relay in production.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay gateway",
		Long: `Start the relay gateway.

The gateway will:
1. Load configuration from the specified file (or relay.yaml)
2. Open the shared job queue database
3. Build the configured chat backends
4. Serve the OpenAI-compatible HTTP API until SIGINT/SIGTERM

Jobs submitted through POST /v1/jobs are only stored here; start a separate
'relay worker' process to execute them.`,
		Example: `  # Start with default config
  relay serve

  # Start with custom config
  relay serve --config /etc/relay/production.yaml

  # Start with debug logging
  relay serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to configuration file (YAML or JSON5)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}
