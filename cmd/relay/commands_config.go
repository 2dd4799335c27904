package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/config"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate configuration and export its schema",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(configPath)
			// Strict load: validating a missing file is an error, unlike
			// serve's default fallback.
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s\n", path)
			fmt.Fprintf(out, "  backends: %s (default %s)\n",
				strings.Join(backendNames(cfg), ", "), cfg.Providers.Default)
			fmt.Fprintf(out, "  queue: %s\n", cfg.Queue.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file (YAML or JSON5)")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		Long: `Print a JSON schema describing relay.yaml, for editor completion and
CI-side validation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func backendNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Providers.Backends))
	for name := range cfg.Providers.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
