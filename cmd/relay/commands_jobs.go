package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildJobsCmd creates the "jobs" command group for queue inspection and
// maintenance. These commands open the queue file directly; neither the
// gateway nor a worker needs to be running.
func buildJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain the job queue",
	}
	cmd.AddCommand(buildJobsListCmd(), buildJobsGetCmd(), buildJobsPruneCmd())
	return cmd
}

func buildJobsListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		offset     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, resolveConfigPath(configPath), limit, offset)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file (YAML or JSON5)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Jobs to skip")
	return cmd
}

func buildJobsGetCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsGet(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file (YAML or JSON5)")
	return cmd
}

func buildJobsPruneCmd() *cobra.Command {
	var (
		configPath string
		olderThan  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete terminal jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsPrune(cmd, resolveConfigPath(configPath), olderThan)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file (YAML or JSON5)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Override the configured retention window (e.g. 24h)")
	return cmd
}
