package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// runJobsList prints a table of jobs from the shared queue.
func runJobsList(cmd *cobra.Command, configPath string, limit, offset int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(cmd.Context(), limit, offset)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tBACKEND\tCREATED\tFINISHED")
	for _, job := range list {
		finished := "-"
		if !job.FinishedAt.IsZero() {
			finished = job.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.State, job.Backend, job.CreatedAt.Format(time.RFC3339), finished)
	}
	return w.Flush()
}

// runJobsGet prints one job, result and error detail included.
func runJobsGet(cmd *cobra.Command, configPath, id string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.Get(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}
	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// runJobsPrune deletes old terminal jobs on demand, independent of the
// worker's scheduled sweep.
func runJobsPrune(cmd *cobra.Command, configPath string, olderThan time.Duration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if olderThan <= 0 {
		olderThan = cfg.Queue.Retention
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context(), olderThan)
	if err != nil {
		return fmt.Errorf("prune jobs: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d terminal job(s) older than %s.\n", n, olderThan)
	return nil
}
