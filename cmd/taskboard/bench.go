package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/loadtest"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Load test the query cache with concurrent readers",
	Long: `Run bursts of concurrent reads against a scratch store.

Each burst invalidates the query and releases --callers reads at once. A
healthy cache serves every burst with a single backend read; the report
shows reads per burst and per-call latency.

Example usage:
  taskboard bench                                 # 50 callers, 20 bursts
  taskboard bench --callers 200 --latency 20ms    # simulate a slow backend
  taskboard bench --soak 5s                       # readers racing a writer`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		callers, _ := cmd.Flags().GetInt("callers")
		bursts, _ := cmd.Flags().GetInt("bursts")
		projects, _ := cmd.Flags().GetInt("projects")
		tasks, _ := cmd.Flags().GetInt("tasks")
		latency, _ := cmd.Flags().GetDuration("latency")
		soak, _ := cmd.Flags().GetDuration("soak")
		keyName, _ := cmd.Flags().GetString("key")

		key := sync.Key(keyName)
		if !key.Valid() {
			return fmt.Errorf("unknown key %q (want projects or tasks)", keyName)
		}

		dir, err := os.MkdirTemp("", "taskboard-bench-")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Seeding %d projects with %d tasks each...\n", projects, tasks)

		h, err := loadtest.Setup(cmd.Context(), filepath.Join(dir, "bench.db"), loadtest.SetupOptions{
			Projects:        projects,
			TasksPerProject: tasks,
			Latency:         latency,
		})
		if err != nil {
			return err
		}
		defer h.Close()

		fmt.Fprintf(w, "Running %d bursts of %d concurrent reads of %s...\n", bursts, callers, key)
		start := time.Now()
		res, err := h.RunBursts(cmd.Context(), key, callers, bursts)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		fmt.Fprintln(w)
		res.Latency.Fprint(w)
		fmt.Fprintf(w, "  Remote reads:  %d (%.2f per burst)\n", res.RemoteReads, res.ReadsPerBurst())
		fmt.Fprintf(w, "  Duration:      %v\n", elapsed.Round(time.Millisecond))
		fmt.Fprintf(w, "  Throughput:    %.0f fetches/second\n", float64(res.Latency.TotalQueries)/elapsed.Seconds())

		if res.ReadsPerBurst() <= 1 {
			fmt.Fprintf(w, "\n%s Every burst was served by a single read\n", renderPass("✓"))
		} else {
			fmt.Fprintf(w, "\n%s Some bursts caused more than one read\n", renderWarn("⚠"))
		}

		if soak > 0 {
			fmt.Fprintf(w, "\nSoaking for %v with %d readers and one writer...\n", soak, callers)
			if err := h.VerifyConsistency(cmd.Context(), callers, soak); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s No inconsistent reads\n", renderPass("✓"))
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("callers", 50, "Concurrent reads per burst")
	benchCmd.Flags().Int("bursts", 20, "Number of bursts")
	benchCmd.Flags().Int("projects", 10, "Projects to seed")
	benchCmd.Flags().Int("tasks", 20, "Tasks to seed per project")
	benchCmd.Flags().Duration("latency", 0, "Delay added to every backend read")
	benchCmd.Flags().Duration("soak", 0, "Also run readers against a writer for this long")
	benchCmd.Flags().String("key", string(sync.KeyTasks), "Query to load: projects or tasks")
	rootCmd.AddCommand(benchCmd)
}
