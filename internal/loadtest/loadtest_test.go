package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/taskboard/internal/sync"
)

func setupHarness(t *testing.T, opts SetupOptions) *Harness {
	t.Helper()

	h, err := Setup(context.Background(), filepath.Join(t.TempDir(), "bench.db"), opts)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSetup_SeedsAndFetches(t *testing.T) {
	h := setupHarness(t, SetupOptions{Projects: 3, TasksPerProject: 4})

	if len(h.ProjectIDs) != 3 {
		t.Errorf("Expected 3 projects, got %d", len(h.ProjectIDs))
	}
	if len(h.TaskIDs) != 12 {
		t.Errorf("Expected 12 tasks, got %d", len(h.TaskIDs))
	}

	ctx := context.Background()
	if n, err := h.DB.GetTaskCount(ctx, h.OwnerID); err != nil || n != 12 {
		t.Errorf("GetTaskCount(owner) = %d, %v; want 12", n, err)
	}
	if n, err := h.DB.GetTaskCount(ctx, "someone-else"); err != nil || n != 0 {
		t.Errorf("GetTaskCount(other) = %d, %v; want 0", n, err)
	}

	if !h.Gate.Current().Active() {
		t.Fatal("Expected an active session after Setup")
	}
	tasks := h.Queries.Peek(sync.KeyTasks)
	if !tasks.Fresh() || len(tasks.Data) != 12 {
		t.Errorf("Tasks entry after Setup = %s with %d records, want fresh with 12", tasks.Status, len(tasks.Data))
	}
}

func TestRunBursts_OneReadPerBurst(t *testing.T) {
	h := setupHarness(t, SetupOptions{
		Projects:        2,
		TasksPerProject: 10,
		Latency:         20 * time.Millisecond,
	})

	res, err := h.RunBursts(context.Background(), sync.KeyTasks, 25, 4)
	if err != nil {
		t.Fatalf("RunBursts failed: %v", err)
	}

	if res.Latency.Errors > 0 {
		t.Errorf("Got %d errors during bursts", res.Latency.Errors)
	}
	if res.Latency.TotalQueries != 100 {
		t.Errorf("Expected 100 fetches, got %d", res.Latency.TotalQueries)
	}
	if res.RemoteReads != 4 {
		t.Errorf("Expected 4 remote reads, got %d", res.RemoteReads)
	}
	if got := res.ReadsPerBurst(); got != 1 {
		t.Errorf("ReadsPerBurst = %v, want 1", got)
	}

	var out bytes.Buffer
	res.Latency.Fprint(&out)
	t.Logf("\n%s", out.String())
}

func TestRunBursts_InvalidArgs(t *testing.T) {
	h := setupHarness(t, SetupOptions{Projects: 1})

	if _, err := h.RunBursts(context.Background(), sync.KeyProjects, 0, 1); err == nil {
		t.Error("Expected error for zero callers")
	}
	if _, err := h.RunBursts(context.Background(), sync.KeyProjects, 1, 0); err == nil {
		t.Error("Expected error for zero bursts")
	}
}

func TestVerifyConsistency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping soak in short mode")
	}

	h := setupHarness(t, SetupOptions{Projects: 3, TasksPerProject: 5})

	if err := h.VerifyConsistency(context.Background(), 8, 300*time.Millisecond); err != nil {
		t.Fatalf("VerifyConsistency failed: %v", err)
	}

	tasks, err := h.Queries.Tasks(context.Background())
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) <= 15 {
		t.Errorf("Expected the writer to add tasks, got %d", len(tasks))
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)

	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v, want 1ms/100ms", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", stats.P50)
	}
	if stats.P99 != 100*time.Millisecond {
		t.Errorf("P99 = %v, want 100ms", stats.P99)
	}
	if stats.Mean != 50500*time.Microsecond {
		t.Errorf("Mean = %v, want 50.5ms", stats.Mean)
	}

	empty := computeLatencyStats(nil)
	if empty.TotalQueries != 0 {
		t.Errorf("Empty stats TotalQueries = %d", empty.TotalQueries)
	}

	var out bytes.Buffer
	stats.Fprint(&out)
	if !strings.Contains(out.String(), "Total Fetches: 100") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}
