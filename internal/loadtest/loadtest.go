// Package loadtest drives the query coordinator with bursts of concurrent
// readers against a seeded embedded store.
//
// Each burst invalidates a key and then releases N callers at once. The
// coordinator is expected to serve the whole burst with a single remote
// read; the harness counts reads at the client boundary to check that, and
// records per-call latency.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/store"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

// CountingCollections wraps a remote.Collections and counts reads.
// Latency, when set, is added to every Select to simulate a network hop.
type CountingCollections struct {
	remote.Collections
	Latency time.Duration

	selects atomic.Int64
}

// Select counts the read and forwards it.
func (c *CountingCollections) Select(ctx context.Context, coll schema.Collection) ([]schema.Record, error) {
	c.selects.Add(1)
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.Collections.Select(ctx, coll)
}

// Selects returns the number of reads so far.
func (c *CountingCollections) Selects() int64 {
	return c.selects.Load()
}

// Harness is a signed-in sync layer over a seeded store.
type Harness struct {
	DB        *store.DB
	Client    *remote.LocalClient
	Remote    *CountingCollections
	Gate      *sync.Gate
	Queries   *sync.Queries
	Mutations *sync.Mutations

	OwnerID    string
	ProjectIDs []string
	TaskIDs    []string
}

// SetupOptions sizes the seeded data set.
type SetupOptions struct {
	Projects        int
	TasksPerProject int

	// Latency is added to every remote read.
	Latency time.Duration

	// Logger for the sync layer. Nil discards.
	Logger *log.Logger
}

// LatencyStats captures per-call latency from a run.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// Result summarizes RunBursts.
type Result struct {
	Bursts      int
	Callers     int
	RemoteReads int64
	Latency     *LatencyStats
}

// ReadsPerBurst is the average number of remote reads one burst caused.
func (r *Result) ReadsPerBurst() float64 {
	if r.Bursts == 0 {
		return 0
	}
	return float64(r.RemoteReads) / float64(r.Bursts)
}

// Setup opens a store at dbPath, registers a user, seeds projects and
// tasks, and starts a signed-in sync layer whose reads go through a
// CountingCollections. The initial fetch has completed and is not counted.
func Setup(ctx context.Context, dbPath string, opts SetupOptions) (*Harness, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchemaContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	client := remote.NewLocalClient(database, remote.Options{Logger: logger})
	sess, err := client.SignUp(ctx, "bench@example.com", "benchmark")
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to register bench user: %w", err)
	}

	h := &Harness{
		DB:      database,
		Client:  client,
		OwnerID: sess.UserID,
		Remote: &CountingCollections{Collections: client, Latency: opts.Latency},
	}

	if err := h.seed(ctx, opts.Projects, opts.TasksPerProject); err != nil {
		_ = database.Close()
		return nil, err
	}

	h.Gate = sync.NewGate(client, logger)
	h.Queries = sync.NewQueries(h.Remote, h.Gate, &sync.QueryConfig{Logger: logger})
	h.Mutations = sync.NewMutations(client, h.Gate, h.Queries, &sync.MutationConfig{
		RefetchAfterMutation: true,
		Logger:               logger,
	})

	if err := h.Gate.Start(ctx); err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to start session gate: %w", err)
	}
	h.Queries.Wait()
	return h, nil
}

func (h *Harness) seed(ctx context.Context, projects, tasksPerProject int) error {
	baseTime := time.Now()
	for i := 0; i < projects; i++ {
		rec, err := h.Client.Insert(ctx, schema.CollectionProjects, schema.Project{
			Name: fmt.Sprintf("Project %d", i),
		})
		if err != nil {
			return fmt.Errorf("failed to insert project %d: %w", i, err)
		}
		projectID := rec.RecordID()
		h.ProjectIDs = append(h.ProjectIDs, projectID)

		for j := 0; j < tasksPerProject; j++ {
			rec, err := h.Client.Insert(ctx, schema.CollectionTasks, schema.Task{
				Name:        fmt.Sprintf("Task %d.%d", i, j),
				Description: fmt.Sprintf("Seeded at %s", baseTime.Format(time.RFC3339)),
				ProjectID:   projectID,
			})
			if err != nil {
				return fmt.Errorf("failed to insert task %d.%d: %w", i, j, err)
			}
			h.TaskIDs = append(h.TaskIDs, rec.RecordID())
		}
	}

	count, err := h.DB.GetTaskCount(ctx, h.OwnerID)
	if err != nil {
		return err
	}
	if count != len(h.TaskIDs) {
		return fmt.Errorf("seeded %d tasks but the store holds %d", len(h.TaskIDs), count)
	}
	return nil
}

// Close tears down the sync layer and the store.
func (h *Harness) Close() error {
	if h.Queries != nil {
		h.Queries.Close()
	}
	if h.Gate != nil {
		h.Gate.Close()
	}
	if h.DB != nil {
		return h.DB.Close()
	}
	return nil
}

// RunBursts runs bursts rounds. Each round invalidates key and releases
// callers concurrent Fetch calls at once.
func (h *Harness) RunBursts(ctx context.Context, key sync.Key, callers, bursts int) (*Result, error) {
	if callers <= 0 || bursts <= 0 {
		return nil, fmt.Errorf("callers and bursts must be positive")
	}

	before := h.Remote.Selects()
	var allDurations []time.Duration
	var errorCount int

	for b := 0; b < bursts; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h.Queries.Invalidate(key)

		var wg stdsync.WaitGroup
		start := make(chan struct{})
		resultsChan := make(chan time.Duration, callers)
		errorsChan := make(chan error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(callerID int) {
				defer wg.Done()
				<-start

				begin := time.Now()
				entry, err := h.Queries.Fetch(ctx, key)
				resultsChan <- time.Since(begin)

				if err != nil {
					errorsChan <- fmt.Errorf("caller %d: %w", callerID, err)
					return
				}
				if entry.Status != sync.StatusSuccess {
					errorsChan <- fmt.Errorf("caller %d: entry %s is %s", callerID, key, entry.Status)
				}
			}(i)
		}

		close(start)
		wg.Wait()
		close(resultsChan)
		close(errorsChan)

		for d := range resultsChan {
			allDurations = append(allDurations, d)
		}
		for range errorsChan {
			errorCount++
		}
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount

	return &Result{
		Bursts:      bursts,
		Callers:     callers,
		RemoteReads: h.Remote.Selects() - before,
		Latency:     stats,
	}, nil
}

// VerifyConsistency runs readers concurrent readers against one writer
// creating tasks for duration. Every task list a reader sees must only
// reference projects in the projects list.
func (h *Harness) VerifyConsistency(ctx context.Context, readers int, duration time.Duration) error {
	if len(h.ProjectIDs) == 0 {
		return fmt.Errorf("no seeded projects")
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	known := make(map[string]bool, len(h.ProjectIDs))
	for _, id := range h.ProjectIDs {
		known[id] = true
	}

	var wg stdsync.WaitGroup
	errorsChan := make(chan error, readers+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			_, err := h.Mutations.CreateTask(ctx, schema.TaskInput{
				Name:      fmt.Sprintf("Soak %d", i),
				ProjectID: h.ProjectIDs[i%len(h.ProjectIDs)],
			}, nil)
			if err != nil && ctx.Err() == nil {
				errorsChan <- fmt.Errorf("writer create %d failed: %w", i, err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()
			for ctx.Err() == nil {
				tasks, err := h.Queries.Tasks(ctx)
				if err != nil && ctx.Err() == nil {
					errorsChan <- fmt.Errorf("reader %d fetch failed: %w", readerID, err)
					return
				}
				for _, task := range tasks {
					if task.ID == "" {
						errorsChan <- fmt.Errorf("reader %d found task with empty ID", readerID)
						return
					}
					if !known[task.ProjectID] {
						errorsChan <- fmt.Errorf("reader %d found task %s in unknown project %s", readerID, task.ID, task.ProjectID)
						return
					}
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)
	h.Queries.Wait()

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// Fprint writes the statistics to w.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Fetches: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
