package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
)

// DefaultFetchTimeout bounds a single collection read.
const DefaultFetchTimeout = 30 * time.Second

// QueryConfig configures the query coordinator.
type QueryConfig struct {
	// FetchTimeout bounds each remote read (default: DefaultFetchTimeout).
	FetchTimeout time.Duration

	// Logger for fetch activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultQueryConfig returns sensible defaults
func DefaultQueryConfig() *QueryConfig {
	return &QueryConfig{
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Queries is the query coordinator. It serves collection reads from the
// cache, shares one remote read among concurrent callers of the same key
// and keeps results from being applied across sessions.
//
// Queries follows the gate: on every transition it drops all entries, and
// when a session becomes active it fetches every key in the background.
type Queries struct {
	remote  remote.Collections
	gate    *Gate
	cache   *Cache
	group   singleflight.Group
	timeout time.Duration
	logger  *log.Logger

	mu        stdsync.Mutex
	listeners map[uint64]func(Entry)
	nextID    uint64

	gateSub *remote.Subscription
	bg      stdsync.WaitGroup
}

// NewQueries creates a query coordinator reading through client and gated
// by gate. Close must be called on teardown.
func NewQueries(client remote.Collections, gate *Gate, config *QueryConfig) *Queries {
	if config == nil {
		config = DefaultQueryConfig()
	}
	timeout := config.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[query] ", log.LstdFlags)
	}

	q := &Queries{
		remote:    client,
		gate:      gate,
		cache:     NewCache(),
		timeout:   timeout,
		logger:    logger,
		listeners: make(map[uint64]func(Entry)),
	}
	q.cache.reset(gate.Current().Epoch)
	q.gateSub = gate.OnChange(q.onSession)
	return q
}

// Close detaches from the gate and waits for background fetches.
func (q *Queries) Close() {
	q.gateSub.Unsubscribe()
	q.bg.Wait()
}

// Wait blocks until background fetches started so far have finished.
func (q *Queries) Wait() {
	q.bg.Wait()
}

func (q *Queries) onSession(state SessionState) {
	q.cache.reset(state.Epoch)
	for _, key := range Keys() {
		q.notify(Entry{Key: key, Status: StatusIdle})
	}

	if state.Active() {
		for _, key := range Keys() {
			q.Prefetch(key)
		}
	}
}

func flightKey(key Key, epoch uint64) string {
	return fmt.Sprintf("%s@%d", key, epoch)
}

// Fetch returns the entry for key, reading it from the backend when it is
// missing or stale.
//
// Without an active session it returns an idle entry and makes no remote
// call. A fresh entry is returned from the cache. Concurrent callers share
// one in-flight read. The read itself is detached from ctx so a caller
// giving up does not fail the other joiners; it is bounded by the fetch
// timeout instead. A result that arrives after the session changed is
// discarded and an idle entry is returned.
//
// A failed read returns the error entry together with its *ReadError.
func (q *Queries) Fetch(ctx context.Context, key Key) (Entry, error) {
	state := q.gate.Current()
	if !state.Active() {
		return Entry{Key: key, Status: StatusIdle}, nil
	}

	if e, ok := q.cache.fresh(key, state.Epoch); ok {
		return e, nil
	}

	ch := q.group.DoChan(flightKey(key, state.Epoch), func() (interface{}, error) {
		return q.load(key, state)
	})

	select {
	case res := <-ch:
		entry := res.Val.(Entry)
		return entry, res.Err
	case <-ctx.Done():
		return q.cache.snapshot(key), ctx.Err()
	}
}

// load performs one remote read for key under state.
func (q *Queries) load(key Key, state SessionState) (Entry, error) {
	// A flight that finished just before this one started may have filled
	// the entry already.
	if e, ok := q.cache.fresh(key, state.Epoch); ok {
		return e, nil
	}

	seq, loading, ok := q.cache.begin(key, state.Epoch)
	if !ok {
		return Entry{Key: key, Status: StatusIdle}, nil
	}
	q.notify(loading)

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	records, err := q.remote.Select(ctx, key.Collection())

	if !q.gate.Valid(state) {
		q.logger.Printf("Discarding %s result: session changed during fetch", key)
		return Entry{Key: key, Status: StatusIdle}, nil
	}

	var readErr error
	if err != nil {
		readErr = &ReadError{Key: key, Err: err}
	}

	entry, applied := q.cache.complete(key, seq, state.Epoch, records, readErr)
	if !applied {
		return q.awaitNewer(key, state)
	}

	if readErr != nil {
		q.logger.Printf("Fetch %s failed: %v", key, err)
	}
	q.notify(entry)
	return entry, readErr
}

// awaitNewer waits for the read that superseded this one and returns its
// result. It must not go through Fetch: this flight may still be the one
// registered for the key and would join itself.
func (q *Queries) awaitNewer(key Key, state SessionState) (Entry, error) {
	if ch, ok := q.cache.pending(key, state.Epoch); ok {
		timer := time.NewTimer(q.timeout)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
			q.logger.Printf("Timed out waiting for newer %s read", key)
		}
	}

	if !q.gate.Valid(state) {
		return Entry{Key: key, Status: StatusIdle}, nil
	}
	entry := q.cache.snapshot(key)
	if entry.Status == StatusError {
		return entry, entry.Err
	}
	return entry, nil
}

// Invalidate marks key stale so the next Fetch reads from the backend. An
// in-flight read is forgotten: its result may still be applied but stays
// stale. Other keys are untouched.
func (q *Queries) Invalidate(key Key) {
	state := q.gate.Current()
	entry, changed := q.cache.invalidate(key)
	q.group.Forget(flightKey(key, state.Epoch))
	if changed {
		q.notify(entry)
	}
}

// Refetch invalidates key and fetches it again. It is the retry path after
// a failed read.
func (q *Queries) Refetch(ctx context.Context, key Key) (Entry, error) {
	q.Invalidate(key)
	return q.Fetch(ctx, key)
}

// Prefetch fetches key in the background. Wait blocks until it finishes.
func (q *Queries) Prefetch(key Key) {
	q.bg.Add(1)
	go func() {
		defer q.bg.Done()
		if _, err := q.Fetch(context.Background(), key); err != nil {
			q.logger.Printf("Background fetch of %s failed: %v", key, err)
		}
	}()
}

// Peek returns the cached entry for key without any remote call.
func (q *Queries) Peek(key Key) Entry {
	if !q.gate.Current().Active() {
		return Entry{Key: key, Status: StatusIdle}
	}
	return q.cache.snapshot(key)
}

// Projects fetches the projects collection.
func (q *Queries) Projects(ctx context.Context) ([]schema.Project, error) {
	e, err := q.Fetch(ctx, KeyProjects)
	return e.Projects(), err
}

// Tasks fetches the tasks collection.
func (q *Queries) Tasks(ctx context.Context) ([]schema.Task, error) {
	e, err := q.Fetch(ctx, KeyTasks)
	return e.Tasks(), err
}

// OnChange registers fn for every cache transition. fn receives a snapshot
// and runs synchronously on the goroutine that caused the change.
func (q *Queries) OnChange(fn func(Entry)) *remote.Subscription {
	q.mu.Lock()
	key := q.nextID
	q.nextID++
	q.listeners[key] = fn
	q.mu.Unlock()

	return remote.NewSubscription(func() {
		q.mu.Lock()
		delete(q.listeners, key)
		q.mu.Unlock()
	})
}

func (q *Queries) notify(e Entry) {
	q.mu.Lock()
	listeners := make([]func(Entry), 0, len(q.listeners))
	for _, fn := range q.listeners {
		listeners = append(listeners, fn)
	}
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}
