// Package sync is the client-side data synchronization layer between
// taskboard's views and the backend store.
//
// Overview
//
// Views never talk to the backend directly. They read collections through
// Queries, which caches each collection as one entry, and they write
// through Mutations, which confirms each write with the backend and then
// invalidates the affected entry. The Gate decides whether any of this may
// happen: without an active session reads return idle entries and writes
// fail with ErrNotAuthenticated.
//
// Architecture
//
//	        Gate  ← remote.Auth (sign-in / sign-out events)
//	          │ transitions (epoch++)
//	          ↓
//	view → Queries ──Select──→ remote.Collections
//	          ↑   └── Cache (entries, sequences)
//	    Invalidate
//	          │
//	view → Mutations ──Insert/Update/Delete──→ remote.Collections
//
// Usage
//
//	gate := sync.NewGate(client, nil)
//	queries := sync.NewQueries(client, gate, nil)
//	defer queries.Close()
//	mutations := sync.NewMutations(client, gate, queries, nil)
//
//	if err := gate.Start(ctx); err != nil {
//	    return err
//	}
//	defer gate.Close()
//
//	tasks, err := queries.Tasks(ctx)
//	...
//	_, err = mutations.CreateTask(ctx, schema.TaskInput{
//	    Name:      "Write docs",
//	    ProjectID: projectID,
//	}, nil)
//
// Consistency
//
// There are no optimistic updates. A successful mutation marks the
// owning entry stale before it returns and, by default, refetches it in
// the background. The backend is the source of truth and concurrent edits
// resolve as last write wins. Follow extends this to edits made by other
// clients when the backend offers a change feed.
//
// Concurrency
//
//   - Concurrent Fetch calls for one key share a single remote read.
//   - Each read carries a sequence number; only the latest read issued for
//     a key may update it.
//   - Each read carries the session epoch it started under; a result that
//     arrives after sign-out or a change of user is discarded.
//   - All subscriptions (gate, cache listeners) return a handle that must
//     be unsubscribed on teardown.
package sync
