package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/store"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

// flakyCollections fails task reads while down is set.
type flakyCollections struct {
	remote.Collections

	mu   stdsync.Mutex
	down bool
}

func (f *flakyCollections) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyCollections) Select(ctx context.Context, c schema.Collection) ([]schema.Record, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()

	if down && c == schema.CollectionTasks {
		return nil, errors.New("connection refused")
	}
	return f.Collections.Select(ctx, c)
}

func TestWatch_RetriesFailedReads(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	db, err := store.Open(filepath.Join(t.TempDir(), "taskboard.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchemaContext(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}

	client := remote.NewLocalClient(db, remote.Options{Logger: logger})
	if _, err := client.SignUp(ctx, "ada@example.com", "secret1"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	flaky := &flakyCollections{Collections: client, down: true}

	gate := sync.NewGate(client, logger)
	queries := sync.NewQueries(flaky, gate, &sync.QueryConfig{Logger: logger})
	defer gate.Close()
	defer queries.Close()

	if err := gate.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	queries.Wait()

	if got := queries.Peek(sync.KeyTasks).Status; got != sync.StatusError {
		t.Fatalf("Tasks status while the backend is down = %v, want error", got)
	}

	a := &app{gate: gate, queries: queries}
	var board bytes.Buffer
	renderBoard(&board, a)
	if !strings.Contains(board.String(), "retrying every 10s") {
		t.Errorf("Board does not announce the retry:\n%s", board.String())
	}
	if strings.Contains(board.String(), rerunHint) {
		t.Errorf("Board tells the user to rerun the command:\n%s", board.String())
	}

	flaky.setDown(false)
	retryFailed(gate, queries)
	queries.Wait()

	if got := queries.Peek(sync.KeyTasks); got.Status != sync.StatusSuccess {
		t.Errorf("Tasks status after retry = %v, want success", got.Status)
	}
}
