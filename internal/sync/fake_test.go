package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	stdsync "sync"
	"time"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeRemote is an in-memory remote.Client that counts calls and lets tests
// hold reads open.
type fakeRemote struct {
	mu        stdsync.Mutex
	data      map[schema.Collection][]schema.Record
	selects   map[schema.Collection]int
	writes    int
	lastWrite schema.Fields
	nextID    int

	selectErr error
	writeErr  error

	// selectHook runs after the data snapshot is taken, outside the lock.
	// n is the 1-based count of selects for c.
	selectHook func(c schema.Collection, n int)

	// sessionHook runs inside GetSession after the stored session is read.
	sessionHook func()

	session   *remote.Session
	listeners map[int]remote.AuthListener
	nextSub   int
	authCalls int
}

var _ remote.Client = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		data:      make(map[schema.Collection][]schema.Record),
		selects:   make(map[schema.Collection]int),
		listeners: make(map[int]remote.AuthListener),
	}
}

// signedIn returns a fake that already holds a session.
func signedInFake() *fakeRemote {
	f := newFakeRemote()
	f.session = &remote.Session{AccessToken: "token-1", UserID: "user-1", Email: "ada@example.com"}
	return f
}

func (f *fakeRemote) selectCount(c schema.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects[c]
}

func (f *fakeRemote) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeRemote) setData(c schema.Collection, records ...schema.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[c] = records
}

func (f *fakeRemote) setSelectHook(hook func(c schema.Collection, n int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectHook = hook
}

func (f *fakeRemote) setSelectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectErr = err
}

// emit delivers an auth event the way a real client does.
func (f *fakeRemote) emit(event remote.AuthEvent, sess *remote.Session) {
	f.mu.Lock()
	f.session = sess
	listeners := make([]remote.AuthListener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(event, sess)
	}
}

func (f *fakeRemote) GetSession(ctx context.Context) (*remote.Session, error) {
	f.mu.Lock()
	sess, hook := f.session, f.sessionHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return sess, nil
}

func (f *fakeRemote) OnAuthStateChange(fn remote.AuthListener) *remote.Subscription {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.listeners[id] = fn
	f.mu.Unlock()

	return remote.NewSubscription(func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	})
}

func (f *fakeRemote) SignUp(ctx context.Context, email, password string) (*remote.Session, error) {
	return f.SignInWithPassword(ctx, email, password)
}

func (f *fakeRemote) SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error) {
	f.mu.Lock()
	f.authCalls++
	f.mu.Unlock()

	sess := &remote.Session{
		AccessToken: fmt.Sprintf("token-%s", email),
		UserID:      "user-" + email,
		Email:       email,
	}
	f.emit(remote.EventSignedIn, sess)
	return sess, nil
}

func (f *fakeRemote) SignOut(ctx context.Context) error {
	f.emit(remote.EventSignedOut, nil)
	return nil
}

func (f *fakeRemote) Select(ctx context.Context, c schema.Collection) ([]schema.Record, error) {
	f.mu.Lock()
	f.selects[c]++
	n := f.selects[c]
	snapshot := append([]schema.Record(nil), f.data[c]...)
	err := f.selectErr
	hook := f.selectHook
	f.mu.Unlock()

	if hook != nil {
		hook(c, n)
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *fakeRemote) Insert(ctx context.Context, c schema.Collection, rec schema.Record) (schema.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	if f.writeErr != nil {
		return nil, f.writeErr
	}

	f.nextID++
	id := fmt.Sprintf("%s-%d", c, f.nextID)
	var stored schema.Record
	switch r := rec.(type) {
	case schema.Project:
		r.ID = id
		r.CreatedAt = time.Now()
		stored = r
	case schema.Task:
		r.ID = id
		r.CreatedAt = time.Now()
		stored = r
	}
	f.data[c] = append(f.data[c], stored)
	return stored, nil
}

func (f *fakeRemote) Update(ctx context.Context, c schema.Collection, id string, fields schema.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	f.lastWrite = fields
	if f.writeErr != nil {
		return f.writeErr
	}

	for i, rec := range f.data[c] {
		task, ok := rec.(schema.Task)
		if !ok || task.ID != id {
			continue
		}
		if v, ok := fields["name"].(string); ok {
			task.Name = v
		}
		if v, ok := fields["description"].(string); ok {
			task.Description = v
		}
		if v, ok := fields["project_id"].(string); ok {
			task.ProjectID = v
		}
		f.data[c][i] = task
		return nil
	}
	return remote.ErrNotFound
}

func (f *fakeRemote) Delete(ctx context.Context, c schema.Collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}

	kept := f.data[c][:0]
	for _, rec := range f.data[c] {
		if rec.RecordID() != id {
			kept = append(kept, rec)
		}
	}
	f.data[c] = kept
	return nil
}

// fakeFeed is a remote.ChangeFeed driven by the test.
type fakeFeed struct {
	ch chan remote.Change
}

func (f *fakeFeed) Changes(ctx context.Context) (<-chan remote.Change, error) {
	return f.ch, nil
}

// layer wires the three coordinators over f.
type layer struct {
	gate      *Gate
	queries   *Queries
	mutations *Mutations
}

func newLayer(f *fakeRemote, refetch bool) *layer {
	gate := NewGate(f, quietLogger())
	queries := NewQueries(f, gate, &QueryConfig{FetchTimeout: 5 * time.Second, Logger: quietLogger()})
	mutations := NewMutations(f, gate, queries, &MutationConfig{RefetchAfterMutation: refetch, Logger: quietLogger()})
	return &layer{gate: gate, queries: queries, mutations: mutations}
}

func (l *layer) close() {
	l.queries.Close()
	l.gate.Close()
}
