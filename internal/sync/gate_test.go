package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
)

// startLayer starts the gate over f and waits for the initial fetches.
func startLayer(t *testing.T, f *fakeRemote, refetch bool) *layer {
	t.Helper()

	l := newLayer(f, refetch)
	t.Cleanup(l.close)

	if err := l.gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.queries.Wait()
	return l
}

func TestGate_UnknownUntilStarted(t *testing.T) {
	l := newLayer(newFakeRemote(), true)
	defer l.close()

	if got := l.gate.Current().Status; got != SessionUnknown {
		t.Errorf("Status before Start = %v, want unknown", got)
	}

	if err := l.gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	state := l.gate.Current()
	if state.Status != SessionSignedOut || state.Active() {
		t.Errorf("Status after Start = %v, want signed_out", state.Status)
	}
	if state.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", state.Epoch)
	}
}

func TestGate_SignedOutMakesNoReads(t *testing.T) {
	f := newFakeRemote()
	l := startLayer(t, f, true)

	entry, err := l.queries.Fetch(context.Background(), KeyTasks)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if entry.Status != StatusIdle || len(entry.Data) != 0 {
		t.Errorf("Fetch while signed out = %+v, want idle", entry)
	}
	if n := f.selectCount(schema.CollectionTasks); n != 0 {
		t.Errorf("Expected no remote reads, got %d", n)
	}
}

func TestGate_SignInFetchesGatedQueries(t *testing.T) {
	f := signedInFake()
	f.setData(schema.CollectionProjects, schema.Project{ID: "p1", Name: "Website"})
	f.setData(schema.CollectionTasks, schema.Task{ID: "t1", Name: "Draft", ProjectID: "p1"})

	l := startLayer(t, f, true)

	state := l.gate.Current()
	if !state.Active() || state.Session.Email != "ada@example.com" {
		t.Fatalf("State after Start = %+v, want signed in", state)
	}

	for _, key := range Keys() {
		if n := f.selectCount(key.Collection()); n != 1 {
			t.Errorf("%s: expected 1 remote read, got %d", key, n)
		}
		if e := l.queries.Peek(key); !e.Fresh() || len(e.Data) != 1 {
			t.Errorf("%s: Peek = %+v, want one fresh record", key, e)
		}
	}
}

func TestGate_SignOutDropsCache(t *testing.T) {
	f := signedInFake()
	f.setData(schema.CollectionTasks, schema.Task{ID: "t1", Name: "Draft", ProjectID: "p1"})
	l := startLayer(t, f, true)

	before := l.gate.Current()
	if err := l.gate.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	if l.gate.Valid(before) {
		t.Error("State from before sign-out is still valid")
	}
	if e := l.queries.Peek(KeyTasks); e.Status != StatusIdle || e.Data != nil {
		t.Errorf("Peek after sign-out = %+v, want idle", e)
	}

	// Signing in again as someone else starts from an empty cache
	if err := l.gate.SignIn(context.Background(), schema.Credentials{Email: "bob@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	l.queries.Wait()

	state := l.gate.Current()
	if state.Session.Email != "bob@example.com" || state.Epoch != before.Epoch+2 {
		t.Errorf("State after re-sign-in = %+v", state)
	}
	if n := f.selectCount(schema.CollectionTasks); n != 2 {
		t.Errorf("Expected a fresh read after sign-in, got %d reads", n)
	}
}

func TestGate_SignInValidatesLocally(t *testing.T) {
	f := newFakeRemote()
	l := startLayer(t, f, true)

	tests := []struct {
		name  string
		creds schema.Credentials
		field string
		msg   string
	}{
		{"bad email", schema.Credentials{Email: "ada", Password: "secret1"}, "email", schema.MsgInvalidEmail},
		{"short password", schema.Credentials{Email: "ada@example.com", Password: "12345"}, "password", schema.MsgPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.gate.SignIn(context.Background(), tt.creds)
			var verr *schema.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("SignIn error = %v, want *ValidationError", err)
			}
			if got := verr.Message(tt.field); got != tt.msg {
				t.Errorf("Message(%s) = %q, want %q", tt.field, got, tt.msg)
			}

			err = l.gate.SignUp(context.Background(), tt.creds)
			if !errors.As(err, &verr) {
				t.Fatalf("SignUp error = %v, want *ValidationError", err)
			}
		})
	}

	if f.authCalls != 0 {
		t.Errorf("Expected no backend auth calls, got %d", f.authCalls)
	}
}

func TestGate_AuthEventDuringStartWins(t *testing.T) {
	f := newFakeRemote()
	sess := &remote.Session{AccessToken: "token-1", UserID: "user-1", Email: "ada@example.com"}
	f.sessionHook = func() { f.emit(remote.EventSignedIn, sess) }

	l := newLayer(f, true)
	defer l.close()

	if err := l.gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	state := l.gate.Current()
	if state.Status != SessionSignedIn || state.Session.AccessToken != "token-1" {
		t.Errorf("State after Start = %+v, want the signed-in event to win", state)
	}
	if state.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", state.Epoch)
	}
}

func TestGate_InitialApplyOnlyWhileUnknown(t *testing.T) {
	l := newLayer(newFakeRemote(), true)
	defer l.close()

	sess := &remote.Session{AccessToken: "token-1", UserID: "user-1"}
	l.gate.transition(sess)
	l.gate.apply(nil, true)

	if got := l.gate.Current(); got.Status != SessionSignedIn || got.Epoch != 1 {
		t.Errorf("Initial apply overwrote a decided state: %+v", got)
	}

	l.gate.apply(nil, false)
	if got := l.gate.Current(); got.Status != SessionSignedOut {
		t.Errorf("Status after sign-out = %v, want signed_out", got.Status)
	}
}

func TestGate_OnChange(t *testing.T) {
	f := newFakeRemote()
	l := startLayer(t, f, true)

	var seen []SessionStatus
	sub := l.gate.OnChange(func(s SessionState) {
		seen = append(seen, s.Status)
	})

	f.emit(remote.EventSignedIn, &remote.Session{AccessToken: "a", Email: "ada@example.com"})
	// Same session again is not a transition
	f.emit(remote.EventSignedIn, &remote.Session{AccessToken: "a", Email: "ada@example.com"})
	f.emit(remote.EventSignedOut, nil)

	sub.Unsubscribe()
	f.emit(remote.EventSignedIn, &remote.Session{AccessToken: "b", Email: "bob@example.com"})
	l.queries.Wait()

	want := []SessionStatus{SessionSignedIn, SessionSignedOut}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}
