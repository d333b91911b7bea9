package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
)

// SessionStatus is the gate's view of authentication.
type SessionStatus int

const (
	// SessionUnknown means the stored session has not been checked yet.
	SessionUnknown SessionStatus = iota
	// SessionSignedOut means there is no usable session.
	SessionSignedOut
	// SessionSignedIn means authenticated operations may proceed.
	SessionSignedIn
)

// String returns a human-readable representation of the status.
func (s SessionStatus) String() string {
	switch s {
	case SessionUnknown:
		return "unknown"
	case SessionSignedOut:
		return "signed_out"
	case SessionSignedIn:
		return "signed_in"
	default:
		return "invalid"
	}
}

// SessionState is the session context a fetch or mutation runs under.
// Epoch increases on every transition, so two states with the same epoch
// describe the same session.
type SessionState struct {
	Status  SessionStatus
	Session *remote.Session
	Epoch   uint64
}

// Active reports whether authenticated operations may proceed.
func (s SessionState) Active() bool {
	return s.Status == SessionSignedIn && s.Session != nil
}

// Gate tracks whether a valid session exists and tells subscribers when
// that changes.
type Gate struct {
	auth   remote.Auth
	logger *log.Logger

	mu        stdsync.Mutex
	state     SessionState
	listeners map[uint64]func(SessionState)
	nextID    uint64
	sub       *remote.Subscription

	// notifyMu serializes transitions so listeners see them in order.
	notifyMu stdsync.Mutex
}

// NewGate creates a gate over auth. If logger is nil, a default logger
// writing to stderr is used.
func NewGate(auth remote.Auth, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(os.Stderr, "[gate] ", log.LstdFlags)
	}
	return &Gate{
		auth:      auth,
		logger:    logger,
		listeners: make(map[uint64]func(SessionState)),
	}
}

// Start subscribes to auth state changes and consults the stored session
// once. Until Start returns the gate reports SessionUnknown.
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.sub == nil {
		g.sub = g.auth.OnAuthStateChange(g.handleAuthEvent)
	}
	g.mu.Unlock()

	sess, err := g.auth.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	// An auth event that arrived while GetSession ran is newer.
	g.apply(sess, true)
	return nil
}

// Close detaches the gate from auth state changes.
func (g *Gate) Close() {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()

	sub.Unsubscribe()
}

// Current returns the current session state.
func (g *Gate) Current() SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Valid reports whether state is signed in and still current.
func (g *Gate) Valid(state SessionState) bool {
	cur := g.Current()
	return state.Active() && cur.Active() && cur.Epoch == state.Epoch
}

// OnChange registers fn for every gate transition. Listeners run
// synchronously and must not sign in or out from the callback.
func (g *Gate) OnChange(fn func(SessionState)) *remote.Subscription {
	g.mu.Lock()
	key := g.nextID
	g.nextID++
	g.listeners[key] = fn
	g.mu.Unlock()

	return remote.NewSubscription(func() {
		g.mu.Lock()
		delete(g.listeners, key)
		g.mu.Unlock()
	})
}

func (g *Gate) handleAuthEvent(event remote.AuthEvent, sess *remote.Session) {
	switch event {
	case remote.EventSignedOut:
		g.transition(nil)
	default:
		g.transition(sess)
	}
}

// transition moves the gate to sess (nil means signed out). Repeating the
// current session is a no-op.
func (g *Gate) transition(sess *remote.Session) {
	g.apply(sess, false)
}

// apply performs a transition. With initial set it only applies while the
// state is still unknown; the check and the change happen under notifyMu so
// no auth event can slip in between.
func (g *Gate) apply(sess *remote.Session, initial bool) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if initial && g.state.Status != SessionUnknown {
		g.mu.Unlock()
		return
	}
	next := SessionState{Status: SessionSignedOut}
	if sess != nil {
		next = SessionState{Status: SessionSignedIn, Session: sess}
	}
	if sameSession(g.state, next) {
		g.mu.Unlock()
		return
	}
	next.Epoch = g.state.Epoch + 1
	g.state = next

	listeners := make([]func(SessionState), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	if next.Active() {
		g.logger.Printf("Signed in as %s", sess.Email)
	} else {
		g.logger.Printf("Signed out")
	}

	for _, fn := range listeners {
		fn(next)
	}
}

func sameSession(a, b SessionState) bool {
	if a.Status != b.Status {
		return false
	}
	if a.Session == nil || b.Session == nil {
		return a.Session == b.Session
	}
	return a.Session.AccessToken == b.Session.AccessToken
}

// SignIn validates the sign-in form and signs in. Validation failures are
// returned as *schema.ValidationError without contacting the backend.
func (g *Gate) SignIn(ctx context.Context, creds schema.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	sess, err := g.auth.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		return err
	}
	g.transition(sess)
	return nil
}

// SignUp validates the sign-up form, registers the account and signs in.
func (g *Gate) SignUp(ctx context.Context, creds schema.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	sess, err := g.auth.SignUp(ctx, creds.Email, creds.Password)
	if err != nil {
		return err
	}
	g.transition(sess)
	return nil
}

// SignOut ends the session. The gate closes even if the backend could not
// be told.
func (g *Gate) SignOut(ctx context.Context) error {
	err := g.auth.SignOut(ctx)
	g.transition(nil)
	return err
}
