// Package remote is the client library for taskboard's backend store.
//
// The synchronization layer treats the backend as a capability: it
// authenticates through Auth and reads or writes whole collections through
// Collections. Two implementations are provided:
//
//   - LocalClient talks to an embedded store in the same process.
//   - HTTPClient talks to a `taskboard serve` instance over REST and
//     receives row changes over a websocket (ChangeFeed).
//
// Both keep the signed-in session in memory, optionally persist it to a
// SessionFile, and notify OnAuthStateChange listeners on every sign-in and
// sign-out, including ones performed by other processes sharing the file.
package remote

import (
	"context"
	"sync"
	"time"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// Session is an authenticated identity.
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// AuthEvent names an authentication state transition.
type AuthEvent string

const (
	// EventSignedIn is delivered after a successful sign-in or sign-up.
	EventSignedIn AuthEvent = "SIGNED_IN"
	// EventSignedOut is delivered after sign-out or session loss.
	EventSignedOut AuthEvent = "SIGNED_OUT"
)

// AuthListener receives authentication state transitions. sess is nil for
// EventSignedOut.
type AuthListener func(event AuthEvent, sess *Session)

// Auth is the identity half of the backend.
type Auth interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)

	// OnAuthStateChange registers fn for every sign-in/sign-out. The caller
	// must Unsubscribe on teardown.
	OnAuthStateChange(fn AuthListener) *Subscription

	// SignUp registers an account and signs it in.
	SignUp(ctx context.Context, email, password string) (*Session, error)

	// SignInWithPassword signs in an existing account.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignOut revokes the current session.
	SignOut(ctx context.Context) error
}

// Collections is the data half of the backend. Every call acts on behalf
// of the signed-in user and fails with ErrUnauthorized otherwise.
type Collections interface {
	// Select returns every record in c.
	Select(ctx context.Context, c schema.Collection) ([]schema.Record, error)

	// Insert stores rec and returns it with its store-assigned id.
	Insert(ctx context.Context, c schema.Collection, rec schema.Record) (schema.Record, error)

	// Update changes fields of record id.
	Update(ctx context.Context, c schema.Collection, id string, fields schema.Fields) error

	// Delete removes record id.
	Delete(ctx context.Context, c schema.Collection, id string) error
}

// Client is the complete backend surface.
type Client interface {
	Auth
	Collections
}

// Change describes a row change pushed by the backend.
type Change struct {
	Type       string            `json:"type"`
	Collection schema.Collection `json:"collection"`
	Action     string            `json:"action"` // insert, update, delete
	ID         string            `json:"id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Change actions.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ChangeFeed streams row changes made by any client of the signed-in user.
type ChangeFeed interface {
	// Changes connects to the feed. The channel is closed when ctx is done
	// or the connection drops.
	Changes(ctx context.Context) (<-chan Change, error)
}

// Subscription is a detachable registration handle.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription returns a handle that runs cancel on the first
// Unsubscribe.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe detaches the registration. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
