package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/store"
)

// LocalClient is a Client backed by an embedded store in the same process.
// The store enforces the same ownership rules as the HTTP backend.
type LocalClient struct {
	*identity
	db  *store.DB
	ttl time.Duration
}

var _ Client = (*LocalClient)(nil)

// NewLocalClient returns a client over db. The store schema must already
// be initialized.
func NewLocalClient(db *store.DB, opts Options) *LocalClient {
	return &LocalClient{
		identity: newIdentity(opts, "[remote] "),
		db:       db,
		ttl:      opts.SessionTTL,
	}
}

// GetSession returns the current session after checking it is still
// known to the store. A revoked or expired session signs the client out.
func (c *LocalClient) GetSession(ctx context.Context) (*Session, error) {
	sess := c.current()
	if sess == nil {
		return nil, nil
	}

	if _, err := c.db.LookupSession(ctx, sess.AccessToken); err != nil {
		if errors.Is(err, store.ErrSessionExpired) {
			c.set(EventSignedOut, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	return sess, nil
}

// SignUp registers an account and signs it in.
func (c *LocalClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	if err := CheckCredentials("signup", email, password); err != nil {
		return nil, err
	}

	user, err := c.db.CreateUser(ctx, email, password)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, authErrorFor("signup", CodeEmailTaken, "User already registered")
		}
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	return c.startSession(ctx, user)
}

// SignInWithPassword signs in an existing account.
func (c *LocalClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	user, err := c.db.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			return nil, authErrorFor("signin", CodeInvalidCredentials, "Invalid login credentials")
		}
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	return c.startSession(ctx, user)
}

func (c *LocalClient) startSession(ctx context.Context, user *store.User) (*Session, error) {
	issued, err := c.db.CreateSession(ctx, user, c.ttl)
	if err != nil {
		return nil, err
	}

	sess := sessionFromStore(issued)
	c.set(EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the current session. Signing out while signed out is a
// no-op.
func (c *LocalClient) SignOut(ctx context.Context) error {
	token := c.token()
	if token != "" {
		if err := c.db.DeleteSession(ctx, token); err != nil {
			return fmt.Errorf("failed to sign out: %w", err)
		}
	}
	c.set(EventSignedOut, nil)
	return nil
}

// owner resolves the user the call acts for.
func (c *LocalClient) owner(ctx context.Context) (string, error) {
	token := c.token()
	if token == "" {
		return "", ErrUnauthorized
	}
	sess, err := c.db.LookupSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionExpired) {
			return "", ErrUnauthorized
		}
		return "", err
	}
	return sess.UserID, nil
}

// Select returns every record in collection c owned by the caller.
func (c *LocalClient) Select(ctx context.Context, coll schema.Collection) ([]schema.Record, error) {
	ownerID, err := c.owner(ctx)
	if err != nil {
		return nil, err
	}
	records, err := c.db.Select(ctx, ownerID, coll)
	return records, translateStoreError(err)
}

// Insert stores rec in collection c.
func (c *LocalClient) Insert(ctx context.Context, coll schema.Collection, rec schema.Record) (schema.Record, error) {
	if rec.RecordCollection() != coll {
		return nil, fmt.Errorf("%w: %s record in %s", ErrRejected, rec.RecordCollection(), coll)
	}
	ownerID, err := c.owner(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := c.db.Insert(ctx, ownerID, rec)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return stored, nil
}

// Update changes fields of record id in collection c.
func (c *LocalClient) Update(ctx context.Context, coll schema.Collection, id string, fields schema.Fields) error {
	ownerID, err := c.owner(ctx)
	if err != nil {
		return err
	}
	return translateStoreError(c.db.Update(ctx, ownerID, coll, id, fields))
}

// Delete removes record id from collection c.
func (c *LocalClient) Delete(ctx context.Context, coll schema.Collection, id string) error {
	ownerID, err := c.owner(ctx)
	if err != nil {
		return err
	}
	return translateStoreError(c.db.Delete(ctx, ownerID, coll, id))
}

func sessionFromStore(s *store.Session) *Session {
	return &Session{
		AccessToken: s.Token,
		UserID:      s.UserID,
		Email:       s.Email,
		ExpiresAt:   s.ExpiresAt,
	}
}

// translateStoreError maps store sentinels onto the client's error
// vocabulary so callers see the same errors from either client.
func translateStoreError(err error) error {
	var verr *schema.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrUnknownProject):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, store.ErrReadOnly), errors.As(err, &verr):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	default:
		return err
	}
}
