package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL is how long an access token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an issued access token.
type Session struct {
	Token     string    `json:"access_token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateUser registers a new account with a bcrypt-hashed password.
// Returns ErrEmailTaken if the email is already registered.
func (db *DB) CreateUser(ctx context.Context, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:        db.newID(),
		Email:     normalizeEmail(email),
		CreatedAt: db.now(),
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, string(hash), timeToString(user.CreatedAt),
	)
	if err != nil {
		if isConstraint(err, "UNIQUE") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate checks an email/password pair.
// Returns ErrInvalidCredentials for an unknown email or a wrong password.
func (db *DB) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var user User
	var hash, createdAt string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		normalizeEmail(email),
	).Scan(&user.ID, &user.Email, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user.CreatedAt = stringToTime(createdAt)
	return &user, nil
}

// CreateSession issues a new access token for user.
// A ttl of zero uses DefaultSessionTTL.
func (db *DB) CreateSession(ctx context.Context, user *User, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := db.now()
	sess := &Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, timeToString(sess.CreatedAt), timeToString(sess.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// LookupSession resolves an access token.
// Returns ErrSessionExpired for unknown or expired tokens.
func (db *DB) LookupSession(ctx context.Context, token string) (*Session, error) {
	var sess Session
	var createdAt, expiresAt string

	err := db.conn.QueryRowContext(ctx, `
		SELECT s.token, s.user_id, u.email, s.created_at, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ?
	`, token).Scan(&sess.Token, &sess.UserID, &sess.Email, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	sess.CreatedAt = stringToTime(createdAt)
	sess.ExpiresAt = stringToTime(expiresAt)

	if !sess.ExpiresAt.After(db.now()) {
		return nil, ErrSessionExpired
	}

	return &sess, nil
}

// DeleteSession revokes an access token.
// Returns nil if the token doesn't exist (idempotent).
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
