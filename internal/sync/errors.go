package sync

import (
	"errors"
	"fmt"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

var (
	// ErrNotAuthenticated is returned by mutations attempted without an
	// active session. No remote call is made.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrFeedClosed is returned by Follow when the change feed ends before
	// its context.
	ErrFeedClosed = errors.New("change feed closed")
)

// ReadError is a failed collection fetch. It is stored in the cache entry
// and not retried automatically.
type ReadError struct {
	Key Key
	Err error
}

// Error implements error.
func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Key, e.Err)
}

// Unwrap returns the remote error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// Mutation operations named in WriteError.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// WriteError is a mutation the backend rejected or could not complete. The
// cache is left untouched.
type WriteError struct {
	Op         string
	Collection schema.Collection
	ID         string
	Err        error
}

// Error implements error.
func (e *WriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Collection, e.Err)
}

// Unwrap returns the remote error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
