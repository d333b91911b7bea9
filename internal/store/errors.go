package store

import (
	"errors"
	"strings"
)

// Errors returned by store operations. Check them with errors.Is.
var (
	// ErrNotFound is returned when a row does not exist or is owned by
	// another user.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned by CreateUser when the email is registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned by Authenticate for an unknown email
	// or a wrong password.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrSessionExpired is returned by LookupSession for unknown or expired
	// tokens.
	ErrSessionExpired = errors.New("session expired or invalid")

	// ErrUnknownProject is returned when a task references a project that
	// does not exist for the owner.
	ErrUnknownProject = errors.New("referenced project does not exist")

	// ErrReadOnly is returned for writes a collection does not support.
	ErrReadOnly = errors.New("operation not supported for collection")
)

// isConstraint reports whether err is a SQLite constraint violation of the
// given kind ("UNIQUE", "FOREIGN KEY", ...).
func isConstraint(err error, kind string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), kind+" constraint failed")
}
