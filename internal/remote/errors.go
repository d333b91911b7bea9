package remote

import (
	"errors"
	"fmt"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// Common errors returned by backend operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrUnauthorized) {
//	    // render as logged out
//	}
var (
	// ErrUnauthorized is returned when no valid session accompanies a call.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrNotFound is returned when the target record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned for referential integrity violations.
	ErrConflict = errors.New("conflict")

	// ErrRejected is returned when the store refuses malformed input.
	ErrRejected = errors.New("rejected by store")

	// ErrInvalidCredentials is returned for a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrEmailTaken is returned by SignUp for a registered email.
	ErrEmailTaken = errors.New("user already registered")

	// ErrWeakPassword is returned by SignUp for a too-short password.
	ErrWeakPassword = errors.New("weak password")

	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("invalid email")
)

// AuthError is a failed sign-up or sign-in. Message is meant for the user.
type AuthError struct {
	Op      string // signup, signin, signout
	Code    string
	Message string
	Err     error
}

// Error implements error.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the sentinel describing the failure.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Auth error codes used on the wire.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailTaken         = "email_taken"
	CodeWeakPassword       = "weak_password"
	CodeInvalidEmail       = "invalid_email"
)

// authErrorFor builds an AuthError from a wire code.
func authErrorFor(op, code, message string) *AuthError {
	var sentinel error
	switch code {
	case CodeInvalidCredentials:
		sentinel = ErrInvalidCredentials
	case CodeEmailTaken:
		sentinel = ErrEmailTaken
	case CodeWeakPassword:
		sentinel = ErrWeakPassword
	case CodeInvalidEmail:
		sentinel = ErrInvalidEmail
	default:
		sentinel = ErrRejected
	}
	if message == "" {
		message = sentinel.Error()
	}
	return &AuthError{Op: op, Code: code, Message: message, Err: sentinel}
}

// AuthCode returns the wire code for an auth sentinel, or "".
func AuthCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrEmailTaken):
		return CodeEmailTaken
	case errors.Is(err, ErrWeakPassword):
		return CodeWeakPassword
	case errors.Is(err, ErrInvalidEmail):
		return CodeInvalidEmail
	default:
		return ""
	}
}

// CheckCredentials applies the account rules enforced at sign-up and
// returns an *AuthError describing the first violation.
func CheckCredentials(op, email, password string) error {
	err := schema.Credentials{Email: email, Password: password}.Validate()
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	if msg := verr.Message("email"); msg != "" {
		return authErrorFor(op, CodeInvalidEmail, msg)
	}
	return authErrorFor(op, CodeWeakPassword, verr.Message("password"))
}
