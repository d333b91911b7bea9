package schema

import (
	"fmt"
	"net/mail"
	"strings"
)

// Validation messages shown next to form inputs.
const (
	MsgProjectNameRequired = "Project name is required"
	MsgTaskNameRequired    = "Task name is required"
	MsgProjectRequired     = "Project is required"
	MsgInvalidEmail        = "Invalid email address"
	MsgPasswordTooShort    = "Password must be at least 6 characters"
	MsgMustBeText          = "Must be text"
	MsgNothingToUpdate     = "No editable fields provided"
)

// MinPasswordLength is the shortest password accepted at sign-up and sign-in.
const MinPasswordLength = 6

// FieldError is a validation failure attached to one input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level failures. It is returned before any
// remote call is made.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Error implements error.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Message returns the first message recorded for field, or "".
func (e *ValidationError) Message(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

// Add records a failure for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns e as an error when it holds failures, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateFields checks a partial update for c. Fields outside the mutable
// whitelist are ignored here; callers strip them with FilterMutable.
func ValidateFields(c Collection, fields Fields) error {
	verr := &ValidationError{}
	filtered := FilterMutable(c, fields)
	if len(filtered) == 0 {
		verr.Add("fields", MsgNothingToUpdate)
		return verr
	}

	for _, name := range filtered.Keys() {
		s, ok := filtered[name].(string)
		if !ok {
			verr.Add(name, MsgMustBeText)
			continue
		}
		switch name {
		case "name":
			if blank(s) {
				verr.Add("name", MsgTaskNameRequired)
			}
		case "project_id":
			if blank(s) {
				verr.Add("project_id", MsgProjectRequired)
			}
		}
	}

	return verr.Err()
}

// Credentials is the sign-up / sign-in form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate applies the auth form rules.
func (c Credentials) Validate() error {
	verr := &ValidationError{}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		verr.Add("email", MsgInvalidEmail)
	}
	if len(c.Password) < MinPasswordLength {
		verr.Add("password", MsgPasswordTooShort)
	}
	return verr.Err()
}
