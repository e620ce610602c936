package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Taxonomy roots. Every error surfaced by the core unwraps to exactly one of these.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrForbidden              = errors.New("forbidden")
	ErrValidationFailed       = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound    = fmt.Errorf("session %w", ErrNotFound)
	ErrUserExists         = fmt.Errorf("user already exists: %w", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrAuthenticationRequired)
	ErrAccountDisabled    = fmt.Errorf("account disabled: %w", ErrAuthenticationRequired)
	ErrAccountNotVerified = fmt.Errorf("account not verified: %w", ErrAuthenticationRequired)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", ErrAuthenticationRequired)
)

// ErrNotificationFailed is returned when a mandatory email could not be
// delivered. It sits outside the taxonomy: the triggering change is kept.
var ErrNotificationFailed = errors.New("notification delivery failed")

// ForbiddenError names the requirement the principal failed to meet,
// e.g. "user type: manager" or "permission: view_users".
type ForbiddenError struct {
	Requirement string
}

func (e *ForbiddenError) Error() string {
	if e.Requirement == "" {
		return ErrForbidden.Error()
	}
	return "forbidden: " + e.Requirement + " required"
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// FieldError is a single rule violation on an input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field violation found on one input.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }
