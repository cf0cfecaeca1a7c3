// Package errors defines the error taxonomy shared by the gazefan engine.
// Configuration and identifier errors are synchronous failures returned to
// the immediate caller; per-target connect/send errors are carried as data
// inside dispatch results and session status instead of aborting calls.
package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrSessionIDRequired    = sterrors.New("gazefan: session id is required")
	ErrConfigRequired       = sterrors.New("gazefan: session config is required")
	ErrEventNameRequired    = sterrors.New("gazefan: event name is required")
	ErrTemplateNameRequired = sterrors.New("gazefan: template name is required")

	// ErrUnknownTarget marks a dispatch target that is not enabled in the
	// session. It surfaces inside per-target outcomes, never as a call
	// failure.
	ErrUnknownTarget = sterrors.New("unknown distributor")
)

// FieldError describes a single offending configuration field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConfigValidationError collects every field-level violation found while
// building a session config. Validation never short-circuits: callers get
// the full list in one round trip.
type ConfigValidationError struct {
	Fields []FieldError
}

func (e *ConfigValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "gazefan: invalid session config"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "gazefan: invalid session config: " + strings.Join(parts, "; ")
}

// Add appends a field violation.
func (e *ConfigValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Addf appends a field violation with a formatted reason.
func (e *ConfigValidationError) Addf(field, format string, args ...any) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any violation was recorded.
func (e *ConfigValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// ErrOrNil returns the error when violations exist, nil otherwise. Returning
// the typed nil through an error interface is a classic footgun, so callers
// go through this instead of returning e directly.
func (e *ConfigValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// DuplicateSessionError is returned by CreateSession when the id is taken.
type DuplicateSessionError struct {
	ID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("gazefan: session %q already exists", e.ID)
}

// SessionNotFoundError is returned by any operation naming an unknown or
// already closed session id.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("gazefan: session %q not found", e.ID)
}

// UnknownDistributorError is returned when an operation names a distributor
// that is not currently enabled in the session.
type UnknownDistributorError struct {
	SessionID   string
	Distributor string
}

func (e *UnknownDistributorError) Error() string {
	return fmt.Sprintf("gazefan: distributor %q not enabled in session %q", e.Distributor, e.SessionID)
}

// ConnectError wraps a transport-level connection failure with the adapter
// name so partial session creation stays diagnosable per adapter.
type ConnectError struct {
	Distributor string
	Err         error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("gazefan: distributor %q connect: %v", e.Distributor, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError wraps a transport-level send failure with the adapter name.
type SendError struct {
	Distributor string
	Event       string
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("gazefan: distributor %q send %q: %v", e.Distributor, e.Event, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
