// Package apperror provides the standardized error schema used when logging
// failures from any component, annotated with the originating run_id or
// component name per spec.md's propagation policy.
package apperror

import (
	"fmt"
	"time"
)

// Error represents a component failure tagged with its origin.
type Error struct {
	Message   string    `json:"error"`
	Code      string    `json:"code"`
	Component string    `json:"component,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Option mutates an Error during construction.
type Option func(*Error)

// New constructs a new Error with the given code and message.
func New(code, message string, opts ...Option) *Error {
	err := &Error{
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(err)
	}
	return err
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.RunID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithRunID attaches the originating subscription's run_id.
func WithRunID(runID string) Option {
	return func(e *Error) { e.RunID = runID }
}

// WithComponent attaches the originating component name.
func WithComponent(component string) Option {
	return func(e *Error) { e.Component = component }
}

// WithDetail attaches a free-form detail string.
func WithDetail(detail string) Option {
	return func(e *Error) { e.Detail = detail }
}

// From coerces any error into an *Error, wrapping unrelated errors under a
// generic INTERNAL code.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if tagged, ok := err.(*Error); ok {
		return tagged
	}
	return New("INTERNAL", "unexpected error", WithDetail(err.Error()))
}

// Error codes used across components.
const (
	CodeTransientUpstream = "TRANSIENT_UPSTREAM"
	CodeFatalUpstream     = "FATAL_UPSTREAM"
	CodeNetworkFault      = "NETWORK_FAULT"
	CodeDatabaseTransient = "DATABASE_TRANSIENT"
	CodeMalformedConfig   = "MALFORMED_CONFIG"
)
