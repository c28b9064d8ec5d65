package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Agent capability error codes
const (
	ErrAgentTimeout      ErrorCode = "AGENT_TIMEOUT"
	ErrAgentUnavailable  ErrorCode = "AGENT_UNAVAILABLE"
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// Negotiation error codes
const (
	ErrInsufficientOptions ErrorCode = "INSUFFICIENT_OPTIONS"
	ErrNoRespondingAgents  ErrorCode = "NO_RESPONDING_AGENTS"
	ErrInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrConflictNotFound    ErrorCode = "CONFLICT_NOT_FOUND"
	ErrConflictTerminal    ErrorCode = "CONFLICT_TERMINAL"
)

// Execution error codes
const (
	ErrPersistence       ErrorCode = "PERSISTENCE"
	ErrConflictInFlight  ErrorCode = "CONFLICT_IN_FLIGHT"
	ErrAttemptsExhausted ErrorCode = "ATTEMPTS_EXHAUSTED"
	ErrSchedulerClosed   ErrorCode = "SCHEDULER_CLOSED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	AgentID   string    `json:"agent_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent tags the error with the agent that produced it.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// IsRetryable checks if an error is retryable. A retryable error causes the
// scheduler to re-run the attempt after the configured delay; anything else
// is terminal for the attempt.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
