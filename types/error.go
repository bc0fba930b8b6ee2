package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Session error codes
const (
	ErrConfigValidation   ErrorCode = "CONFIG_VALIDATION"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCompletionFailure  ErrorCode = "COMPLETION_FAILURE"
	ErrPersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	ErrSpeakerUnresolved  ErrorCode = "SPEAKER_UNRESOLVED"
)

// Store error codes
const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrStoreClosed  ErrorCode = "STORE_CLOSED"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	// Violations carries the full list of broken rules for validation
	// errors, so callers see every problem rather than the first.
	Violations []string `json:"violations,omitempty"`
	Cause      error    `json:"-"`
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

// WithViolations attaches the full rule-violation list.
func (e *Error) WithViolations(violations []string) *Error {
	e.Violations = violations
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a framework Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRetryable reports whether err is a framework Error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
