package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Graph construction error codes. These are always fatal and never retried.
const (
	ErrValidation        ErrorCode = "VALIDATION"
	ErrDuplicateStage    ErrorCode = "DUPLICATE_STAGE"
	ErrUnknownDependency ErrorCode = "UNKNOWN_DEPENDENCY"
	ErrCycleDetected     ErrorCode = "CYCLE_DETECTED"
)

// Execution error codes
const (
	ErrAgentInvocation  ErrorCode = "AGENT_INVOCATION"
	ErrAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	ErrWorkflowDeadlock ErrorCode = "WORKFLOW_DEADLOCK"
	ErrWorkflowCanceled ErrorCode = "WORKFLOW_CANCELED"
)

// Support error codes
const (
	ErrInvalidAction   ErrorCode = "INVALID_ACTION"
	ErrInvalidConfig   ErrorCode = "INVALID_CONFIG"
	ErrApprovalClosed  ErrorCode = "APPROVAL_CLOSED"
	ErrApprovalUnknown ErrorCode = "APPROVAL_UNKNOWN"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("stage %s: %s", e.Stage, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStage tags the error with the stage it originated from.
func (e *Error) WithStage(stageID string) *Error {
	e.Stage = stageID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
