package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies errors across the orchestration pipeline.
type ErrorCode string

// Plan errors, fatal at plan-creation time: no task executes and no remote
// call is made.
const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrCycle      ErrorCode = "CYCLE_ERROR"
)

// Runtime errors.
const (
	// ErrTask marks a single remote executor call failure. Task errors are
	// caught at the group level and converted to task state, never thrown
	// past the execution phase.
	ErrTask ErrorCode = "TASK_ERROR"
	// ErrPhase marks a planner/verifier/critic failure or any other
	// uncaught error; caught at the orchestrator root.
	ErrPhase ErrorCode = "PHASE_ERROR"
	// ErrAgentUnavailable marks a failed transport round-trip to a remote
	// agent endpoint.
	ErrAgentUnavailable ErrorCode = "AGENT_UNAVAILABLE"
	// ErrMalformedResponse marks an agent response rejected by boundary
	// validation before any task state was mutated.
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	// ErrInvalidRequest marks a request the caller built incorrectly.
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Phase   string    `json:"phase,omitempty"`
	TaskID  string    `json:"task_id,omitempty"`
	Cause   error     `json:"-"`
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

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithPhase tags the error with the orchestration phase it occurred in.
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase
	return e
}

// WithTaskID tags the error with the task it belongs to.
func (e *Error) WithTaskID(taskID string) *Error {
	e.TaskID = taskID
	return e
}

// GetErrorCode extracts the error code from err, or "" when err carries none.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
