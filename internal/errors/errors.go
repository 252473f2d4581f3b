package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ToolNotFound indicates the ecosystem's package manager binary is missing
	ToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	// ExecutionFailed indicates the package manager subprocess failed
	ExecutionFailed ErrorCode = "EXECUTION_FAILED"
	// Timeout indicates a subprocess exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// ParseFailed indicates tool output could not be decoded
	ParseFailed ErrorCode = "PARSE_FAILED"
	// OpenFailed indicates the database could not be opened
	OpenFailed ErrorCode = "OPEN_FAILED"
	// PrepareFailed indicates schema setup failed
	PrepareFailed ErrorCode = "PREPARE_FAILED"
	// ExecuteFailed indicates a database query failed
	ExecuteFailed ErrorCode = "EXECUTE_FAILED"
	// InsertFailed indicates a database write failed
	InsertFailed ErrorCode = "INSERT_FAILED"
	// NotFound indicates a requested package node does not exist
	NotFound ErrorCode = "NOT_FOUND"
	// Canceled indicates the caller's context was canceled mid-operation
	Canceled ErrorCode = "CANCELED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// SweepError represents a depsweep error with code and message
type SweepError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// NewSweepError creates a new SweepError
func NewSweepError(code ErrorCode, message string, cause error) *SweepError {
	return &SweepError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *SweepError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *SweepError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *SweepError) WithDetails(details interface{}) *SweepError {
	e.Details = details
	return e
}
