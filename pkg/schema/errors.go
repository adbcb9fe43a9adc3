package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeStore        = "STORE_ERROR"
	ErrCodeGeneration   = "GENERATION_ERROR"
	ErrCodeBusy         = "BUSY"
	ErrCodeVault        = "VAULT_ERROR"
	ErrCodeExpression   = "EXPRESSION_ERROR"
	ErrCodeCancelled    = "CANCELLED"
)

// NexusError is the structured error type returned across package boundaries.
type NexusError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *NexusError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *NexusError) Unwrap() error {
	return e.Cause
}

// NewError creates a new NexusError.
func NewError(code, message string) *NexusError {
	return &NexusError{Code: code, Message: message}
}

// NewErrorf creates a new NexusError with a formatted message.
func NewErrorf(code, format string, args ...any) *NexusError {
	return &NexusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *NexusError) WithNode(nodeID string) *NexusError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *NexusError) WithCause(err error) *NexusError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *NexusError) WithDetails(details map[string]any) *NexusError {
	e.Details = details
	return e
}

// HasCode reports whether err (or anything it wraps) is a NexusError with the given code.
func HasCode(err error, code string) bool {
	var nerr *NexusError
	if !errors.As(err, &nerr) {
		return false
	}
	return nerr.Code == code
}
