package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeSchema represents file-type detection errors
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeIngest represents tabular input errors
	ErrorTypeIngest ErrorType = "ingest"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeAgent represents LLM-related errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Schema Errors

// ErrUnrecognizedFileType is returned when a table matches none of the known record types
type ErrUnrecognizedFileType struct {
	*BaseError
	Columns []string
}

func NewUnrecognizedFileType(columns []string) *ErrUnrecognizedFileType {
	cols := append([]string(nil), columns...)
	return &ErrUnrecognizedFileType{
		BaseError: NewBaseError(ErrorTypeSchema, fmt.Sprintf("unknown file type (columns: %s)", strings.Join(cols, ", ")), nil),
		Columns:   cols,
	}
}

// Ingest Errors

// ErrTableInvalid is returned when an uploaded table cannot be read
type ErrTableInvalid struct {
	*BaseError
	Reason string
}

func NewTableInvalid(reason string, err error) *ErrTableInvalid {
	return &ErrTableInvalid{
		BaseError: NewBaseError(ErrorTypeIngest, fmt.Sprintf("invalid table: %s", reason), err),
		Reason:    reason,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphWriteFailed is returned when a batched write group fails. Groups
// committed before the failure stay applied; Partial reports whether any did.
type ErrGraphWriteFailed struct {
	*BaseError
	Phase     string
	Group     string
	Partial   bool
	Retryable bool
}

func NewGraphWriteFailed(phase, group string, partial, retryable bool, err error) *ErrGraphWriteFailed {
	return &ErrGraphWriteFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("%s write failed for %s", phase, group), err),
		Phase:     phase,
		Group:     group,
		Partial:   partial,
		Retryable: retryable,
	}
}

// Agent Errors

// ErrAgentLLMFailed is returned when LLM request fails
type ErrAgentLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewAgentLLMFailed(model string, attempts int, retryable bool, err error) *ErrAgentLLMFailed {
	return &ErrAgentLLMFailed{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrAgentNoResponse is returned when LLM returns no response
var ErrAgentNoResponse = NewBaseError(ErrorTypeAgent, "no response from LLM", nil)

// Context Errors

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration, err error) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), err),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// typed is implemented by every error in this package through the embedded BaseError.
type typed interface {
	error
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType { return e.Type }

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := err.(typed); ok && t.errorType() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var writeErr *ErrGraphWriteFailed
	if stderrors.As(err, &writeErr) {
		return writeErr.Retryable
	}
	var llmErr *ErrAgentLLMFailed
	if stderrors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	var timeoutErr *ErrContextTimeout
	if stderrors.As(err, &timeoutErr) {
		return true
	}
	// Graph connection errors are retryable
	var connErr *ErrGraphConnectionFailed
	return stderrors.As(err, &connErr)
}
