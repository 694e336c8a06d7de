// Package errors provides the unified error classification used across the
// canvas backend together with the typed errors surfaced by the editing core.
//
// Every error produced by this module either is, or wraps, one of:
//   - *UnifiedError for generic classified failures
//   - one of the canvas error types in canvas_errors.go
//
// Callers inspect them with the standard errors.Is / errors.As functions.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// UNIFIED ERROR TYPES AND CLASSIFICATION
// ============================================================================

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	// Business logic errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeState      ErrorType = "STATE"
	ErrorTypeForbidden  ErrorType = "FORBIDDEN"

	// Infrastructure errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeExternal    ErrorType = "EXTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
)

// ErrorSeverity defines the severity level for logging and monitoring.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// Classified is implemented by every error type of this package so callers
// can branch on the category without knowing the concrete type.
type Classified interface {
	error
	Type() ErrorType
}

// UnifiedError is the generic classified error.
type UnifiedError struct {
	Kind      ErrorType     `json:"type"`
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Details   string        `json:"details,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Resource  string        `json:"resource,omitempty"`
	Severity  ErrorSeverity `json:"severity"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`
}

// Error implements the error interface.
func (e *UnifiedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Kind, e.Code, e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to work with the underlying cause.
func (e *UnifiedError) Unwrap() error {
	return e.Cause
}

// Type returns the error category.
func (e *UnifiedError) Type() ErrorType {
	return e.Kind
}

// Is matches two unified errors by code so sentinel values work with errors.Is.
func (e *UnifiedError) Is(target error) bool {
	t, ok := target.(*UnifiedError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Kind == e.Kind
}

// ============================================================================
// ERROR BUILDER FOR FLUENT CONSTRUCTION
// ============================================================================

// ErrorBuilder provides a fluent interface for constructing UnifiedError instances.
type ErrorBuilder struct {
	err *UnifiedError
}

// NewError creates a new error builder with the specified type and message.
func NewError(errType ErrorType, code ErrorCode, message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &UnifiedError{
			Kind:     errType,
			Code:     code,
			Message:  message,
			Severity: SeverityMedium,
		},
	}
}

// WithDetails adds additional details to the error.
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.err.Details = details
	return b
}

// WithOperation specifies the operation that failed.
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.err.Operation = operation
	return b
}

// WithResource specifies the resource being operated on.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.err.Resource = resource
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.err.Severity = severity
	return b
}

// WithRetryable marks the error as retryable.
func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.err.Retryable = retryable
	return b
}

// WithCause sets the underlying cause.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.err.Cause = cause
	return b
}

// Build returns the constructed error.
func (b *ErrorBuilder) Build() *UnifiedError {
	return b.err
}

// Validation starts a validation error.
func Validation(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeValidation, code, message).WithSeverity(SeverityLow)
}

// NotFound starts a not-found error.
func NotFound(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeNotFound, code, message).WithSeverity(SeverityLow)
}

// Conflict starts a conflict error.
func Conflict(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeConflict, code, message).WithSeverity(SeverityLow)
}

// Internal starts an internal error.
func Internal(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeInternal, code, message).WithSeverity(SeverityHigh)
}

// ============================================================================
// ERROR INSPECTION
// ============================================================================

// TypeOf returns the category of err, or ErrorTypeInternal when err carries
// no classification.
func TypeOf(err error) ErrorType {
	var c Classified
	if errors.As(err, &c) {
		return c.Type()
	}
	return ErrorTypeInternal
}

// IsType reports whether err is classified as errType.
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool { return IsType(err, ErrorTypeConflict) }

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	var u *UnifiedError
	if errors.As(err, &u) && u.Retryable {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Re-exports so callers importing this package under the name "errors" keep
// access to the standard helpers.
var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Join   = errors.Join
	Unwrap = errors.Unwrap
)
