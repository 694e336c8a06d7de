package errors

import (
	"fmt"
	"strings"
)

// ProjectLoadError is fatal to an editing session: the session returns to
// the unloaded state.
type ProjectLoadError struct {
	ProjectID string
	Cause     error
}

func (e *ProjectLoadError) Error() string {
	return fmt.Sprintf("load project %s: %v", e.ProjectID, e.Cause)
}

func (e *ProjectLoadError) Unwrap() error   { return e.Cause }
func (e *ProjectLoadError) Type() ErrorType { return ErrorTypeState }

// PersistenceError reports a transport or storage failure of one gateway
// operation. Local state is never mutated by the failing call itself.
type PersistenceError struct {
	Operation string
	Cause     error
}

// NewPersistenceError wraps cause, returning nil when cause is nil. An
// existing PersistenceError is returned unchanged so decorators do not nest.
func NewPersistenceError(operation string, cause error) error {
	if cause == nil {
		return nil
	}
	var pe *PersistenceError
	if As(cause, &pe) {
		return cause
	}
	return &PersistenceError{Operation: operation, Cause: cause}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Operation, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// Type classifies by the cause when it carries a category.
func (e *PersistenceError) Type() ErrorType {
	var c Classified
	if As(e.Cause, &c) {
		return c.Type()
	}
	return ErrorTypeExternal
}

// Retryable reports whether the cause looks transient. Malformed payloads,
// missing records and validation failures are never transient.
func (e *PersistenceError) Retryable() bool {
	if Is(e.Cause, ErrMalformedRecord) || Is(e.Cause, ErrRecordNotFound) || Is(e.Cause, ErrRPCUnavailable) {
		return false
	}
	switch e.Type() {
	case ErrorTypeValidation, ErrorTypeConflict, ErrorTypeNotFound:
		return false
	}
	return true
}

// DanglingReferenceError is a programmer error: an edge refers to a node the
// graph store does not hold.
type DanglingReferenceError struct {
	EdgeID  string
	Missing []string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("edge %q references unknown node(s) %s", e.EdgeID, strings.Join(e.Missing, ", "))
}

func (e *DanglingReferenceError) Type() ErrorType { return ErrorTypeValidation }

// SelfConnectionError rejects an edge whose source equals its target.
type SelfConnectionError struct {
	NodeID string
}

func (e *SelfConnectionError) Error() string {
	return fmt.Sprintf("cannot connect node %q to itself", e.NodeID)
}

func (e *SelfConnectionError) Type() ErrorType { return ErrorTypeValidation }

// DuplicateConnectionError rejects a second edge for the same ordered pair.
type DuplicateConnectionError struct {
	SourceID string
	TargetID string
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("connection %s -> %s already exists", e.SourceID, e.TargetID)
}

func (e *DuplicateConnectionError) Type() ErrorType { return ErrorTypeConflict }

// TemplateIntegrityWarning is non-fatal. It is attached to an otherwise
// successful instantiation when a blueprint connection could not be resolved.
type TemplateIntegrityWarning struct {
	TemplateID   string
	ConnectionID string
	SourceLocal  string
	TargetLocal  string
	Reason       string
}

func (w *TemplateIntegrityWarning) Error() string {
	return fmt.Sprintf("template %s: connection %s (%s -> %s) skipped: %s",
		w.TemplateID, w.ConnectionID, w.SourceLocal, w.TargetLocal, w.Reason)
}

func (w *TemplateIntegrityWarning) Type() ErrorType { return ErrorTypeValidation }
