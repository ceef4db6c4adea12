package models

import (
	"fmt"
	"strings"
)

// ValidationError reports every field constraint a request violated, not just
// the first one, so callers can fix all problems in one pass.
type ValidationError struct {
	// Violations lists human-readable descriptions of each failed rule.
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// Add appends a violation to the error.
func (e *ValidationError) Add(format string, args ...interface{}) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

// HasViolations returns true if at least one rule failed.
func (e *ValidationError) HasViolations() bool {
	return len(e.Violations) > 0
}

// NotFoundError indicates a task, agent, or session ID unknown to the store.
type NotFoundError struct {
	// Resource names the record kind: "task", "agent", or "session".
	Resource string
	// ID is the identifier that was looked up.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// GatewayError wraps a spawn/poll/cancel failure from the execution gateway.
type GatewayError struct {
	// Op is the gateway operation that failed.
	Op string
	// Err is the underlying transport or remote error.
	Err error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error { return e.Err }

// StoreError wraps a persistence layer failure.
type StoreError struct {
	// Op is the store operation that failed.
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }
