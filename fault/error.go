package fault

import (
	"fmt"
	"strings"
)

// Error is a structured fault raised by a caller that knows more about the
// failure than its message says. Kind, Category and Severity, when set,
// override the heuristics in Classify, SeverityOf and Kind.
type Error struct {
	// Operation is the logical action that failed (e.g., "scan", "authenticate")
	Operation string

	// Component is the subsystem that raised the fault
	Component string

	// Kind names the fault, like an exception class name (e.g., "ScanError")
	Kind string

	// Message is a human-readable description
	Message string

	// Category optionally pins the classification
	Category Category `json:"category,omitempty"`

	// Severity optionally pins the severity
	Severity Severity `json:"severity,omitempty"`

	// Details contains additional context as key-value pairs
	Details map[string]any

	// Cause is the underlying error
	Cause error
}

// New creates a structured fault.
//
// Example:
//
//	err := fault.New("scan", "secret-scanner", "ScanError", "pattern file unreadable")
func New(operation, component, kind, message string) *Error {
	return &Error{
		Operation: operation,
		Component: component,
		Kind:      kind,
		Message:   message,
	}
}

// WithCause sets the underlying error and returns e for chaining.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails sets additional context and returns e for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCategory pins the classification and returns e for chaining.
func (e *Error) WithCategory(c Category) *Error {
	e.Category = c
	return e
}

// WithSeverity pins the severity and returns e for chaining.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// Error formats the fault as "component [operation/kind]: message: cause".
func (e *Error) Error() string {
	var parts []string

	if e.Component != "" || e.Operation != "" || e.Kind != "" {
		parts = append(parts, fmt.Sprintf("%s [%s/%s]", e.Component, e.Operation, e.Kind))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports equality on Operation, Component and Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Operation == t.Operation && e.Component == t.Component && e.Kind == t.Kind
}
