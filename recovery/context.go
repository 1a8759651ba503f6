package recovery

import (
	"maps"
	"time"
)

// OperationContext describes the logical action being attempted when a fault
// was raised. A fresh context is built per invocation attempt and passed by
// value, so strategies cannot mutate the caller's copy.
type OperationContext struct {
	// Operation is the logical action (e.g., "scan", "generateFix")
	Operation string

	// Component is the subsystem performing it (e.g., "secret-scanner")
	Component string

	// UserID optionally identifies the acting user
	UserID string

	// WorkspacePath optionally names the workspace directory involved
	WorkspacePath string

	// Timestamp is when the context was created
	Timestamp time.Time

	// AdditionalData carries open-ended caller context
	AdditionalData map[string]any
}

// ContextOption configures an OperationContext.
type ContextOption func(*OperationContext)

// WithUserID sets the acting user.
func WithUserID(id string) ContextOption {
	return func(c *OperationContext) {
		c.UserID = id
	}
}

// WithWorkspacePath sets the workspace directory involved in the operation.
func WithWorkspacePath(path string) ContextOption {
	return func(c *OperationContext) {
		c.WorkspacePath = path
	}
}

// WithData adds a key to AdditionalData.
func WithData(key string, value any) ContextOption {
	return func(c *OperationContext) {
		if c.AdditionalData == nil {
			c.AdditionalData = make(map[string]any)
		}
		c.AdditionalData[key] = value
	}
}

// NewOperationContext builds a context stamped with the current time.
func NewOperationContext(operation, component string, opts ...ContextOption) OperationContext {
	c := OperationContext{
		Operation: operation,
		Component: component,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Data returns a copy of AdditionalData, never nil.
func (c OperationContext) Data() map[string]any {
	out := make(map[string]any, len(c.AdditionalData))
	maps.Copy(out, c.AdditionalData)
	return out
}

// Properties flattens the context into telemetry properties.
func (c OperationContext) Properties() map[string]any {
	props := map[string]any{
		"operation": c.Operation,
		"component": c.Component,
	}
	if c.UserID != "" {
		props["userId"] = c.UserID
	}
	if c.WorkspacePath != "" {
		props["workspacePath"] = c.WorkspacePath
	}
	if !c.Timestamp.IsZero() {
		props["timestamp"] = c.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	for k, v := range c.AdditionalData {
		if _, exists := props[k]; !exists {
			props[k] = v
		}
	}
	return props
}
