package recovery

import "context"

// Do runs fn and, if it fails, attempts recovery once. fn is retried only when
// recovery succeeded; otherwise the original error is returned unchanged so
// the caller can surface it.
func Do(ctx context.Context, m *Manager, operation, component string, fn func(context.Context) error, opts ...ContextOption) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if !m.AttemptRecovery(ctx, err, NewOperationContext(operation, component, opts...)) {
		return err
	}
	return fn(ctx)
}

// WithRecovery wraps fn so every call gets one recovery attempt on failure.
//
// Example:
//
//	fetch := recovery.WithRecovery(mgr, "fetchAdvisories", "ai-client", client.Fetch)
//	advisories, err := fetch(ctx)
func WithRecovery[T any](m *Manager, operation, component string, fn func(context.Context) (T, error), opts ...ContextOption) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !m.AttemptRecovery(ctx, err, NewOperationContext(operation, component, opts...)) {
			return v, err
		}
		return fn(ctx)
	}
}
