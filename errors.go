package resilience

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrClosed is returned by operations on a closed Core.
var ErrClosed = errors.New("resilience core closed")

// Error kinds categorize Core errors.
const (
	// KindConfiguration represents invalid or unusable configuration.
	KindConfiguration = "configuration"

	// KindConnection represents failures reaching a backing service.
	KindConnection = "connection"

	// KindInternal represents failures building internal components.
	KindInternal = "internal"
)

// Error wraps a failure with the operation that produced it and its kind.
//
// Error supports errors.Is against another *Error by Kind (and Op, when
// the target sets one) as well as against the wrapped error:
//
//	if errors.Is(err, &resilience.Error{Kind: resilience.KindConnection}) {
//		// fall back to in-memory components
//	}
type Error struct {
	// Op is the operation that failed (e.g., "resilience.New").
	Op string

	// Kind categorizes the error (e.g., KindConfiguration).
	Kind string

	// Err is the underlying error.
	Err error

	// Context carries optional debugging detail.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resilience: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("resilience: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("resilience: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok && t.Kind != "" && e.Kind == t.Kind {
		if t.Op == "" || e.Op == t.Op {
			return true
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewConfigurationError creates an Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewConnectionError creates an Error with KindConnection.
func NewConnectionError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConnection, Err: err}
}

// NewInternalError creates an Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// CloseWithLog closes closer and logs any error at warning level. A nil
// closer is ignored; a nil logger means slog.Default().
//
//	defer resilience.CloseWithLog(sink, logger, "telemetry redis sink")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
