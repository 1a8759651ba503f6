package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type trackedEvent struct {
	name         string
	properties   map[string]any
	measurements map[string]float64
}

type trackedError struct {
	err        error
	errCtx     map[string]any
	properties map[string]any
}

// recordingReporter captures everything the manager reports.
type recordingReporter struct {
	mu     sync.Mutex
	events []trackedEvent
	errors []trackedError
}

func (r *recordingReporter) TrackEvent(name string, properties map[string]any, measurements map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, trackedEvent{name: name, properties: properties, measurements: measurements})
}

func (r *recordingReporter) TrackError(err error, errCtx map[string]any, properties map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, trackedError{err: err, errCtx: errCtx, properties: properties})
}

func (r *recordingReporter) Events() []trackedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trackedEvent(nil), r.events...)
}

func (r *recordingReporter) Errors() []trackedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trackedError(nil), r.errors...)
}

// countingStrategy counts Recover calls and returns a configurable result.
type countingStrategy struct {
	name     string
	priority int
	calls    atomic.Int32
	result   atomic.Bool
	err      error
	panicMsg string
}

func (s *countingStrategy) Name() string                            { return s.name }
func (s *countingStrategy) Description() string                     { return "test strategy " + s.name }
func (s *countingStrategy) Priority() int                           { return s.priority }
func (s *countingStrategy) CanRecover(error, OperationContext) bool { return true }

func (s *countingStrategy) Recover(context.Context, error, OperationContext) (bool, error) {
	s.calls.Add(1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return false, s.err
	}
	return s.result.Load(), nil
}

// newTestManager builds a manager that records backoff sleeps instead of sleeping.
func newTestManager(t *testing.T, strategies ...Strategy) (*Manager, *recordingReporter, *[]time.Duration) {
	t.Helper()

	reg, err := NewRegistry(strategies...)
	require.NoError(t, err)

	reporter := &recordingReporter{}
	mgr, err := NewManager(
		WithRegistry(reg),
		WithReporter(reporter),
		WithPolicy(Policy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond}),
	)
	require.NoError(t, err)

	var mu sync.Mutex
	sleeps := &[]time.Duration{}
	mgr.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		*sleeps = append(*sleeps, d)
	}
	return mgr, reporter, sleeps
}

var errBoom = errors.New("strategy exploded")
