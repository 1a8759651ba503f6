package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/resilience/fault"
)

// Reporter receives recovery telemetry. *telemetry.Service implements it.
type Reporter interface {
	TrackEvent(name string, properties map[string]any, measurements map[string]float64)
	TrackError(err error, errCtx map[string]any, properties map[string]any)
}

type nopReporter struct{}

func (nopReporter) TrackEvent(string, map[string]any, map[string]float64) {}
func (nopReporter) TrackError(error, map[string]any, map[string]any)      {}

// Manager orchestrates classification, strategy execution and the retry ledger.
type Manager struct {
	registry *Registry
	ledger   LedgerStore
	reporter Reporter
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	metrics  *otelMetrics

	policyMu sync.RWMutex
	policy   Policy

	locks *keyMutex

	// fallback counts attempts the ledger store failed to record, so the
	// retry ceiling still holds while the store is unreachable.
	fallback *MemoryStore

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets the strategy registry. Default: an empty registry.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithLedgerStore sets the retry ledger backend. Default: NewMemoryStore().
func WithLedgerStore(s LedgerStore) Option {
	return func(m *Manager) {
		m.ledger = s
	}
}

// WithReporter sets the telemetry reporter. Default: discard.
func WithReporter(r Reporter) Option {
	return func(m *Manager) {
		m.reporter = r
	}
}

// WithPolicy sets the retry ceiling and backoff delays.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p.normalized()
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTracer enables a span per recovery attempt.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithMeter enables recovery metrics.
func WithMeter(meter metric.Meter) Option {
	return func(m *Manager) {
		m.meter = meter
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		policy:   DefaultPolicy(),
		locks:    newKeyMutex(),
		fallback: NewMemoryStore(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = &Registry{}
	}
	if m.ledger == nil {
		m.ledger = NewMemoryStore()
	}
	if m.reporter == nil {
		m.reporter = nopReporter{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	metrics, err := newOTelMetrics(m.meter)
	if err != nil {
		return nil, fmt.Errorf("init recovery metrics: %w", err)
	}
	m.metrics = metrics

	return m, nil
}

// Registry returns the strategy registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Policy returns the current retry policy.
func (m *Manager) Policy() Policy {
	m.policyMu.RLock()
	defer m.policyMu.RUnlock()
	return m.policy
}

// SetPolicy replaces the retry policy. Attempts already in flight keep the
// policy they started with.
func (m *Manager) SetPolicy(p Policy) {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()
	m.policy = p.normalized()
}

// Attempts returns the ledger count for the key derived from oc and err, and
// whether an entry exists.
func (m *Manager) Attempts(ctx context.Context, oc OperationContext, err error) (int, bool) {
	return m.attempts(ctx, Key(oc, err))
}

// attempts merges the store count with attempts recorded while the store
// was failing. The larger count wins.
func (m *Manager) attempts(ctx context.Context, key string) (int, bool) {
	n, ok, lerr := m.ledger.Get(ctx, key)
	if lerr != nil {
		m.logger.Warn("failed to read retry ledger", "key", key, "error", lerr)
		n, ok = 0, false
	}
	if fn, fok, _ := m.fallback.Get(ctx, key); fok && fn > n {
		n, ok = fn, true
	}
	return n, ok
}

func (m *Manager) increment(ctx context.Context, key string, attempts int) {
	if _, lerr := m.ledger.Increment(ctx, key); lerr != nil {
		m.logger.Warn("failed to increment retry ledger", "key", key, "error", lerr)
		m.fallback.set(key, attempts+1)
	}
}

func (m *Manager) clear(ctx context.Context, key string) {
	_ = m.fallback.Delete(ctx, key)
	if lerr := m.ledger.Delete(ctx, key); lerr != nil {
		m.logger.Warn("failed to clear retry ledger", "key", key, "error", lerr)
	}
}

// AttemptRecovery tries to remediate err. It returns true when a strategy
// succeeded and the caller should retry the original operation. It never
// panics and absorbs every strategy failure.
func (m *Manager) AttemptRecovery(ctx context.Context, err error, oc OperationContext) bool {
	if fault.IsNil(err) {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	key := Key(oc, err)
	category := fault.Classify(err)

	unlock := m.locks.Lock(key)
	defer unlock()

	policy := m.Policy()

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(ctx, "recovery.attempt")
		defer span.End()
		span.SetAttributes(
			attribute.String("recovery.operation", oc.Operation),
			attribute.String("recovery.component", oc.Component),
			attribute.String("fault.kind", fault.Kind(err)),
			attribute.String("fault.category", string(category)),
		)
	}

	finish := func(outcome string, recovered bool) bool {
		m.metrics.recordAttempt(ctx, outcome, string(category), time.Since(start))
		if span != nil {
			span.SetAttributes(attribute.String("recovery.outcome", outcome))
			if recovered {
				span.SetStatus(codes.Ok, outcome)
			} else {
				span.SetStatus(codes.Error, outcome)
			}
		}
		return recovered
	}

	attempts, _ := m.attempts(ctx, key)
	if span != nil {
		span.SetAttributes(attribute.Int("recovery.attempt", attempts+1))
	}

	if attempts >= policy.MaxRetries {
		m.reporter.TrackError(err, oc.Properties(), map[string]any{
			"maxRetriesExceeded": true,
			"attempts":           attempts,
			"category":           string(category),
		})
		return finish(OutcomeMaxRetriesExceeded, false)
	}

	// Count the attempt before running anything so a crash mid-recovery
	// still consumes it.
	m.increment(ctx, key, attempts)

	applicable := m.registry.Applicable(err, oc, m.logger)
	if len(applicable) == 0 {
		m.reporter.TrackError(err, oc.Properties(), map[string]any{
			"noRecoveryStrategy": true,
			"category":           string(category),
		})
		return finish(OutcomeNoStrategy, false)
	}

	for _, s := range applicable {
		ok, serr := m.runStrategy(ctx, s, err, oc)
		if serr != nil {
			m.metrics.recordStrategyError(ctx, s.Name())
			m.logger.Warn("recovery strategy failed",
				"strategy", s.Name(),
				"operation", oc.Operation,
				"component", oc.Component,
				"error", serr,
			)
			m.reporter.TrackError(serr, oc.Properties(), map[string]any{
				"recoveryStrategy": s.Name(),
				"originalError":    err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}

		m.clear(ctx, key)
		m.reporter.TrackEvent("recovery_success", map[string]any{
			"strategy":  s.Name(),
			"operation": oc.Operation,
			"component": oc.Component,
			"category":  string(category),
		}, map[string]float64{
			"attempts": float64(attempts + 1),
		})
		if span != nil {
			span.SetAttributes(attribute.String("recovery.strategy", s.Name()))
		}
		return finish(OutcomeRecovered, true)
	}

	m.sleep(ctx, policy.Backoff(attempts))
	return finish(OutcomeFailed, false)
}

// runStrategy executes s, converting a panic into an error.
func (m *Manager) runStrategy(ctx context.Context, s Strategy, err error, oc OperationContext) (ok bool, serr error) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			serr = fmt.Errorf("strategy %s panicked: %v", s.Name(), p)
		}
	}()
	return s.Recover(ctx, err, oc)
}

// UserFriendlyMessage returns the sentence to display when recovery is
// exhausted. It has no side effects.
func (m *Manager) UserFriendlyMessage(err error, _ OperationContext) string {
	return fault.UserMessage(err)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
