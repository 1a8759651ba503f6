package recovery

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recovery outcomes recorded on spans and metrics.
const (
	OutcomeRecovered          = "recovered"
	OutcomeFailed             = "failed"
	OutcomeNoStrategy         = "no_strategy"
	OutcomeMaxRetriesExceeded = "max_retries_exceeded"
)

// otelMetrics holds the instruments created when a meter is configured.
type otelMetrics struct {
	// attempts counts AttemptRecovery calls by outcome
	attempts metric.Int64Counter

	// strategyErrors counts strategies that returned an error or panicked
	strategyErrors metric.Int64Counter

	// duration records AttemptRecovery latency including backoff
	duration metric.Float64Histogram
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	m := &otelMetrics{}
	var err error

	m.attempts, err = meter.Int64Counter(
		"recovery.attempts",
		metric.WithDescription("Recovery attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}

	m.strategyErrors, err = meter.Int64Counter(
		"recovery.strategy.errors",
		metric.WithDescription("Recovery strategies that failed with an error"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create strategy error counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"recovery.duration",
		metric.WithDescription("Recovery attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

func (m *otelMetrics) recordAttempt(ctx context.Context, outcome, category string, elapsed time.Duration) {
	if m == nil {
		return
	}
	opts := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("fault.category", category),
	)
	m.attempts.Add(ctx, 1, opts)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), opts)
}

func (m *otelMetrics) recordStrategyError(ctx context.Context, strategy string) {
	if m == nil {
		return
	}
	m.strategyErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}
