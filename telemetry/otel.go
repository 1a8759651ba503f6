package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics holds the instruments created when a meter is configured.
type otelMetrics struct {
	// flushes counts flush attempts that reached the sink, by outcome
	flushes metric.Int64Counter

	// items counts items delivered to the sink
	items metric.Int64Counter
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	m := &otelMetrics{}
	var err error

	m.flushes, err = meter.Int64Counter(
		"telemetry.flushes",
		metric.WithDescription("Telemetry flushes by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create flush counter: %w", err)
	}

	m.items, err = meter.Int64Counter(
		"telemetry.items.sent",
		metric.WithDescription("Telemetry items delivered to the sink"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create item counter: %w", err)
	}

	return m, nil
}

func (m *otelMetrics) recordFlush(ctx context.Context, sent int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err == nil {
		m.items.Add(ctx, int64(sent))
	}
}
