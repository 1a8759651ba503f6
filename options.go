package resilience

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/resilience/recovery"
	"github.com/zero-day-ai/resilience/telemetry"
)

// Option configures a Core.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	commands   recovery.Commands
	env        telemetry.Environment
	workspace  string
	sink       telemetry.Sink
	ledger     recovery.LedgerStore
	strategies []recovery.Strategy
}

// WithLogger sets the logger shared by every component.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer enables recovery spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMeter enables recovery and telemetry metrics.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithCommands sets the host command executor used by the authentication
// and configuration strategies and by "command" strategies from config.
// It replaces the executor built from the recovery.commands table.
func WithCommands(cmds recovery.Commands) Option {
	return func(o *options) {
		o.commands = cmds
	}
}

// WithEnvironment sets the workspace probe for usage records.
func WithEnvironment(env telemetry.Environment) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithWorkspace probes the directory tree at root for usage records.
func WithWorkspace(root string) Option {
	return func(o *options) {
		o.env = telemetry.NewWorkspaceEnvironment(root)
		o.workspace = root
	}
}

// WithSink overrides the sink selected by configuration.
func WithSink(sink telemetry.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithLedgerStore overrides the ledger backend selected by configuration.
func WithLedgerStore(store recovery.LedgerStore) Option {
	return func(o *options) {
		o.ledger = store
	}
}

// WithStrategies registers additional strategies alongside the defaults.
func WithStrategies(strategies ...recovery.Strategy) Option {
	return func(o *options) {
		o.strategies = append(o.strategies, strategies...)
	}
}
