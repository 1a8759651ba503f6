package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/zero-day-ai/resilience/config"
	"github.com/zero-day-ai/resilience/health"
	"github.com/zero-day-ai/resilience/hostexec"
	"github.com/zero-day-ai/resilience/recovery"
	"github.com/zero-day-ai/resilience/telemetry"
)

// Core owns one telemetry service and one recovery manager wired to report
// through it. Construct one per process and pass it to collaborators.
type Core struct {
	Telemetry *telemetry.Service
	Recovery  *recovery.Manager

	logger    *slog.Logger
	commands  recovery.Commands
	executor  *hostexec.Executor
	workspace string
	pingers   []namedPinger

	mu         sync.Mutex
	cfg        *config.Config
	configured map[string]bool
	closers    []namedCloser
	cancels    []context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
}

// pinger is implemented by Redis-backed sinks and ledger stores.
type pinger interface {
	Ping(ctx context.Context) error
}

type namedPinger struct {
	name string
	ping func(context.Context) error
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// New builds a Core from cfg. A nil cfg means config.Default().
//
// The telemetry sink and ledger backend are chosen by cfg unless overridden
// with WithSink or WithLedgerStore. The built-in strategies are always
// registered; strategies declared in cfg and passed via WithStrategies are
// added on top.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Core, error) {
	const op = "resilience.New"

	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError(op, err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Core{
		logger:     o.logger,
		workspace:  o.workspace,
		cfg:        cfg,
		configured: make(map[string]bool),
	}

	if o.commands != nil {
		c.commands = o.commands
	} else {
		c.executor = hostexec.NewExecutor(hostCommands(cfg.Recovery.Commands), o.logger)
		c.commands = c.executor
	}

	// Release anything opened so far if a later step fails.
	built := false
	defer func() {
		if !built {
			if c.Telemetry != nil {
				_ = c.Telemetry.Close(context.Background())
			}
			c.closeResources()
		}
	}()

	sink := o.sink
	if sink == nil {
		var err error
		sink, err = c.buildSink(ctx, cfg.Telemetry)
		if err != nil {
			return nil, NewConnectionError(op, err)
		}
	}

	if p, ok := sink.(pinger); ok {
		c.pingers = append(c.pingers, namedPinger{"telemetry sink", p.Ping})
	}

	svc, err := telemetry.NewService(telemetrySettings(cfg.Telemetry),
		telemetry.WithSink(sink),
		telemetry.WithEnvironment(o.env),
		telemetry.WithLogger(o.logger),
		telemetry.WithMeter(o.meter),
	)
	if err != nil {
		return nil, NewInternalError(op, err)
	}
	c.Telemetry = svc

	ledger := o.ledger
	if ledger == nil {
		ledger, err = c.buildLedger(cfg.Recovery.Ledger)
		if err != nil {
			return nil, NewConnectionError(op, err)
		}
	}

	if p, ok := ledger.(pinger); ok {
		c.pingers = append(c.pingers, namedPinger{"recovery ledger", p.Ping})
	}

	registry := recovery.NewDefaultRegistry(c.commands, cfg.Recovery.GetNetworkRetryDelay())
	for _, s := range o.strategies {
		if err := registry.Register(s); err != nil {
			return nil, NewConfigurationError(op, err)
		}
	}
	declared, err := buildStrategies(cfg.Recovery.Strategies, c.commands)
	if err != nil {
		return nil, NewConfigurationError(op, err)
	}
	for _, s := range declared {
		if err := registry.Register(s); err != nil {
			return nil, NewConfigurationError(op, err)
		}
		c.configured[s.Name()] = true
	}

	mgr, err := recovery.NewManager(
		recovery.WithRegistry(registry),
		recovery.WithLedgerStore(ledger),
		recovery.WithReporter(svc),
		recovery.WithPolicy(recoveryPolicy(cfg.Recovery)),
		recovery.WithLogger(o.logger),
		recovery.WithTracer(o.tracer),
		recovery.WithMeter(o.meter),
	)
	if err != nil {
		return nil, NewInternalError(op, err)
	}
	c.Recovery = mgr

	built = true
	return c, nil
}

func (c *Core) buildSink(ctx context.Context, tc config.TelemetryConfig) (telemetry.Sink, error) {
	switch tc.GetSink() {
	case config.SinkRedis:
		sink, err := telemetry.NewRedisSink(ctx, telemetry.RedisSinkOptions{
			URL: tc.RedisURL,
			Key: tc.GetRedisKey(),
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, namedCloser{"telemetry redis sink", sink})
		return sink, nil
	default:
		if tc.Endpoint == "" {
			c.logger.Debug("no telemetry endpoint configured; batches are discarded")
			return telemetry.DiscardSink, nil
		}
		sink := telemetry.NewHTTPSink(telemetry.HTTPSinkOptions{Endpoint: tc.Endpoint})
		c.logger.Debug("telemetry batches are posted over HTTP", "endpoint", sink.Endpoint())
		return sink, nil
	}
}

func (c *Core) buildLedger(lc config.LedgerConfig) (recovery.LedgerStore, error) {
	if lc.GetBackend() != config.BackendRedis {
		return recovery.NewMemoryStore(), nil
	}
	store, err := recovery.NewRedisStore(recovery.RedisStoreOptions{
		URL:    lc.RedisURL,
		Prefix: lc.GetPrefix(),
		TTL:    lc.GetTTL(),
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, namedCloser{"recovery redis ledger", store})
	return store, nil
}

func telemetrySettings(tc config.TelemetryConfig) telemetry.Settings {
	return telemetry.Settings{
		Enabled:       tc.IsEnabled(),
		AnonymizeData: tc.ShouldAnonymize(),
		BatchSize:     tc.GetBatchSize(),
		FlushInterval: tc.GetFlushInterval(),
		Version:       tc.GetVersion(),
	}
}

func recoveryPolicy(rc config.RecoveryConfig) recovery.Policy {
	return recovery.Policy{
		MaxRetries: rc.GetMaxRetries(),
		BaseDelay:  rc.GetBaseDelay(),
		MaxDelay:   rc.GetMaxDelay(),
	}
}

func hostCommands(decls map[string]config.CommandConfig) map[string]hostexec.Command {
	out := make(map[string]hostexec.Command, len(decls))
	for name, d := range decls {
		out[name] = hostexec.Command{
			Path:    d.Run[0],
			Args:    d.Run[1:],
			WorkDir: d.WorkDir,
			Env:     d.Env,
			Timeout: d.GetTimeout(),
		}
	}
	return out
}

// buildStrategies compiles every declared strategy or none.
func buildStrategies(decls []config.StrategyConfig, cmds recovery.Commands) ([]recovery.Strategy, error) {
	out := make([]recovery.Strategy, 0, len(decls))
	for _, d := range decls {
		var action recovery.RecoverFunc
		switch d.GetAction() {
		case config.ActionCommand:
			action = recovery.CommandAction(cmds, d.Command)
		default:
			action = recovery.WaitAction(d.GetDelay())
		}
		s, err := recovery.NewExpressionStrategy(d.Name, d.Description, d.Priority, d.When, action)
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", d.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Config returns the configuration most recently applied.
func (c *Core) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Apply pushes cfg into the running components: telemetry settings,
// recovery policy and the set of declared strategies. Sink and ledger
// backends are fixed at construction; changes to them are logged and
// otherwise ignored.
//
// Apply is all-or-nothing: an invalid cfg or a strategy that fails to
// compile leaves the running configuration untouched.
func (c *Core) Apply(cfg *config.Config) error {
	const op = "Core.Apply"

	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return NewConfigurationError(op, err)
	}
	declared, err := buildStrategies(cfg.Recovery.Strategies, c.commands)
	if err != nil {
		return NewConfigurationError(op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	registry := c.Recovery.Registry()
	for _, s := range declared {
		if _, exists := registry.Get(s.Name()); exists && !c.configured[s.Name()] {
			return NewConfigurationError(op, fmt.Errorf("strategy %q: %w", s.Name(), recovery.ErrStrategyExists))
		}
	}

	if restartRequired(c.cfg, cfg) {
		c.logger.Warn("telemetry sink or ledger backend changed; restart to apply")
	}

	for name := range c.configured {
		if err := registry.Remove(name); err != nil && !errors.Is(err, recovery.ErrStrategyNotFound) {
			return NewInternalError(op, err)
		}
	}
	c.configured = make(map[string]bool, len(declared))
	for _, s := range declared {
		if err := registry.Register(s); err != nil {
			return NewInternalError(op, err)
		}
		c.configured[s.Name()] = true
	}

	if c.executor != nil {
		c.executor.SetCommands(hostCommands(cfg.Recovery.Commands))
	}
	c.Recovery.SetPolicy(recoveryPolicy(cfg.Recovery))
	c.Telemetry.Configure(telemetrySettings(cfg.Telemetry))
	c.Telemetry.SetEnabled(cfg.Telemetry.IsEnabled())

	c.cfg = cfg
	c.logger.Info("configuration applied",
		"telemetry_enabled", cfg.Telemetry.IsEnabled(),
		"max_retries", cfg.Recovery.GetMaxRetries(),
		"strategies", len(declared),
	)
	return nil
}

func restartRequired(old, next *config.Config) bool {
	ot, nt := old.Telemetry, next.Telemetry
	ol, nl := old.Recovery.Ledger, next.Recovery.Ledger
	return ot.GetSink() != nt.GetSink() ||
		ot.Endpoint != nt.Endpoint ||
		ot.RedisURL != nt.RedisURL ||
		ol.GetBackend() != nl.GetBackend() ||
		ol.RedisURL != nl.RedisURL
}

// WatchFile applies the config file at path every time it changes, until
// ctx is canceled or the Core is closed.
func (c *Core) WatchFile(ctx context.Context, path string, opts config.WatcherOptions) error {
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	w, err := config.NewWatcher(path, c.applyLogged, opts)
	if err != nil {
		return NewInternalError("Core.WatchFile", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = w.Close()
		return ErrClosed
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return NewInternalError("Core.WatchFile", err)
	}
	c.closers = append(c.closers, namedCloser{"config watcher " + path, w})
	return nil
}

// WatchEtcd applies every configuration published by src, starting with the
// current one, until ctx is canceled or the Core is closed. The caller keeps
// ownership of src.
func (c *Core) WatchEtcd(ctx context.Context, src *config.EtcdSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	watchCtx, cancel := context.WithCancel(ctx)
	ch, err := src.Watch(watchCtx)
	if err != nil {
		cancel()
		return NewConnectionError("Core.WatchEtcd", err)
	}
	c.cancels = append(c.cancels, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for cfg := range ch {
			c.applyLogged(cfg)
		}
	}()
	return nil
}

func (c *Core) applyLogged(cfg *config.Config) {
	if err := c.Apply(cfg); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Warn("failed to apply configuration", "error", err)
	}
}

// Do runs fn under the Core's recovery manager. See recovery.Do.
func (c *Core) Do(ctx context.Context, operation, component string, fn func(context.Context) error, opts ...recovery.ContextOption) error {
	return recovery.Do(ctx, c.Recovery, operation, component, fn, opts...)
}

// UserMessage returns the end-user message for err.
func (c *Core) UserMessage(err error, oc recovery.OperationContext) string {
	return c.Recovery.UserFriendlyMessage(err, oc)
}

// Health reports backing-service reachability, the telemetry backlog and
// the workspace directory as one combined status.
func (c *Core) Health(ctx context.Context) health.Status {
	checks := make([]health.Status, 0, len(c.pingers)+2)
	for _, p := range c.pingers {
		checks = append(checks, health.PingCheck(ctx, p.name, p.ping))
	}

	b := c.Telemetry.Snapshot()
	checks = append(checks,
		health.BacklogCheck("telemetry", max(b.Events, b.Metrics, b.Usage), c.Telemetry.Settings().BatchSize),
		health.WorkspaceCheck(c.workspace),
	)
	return health.Combine(checks...)
}

// Close stops config watches, performs the final telemetry flush and
// releases backing connections. It is idempotent.
func (c *Core) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.wg.Wait()

	var err error
	if c.Telemetry != nil {
		if ferr := c.Telemetry.Close(ctx); ferr != nil {
			err = &Error{Op: "Core.Close", Kind: KindConnection, Err: ferr}
		}
	}
	c.closeResources()
	return err
}

// closeResources closes watchers before the sink and ledger they feed.
func (c *Core) closeResources() {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		CloseWithLog(closers[i].closer, c.logger, closers[i].name)
	}
}
