package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("telemetry: service closed")

// processSessionID is generated once per process and shared by every Service
// that does not override it.
var processSessionID = sync.OnceValue(uuid.NewString)

// Settings is the tunable part of a Service.
type Settings struct {
	// Enabled turns collection on. While disabled, tracking calls are dropped.
	Enabled bool

	// AnonymizeData hashes sensitive event properties.
	AnonymizeData bool

	// BatchSize triggers a flush when any buffer reaches it.
	BatchSize int

	// FlushInterval is the period of the flush timer.
	FlushInterval time.Duration

	// Version is stamped on every payload.
	Version string
}

// DefaultSettings returns enabled collection with anonymization, batches of
// 50 and a 60 second flush interval.
func DefaultSettings() Settings {
	return Settings{
		Enabled:       true,
		AnonymizeData: true,
		BatchSize:     50,
		FlushInterval: 60 * time.Second,
		Version:       "0.0.0",
	}
}

func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.FlushInterval <= 0 {
		s.FlushInterval = d.FlushInterval
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithSink sets where batches are sent. Defaults to DiscardSink.
func WithSink(sink Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithEnvironment sets the workspace probe used to enrich usage records.
func WithEnvironment(env Environment) Option {
	return func(s *Service) {
		if env != nil {
			s.env = env
		}
	}
}

// WithLogger sets the logger used for flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMeter enables flush metrics.
func WithMeter(meter metric.Meter) Option {
	return func(s *Service) {
		s.meter = meter
	}
}

// WithSessionID overrides the process session ID.
func WithSessionID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.sessionID = id
		}
	}
}

// WithSendTimeout bounds each Sink.Send call. Defaults to 10s.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// Service buffers telemetry and flushes it in the background. All methods
// are safe for concurrent use.
type Service struct {
	sink        Sink
	env         Environment
	logger      *slog.Logger
	meter       metric.Meter
	metrics     *otelMetrics
	sessionID   string
	sendTimeout time.Duration

	mu       sync.Mutex
	settings Settings
	events   []Event
	perf     []PerformanceMetric
	usage    []UsageRecord
	closed   bool

	ticker   *time.Ticker
	flushReq chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	flights  singleflight.Group
}

// NewService creates a Service and starts its flush worker. Close must be
// called to stop the worker.
func NewService(settings Settings, opts ...Option) (*Service, error) {
	s := &Service{
		sink:        DiscardSink,
		env:         unknownEnvironment,
		logger:      slog.Default(),
		sessionID:   processSessionID(),
		sendTimeout: 10 * time.Second,
		settings:    settings.normalized(),
		flushReq:    make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics, err := newOTelMetrics(s.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry metrics: %w", err)
	}
	s.metrics = metrics

	s.ticker = time.NewTicker(s.settings.FlushInterval)
	if !s.settings.Enabled {
		s.ticker.Stop()
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// SessionID returns the ID stamped on every event, usage record and payload.
func (s *Service) SessionID() string {
	return s.sessionID
}

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Snapshot reports the current buffer sizes.
func (s *Service) Snapshot() BufferSizes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BufferSizes{
		Events:  len(s.events),
		Metrics: len(s.perf),
		Usage:   len(s.usage),
	}
}

// TrackEvent records a named event. Sensitive properties are hashed when
// anonymization is on.
func (s *Service) TrackEvent(name string, properties map[string]any, measurements map[string]float64) {
	s.mu.Lock()
	if !s.acceptingLocked() {
		s.mu.Unlock()
		return
	}
	if s.settings.AnonymizeData {
		properties = Anonymize(properties)
	} else {
		properties = maps.Clone(properties)
	}
	s.events = append(s.events, Event{
		Name:         name,
		Timestamp:    time.Now(),
		Properties:   properties,
		Measurements: maps.Clone(measurements),
		SessionID:    s.sessionID,
	})
	full := s.fullLocked()
	s.mu.Unlock()

	if full {
		s.requestFlush()
	}
}

// TrackPerformance records an operation's cost.
func (s *Service) TrackPerformance(m PerformanceMetric) {
	s.mu.Lock()
	if !s.acceptingLocked() {
		s.mu.Unlock()
		return
	}
	if m.CPUUsage != nil {
		cpu := *m.CPUUsage
		m.CPUUsage = &cpu
	}
	s.perf = append(s.perf, m)
	full := s.fullLocked()
	s.mu.Unlock()

	if full {
		s.requestFlush()
	}
}

// TrackUsage records that feature was used, enriched with the workspace
// environment.
func (s *Service) TrackUsage(feature, action string, extra map[string]any) {
	s.mu.Lock()
	accepting := s.acceptingLocked()
	s.mu.Unlock()
	if !accepting {
		return
	}

	// Probe outside the lock; a workspace scan may touch the filesystem.
	uc := UsageContext{
		WorkspaceType:   s.env.WorkspaceType(),
		FileCount:       s.env.FileCount(),
		PrimaryLanguage: s.env.PrimaryLanguage(),
		Extra:           maps.Clone(extra),
	}

	s.mu.Lock()
	if !s.acceptingLocked() {
		s.mu.Unlock()
		return
	}
	s.usage = append(s.usage, UsageRecord{
		Feature:   feature,
		Action:    action,
		Timestamp: time.Now(),
		SessionID: s.sessionID,
		Context:   uc,
	})
	full := s.fullLocked()
	s.mu.Unlock()

	if full {
		s.requestFlush()
	}
}

// Flush sends everything buffered now. Concurrent calls share one send.
// Buffers are left intact when the sink fails.
func (s *Service) Flush(ctx context.Context) error {
	return s.flush(ctx, false)
}

// SetEnabled toggles collection. Disabling stops the timer and performs one
// last best-effort flush before returning.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	if s.closed || s.settings.Enabled == enabled {
		s.mu.Unlock()
		return
	}
	s.settings.Enabled = enabled
	interval := s.settings.FlushInterval
	s.mu.Unlock()

	if enabled {
		s.ticker.Reset(interval)
		return
	}
	s.ticker.Stop()
	_ = s.flush(context.Background(), true)
}

// Configure replaces the settings. The timer is restarted when the interval
// changes, and a flush is requested if a smaller batch size is already
// reached.
func (s *Service) Configure(settings Settings) {
	settings = settings.normalized()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasEnabled := s.settings.Enabled
	oldInterval := s.settings.FlushInterval
	// SetEnabled owns the enabled transition.
	settings.Enabled = wasEnabled
	s.settings = settings
	full := wasEnabled && s.fullLocked()
	s.mu.Unlock()

	if wasEnabled && settings.FlushInterval != oldInterval {
		s.ticker.Reset(settings.FlushInterval)
	}
	if full {
		s.requestFlush()
	}
}

// Close stops the worker and performs exactly one final flush. Further
// tracking calls are dropped. Close is idempotent.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.ticker.Stop()
	close(s.done)
	s.wg.Wait()

	return s.flush(ctx, false)
}

func (s *Service) acceptingLocked() bool {
	return !s.closed && s.settings.Enabled
}

func (s *Service) fullLocked() bool {
	n := s.settings.BatchSize
	return len(s.events) >= n || len(s.perf) >= n || len(s.usage) >= n
}

// requestFlush signals the worker. Pending requests coalesce.
func (s *Service) requestFlush() {
	select {
	case s.flushReq <- struct{}{}:
	default:
	}
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			_ = s.flush(context.Background(), false)
		case <-s.flushReq:
			// Drain while the threshold keeps being reached and sends succeed.
			for {
				if err := s.flush(context.Background(), false); err != nil {
					break
				}
				s.mu.Lock()
				again := s.acceptingLocked() && s.fullLocked()
				s.mu.Unlock()
				if !again {
					break
				}
			}
		}
	}
}

func (s *Service) flush(ctx context.Context, force bool) error {
	_, err, _ := s.flights.Do("flush", func() (any, error) {
		return nil, s.send(ctx, force)
	})
	return err
}

// send snapshots all three buffers, sends them without holding the lock and
// removes exactly the sent prefix on success.
func (s *Service) send(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !s.settings.Enabled && !force {
		s.mu.Unlock()
		return nil
	}
	nEvents, nPerf, nUsage := len(s.events), len(s.perf), len(s.usage)
	if nEvents+nPerf+nUsage == 0 {
		s.mu.Unlock()
		return nil
	}
	payload := Payload{
		Events:    append([]Event(nil), s.events...),
		Metrics:   append([]PerformanceMetric(nil), s.perf...),
		Analytics: append([]UsageRecord(nil), s.usage...),
		SessionID: s.sessionID,
		Timestamp: time.Now(),
		Version:   s.settings.Version,
	}
	s.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err := s.sink.Send(sendCtx, payload)
	cancel()
	s.metrics.recordFlush(ctx, payload.Len(), err)
	if err != nil {
		s.logger.Warn("telemetry flush failed",
			"events", nEvents,
			"metrics", nPerf,
			"usage", nUsage,
			"error", err,
		)
		return fmt.Errorf("send telemetry batch: %w", err)
	}

	s.mu.Lock()
	s.events = append([]Event(nil), s.events[nEvents:]...)
	s.perf = append([]PerformanceMetric(nil), s.perf[nPerf:]...)
	s.usage = append([]UsageRecord(nil), s.usage[nUsage:]...)
	s.mu.Unlock()

	s.logger.Debug("telemetry flushed", "items", payload.Len())
	return nil
}
