package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdKey is the key read when EtcdOptions.Key is empty.
const DefaultEtcdKey = "/resilience/config"

// EtcdOptions configures an EtcdSource.
type EtcdOptions struct {
	Endpoints []string
	Key       string
	Username  string
	Password  string

	// DialTimeout defaults to 5s.
	DialTimeout time.Duration

	// Logger receives skipped updates. Default: slog.Default()
	Logger *slog.Logger
}

// EtcdSource reads the YAML configuration from a single etcd key and
// watches it for changes.
//
// A missing key yields Default(). Thread-safety: all methods are safe for
// concurrent use.
type EtcdSource struct {
	client *clientv3.Client
	key    string
	owned  bool
	logger *slog.Logger

	mu         sync.Mutex
	closed     bool
	closedChan chan struct{}
	wg         sync.WaitGroup
}

// NewEtcdSource connects to etcd and verifies connectivity.
func NewEtcdSource(opts EtcdOptions) (*EtcdSource, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: dialTimeout,
		Username:    opts.Username,
		Password:    opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		_ = cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	s := NewEtcdSourceFromClient(cli, opts.Key, opts.Logger)
	s.owned = true
	return s, nil
}

// NewEtcdSourceFromEnv creates a source from RESILIENCE_CONFIG_ENDPOINTS
// (comma-separated) and RESILIENCE_CONFIG_KEY.
//
// It returns (nil, nil) when RESILIENCE_CONFIG_ENDPOINTS is unset so callers
// can fall back to file configuration.
func NewEtcdSourceFromEnv() (*EtcdSource, error) {
	endpoints := os.Getenv("RESILIENCE_CONFIG_ENDPOINTS")
	if endpoints == "" {
		return nil, nil
	}

	var list []string
	for _, ep := range strings.Split(endpoints, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			list = append(list, ep)
		}
	}

	return NewEtcdSource(EtcdOptions{
		Endpoints: list,
		Key:       os.Getenv("RESILIENCE_CONFIG_KEY"),
	})
}

// NewEtcdSourceFromClient wraps an existing client. The caller keeps
// ownership of cli.
func NewEtcdSourceFromClient(cli *clientv3.Client, key string, logger *slog.Logger) *EtcdSource {
	if key == "" {
		key = DefaultEtcdKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EtcdSource{
		client:     cli,
		key:        key,
		logger:     logger,
		closedChan: make(chan struct{}),
	}
}

// Key returns the watched key.
func (s *EtcdSource) Key() string {
	return s.key
}

// Load fetches and validates the current configuration.
func (s *EtcdSource) Load(ctx context.Context) (*Config, error) {
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return Default(), nil
	}
	return Parse(resp.Kvs[0].Value)
}

// Watch returns a channel that receives the current configuration
// immediately and again after every change to the key. Invalid documents
// are logged and skipped; deleting the key yields Default().
//
// The channel is closed when ctx is canceled or Close is called.
func (s *EtcdSource) Watch(ctx context.Context) (<-chan *Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("etcd config source is closed")
	}

	initial, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Config, 1)
	ch <- initial

	watchChan := s.client.Watch(ctx, s.key)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closedChan:
				return
			case resp, ok := <-watchChan:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					s.logger.Warn("etcd config watch failed", "key", s.key, "error", err)
					return
				}

				for _, ev := range resp.Events {
					cfg, ok := s.decode(ev)
					if !ok {
						continue
					}
					select {
					case ch <- cfg:
					case <-ctx.Done():
						return
					case <-s.closedChan:
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

func (s *EtcdSource) decode(ev *clientv3.Event) (*Config, bool) {
	if ev.Type == clientv3.EventTypeDelete {
		return Default(), true
	}
	cfg, err := Parse(ev.Kv.Value)
	if err != nil {
		s.logger.Warn("skipping invalid configuration from etcd",
			"key", s.key,
			"revision", ev.Kv.ModRevision,
			"error", err,
		)
		return nil, false
	}
	return cfg, true
}

// Put stores cfg under the key.
func (s *EtcdSource) Put(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if _, err := s.client.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key, err)
	}
	return nil
}

// Close stops active watches and releases the client if the source
// created it.
func (s *EtcdSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closedChan)
	s.mu.Unlock()

	s.wg.Wait()
	if s.owned {
		return s.client.Close()
	}
	return nil
}
