// Package config provides loading, validation and hot reload of the
// resilience.yaml configuration.
//
// The document has two sections, telemetry and recovery. Every field is
// optional; the Get* accessors return defaults for unset or unparsable
// values so a partially written file still yields a usable configuration.
// Durations are Go duration strings ("500ms", "1m").
//
// Configuration can be read from a file (Load, Watcher) or from an etcd key
// (EtcdSource).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Sink kinds.
const (
	SinkHTTP  = "http"
	SinkRedis = "redis"
)

// Ledger backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Strategy actions.
const (
	ActionWait    = "wait"
	ActionCommand = "command"
)

// Config represents a resilience.yaml document.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
}

// TelemetryConfig configures the telemetry service and its sink.
type TelemetryConfig struct {
	// Enabled turns collection on. Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// AnonymizeData hashes sensitive event properties. Default: true
	AnonymizeData *bool `yaml:"anonymize_data,omitempty"`

	// BatchSize flushes when any buffer reaches it. Default: 50
	BatchSize int `yaml:"batch_size,omitempty"`

	// FlushInterval is the flush timer period. Default: 60s
	FlushInterval string `yaml:"flush_interval,omitempty"`

	// Sink is "http" or "redis". Default: http
	Sink string `yaml:"sink,omitempty"`

	// Endpoint is the HTTP sink URL. Telemetry is sent nowhere when empty.
	Endpoint string `yaml:"endpoint,omitempty"`

	// RedisURL and RedisKey configure the redis sink.
	RedisURL string `yaml:"redis_url,omitempty"`
	RedisKey string `yaml:"redis_key,omitempty"`

	// Version is stamped on every payload.
	Version string `yaml:"version,omitempty"`
}

// RecoveryConfig configures the recovery manager.
type RecoveryConfig struct {
	// MaxRetries is the attempt ceiling per key. Default: 3
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// BaseDelay is the first backoff delay. Default: 1s
	BaseDelay string `yaml:"base_delay,omitempty"`

	// MaxDelay caps the backoff. Default: 30s
	MaxDelay string `yaml:"max_delay,omitempty"`

	// NetworkRetryDelay is the wait of the built-in network strategy. Default: 1s
	NetworkRetryDelay string `yaml:"network_retry_delay,omitempty"`

	Ledger     LedgerConfig     `yaml:"ledger,omitempty"`
	Strategies []StrategyConfig `yaml:"strategies,omitempty"`

	// Commands maps host command names (e.g. "resilience.authenticate") to
	// programs run by command-driven strategies.
	Commands map[string]CommandConfig `yaml:"commands,omitempty"`
}

// CommandConfig describes a host program.
type CommandConfig struct {
	// Run is the program followed by its arguments.
	Run []string `yaml:"run"`

	WorkDir string   `yaml:"work_dir,omitempty"`
	Env     []string `yaml:"env,omitempty"`

	// Timeout bounds each run. Default: 30s
	Timeout string `yaml:"timeout,omitempty"`
}

// LedgerConfig selects where attempt counts are kept.
type LedgerConfig struct {
	// Backend is "memory" or "redis". Default: memory
	Backend string `yaml:"backend,omitempty"`

	RedisURL string `yaml:"redis_url,omitempty"`

	// Prefix namespaces Redis keys. Default: resilience:ledger
	Prefix string `yaml:"prefix,omitempty"`

	// TTL expires idle Redis entries. Zero keeps them until cleared.
	TTL string `yaml:"ttl,omitempty"`
}

// StrategyConfig declares a strategy whose applicability is a CEL expression.
type StrategyConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Priority    int    `yaml:"priority"`

	// When is a CEL expression evaluating to bool.
	When string `yaml:"when"`

	// Action is "wait" or "command". Default: wait
	Action string `yaml:"action,omitempty"`

	// Command is executed by the "command" action.
	Command string `yaml:"command,omitempty"`

	// Delay is waited by the "wait" action. Default: 1s
	Delay string `yaml:"delay,omitempty"`
}

// Default returns an empty configuration; every getter yields its default.
func Default() *Config {
	return &Config{}
}

// Load reads, parses and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports every problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	t := c.Telemetry
	if t.BatchSize < 0 {
		add("telemetry.batch_size must not be negative")
	}
	checkDuration(add, "telemetry.flush_interval", t.FlushInterval)
	switch t.Sink {
	case "", SinkHTTP:
	case SinkRedis:
		if t.RedisURL == "" {
			add("telemetry.redis_url is required for the redis sink")
		}
	default:
		add("telemetry.sink %q is not one of http, redis", t.Sink)
	}

	r := c.Recovery
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		add("recovery.max_retries must not be negative")
	}
	checkDuration(add, "recovery.base_delay", r.BaseDelay)
	checkDuration(add, "recovery.max_delay", r.MaxDelay)
	checkDuration(add, "recovery.network_retry_delay", r.NetworkRetryDelay)
	checkDuration(add, "recovery.ledger.ttl", r.Ledger.TTL)
	switch r.Ledger.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if r.Ledger.RedisURL == "" {
			add("recovery.ledger.redis_url is required for the redis backend")
		}
	default:
		add("recovery.ledger.backend %q is not one of memory, redis", r.Ledger.Backend)
	}

	seen := make(map[string]bool, len(r.Strategies))
	for i, s := range r.Strategies {
		field := fmt.Sprintf("recovery.strategies[%d]", i)
		switch {
		case s.Name == "":
			add("%s.name is required", field)
		case seen[s.Name]:
			add("%s.name %q is duplicated", field, s.Name)
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.When) == "" {
			add("%s.when is required", field)
		}
		switch s.Action {
		case "", ActionWait:
		case ActionCommand:
			if s.Command == "" {
				add("%s.command is required for the command action", field)
			}
		default:
			add("%s.action %q is not one of wait, command", field, s.Action)
		}
		checkDuration(add, field+".delay", s.Delay)
	}

	for _, name := range slices.Sorted(maps.Keys(r.Commands)) {
		cmd := r.Commands[name]
		field := fmt.Sprintf("recovery.commands[%s]", name)
		if len(cmd.Run) == 0 || cmd.Run[0] == "" {
			add("%s.run is required", field)
		}
		checkDuration(add, field+".timeout", cmd.Timeout)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func checkDuration(add func(string, ...any), field, value string) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		add("%s %q is not a duration", field, value)
		return
	}
	if d < 0 {
		add("%s must not be negative", field)
	}
}

// parseDuration returns def for empty or unparsable values.
func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// IsEnabled returns whether telemetry is on. Default: true
func (t TelemetryConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// ShouldAnonymize returns whether sensitive properties are hashed. Default: true
func (t TelemetryConfig) ShouldAnonymize() bool {
	return t.AnonymizeData == nil || *t.AnonymizeData
}

// GetBatchSize returns the batch size or 50.
func (t TelemetryConfig) GetBatchSize() int {
	if t.BatchSize <= 0 {
		return 50
	}
	return t.BatchSize
}

// GetFlushInterval returns the flush interval or 60s.
func (t TelemetryConfig) GetFlushInterval() time.Duration {
	d := parseDuration(t.FlushInterval, 60*time.Second)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetSink returns the sink kind or "http".
func (t TelemetryConfig) GetSink() string {
	if t.Sink == "" {
		return SinkHTTP
	}
	return t.Sink
}

// GetRedisKey returns the redis sink list key or "resilience:telemetry".
func (t TelemetryConfig) GetRedisKey() string {
	if t.RedisKey == "" {
		return "resilience:telemetry"
	}
	return t.RedisKey
}

// GetVersion returns the payload version or "0.0.0".
func (t TelemetryConfig) GetVersion() string {
	if t.Version == "" {
		return "0.0.0"
	}
	return t.Version
}

// GetMaxRetries returns the attempt ceiling or 3.
func (r RecoveryConfig) GetMaxRetries() int {
	if r.MaxRetries == nil || *r.MaxRetries < 0 {
		return 3
	}
	return *r.MaxRetries
}

// GetBaseDelay returns the first backoff delay or 1s.
func (r RecoveryConfig) GetBaseDelay() time.Duration {
	return parseDuration(r.BaseDelay, time.Second)
}

// GetMaxDelay returns the backoff cap or 30s.
func (r RecoveryConfig) GetMaxDelay() time.Duration {
	d := parseDuration(r.MaxDelay, 30*time.Second)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetNetworkRetryDelay returns the network strategy wait or 1s.
func (r RecoveryConfig) GetNetworkRetryDelay() time.Duration {
	return parseDuration(r.NetworkRetryDelay, time.Second)
}

// GetBackend returns the ledger backend or "memory".
func (l LedgerConfig) GetBackend() string {
	if l.Backend == "" {
		return BackendMemory
	}
	return l.Backend
}

// GetPrefix returns the Redis key prefix or "resilience:ledger".
func (l LedgerConfig) GetPrefix() string {
	if l.Prefix == "" {
		return "resilience:ledger"
	}
	return l.Prefix
}

// GetTTL returns the idle-entry TTL, zero meaning no expiry.
func (l LedgerConfig) GetTTL() time.Duration {
	return parseDuration(l.TTL, 0)
}

// GetAction returns the action or "wait".
func (s StrategyConfig) GetAction() string {
	if s.Action == "" {
		return ActionWait
	}
	return s.Action
}

// GetDelay returns the wait delay or 1s.
func (s StrategyConfig) GetDelay() time.Duration {
	return parseDuration(s.Delay, time.Second)
}

// GetTimeout returns the run timeout or 30s.
func (c CommandConfig) GetTimeout() time.Duration {
	d := parseDuration(c.Timeout, 30*time.Second)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}
