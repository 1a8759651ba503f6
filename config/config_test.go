package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDoc = `
telemetry:
  enabled: false
  anonymize_data: false
  batch_size: 10
  flush_interval: 5s
  sink: redis
  redis_url: redis://localhost:6379/1
  redis_key: events
  version: 2.1.0
recovery:
  max_retries: 0
  base_delay: 250ms
  max_delay: 4s
  network_retry_delay: 2s
  ledger:
    backend: redis
    redis_url: redis://localhost:6379/2
    prefix: svc:ledger
    ttl: 1h
  strategies:
    - name: rate-limit-wait
      description: wait out provider rate limits
      priority: 0
      when: 'category == "network" && message.contains("429")'
      delay: 2s
    - name: relogin
      priority: 7
      when: 'category == "authentication"'
      action: command
      command: app.login
  commands:
    app.login:
      run: [gh, auth, refresh]
      timeout: 45s
    resilience.resetConfiguration:
      run: [app, config, reset]
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullDoc))
	require.NoError(t, err)

	tc := cfg.Telemetry
	assert.False(t, tc.IsEnabled())
	assert.False(t, tc.ShouldAnonymize())
	assert.Equal(t, 10, tc.GetBatchSize())
	assert.Equal(t, 5*time.Second, tc.GetFlushInterval())
	assert.Equal(t, SinkRedis, tc.GetSink())
	assert.Equal(t, "events", tc.GetRedisKey())
	assert.Equal(t, "2.1.0", tc.GetVersion())

	rc := cfg.Recovery
	assert.Equal(t, 0, rc.GetMaxRetries())
	assert.Equal(t, 250*time.Millisecond, rc.GetBaseDelay())
	assert.Equal(t, 4*time.Second, rc.GetMaxDelay())
	assert.Equal(t, 2*time.Second, rc.GetNetworkRetryDelay())
	assert.Equal(t, BackendRedis, rc.Ledger.GetBackend())
	assert.Equal(t, "svc:ledger", rc.Ledger.GetPrefix())
	assert.Equal(t, time.Hour, rc.Ledger.GetTTL())

	require.Len(t, rc.Strategies, 2)
	assert.Equal(t, ActionWait, rc.Strategies[0].GetAction())
	assert.Equal(t, 2*time.Second, rc.Strategies[0].GetDelay())
	assert.Equal(t, ActionCommand, rc.Strategies[1].GetAction())
	assert.Equal(t, "app.login", rc.Strategies[1].Command)

	require.Len(t, rc.Commands, 2)
	assert.Equal(t, []string{"gh", "auth", "refresh"}, rc.Commands["app.login"].Run)
	assert.Equal(t, 45*time.Second, rc.Commands["app.login"].GetTimeout())
	assert.Equal(t, 30*time.Second, rc.Commands["resilience.resetConfiguration"].GetTimeout())
}

func TestParse_Defaults(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":    "",
		"sections": "telemetry: {}\nrecovery: {}\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse([]byte(doc))
			require.NoError(t, err)

			assert.True(t, cfg.Telemetry.IsEnabled())
			assert.True(t, cfg.Telemetry.ShouldAnonymize())
			assert.Equal(t, 50, cfg.Telemetry.GetBatchSize())
			assert.Equal(t, 60*time.Second, cfg.Telemetry.GetFlushInterval())
			assert.Equal(t, SinkHTTP, cfg.Telemetry.GetSink())
			assert.Equal(t, "resilience:telemetry", cfg.Telemetry.GetRedisKey())
			assert.Equal(t, 3, cfg.Recovery.GetMaxRetries())
			assert.Equal(t, time.Second, cfg.Recovery.GetBaseDelay())
			assert.Equal(t, 30*time.Second, cfg.Recovery.GetMaxDelay())
			assert.Equal(t, BackendMemory, cfg.Recovery.Ledger.GetBackend())
			assert.Equal(t, "resilience:ledger", cfg.Recovery.Ledger.GetPrefix())
			assert.Zero(t, cfg.Recovery.Ledger.GetTTL())
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("telemetry:\n  batchsize: 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"negative batch", "telemetry:\n  batch_size: -1\n", "telemetry.batch_size"},
		{"bad interval", "telemetry:\n  flush_interval: soon\n", "telemetry.flush_interval"},
		{"negative delay", "recovery:\n  base_delay: -1s\n", "recovery.base_delay must not be negative"},
		{"unknown sink", "telemetry:\n  sink: kafka\n", `telemetry.sink "kafka"`},
		{"redis sink without url", "telemetry:\n  sink: redis\n", "telemetry.redis_url"},
		{"negative retries", "recovery:\n  max_retries: -2\n", "recovery.max_retries"},
		{"unknown backend", "recovery:\n  ledger:\n    backend: disk\n", `backend "disk"`},
		{"redis backend without url", "recovery:\n  ledger:\n    backend: redis\n", "recovery.ledger.redis_url"},
		{"strategy without name", "recovery:\n  strategies:\n    - when: 'true'\n", "strategies[0].name is required"},
		{"strategy without when", "recovery:\n  strategies:\n    - name: a\n", "strategies[0].when is required"},
		{"duplicate strategy", "recovery:\n  strategies:\n    - {name: a, when: 'true'}\n    - {name: a, when: 'true'}\n", `strategies[1].name "a" is duplicated`},
		{"unknown action", "recovery:\n  strategies:\n    - {name: a, when: 'true', action: pray}\n", `action "pray"`},
		{"command without run", "recovery:\n  commands:\n    app.login: {run: []}\n", "recovery.commands[app.login].run is required"},
		{"bad command timeout", "recovery:\n  commands:\n    app.login: {run: [x], timeout: later}\n", "recovery.commands[app.login].timeout"},
		{"command without command", "recovery:\n  strategies:\n    - {name: a, when: 'true', action: command}\n", "command is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	cfg.Telemetry.BatchSize = -1
	cfg.Telemetry.Sink = "kafka"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "kafka")
}

func TestGetters_InvalidValuesFallBack(t *testing.T) {
	tc := TelemetryConfig{FlushInterval: "0s", BatchSize: -4}
	assert.Equal(t, 60*time.Second, tc.GetFlushInterval())
	assert.Equal(t, 50, tc.GetBatchSize())

	rc := RecoveryConfig{BaseDelay: "nope", MaxDelay: "0s"}
	assert.Equal(t, time.Second, rc.GetBaseDelay())
	assert.Equal(t, 30*time.Second, rc.GetMaxDelay())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resilience.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Telemetry.GetBatchSize())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestMarshal_ParsesBack(t *testing.T) {
	cfg, err := Parse([]byte(fullDoc))
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
