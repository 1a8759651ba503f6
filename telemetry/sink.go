package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink receives flushed batches. Send must be safe for concurrent use; a
// non-nil error leaves the batch buffered for the next flush.
type Sink interface {
	Send(ctx context.Context, payload Payload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload Payload) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

// DiscardSink accepts and drops every payload.
var DiscardSink Sink = SinkFunc(func(context.Context, Payload) error { return nil })

// HTTPSinkOptions configures an HTTPSink.
type HTTPSinkOptions struct {
	// Endpoint is the URL batches are POSTed to.
	Endpoint string

	// Headers are added to every request.
	Headers map[string]string

	// Timeout bounds each request. Defaults to 10s.
	Timeout time.Duration

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// HTTPSink POSTs each payload as JSON.
type HTTPSink struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewHTTPSink creates an HTTPSink.
func NewHTTPSink(opts HTTPSinkOptions) *HTTPSink {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSink{
		endpoint: opts.Endpoint,
		headers:  opts.Headers,
		client:   client,
	}
}

// Endpoint returns the target URL.
func (h *HTTPSink) Endpoint() string {
	return h.endpoint
}

// Send POSTs payload to the endpoint. Any non-2xx status is an error.
func (h *HTTPSink) Send(ctx context.Context, payload Payload) error {
	if h.endpoint == "" {
		return fmt.Errorf("telemetry endpoint is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close resource", "resource", "telemetry HTTP response", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// RedisSinkOptions configures a RedisSink.
type RedisSinkOptions struct {
	// URL is a redis:// connection string.
	URL string

	// Key is the list payloads are pushed to. Defaults to "resilience:telemetry".
	Key string

	// MaxLen trims the list to the newest MaxLen payloads when positive.
	MaxLen int64

	// ConnectTimeout bounds the initial ping. Defaults to 5s.
	ConnectTimeout time.Duration
}

// RedisSink pushes each payload as JSON onto a Redis list for a downstream
// consumer to drain.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
	owned  bool
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, opts RedisSinkOptions) (*RedisSink, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisSinkFromClient(client, opts.Key, opts.MaxLen)
	s.owned = true
	return s, nil
}

// NewRedisSinkFromClient wraps an existing client. The caller keeps
// ownership of client.
func NewRedisSinkFromClient(client *redis.Client, key string, maxLen int64) *RedisSink {
	if key == "" {
		key = "resilience:telemetry"
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen}
}

// Key returns the list key.
func (r *RedisSink) Key() string {
	return r.key
}

// Send LPUSHes payload onto the list, trimming it when MaxLen is set.
func (r *RedisSink) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, body)
		if r.maxLen > 0 {
			pipe.LTrim(ctx, r.key, 0, r.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push telemetry payload: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client if the sink created it.
func (r *RedisSink) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
