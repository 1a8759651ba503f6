package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errSinkDown = errors.New("sink down")

// recordingSink stores every payload it accepts. The first failN sends fail.
type recordingSink struct {
	mu       sync.Mutex
	payloads []Payload
	calls    int
	failN    int
	onSend   func(Payload)
}

func (r *recordingSink) Send(_ context.Context, p Payload) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failN
	hook := r.onSend
	r.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	if fail {
		return errSinkDown
	}

	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Payloads() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payload(nil), r.payloads...)
}

func (r *recordingSink) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *recordingSink) EventCount() int {
	n := 0
	for _, p := range r.Payloads() {
		n += len(p.Events)
	}
	return n
}

func newTestService(t *testing.T, settings Settings, sink Sink, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithSink(sink)}, opts...)
	svc, err := NewService(settings, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

// quietSettings never flushes on its own during a test.
func quietSettings() Settings {
	return Settings{
		Enabled:       true,
		AnonymizeData: true,
		BatchSize:     1000,
		FlushInterval: time.Hour,
		Version:       "1.2.3",
	}
}
