package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/resilience/recovery"
)

var _ recovery.Reporter = (*Service)(nil)

func TestNewService_Defaults(t *testing.T) {
	svc := newTestService(t, Settings{Enabled: true}, &recordingSink{})

	s := svc.Settings()
	assert.Equal(t, 50, s.BatchSize)
	assert.Equal(t, 60*time.Second, s.FlushInterval)
	assert.NotEmpty(t, svc.SessionID())
}

func TestService_SessionIDSharedAcrossServices(t *testing.T) {
	a := newTestService(t, quietSettings(), &recordingSink{})
	b := newTestService(t, quietSettings(), &recordingSink{})
	c := newTestService(t, quietSettings(), &recordingSink{}, WithSessionID("fixed"))

	assert.Equal(t, a.SessionID(), b.SessionID())
	assert.Equal(t, "fixed", c.SessionID())
}

func TestService_FlushOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	settings := quietSettings()
	settings.BatchSize = 5
	svc := newTestService(t, settings, sink)

	for i := 0; i < 3; i++ {
		svc.TrackEvent("a", nil, nil)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.Calls(), "below batch size must not flush")

	for i := 0; i < 2; i++ {
		svc.TrackEvent("b", nil, nil)
	}

	require.Eventually(t, func() bool { return len(sink.Payloads()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	payloads := sink.Payloads()
	require.Len(t, payloads, 1)
	assert.Len(t, payloads[0].Events, 5)
	assert.Equal(t, "1.2.3", payloads[0].Version)
	assert.Equal(t, svc.SessionID(), payloads[0].SessionID)
	assert.Equal(t, BufferSizes{}, svc.Snapshot())
}

func TestService_FlushOnTimer(t *testing.T) {
	sink := &recordingSink{}
	settings := quietSettings()
	settings.FlushInterval = 20 * time.Millisecond
	svc := newTestService(t, settings, sink)

	svc.TrackEvent("tick", nil, nil)

	require.Eventually(t, func() bool { return sink.EventCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, svc.Snapshot().Events)
}

func TestService_FailedFlushKeepsBuffers(t *testing.T) {
	sink := &recordingSink{failN: 1}
	svc := newTestService(t, quietSettings(), sink)

	svc.TrackEvent("e", nil, nil)
	svc.TrackPerformance(PerformanceMetric{Operation: "op", Duration: time.Millisecond, Success: true})
	svc.TrackUsage("scan", "run", nil)

	err := svc.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSinkDown))
	assert.Equal(t, BufferSizes{Events: 1, Metrics: 1, Usage: 1}, svc.Snapshot())

	require.NoError(t, svc.Flush(context.Background()))
	assert.Equal(t, BufferSizes{}, svc.Snapshot())

	payloads := sink.Payloads()
	require.Len(t, payloads, 1)
	assert.Len(t, payloads[0].Events, 1)
	assert.Len(t, payloads[0].Metrics, 1)
	assert.Len(t, payloads[0].Analytics, 1)
}

func TestService_ItemsAddedDuringSendSurvive(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, quietSettings(), sink)

	var once sync.Once
	sink.onSend = func(Payload) {
		once.Do(func() { svc.TrackEvent("late", nil, nil) })
	}

	svc.TrackEvent("early", nil, nil)
	require.NoError(t, svc.Flush(context.Background()))

	payloads := sink.Payloads()
	require.Len(t, payloads, 1)
	require.Len(t, payloads[0].Events, 1)
	assert.Equal(t, "early", payloads[0].Events[0].Name)
	assert.Equal(t, 1, svc.Snapshot().Events)
}

func TestService_FlushEmptyDoesNotSend(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, quietSettings(), sink)

	require.NoError(t, svc.Flush(context.Background()))
	assert.Equal(t, 0, sink.Calls())
}

func TestService_DisabledDropsTracking(t *testing.T) {
	sink := &recordingSink{}
	settings := quietSettings()
	settings.Enabled = false
	svc := newTestService(t, settings, sink)

	svc.TrackEvent("e", nil, nil)
	svc.TrackPerformance(PerformanceMetric{Operation: "op"})
	svc.TrackUsage("f", "a", nil)

	assert.Equal(t, BufferSizes{}, svc.Snapshot())
	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, 0, sink.Calls())
}

func TestService_SetEnabledFalseFlushes(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, quietSettings(), sink)

	svc.TrackEvent("a", nil, nil)
	svc.TrackEvent("b", nil, nil)
	svc.SetEnabled(false)

	assert.Equal(t, 2, sink.EventCount())
	assert.False(t, svc.Settings().Enabled)

	svc.TrackEvent("dropped", nil, nil)
	assert.Equal(t, 0, svc.Snapshot().Events)
}

func TestService_SetEnabledTrueRestartsTimer(t *testing.T) {
	sink := &recordingSink{}
	settings := quietSettings()
	settings.Enabled = false
	settings.FlushInterval = 20 * time.Millisecond
	svc := newTestService(t, settings, sink)

	svc.SetEnabled(true)
	svc.TrackEvent("after", nil, nil)

	require.Eventually(t, func() bool { return sink.EventCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestService_ConfigureSmallerBatchFlushes(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, quietSettings(), sink)

	for i := 0; i < 3; i++ {
		svc.TrackEvent("e", nil, nil)
	}
	assert.Equal(t, 0, sink.Calls())

	s := quietSettings()
	s.BatchSize = 2
	svc.Configure(s)

	require.Eventually(t, func() bool { return sink.EventCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, svc.Settings().BatchSize)
}

func TestService_ConfigureKeepsEnabledState(t *testing.T) {
	svc := newTestService(t, quietSettings(), &recordingSink{})

	s := quietSettings()
	s.Enabled = false
	svc.Configure(s)

	assert.True(t, svc.Settings().Enabled)
}

func TestService_Close(t *testing.T) {
	sink := &recordingSink{}
	svc, err := NewService(quietSettings(), WithSink(sink))
	require.NoError(t, err)

	svc.TrackEvent("last", nil, nil)
	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, 1, sink.Calls())

	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, 1, sink.Calls(), "second close must not flush again")

	svc.TrackEvent("ignored", nil, nil)
	assert.Equal(t, 0, svc.Snapshot().Events)
}

func TestService_CloseReportsFinalFlushFailure(t *testing.T) {
	sink := &recordingSink{failN: 1}
	svc, err := NewService(quietSettings(), WithSink(sink))
	require.NoError(t, err)

	svc.TrackEvent("last", nil, nil)
	assert.Error(t, svc.Close(context.Background()))
	assert.Equal(t, 1, sink.Calls())
}

func TestService_ConcurrentTracking(t *testing.T) {
	sink := &recordingSink{}
	settings := quietSettings()
	settings.BatchSize = 64
	svc, err := NewService(settings, WithSink(sink))
	require.NoError(t, err)

	const workers, perWorker = 20, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				svc.TrackEvent(fmt.Sprintf("w%d-%d", w, i), nil, nil)
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, svc.Close(context.Background()))

	seen := make(map[string]bool)
	for _, p := range sink.Payloads() {
		for _, e := range p.Events {
			assert.False(t, seen[e.Name], "event %s delivered twice", e.Name)
			seen[e.Name] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestService_AnonymizesEventProperties(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, quietSettings(), sink)

	svc.TrackEvent("login", map[string]any{
		"email":  "dev@example.com",
		"action": "open",
	}, nil)
	svc.TrackEvent("login", map[string]any{"email": "dev@example.com"}, nil)
	require.NoError(t, svc.Flush(context.Background()))

	events := sink.Payloads()[0].Events
	require.Len(t, events, 2)
	assert.Equal(t, Hash("dev@example.com"), events[0].Properties["email"])
	assert.Equal(t, events[0].Properties["email"], events[1].Properties["email"])
	assert.Equal(t, "open", events[0].Properties["action"])
}

func TestService_AnonymizeOff(t *testing.T) {
	sink := &recordingSink{}
	settings := quietSettings()
	settings.AnonymizeData = false
	svc := newTestService(t, settings, sink)

	props := map[string]any{"path": "/home/dev/project"}
	svc.TrackEvent("open", props, nil)
	props["path"] = "mutated"
	require.NoError(t, svc.Flush(context.Background()))

	assert.Equal(t, "/home/dev/project", sink.Payloads()[0].Events[0].Properties["path"])
}

func TestService_TrackUsageEnrichesFromEnvironment(t *testing.T) {
	sink := &recordingSink{}
	env := StaticEnvironment{Type: "go", Files: 12, Language: "go"}
	svc := newTestService(t, quietSettings(), sink, WithEnvironment(env))

	svc.TrackUsage("scan", "started", map[string]any{"target": "api"})
	require.NoError(t, svc.Flush(context.Background()))

	rec := sink.Payloads()[0].Analytics[0]
	assert.Equal(t, "scan", rec.Feature)
	assert.Equal(t, "started", rec.Action)
	assert.Equal(t, svc.SessionID(), rec.SessionID)
	assert.Equal(t, UsageContext{
		WorkspaceType:   "go",
		FileCount:       12,
		PrimaryLanguage: "go",
		Extra:           map[string]any{"target": "api"},
	}, rec.Context)
}

func TestService_TrackUsageWithoutEnvironment(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, quietSettings(), sink)

	svc.TrackUsage("scan", "started", nil)
	require.NoError(t, svc.Flush(context.Background()))

	rec := sink.Payloads()[0].Analytics[0]
	assert.Equal(t, "unknown", rec.Context.WorkspaceType)
	assert.Equal(t, "unknown", rec.Context.PrimaryLanguage)
}

func TestService_FlushHonorsSendTimeout(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, _ Payload) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := newTestService(t, quietSettings(), sink, WithSendTimeout(10*time.Millisecond))

	svc.TrackEvent("slow", nil, nil)
	err := svc.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, svc.Snapshot().Events)
}
