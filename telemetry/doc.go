// Package telemetry buffers observability signals and ships them in batches
// without blocking callers.
//
// # Overview
//
// A Service keeps three append-only buffers: events, performance metrics and
// usage records. Tracking calls append and return immediately. A background
// worker flushes all three buffers to a Sink in one Payload when either
//
//   - the flush interval elapses, or
//   - any buffer reaches the batch size.
//
// A flush is all-or-nothing: on success the flushed items are removed from
// every buffer, on failure every buffer is left intact for the next attempt.
// Send failures are logged and never reported through the Service itself.
//
// # Anonymization
//
// When enabled, the values of the sensitive property keys email, username,
// path, filePath and url are replaced by a deterministic xxhash digest on
// TrackEvent. Performance metrics and usage context are stored verbatim.
//
// # Lifecycle
//
//	svc, err := telemetry.NewService(telemetry.DefaultSettings(),
//	    telemetry.WithSink(telemetry.NewHTTPSink(telemetry.HTTPSinkOptions{
//	        Endpoint: "https://telemetry.example.com/v1/batch",
//	    })),
//	    telemetry.WithEnvironment(telemetry.NewWorkspaceEnvironment(root)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close(context.Background())
//
//	svc.TrackScan("secrets", 1200*time.Millisecond, 3, true)
//
// SetEnabled(false) stops the timer and flushes what is buffered one last
// time; Close performs exactly one final flush.
package telemetry
