package telemetry

import (
	"fmt"
	"maps"
	"time"

	"github.com/zero-day-ai/resilience/fault"
)

// Event names emitted by the convenience trackers.
const (
	EventError          = "error"
	EventFeatureUsage   = "feature_usage"
	EventScan           = "scan_completed"
	EventAuthentication = "authentication"
)

// stackTracer is implemented by errors that carry a stack trace.
type stackTracer interface {
	StackTrace() string
}

// TrackError records err as an "error" event. errCtx and properties are
// merged with properties taking precedence; the error's message, kind,
// category and severity are added on top.
func (s *Service) TrackError(err error, errCtx map[string]any, properties map[string]any) {
	if fault.IsNil(err) {
		return
	}

	props := make(map[string]any, len(errCtx)+len(properties)+5)
	maps.Copy(props, errCtx)
	maps.Copy(props, properties)
	props["errorMessage"] = err.Error()
	props["errorKind"] = fault.Kind(err)
	props["errorCategory"] = string(fault.Classify(err))
	props["errorSeverity"] = string(fault.SeverityOf(err))
	if st, ok := err.(stackTracer); ok {
		props["errorStack"] = st.StackTrace()
	}

	s.TrackEvent(EventError, props, map[string]float64{"errorCount": 1})
}

// TrackFeatureUsage records a feature_usage event and a matching usage record.
func (s *Service) TrackFeatureUsage(feature string, properties map[string]any) {
	props := make(map[string]any, len(properties)+1)
	maps.Copy(props, properties)
	props["feature"] = feature

	s.TrackEvent(EventFeatureUsage, props, nil)
	s.TrackUsage(feature, "used", properties)
}

// TrackScan records a completed scan, a matching usage record and the
// scan's performance.
func (s *Service) TrackScan(scanType string, duration time.Duration, findings int, success bool) {
	props := map[string]any{
		"scanType": scanType,
		"success":  success,
	}
	s.TrackEvent(EventScan, props,
		map[string]float64{
			"duration": float64(duration) / float64(time.Millisecond),
			"findings": float64(findings),
		},
	)

	errType := ""
	if !success {
		errType = "scan_failed"
	}
	s.TrackUsage("scan", scanType, map[string]any{
		"success":  success,
		"findings": findings,
	})
	s.TrackPerformance(NewPerformanceMetric(fmt.Sprintf("scan.%s", scanType), duration, errType))
}

// TrackAuthentication records a sign-in attempt and a matching usage record.
func (s *Service) TrackAuthentication(provider string, success bool) {
	props := map[string]any{
		"provider": provider,
		"success":  success,
	}
	s.TrackEvent(EventAuthentication, props, nil)
	s.TrackUsage("authentication", provider, map[string]any{"success": success})
}

// TrackOperation records the performance of an operation that started at
// start and finished with err.
func (s *Service) TrackOperation(operation string, start time.Time, err error) {
	errType := ""
	if err != nil {
		errType = fault.Kind(err)
	}
	s.TrackPerformance(NewPerformanceMetric(operation, time.Since(start), errType))
}
