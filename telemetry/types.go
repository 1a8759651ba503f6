package telemetry

import (
	"encoding/json"
	"runtime"
	"time"
)

// Event is a named occurrence with free-form properties.
type Event struct {
	Name         string             `json:"name"`
	Timestamp    time.Time          `json:"timestamp"`
	Properties   map[string]any     `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
	SessionID    string             `json:"sessionId"`
}

// PerformanceMetric records the cost of one operation.
type PerformanceMetric struct {
	Operation   string        `json:"operation"`
	Duration    time.Duration `json:"-"`
	MemoryUsage uint64        `json:"memoryUsage"`
	CPUUsage    *float64      `json:"cpuUsage,omitempty"`
	Success     bool          `json:"success"`
	ErrorType   string        `json:"errorType,omitempty"`
}

// MarshalJSON encodes Duration as fractional milliseconds under "duration".
func (m PerformanceMetric) MarshalJSON() ([]byte, error) {
	type alias PerformanceMetric
	return json.Marshal(struct {
		alias
		DurationMS float64 `json:"duration"`
	}{
		alias:      alias(m),
		DurationMS: float64(m.Duration) / float64(time.Millisecond),
	})
}

// NewPerformanceMetric builds a metric for operation, sampling current heap
// usage. A non-empty errorType marks the operation as failed.
func NewPerformanceMetric(operation string, duration time.Duration, errorType string) PerformanceMetric {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return PerformanceMetric{
		Operation:   operation,
		Duration:    duration,
		MemoryUsage: ms.HeapAlloc,
		Success:     errorType == "",
		ErrorType:   errorType,
	}
}

// UsageContext snapshots the host workspace at tracking time.
type UsageContext struct {
	WorkspaceType   string         `json:"workspaceType"`
	FileCount       int            `json:"fileCount"`
	PrimaryLanguage string         `json:"primaryLanguage"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// UsageRecord records that a feature was used.
type UsageRecord struct {
	Feature   string       `json:"feature"`
	Action    string       `json:"action"`
	Timestamp time.Time    `json:"timestamp"`
	SessionID string       `json:"sessionId"`
	Context   UsageContext `json:"context"`
}

// Payload is the body sent to a Sink on flush.
type Payload struct {
	Events    []Event             `json:"events"`
	Metrics   []PerformanceMetric `json:"metrics"`
	Analytics []UsageRecord       `json:"analytics"`
	SessionID string              `json:"sessionId"`
	Timestamp time.Time           `json:"timestamp"`
	Version   string              `json:"version"`
}

// Len returns the total number of items in the payload.
func (p Payload) Len() int {
	return len(p.Events) + len(p.Metrics) + len(p.Analytics)
}

// BufferSizes reports how many items each buffer holds.
type BufferSizes struct {
	Events  int
	Metrics int
	Usage   int
}
