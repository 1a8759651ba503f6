package health

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the health state of one component or of the whole core.
type Status struct {
	// Status is one of StatusHealthy, StatusDegraded or StatusUnhealthy.
	Status string `json:"status"`

	// Message describes the state.
	Message string `json:"message,omitempty"`

	// Details carries diagnostic context.
	Details map[string]any `json:"details,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.Status == StatusHealthy }
func (s Status) IsDegraded() bool  { return s.Status == StatusDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// Healthy creates a healthy status.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

// PingCheck calls ping with a timeout and reports name unhealthy if it
// fails. A nil ctx gets a 5 second timeout.
//
//	status := health.PingCheck(ctx, "recovery ledger", store.Ping)
func PingCheck(ctx context.Context, name string, ping func(context.Context) error) Status {
	if ping == nil {
		return Unhealthy(fmt.Sprintf("%s: no ping function", name), nil)
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	start := time.Now()
	if err := ping(ctx); err != nil {
		return Unhealthy(fmt.Sprintf("%s unreachable", name), map[string]any{
			"error": err.Error(),
		})
	}
	return Status{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%s reachable", name),
		Details: map[string]any{"latency_ms": time.Since(start).Milliseconds()},
	}
}

// BacklogCheck compares buffered items with the batch size. More than two
// batches buffered means flushes are failing (degraded); more than ten
// means telemetry is effectively down (unhealthy).
func BacklogCheck(name string, buffered, batchSize int) Status {
	if batchSize <= 0 {
		batchSize = 1
	}
	details := map[string]any{"buffered": buffered, "batch_size": batchSize}
	switch {
	case buffered > 10*batchSize:
		return Unhealthy(fmt.Sprintf("%s backlog of %d items", name, buffered), details)
	case buffered > 2*batchSize:
		return Degraded(fmt.Sprintf("%s backlog of %d items", name, buffered), details)
	default:
		return Healthy(fmt.Sprintf("%s keeping up", name))
	}
}

// WorkspaceCheck verifies the workspace directory exists. An empty path is
// healthy; the core runs without a workspace.
func WorkspaceCheck(path string) Status {
	if path == "" {
		return Healthy("no workspace configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Degraded(fmt.Sprintf("workspace does not exist: %s", path), map[string]any{"path": path})
		}
		return Unhealthy(fmt.Sprintf("cannot access workspace: %s", path), map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}
	if !info.IsDir() {
		return Unhealthy(fmt.Sprintf("workspace is not a directory: %s", path), map[string]any{"path": path})
	}
	return Healthy(fmt.Sprintf("workspace exists: %s", path))
}

// Combine aggregates checks into one status.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	healthy := 0
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthy++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(unhealthy)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(unhealthy),
			"degraded":      len(degraded),
			"healthy":       healthy,
			"failed_checks": unhealthy,
		})
	}
	if len(degraded) > 0 {
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degraded),
			"healthy":         healthy,
			"degraded_checks": degraded,
		})
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
