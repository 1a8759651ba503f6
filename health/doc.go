// Package health reports whether the resilience core can do its job.
//
// The checks cover the dependencies the core relies on at runtime:
//
//   - PingCheck: a backing service (Redis ledger or sink) answers
//   - BacklogCheck: telemetry is keeping up with what is tracked
//   - WorkspaceCheck: the workspace directory exists
//   - Combine: aggregate several checks into a single status
//
// When combining, the result follows this priority:
//
//   - Unhealthy: if any check is unhealthy
//   - Degraded: if any check is degraded and none unhealthy
//   - Healthy: if all checks are healthy
package health
