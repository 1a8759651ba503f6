// Package recovery decides whether a failure can be remediated without
// surfacing it to the user.
//
// # Overview
//
// A Manager combines three pieces:
//
//   - a Registry of named Strategy values kept sorted by priority (lower first)
//   - a retry ledger (LedgerStore) counting attempts per
//     operation|component|fault-kind key, with a ceiling
//   - a Reporter (usually *telemetry.Service) receiving recovery events
//
// AttemptRecovery classifies the fault, runs every applicable strategy
// sequentially in priority order and stops at the first one that reports
// success. On success the ledger entry is deleted and the caller should retry
// the original operation. On failure the manager sleeps an exponential,
// capped backoff before returning false, and the caller surfaces the fault
// using UserFriendlyMessage.
//
// # Wrapping Operations
//
// Do and WithRecovery wrap a fallible function: on error they attempt
// recovery once and retry the function only if recovery succeeded.
//
//	err := recovery.Do(ctx, mgr, "scan", "dependency-scanner", func(ctx context.Context) error {
//	    return scanner.Run(ctx)
//	}, recovery.WithWorkspacePath(root))
//	if err != nil {
//	    ui.ShowError(mgr.UserFriendlyMessage(err, recovery.NewOperationContext("scan", "dependency-scanner")))
//	}
//
// # Concurrency
//
// All Manager methods are safe for concurrent use. Calls sharing a retry key
// are serialized so that the attempt counter is incremented before each
// attempt and the entry is deleted at most once per successful episode.
package recovery
