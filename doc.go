// Package resilience recovers from runtime faults and reports what happened.
//
// Faults are classified by the fault package into a category and a severity.
// The recovery package picks prioritized strategies to remediate them while
// bounding retries per (operation, component, kind) key. The telemetry
// package batches events, metrics and usage records to a sink in the
// background.
//
// # Getting Started
//
// Core wires the pieces together and replaces any process-wide singleton:
//
//	cfg, err := config.Load("resilience.yaml")
//	if err != nil {
//		return err
//	}
//
//	core, err := resilience.New(ctx, cfg,
//		resilience.WithLogger(logger),
//		resilience.WithCommands(hostCommands),
//		resilience.WithWorkspace(workspaceRoot),
//	)
//	if err != nil {
//		return err
//	}
//	defer core.Close(context.Background())
//
//	err = core.Do(ctx, "fetchFindings", "scanner", func(ctx context.Context) error {
//		return client.FetchFindings(ctx)
//	})
//	if err != nil {
//		ui.Show(core.UserMessage(err, recovery.OperationContext{}))
//	}
//
// # Hot Reload
//
// WatchFile and WatchEtcd feed new configurations into Apply, which updates
// telemetry settings, the retry policy and the strategies declared in
// configuration without restarting anything.
//
// # Packages
//
//   - fault: classification, severity and user-facing messages
//   - recovery: strategies, registry, retry ledger and the Manager
//   - telemetry: buffered tracking Service and its sinks
//   - config: YAML configuration, file watcher and etcd source
package resilience
