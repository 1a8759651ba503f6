package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/zero-day-ai/resilience/fault"
)

// Host commands invoked by the default strategies. The host environment
// provides their implementation.
const (
	CommandAuthenticate       = "resilience.authenticate"
	CommandResetConfiguration = "resilience.resetConfiguration"
)

// Default strategy names.
const (
	StrategyNetworkRetry          = "network-retry"
	StrategyFilesystemRetry       = "filesystem-retry"
	StrategyAuthenticationRefresh = "authentication-refresh"
	StrategyMemoryCleanup         = "memory-cleanup"
	StrategyConfigurationReset    = "configuration-reset"
)

// ErrNoCommands is returned by command-driven strategies without an executor.
var ErrNoCommands = errors.New("no command executor configured")

// Commands executes named host commands.
type Commands interface {
	Execute(ctx context.Context, command string, args ...any) error
}

// CommandFunc adapts a function to Commands.
type CommandFunc func(ctx context.Context, command string, args ...any) error

// Execute calls f.
func (f CommandFunc) Execute(ctx context.Context, command string, args ...any) error {
	return f(ctx, command, args...)
}

// NetworkRetry waits delay and reports success, assuming the network fault
// was transient.
func NetworkRetry(delay time.Duration) Strategy {
	return NewStrategy(
		StrategyNetworkRetry,
		"Wait briefly and retry, assuming a transient network failure",
		1,
		ForCategory(fault.CategoryNetwork),
		WaitAction(delay),
	)
}

// FilesystemRetry creates the directory named by OperationContext.WorkspacePath.
// It fails closed when the context carries no workspace path.
func FilesystemRetry() Strategy {
	return NewStrategy(
		StrategyFilesystemRetry,
		"Create the missing workspace directory and retry",
		2,
		ForCategory(fault.CategoryFilesystem),
		func(_ context.Context, _ error, oc OperationContext) (bool, error) {
			if oc.WorkspacePath == "" {
				return false, nil
			}
			if err := os.MkdirAll(oc.WorkspacePath, 0o755); err != nil {
				return false, fmt.Errorf("create directory %s: %w", oc.WorkspacePath, err)
			}
			return true, nil
		},
	)
}

// AuthenticationRefresh triggers re-authentication through the host.
func AuthenticationRefresh(cmds Commands) Strategy {
	return NewStrategy(
		StrategyAuthenticationRefresh,
		"Trigger re-authentication and retry",
		3,
		ForCategory(fault.CategoryAuthentication),
		CommandAction(cmds, CommandAuthenticate),
	)
}

// MemoryCleanup forces a garbage collection and returns freed memory to the OS.
func MemoryCleanup() Strategy {
	return NewStrategy(
		StrategyMemoryCleanup,
		"Run garbage collection and retry",
		4,
		ForCategory(fault.CategoryMemory),
		func(context.Context, error, OperationContext) (bool, error) {
			runtime.GC()
			debug.FreeOSMemory()
			return true, nil
		},
	)
}

// ConfigurationReset asks the host to reset configuration to defaults.
func ConfigurationReset(cmds Commands) Strategy {
	return NewStrategy(
		StrategyConfigurationReset,
		"Reset configuration to defaults and retry",
		5,
		ForCategory(fault.CategoryConfiguration),
		CommandAction(cmds, CommandResetConfiguration),
	)
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies(cmds Commands, networkDelay time.Duration) []Strategy {
	return []Strategy{
		NetworkRetry(networkDelay),
		FilesystemRetry(),
		AuthenticationRefresh(cmds),
		MemoryCleanup(),
		ConfigurationReset(cmds),
	}
}

// NewDefaultRegistry creates a registry holding DefaultStrategies.
func NewDefaultRegistry(cmds Commands, networkDelay time.Duration) *Registry {
	r, err := NewRegistry(DefaultStrategies(cmds, networkDelay)...)
	if err != nil {
		// Default names are unique.
		panic(err)
	}
	return r
}

// WaitAction sleeps for delay, honoring cancellation, then reports success.
func WaitAction(delay time.Duration) RecoverFunc {
	return func(ctx context.Context, _ error, _ OperationContext) (bool, error) {
		if delay <= 0 {
			return true, nil
		}
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
			return true, nil
		}
	}
}

// CommandAction runs a host command and reports success when it returns nil.
// The fault and operation context are passed as command arguments.
func CommandAction(cmds Commands, command string) RecoverFunc {
	return func(ctx context.Context, err error, oc OperationContext) (bool, error) {
		if cmds == nil {
			return false, fmt.Errorf("%s: %w", command, ErrNoCommands)
		}
		if cerr := cmds.Execute(ctx, command, err, oc); cerr != nil {
			return false, fmt.Errorf("%s: %w", command, cerr)
		}
		return true, nil
	}
}
