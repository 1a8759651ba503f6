// Package hostexec runs host commands on behalf of recovery strategies.
//
// An Executor maps command names such as "resilience.authenticate" to
// programs on the host. It implements recovery.Commands, so the
// authentication, configuration and configured "command" strategies can
// remediate faults by running real tools:
//
//	exe := hostexec.NewExecutor(map[string]hostexec.Command{
//		recovery.CommandAuthenticate: {Path: "gh", Args: []string{"auth", "refresh"}},
//	}, logger)
//
// The fault and operation context are written to the program's stdin as
// JSON.
package hostexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command describes a program to run.
type Command struct {
	// Path is the name or path of the program (required).
	Path string

	// Args are the command-line arguments.
	Args []string

	// WorkDir is the working directory. Empty means the current one.
	WorkDir string

	// Env is the environment in "KEY=value" form. Nil inherits the
	// parent's environment.
	Env []string

	// Timeout bounds the run. Zero means the parent context only.
	Timeout time.Duration
}

// Result holds the outcome of a run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Run executes cmd, feeding stdin to it when non-empty.
//
// A non-zero exit code is not an error; the Result carries it. Only
// failures to run at all (missing binary, timeout, cancellation) return an
// error, and a partial Result is still returned with them.
func Run(ctx context.Context, cmd Command, stdin []byte) (*Result, error) {
	if cmd.Path == "" {
		return nil, errors.New("command path is required")
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	if cmd.WorkDir != "" {
		c.Dir = cmd.WorkDir
	}
	if cmd.Env != nil {
		c.Env = cmd.Env
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if len(stdin) > 0 {
		c.Stdin = bytes.NewReader(stdin)
	}

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("command timed out after %v", cmd.Timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return result, fmt.Errorf("command cancelled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("command execution failed: %w", err)
	}

	return result, nil
}
