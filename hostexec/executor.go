package hostexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned when no program is mapped to a name.
var ErrUnknownCommand = errors.New("unknown host command")

// propertied is implemented by recovery.OperationContext.
type propertied interface {
	Properties() map[string]any
}

// request is written to a command's stdin.
type request struct {
	Command string         `json:"command"`
	Error   string         `json:"error,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Args    []string       `json:"args,omitempty"`
}

// Executor runs named host commands. It is safe for concurrent use and its
// table can be replaced at runtime.
type Executor struct {
	logger *slog.Logger

	mu       sync.RWMutex
	commands map[string]Command
}

// NewExecutor creates an Executor for commands. A nil logger means
// slog.Default().
func NewExecutor(commands map[string]Command, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger:   logger,
		commands: maps.Clone(commands),
	}
}

// SetCommands replaces the command table.
func (e *Executor) SetCommands(commands map[string]Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = maps.Clone(commands)
}

// Names returns the mapped command names, sorted.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.commands))
}

// Execute runs the program mapped to name. Errors among args become the
// request's error, values with Properties become its context and anything
// else is passed as a string argument. A non-zero exit is an error carrying
// the program's stderr.
func (e *Executor) Execute(ctx context.Context, name string, args ...any) error {
	e.mu.RLock()
	cmd, ok := e.commands[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	req := request{Command: name}
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			req.Error = v.Error()
		case propertied:
			req.Context = v.Properties()
		default:
			req.Args = append(req.Args, fmt.Sprint(v))
		}
	}
	stdin, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", name, err)
	}

	result, err := Run(ctx, cmd, stdin)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	e.logger.Info("host command finished",
		"command", name,
		"path", cmd.Path,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)

	if result.ExitCode != 0 {
		stderr := strings.TrimSpace(string(result.Stderr))
		return fmt.Errorf("%s exited with code %d: %s", name, result.ExitCode, stderr)
	}
	return nil
}
