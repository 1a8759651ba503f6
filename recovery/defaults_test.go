package recovery

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/resilience/fault"
)

func TestDefaultStrategies_Order(t *testing.T) {
	reg := NewDefaultRegistry(nil, 0)
	assert.Equal(t, []string{
		StrategyNetworkRetry,
		StrategyFilesystemRetry,
		StrategyAuthenticationRefresh,
		StrategyMemoryCleanup,
		StrategyConfigurationReset,
	}, names(reg.Strategies()))
}

func TestNetworkRetry(t *testing.T) {
	s := NetworkRetry(time.Millisecond)
	oc := NewOperationContext("op", "comp")

	assert.True(t, s.CanRecover(errors.New("no such host"), oc))
	assert.False(t, s.CanRecover(errors.New("403 forbidden"), oc))

	ok, err := s.Recover(context.Background(), errors.New("no such host"), oc)
	require.NoError(t, err)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = NetworkRetry(time.Hour).Recover(ctx, errors.New("no such host"), oc)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilesystemRetry(t *testing.T) {
	s := FilesystemRetry()
	missing := &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}

	t.Run("creates workspace directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "workspace")
		oc := NewOperationContext("scan", "scanner", WithWorkspacePath(dir))

		require.True(t, s.CanRecover(missing, oc))
		ok, err := s.Recover(context.Background(), missing, oc)
		require.NoError(t, err)
		assert.True(t, ok)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("fails closed without workspace path", func(t *testing.T) {
		ok, err := s.Recover(context.Background(), missing, NewOperationContext("scan", "scanner"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reports mkdir failure", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		ok, err := s.Recover(context.Background(), missing,
			NewOperationContext("scan", "scanner", WithWorkspacePath(filepath.Join(file, "sub"))))
		assert.False(t, ok)
		assert.Error(t, err)
	})
}

func TestCommandStrategies(t *testing.T) {
	var executed []string
	cmds := CommandFunc(func(_ context.Context, command string, args ...any) error {
		executed = append(executed, command)
		if len(args) != 2 {
			return errors.New("expected fault and context arguments")
		}
		return nil
	})

	auth := AuthenticationRefresh(cmds)
	reset := ConfigurationReset(cmds)
	oc := NewOperationContext("op", "comp")

	authErr := errors.New("401 unauthorized")
	cfgErr := fault.New("load", "settings", "ConfigError", "bad")

	assert.True(t, auth.CanRecover(authErr, oc))
	assert.False(t, auth.CanRecover(cfgErr, oc))
	assert.True(t, reset.CanRecover(cfgErr, oc))

	ok, err := auth.Recover(context.Background(), authErr, oc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reset.Recover(context.Background(), cfgErr, oc)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{CommandAuthenticate, CommandResetConfiguration}, executed)

	t.Run("command failure", func(t *testing.T) {
		failing := CommandFunc(func(context.Context, string, ...any) error { return errors.New("user cancelled") })
		ok, err := AuthenticationRefresh(failing).Recover(context.Background(), authErr, oc)
		assert.False(t, ok)
		assert.ErrorContains(t, err, "user cancelled")
	})

	t.Run("no executor", func(t *testing.T) {
		ok, err := ConfigurationReset(nil).Recover(context.Background(), cfgErr, oc)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrNoCommands)
	})
}

func TestMemoryCleanup(t *testing.T) {
	s := MemoryCleanup()
	oc := NewOperationContext("op", "comp")

	assert.True(t, s.CanRecover(errors.New("out of memory"), oc))
	ok, err := s.Recover(context.Background(), errors.New("out of memory"), oc)
	require.NoError(t, err)
	assert.True(t, ok)
}
