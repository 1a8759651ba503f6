package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives each successfully reloaded configuration.
type Handler func(*Config)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is the quiet period after the last change before reloading.
	// Default: 200ms
	Debounce time.Duration

	// Logger receives reload failures. Default: slog.Default()
	Logger *slog.Logger
}

// Watcher reloads a config file when it changes.
//
// The parent directory is watched rather than the file itself so editors
// that save by rename keep triggering reloads. Bursts of events are collapsed
// into one reload per debounce window. A file that fails to load or validate
// is logged and skipped; the handler only ever sees valid configurations.
type Watcher struct {
	path     string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher for the file at path.
func NewWatcher(path string, handler Handler, opts WatcherOptions) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("config watcher requires a handler")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     abs,
		handler:  handler,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. It returns once the watch is registered; reloads
// happen in the background until ctx is canceled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("config watcher is closed")
	}
	if w.started {
		return errors.New("config watcher already started")
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.started = true

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Close stops the watcher and waits for the background goroutine.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "path", w.path, "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed; keeping previous configuration",
			"path", w.path,
			"error", err,
		)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.handler(cfg)
}
