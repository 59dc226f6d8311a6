package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goclaw/dayloop/pkg/logger"
)

// Watcher reloads a configuration file when it changes and hands every
// valid result to the registered handlers. An invalid file is logged and
// skipped; handlers keep the last good configuration.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temporary file over the original are still seen.
type Watcher struct {
	path      string
	loader    *Loader
	overrides map[string]any
	debounce  time.Duration
	log       logger.Logger

	fs      *fsnotify.Watcher
	running atomic.Bool

	mu       sync.Mutex
	handlers []func(*Config)
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithOverrides reapplies command-line overrides on every reload.
func WithOverrides(overrides map[string]any) WatcherOption {
	return func(w *Watcher) { w.overrides = overrides }
}

// NewWatcher prepares a watcher for path. A nil loader uses NewLoader.
func NewWatcher(path string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config: watcher needs a file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if loader == nil {
		loader = NewLoader()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create fs watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		loader:   loader,
		debounce: 250 * time.Millisecond,
		log:      logger.Nop(),
		fs:       fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers fn. Handlers run one after another on the watcher
// goroutine, in registration order.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Watch blocks until ctx ends or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("config: watcher already running")
	}
	defer w.running.Store(false)

	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == w.path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				quiet.Reset(w.debounce)
			}

		case <-quiet.C:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.path, w.overrides)
	if err != nil {
		w.log.Error("config reload rejected", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	handlers := append([]func(*Config){}, w.handlers...)
	w.mu.Unlock()
	for _, h := range handlers {
		w.run(h, cfg)
	}
}

func (w *Watcher) run(h func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config change handler panicked", "panic", r)
		}
	}()
	h(cfg)
}

// Running reports whether Watch is active.
func (w *Watcher) Running() bool { return w.running.Load() }

// Path is the absolute path of the watched file.
func (w *Watcher) Path() string { return w.path }

// Close stops Watch and releases the file watch. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}

// ApplyLogLevel moves the global log level to the reloaded value. The
// debug switch wins over the level.
func ApplyLogLevel() func(*Config) {
	return func(cfg *Config) {
		level := logger.ParseLevel(cfg.Log.Level)
		if cfg.App.Debug {
			level = logger.DebugLevel
		}
		logger.SetLevel(level)
	}
}
