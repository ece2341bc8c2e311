package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Loader owns the frozen Config and, when UPSTREAMS_FILE is set, hot-reloads
// it on write without a restart — generalized from the teacher's three-file
// YAML reload to a single JSON upstreams overlay.
type Loader struct {
	mu       sync.RWMutex
	cfg      *Config
	watchers []func()
	logger   *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load builds a fresh Config from the environment, merges the upstreams.json
// overlay if configured, and validates the result before swapping it in.
func (l *Loader) Load() error {
	cfg, err := FromEnv()
	if err != nil {
		return fmt.Errorf("load environment config: %w", err)
	}
	if err := LoadUpstreamsOverlay(cfg); err != nil {
		return fmt.Errorf("load upstreams overlay: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return nil
}

// Config returns the current frozen snapshot.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnReload registers a callback fired after a successful reload.
func (l *Loader) OnReload(fn func()) {
	l.watchers = append(l.watchers, fn)
}

// Watch starts watching the directory containing UPSTREAMS_FILE, reloading
// on write/create events. It is a no-op when no upstreams file is
// configured. A reload failure leaves the previous frozen config in effect
// and is warn-logged.
func (l *Loader) Watch() error {
	path := os.Getenv("UPSTREAMS_FILE")
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch upstreams dir %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				l.logger.Info("upstreams file changed, reloading", "file", event.Name)
				if err := l.Load(); err != nil {
					l.logger.Warn("failed to reload upstreams, keeping previous config", "error", err)
					continue
				}
				for _, fn := range l.watchers {
					fn()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
