package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads widget manifests when their directory changes, so new
// widget types can be dropped in without a restart.
type Watcher struct {
	registry *Registry
	dir      string
	logger   *slog.Logger

	// debounce coalesces editor write bursts into one reload.
	debounce time.Duration

	// OnReload, when set, is called after each successful reload with the
	// number of definitions registered.
	OnReload func(count int)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Registry *Registry
	Dir      string
	Logger   *slog.Logger
	Debounce time.Duration
}

// NewWatcher creates a watcher over a manifest directory.
func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{
		registry: cfg.Registry,
		dir:      cfg.Dir,
		logger:   logger,
		debounce: debounce,
	}
}

// Run watches until the context is canceled. Manifest changes trigger a full
// directory reload after the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching widget manifests", "dir", w.dir)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isManifest(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			count, err := w.registry.LoadManifestDir(w.dir, w.logger)
			if err != nil {
				w.logger.Error("manifest reload failed", "error", err)
				continue
			}
			w.logger.Info("widget manifests reloaded", "registered", count)
			if w.OnReload != nil {
				w.OnReload(count)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func isManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
