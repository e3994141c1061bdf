package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marco/movieFinder/internal/debounce"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path      string
	watcher   *fsnotify.Watcher
	debouncer *debounce.Debouncer[struct{}]
	onReload  func(*Config)
	logger    *slog.Logger
}

// NewWatcher watches the directory holding path, so editors that replace
// the file by rename are still seen. Bursts of events within delay cause a
// single reload. A file that fails to load is logged and the previous
// config stays in effect.
func NewWatcher(path string, delay time.Duration, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(dir, filepath.Base(path))
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fsWatcher,
		onReload: onReload,
		logger:   logger,
	}
	w.debouncer = debounce.New(delay, func(struct{}) { w.reload() })
	return w, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.debouncer.Stop()
		w.watcher.Close()
	}()

	w.logger.Info("config watcher started", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug("config change detected", "op", event.Op.String())
				w.debouncer.Push(struct{}{})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}
