// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when its files change. File system events
// trigger an immediate check; a slower modification-time poll covers
// platforms and editors whose writes fsnotify misses.
type Watcher struct {
	mu          sync.RWMutex
	paths       []string
	profile     string
	interval    time.Duration
	lastModTime map[string]time.Time
	config      *Config
	listeners   []func(*Config)
	fs          *fsnotify.Watcher
	stopOnce    sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatchProfile reloads with the given profile overlay.
func WithWatchProfile(profile string) WatcherOption {
	return func(w *Watcher) { w.profile = profile }
}

// NewWatcher loads the configuration from the first path and prepares to
// watch every path for changes.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		paths:       paths,
		interval:    time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTime[path] = info.ModTime()
		}
	}

	cfg, err := w.loadConfig()
	if err != nil {
		return nil, err
	}
	w.config = cfg

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("config.watch.fsnotify_unavailable", slog.String("error", err.Error()))
		return w, nil
	}
	dirs := make(map[string]bool)
	for _, path := range paths {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fs.Add(dir); err != nil {
			w.logger.Warn("config.watch.add_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
	w.fs = fs
	return w, nil
}

// OnChange registers a callback to be called when config changes.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start begins watching for configuration changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for it to exit. Stop must follow Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)
	if w.fs != nil {
		defer w.fs.Close()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.fs != nil {
		events = w.fs.Events
		errs = w.fs.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && w.watches(ev.Name) && w.checkForChanges() {
				w.reload()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("config.watch.error", slog.String("error", err.Error()))
		case <-ticker.C:
			if w.checkForChanges() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) watches(name string) bool {
	clean := filepath.Clean(name)
	for _, path := range w.paths {
		if filepath.Clean(path) == clean {
			return true
		}
	}
	return false
}

func (w *Watcher) checkForChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		lastMod, exists := w.lastModTime[path]
		if !exists || !info.ModTime().Equal(lastMod) {
			w.lastModTime[path] = info.ModTime()
			changed = true
		}
	}
	return changed
}

func (w *Watcher) reload() {
	cfg, err := w.loadConfig()
	if err != nil {
		w.logger.Error("config.reload.failed", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config.reloaded")
	for _, fn := range listeners {
		fn(cfg)
	}
}

func (w *Watcher) loadConfig() (*Config, error) {
	if len(w.paths) == 0 {
		return Load("")
	}
	return LoadWithProfile(w.paths[0], w.profile)
}

// WatchConfig watches configPath and its profile overlay, starts the
// watcher and returns it with the initial configuration.
func WatchConfig(ctx context.Context, configPath, profile string, opts ...WatcherOption) (*Watcher, *Config, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
		if overlay := profileConfigPath(configPath, profile); overlay != "" {
			paths = append(paths, overlay)
		}
	}

	opts = append(opts, WithWatchProfile(profile))
	watcher, err := NewWatcher(paths, opts...)
	if err != nil {
		return nil, nil, err
	}
	watcher.Start(ctx)
	return watcher, watcher.Config(), nil
}
