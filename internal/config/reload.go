// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	rlog "github.com/ManuGH/reelflow/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// settle coalesces the burst of events an editor save produces.
const settle = 500 * time.Millisecond

// Holder publishes the active AppConfig and swaps it on reload. Readers
// never block a reload.
type Holder struct {
	current atomic.Pointer[AppConfig]
	loader  *Loader
	logger  zerolog.Logger

	mu        sync.Mutex
	listeners []chan<- AppConfig
}

func NewHolder(initial AppConfig, loader *Loader) *Holder {
	h := &Holder{loader: loader, logger: rlog.WithComponent("config")}
	h.current.Store(&initial)
	return h
}

// Get returns a copy of the active config.
func (h *Holder) Get() AppConfig { return *h.current.Load() }

// RegisterListener subscribes ch to successful reloads. Delivery does not
// block; a listener whose buffer is full misses that reload.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
}

// Reload re-reads and validates the config. On error the active config is
// kept.
func (h *Holder) Reload(_ context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(rlog.FieldEvent, "config.reload_failed").Msg("config rejected, keeping current")
		return fmt.Errorf("load config: %w", err)
	}
	prev := h.current.Swap(&next)
	h.reportChanges(*prev, next)
	h.broadcast(next)
	h.logger.Info().Str(rlog.FieldEvent, "config.reloaded").Msg("config reloaded")
	return nil
}

func (h *Holder) broadcast(cfg AppConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str(rlog.FieldEvent, "config.listener_skip").Msg("listener busy, reload not delivered")
		}
	}
}

// Run reloads whenever the config file changes, until ctx ends. The parent
// directory is watched so rename-on-save editors are caught. With no file
// configured Run only waits for ctx.
func (h *Holder) Run(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		<-ctx.Done()
		return nil
	}
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	h.logger.Info().Str(rlog.FieldEvent, "config.watching").Str(rlog.FieldPath, path).Msg("watching config file")

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == path && ev.Op&relevant != 0 {
				timer.Reset(settle)
			}
		case <-timer.C:
			// Reload logs its own failure.
			_ = h.Reload(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn().Err(err).Str(rlog.FieldEvent, "config.watcher_error").Msg("watcher error")
		}
	}
}

// change names a setting and whether it only takes effect after restart.
type change struct {
	key     string
	changed func(a, b AppConfig) bool
	restart bool
}

var watched = []change{
	{"remote.serverUrl", func(a, b AppConfig) bool { return a.Remote.ServerURL != b.Remote.ServerURL }, false},
	{"logLevel", func(a, b AppConfig) bool { return a.LogLevel != b.LogLevel }, false},
	{"schedule", func(a, b AppConfig) bool { return a.Schedule != b.Schedule }, true},
	{"playback", func(a, b AppConfig) bool { return a.Playback != b.Playback }, true},
	{"download", func(a, b AppConfig) bool { return a.Download != b.Download }, true},
	{"store", func(a, b AppConfig) bool { return a.Store != b.Store }, true},
	{"api", func(a, b AppConfig) bool { return a.API != b.API }, true},
}

func (h *Holder) reportChanges(prev, next AppConfig) {
	for _, c := range watched {
		if !c.changed(prev, next) {
			continue
		}
		ev := h.logger.Info()
		if c.restart {
			ev = h.logger.Warn().Str(rlog.FieldEvent, "config.restart_required")
		}
		ev.Str("key", c.key).Bool("restart", c.restart).Msg("config changed")
	}
}
