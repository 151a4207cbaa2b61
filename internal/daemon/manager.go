// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 15 * time.Second

// ShutdownHook releases a resource during shutdown. Hooks run in reverse
// registration order.
type ShutdownHook func(ctx context.Context) error

// Manager owns the HTTP listeners and the shutdown sequence.
type Manager interface {
	// Start serves until ctx ends or a listener fails, then stops the
	// listeners before returning.
	Start(ctx context.Context) error
	// Shutdown stops any listener still up and runs the hooks. Only the
	// first call does work.
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type listener struct {
	name string
	srv  *http.Server
}

type namedHook struct {
	name string
	fn   ShutdownHook
}

type manager struct {
	cfg    ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu        sync.Mutex
	started   bool
	stopping  bool
	listeners []listener
	hooks     []namedHook
}

// NewManager validates deps and applies the default shutdown timeout.
func NewManager(cfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(log.FieldComponent, "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("daemon: manager already started")
	}
	m.started = true
	m.listeners = []listener{{"api", newServer(ctx, m.cfg.APIAddr, m.deps.APIHandler)}}
	if m.cfg.MetricsAddr != "" && m.deps.MetricsHandler != nil {
		m.listeners = append(m.listeners, listener{"metrics", newServer(ctx, m.cfg.MetricsAddr, m.deps.MetricsHandler)})
	}
	ls := slices.Clone(m.listeners)
	m.mu.Unlock()

	failed := make(chan error, len(ls))
	for _, l := range ls {
		go m.serve(l, failed)
	}

	var runErr error
	select {
	case runErr = <-failed:
	case <-ctx.Done():
		m.logger.Info().Str(log.FieldEvent, "manager.stop").Msg("stopping listeners")
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, m.stopListeners(stopCtx))
}

// newServer ties request contexts to ctx so long-polls end with the daemon.
func newServer(ctx context.Context, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func (m *manager) serve(l listener, failed chan<- error) {
	m.logger.Info().
		Str(log.FieldEvent, "manager.listen").
		Str("listener", l.name).
		Str("addr", l.srv.Addr).
		Msg("listening")
	err := l.srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error().Err(err).
		Str(log.FieldEvent, "manager.listen_failed").
		Str("listener", l.name).
		Msg("listener failed")
	failed <- fmt.Errorf("%s listener: %w", l.name, err)
}

// stopListeners takes ownership of the listeners, so a second call is a
// no-op.
func (m *manager) stopListeners(ctx context.Context) error {
	m.mu.Lock()
	ls := m.listeners
	m.listeners = nil
	m.mu.Unlock()

	var errs []error
	for _, l := range ls {
		if err := l.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s listener shutdown: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.stopping:
		m.mu.Unlock()
		return nil
	case !m.started:
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	errs := []error{m.stopListeners(ctx)}
	slices.Reverse(hooks)
	for _, h := range hooks {
		start := time.Now()
		err := h.fn(ctx)
		ev := m.logger.Debug()
		if err != nil {
			ev = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		ev.Str(log.FieldEvent, "manager.hook").
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook ran")
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Warn().Str(log.FieldEvent, "manager.stopped").Msg("daemon stopped with errors")
		return fmt.Errorf("shutdown: %w", err)
	}
	m.logger.Info().Str(log.FieldEvent, "manager.stopped").Msg("daemon stopped")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: hook})
	m.mu.Unlock()
}
