// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the local control surface of the daemon: health probes,
// a status view, the render board and the renderer's playback-ended callback.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/reelflow/internal/api/middleware"
	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/playback"
	"github.com/ManuGH/reelflow/internal/render"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/go-chi/chi/v5"
)

// HealthProvider serves the liveness and readiness probes.
type HealthProvider interface {
	ServeHealth(w http.ResponseWriter, r *http.Request)
	ServeReady(w http.ResponseWriter, r *http.Request)
}

// ScheduleView is the read side of the schedule store.
type ScheduleView interface {
	List() []schedule.Item
	Counts() map[schedule.Status]int
}

// PlaybackControl is the scheduler surface used by the API.
type PlaybackControl interface {
	Snapshot() playback.State
	PlaybackEnded(ev playback.EndEvent) bool
}

// BoardView exposes what the renderer should display.
type BoardView interface {
	Snapshot() render.Snapshot
	Wait(ctx context.Context, since uint64) render.Snapshot
}

// SyncControl is the reconciler surface used by the API.
type SyncControl interface {
	Trigger()
	LastSync() (time.Time, error)
}

// DownloadView lists in-flight downloads.
type DownloadView interface {
	InFlight() []string
}

// DeviceView exposes the device identity.
type DeviceView interface {
	ID() string
	AuthStatus() device.AuthStatus
}

// Deps are the collaborators of the API server.
type Deps struct {
	Version   string
	Health    HealthProvider
	Store     ScheduleView
	Playback  PlaybackControl
	Board     BoardView
	Sync      SyncControl
	Downloads DownloadView
	Device    DeviceView

	// RateLimit is requests per minute per client; zero disables it.
	RateLimit int
	// TracingService enables request tracing under this service name.
	TracingService string
	// MaxWait caps the render long-poll. Defaults to 60s.
	MaxWait time.Duration
}

// Server routes the local control API.
type Server struct {
	deps   Deps
	router *chi.Mux
}

const defaultMaxWait = 60 * time.Second

// New builds the server and its routes.
func New(deps Deps) *Server {
	if deps.MaxWait <= 0 {
		deps.MaxWait = defaultMaxWait
	}
	s := &Server{deps: deps}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		EnableLogging:  true,
		TracingService: s.deps.TracingService,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)

	r.Route("/api/v1", func(r chi.Router) {
		if s.deps.RateLimit > 0 {
			r.Use(middleware.APIRateLimit(s.deps.RateLimit))
		}
		r.Get("/status", s.handleStatus)
		r.Get("/items", s.handleItems)
		r.Get("/render", s.handleRender)
		r.Post("/render/ended", s.handleEnded)
		r.Post("/sync", s.handleSync)
	})
	return r
}
