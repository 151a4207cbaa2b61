// SPDX-License-Identifier: MIT

package daemon

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrMissingLogger     = errors.New("daemon: logger is disabled")
	ErrMissingAPIHandler = errors.New("daemon: api handler is nil")
	ErrMissingManager    = errors.New("daemon: app has no manager")
	// ErrManagerNotStarted is returned by Shutdown before Start.
	ErrManagerNotStarted = errors.New("daemon: manager not started")
)

// ServerConfig holds the listener addresses. An empty MetricsAddr leaves
// the metrics listener off.
type ServerConfig struct {
	APIAddr         string
	MetricsAddr     string
	ShutdownTimeout time.Duration
}

// Deps are the handlers the Manager serves. MetricsHandler may be nil.
type Deps struct {
	Logger         zerolog.Logger
	APIHandler     http.Handler
	MetricsHandler http.Handler
}

func (d *Deps) Validate() error {
	switch {
	case d.Logger.GetLevel() == zerolog.Disabled:
		return ErrMissingLogger
	case d.APIHandler == nil:
		return ErrMissingAPIHandler
	}
	return nil
}
