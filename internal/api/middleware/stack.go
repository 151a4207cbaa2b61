// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StackConfig selects the optional layers of the ingress stack.
type StackConfig struct {
	EnableMetrics bool
	EnableLogging bool
	// TracingService names the otelhttp server; empty disables tracing.
	TracingService string
	// RateLimitPerMinute bounds requests per client IP; zero disables it.
	RateLimitPerMinute int
}

// NewRouter returns a chi mux with the stack from cfg installed.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cfg.chain()...)
	return r
}

// chain orders the layers outermost first. Recovery wraps everything and
// the request id exists before any layer that logs.
func (cfg StackConfig) chain() []func(http.Handler) http.Handler {
	out := []func(http.Handler) http.Handler{Recoverer, RequestID}
	if cfg.EnableMetrics {
		out = append(out, Metrics())
	}
	if cfg.TracingService != "" {
		out = append(out, OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		out = append(out, AccessLog)
	}
	if cfg.RateLimitPerMinute > 0 {
		out = append(out, APIRateLimit(cfg.RateLimitPerMinute))
	}
	return out
}
