// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// APIRateLimit allows perMinute requests per client IP over a sliding
// one-minute window. Rejections are JSON so the renderer can parse them.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	return rateLimit(perMinute, time.Minute, httprate.KeyByIP)
}

func rateLimit(limit int, window time.Duration, key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(int(window.Seconds()), 1))
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
		}),
	)
}
