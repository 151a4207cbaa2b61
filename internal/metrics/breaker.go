// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelflow_breaker_state",
		Help: "Remote breaker state, one-hot across closed, half-open and open",
	}, []string{"breaker", "state"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_breaker_transitions_total",
		Help: "Breaker state changes by origin and destination state",
	}, []string{"breaker", "from", "to"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_breaker_trips_total",
		Help: "Breaker openings by cause",
	}, []string{"breaker", "cause"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// SetBreakerState publishes state as the only active state of the breaker.
func SetBreakerState(breaker, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(breaker, s).Set(v)
	}
}

// RecordBreakerTransition counts a state change and updates the state gauge.
func RecordBreakerTransition(breaker, from, to string) {
	breakerTransitions.WithLabelValues(breaker, from, to).Inc()
	SetBreakerState(breaker, to)
}

// RecordBreakerTrip counts an opening. cause is "threshold" or "probe_failed".
func RecordBreakerTrip(breaker, cause string) {
	breakerTrips.WithLabelValues(breaker, cause).Inc()
}
