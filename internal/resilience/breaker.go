// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience isolates the daemon from a failing upstream.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/metrics"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned without calling fn while the breaker rejects.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Clock is the breaker's time source.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// outcome of one guarded call.
type outcome int

const (
	succeeded outcome = iota
	failed
	ignored
)

// CircuitBreaker trips open after threshold consecutive failures. After
// cooldown exactly one probe call is admitted; its outcome closes or
// re-opens the circuit.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	clock     Clock

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	inflight bool // a half-open probe is running
}

type Option func(*CircuitBreaker)

func WithClock(c Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// NewCircuitBreaker returns a closed breaker. Non-positive threshold and
// cooldown fall back to 3 and 30s.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     wallClock{},
		state:     StateClosed,
	}
	if cb.threshold <= 0 {
		cb.threshold = 3
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetBreakerState(name, string(StateClosed))
	return cb
}

// Execute calls fn unless the circuit is open. Every error counts.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteCounting(fn, nil)
}

// ExecuteCounting is Execute where errors matching ignore (a caller
// cancellation, a 4xx) neither trip nor reset the breaker.
func (cb *CircuitBreaker) ExecuteCounting(fn func() error, ignore func(error) bool) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	switch {
	case err == nil:
		cb.settle(succeeded)
	case ignore != nil && ignore(err):
		cb.settle(ignored)
	default:
		cb.settle(failed)
	}
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.moveTo(StateHalfOpen)
	case StateClosed:
		return true
	}
	if cb.inflight {
		return false
	}
	cb.inflight = true
	return true
}

func (cb *CircuitBreaker) settle(o outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	probe := cb.state == StateHalfOpen
	cb.inflight = false
	switch o {
	case succeeded:
		cb.streak = 0
		cb.moveTo(StateClosed)
	case failed:
		cb.streak++
		switch {
		case probe:
			metrics.RecordBreakerTrip(cb.name, "probe_failed")
			cb.moveTo(StateOpen)
		case cb.state == StateClosed && cb.streak >= cb.threshold:
			metrics.RecordBreakerTrip(cb.name, "threshold")
			cb.moveTo(StateOpen)
		}
	}
}

// moveTo requires cb.mu.
func (cb *CircuitBreaker) moveTo(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.RecordBreakerTransition(cb.name, string(prev), string(next))
}

// State reports the current state without admitting a call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
