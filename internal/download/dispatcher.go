// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"context"
	"sync"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/rs/zerolog"
)

// Materializer is the blocking download operation the dispatcher runs.
type Materializer interface {
	Materialize(ctx context.Context, id string) (string, error)
}

// Dispatcher launches materializations in the background so timer loops
// never wait on the network. Completion is reported through the store only.
type Dispatcher struct {
	m      Materializer
	logger zerolog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher running m.
func NewDispatcher(m Materializer) *Dispatcher {
	return &Dispatcher{
		m:       m,
		logger:  log.WithComponent("download"),
		running: make(map[string]struct{}),
	}
}

// Dispatch starts a background materialization of id unless one is already
// running. It reports whether a new task was started.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) bool {
	d.mu.Lock()
	if _, busy := d.running[id]; busy {
		d.mu.Unlock()
		return false
	}
	d.running[id] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.running, id)
			d.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().
					Str(log.FieldEvent, "download.panic").
					Str(log.FieldItemID, id).
					Interface("panic", r).
					Msg("materialization panicked")
			}
		}()
		// Failures are already logged and reflected in the store.
		_, _ = d.m.Materialize(ctx, id)
	}()
	return true
}

// Running reports whether a task for id is in progress.
func (d *Dispatcher) Running(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[id]
	return ok
}

// Wait blocks until every dispatched task has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
