// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reconcile merges the remote schedule into the local store and
// keeps the device's liveness signal going.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/ManuGH/reelflow/internal/remote"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/ManuGH/reelflow/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source fetches the authoritative schedule.
type Source interface {
	FetchSchedule(ctx context.Context, deviceID string) (remote.Schedule, error)
}

// Store is the part of the schedule store the reconciler uses.
type Store interface {
	UpsertMany(items []schedule.Item) []schedule.Item
	Pending(now time.Time) []schedule.Item
	Counts() map[schedule.Status]int
}

// Dispatcher starts a background materialization.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string) bool
}

// Config configures a Reconciler.
type Config struct {
	DeviceID string
	Interval time.Duration
	Now      func() time.Time
}

// Result summarizes one tick.
type Result struct {
	Admitted int
	Retried  int
	Skipped  int
	// Ended counts received records whose window had already closed. They
	// are never admitted, so a finished task the server keeps listing is
	// not downloaded again after the collector removed it.
	Ended int
}

// Reconciler runs the schedule sync loop.
type Reconciler struct {
	src      Source
	store    Store
	dispatch Dispatcher
	deviceID string
	interval time.Duration
	now      func() time.Time
	trigger  chan struct{}
	tracer   trace.Tracer
	logger   zerolog.Logger

	mu       sync.RWMutex
	lastSync time.Time
	lastErr  error
}

// New returns a reconciler. Interval defaults to 30s.
func New(src Source, store Store, dispatch Dispatcher, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		src:      src,
		store:    store,
		dispatch: dispatch,
		deviceID: cfg.DeviceID,
		interval: cfg.Interval,
		now:      cfg.Now,
		trigger:  make(chan struct{}, 1),
		tracer:   telemetry.Tracer("reelflow/reconcile"),
		logger:   log.WithComponent("reconcile"),
	}
}

// Tick fetches the remote schedule once, admits unseen items and dispatches
// downloads for them and for every stored Pending item still scheduled. A
// fetch failure leaves the store untouched. Dispatched downloads inherit ctx.
func (r *Reconciler) Tick(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx = log.ContextWithTickID(ctx, uuid.NewString())
	ctx, span := r.tracer.Start(ctx, "reconcile.tick")
	defer span.End()
	logger := log.WithContext(ctx, r.logger)

	sched, err := r.src.FetchSchedule(ctx, r.deviceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		metrics.RecordReconcile(metrics.OutcomeFailure, time.Since(start))
		r.record(err)
		ev := logger.Warn()
		if errors.Is(err, remote.ErrCircuitOpen) {
			ev = logger.Debug()
		}
		ev.Err(err).Str(log.FieldEvent, "reconcile.tick_failed").Msg("schedule fetch failed, retrying next tick")
		return Result{}, err
	}

	for _, rej := range sched.Rejected {
		logger.Warn().Err(rej).Str(log.FieldEvent, "reconcile.record_skipped").Msg("remote record skipped")
	}

	now := r.now()
	live := make([]schedule.Item, 0, len(sched.Items))
	for _, it := range sched.Items {
		if !it.Window.Ended(now) {
			live = append(live, it)
		}
	}
	admitted := r.store.UpsertMany(live)
	res := Result{
		Admitted: len(admitted),
		Skipped:  len(sched.Rejected),
		Ended:    len(sched.Items) - len(live),
	}

	fresh := make(map[string]struct{}, len(admitted))
	for _, it := range admitted {
		fresh[it.ID] = struct{}{}
		r.dispatch.Dispatch(ctx, it.ID)
		logger.Info().
			Str(log.FieldEvent, "reconcile.admitted").
			Str(log.FieldItemID, it.ID).
			Time("start", it.Window.Start).
			Time("end", it.Window.End).
			Int("resources", len(it.Resources)).
			Msg("item admitted")
	}
	for _, it := range r.store.Pending(now) {
		if _, ok := fresh[it.ID]; ok {
			continue
		}
		if r.dispatch.Dispatch(ctx, it.ID) {
			res.Retried++
		}
	}

	counts := r.store.Counts()
	byName := make(map[string]int, len(counts))
	for st, n := range counts {
		byName[string(st)] = n
	}
	metrics.SetScheduleItems(byName)
	metrics.AddReconcileAdmitted(res.Admitted)
	metrics.AddReconcileSkipped(res.Skipped)
	metrics.RecordReconcile(metrics.OutcomeSuccess, time.Since(start))
	span.SetAttributes(telemetry.ReconcileAttributes(res.Admitted, res.Skipped, res.Retried)...)
	r.record(nil)

	logger.Debug().
		Str(log.FieldEvent, "reconcile.tick").
		Int("received", len(sched.Items)).
		Int("admitted", res.Admitted).
		Int("retried", res.Retried).
		Int("skipped", res.Skipped).
		Int("ended", res.Ended).
		Msg("reconciliation complete")
	return res, nil
}

func (r *Reconciler) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	if err == nil {
		r.lastSync = r.now()
	}
}

// LastSync returns the time of the last successful tick and the error of the
// most recent one.
func (r *Reconciler) LastSync() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync, r.lastErr
}

// Trigger requests an immediate tick. It never blocks; pending requests
// collapse into one.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run ticks once immediately, then every interval or on Trigger, until ctx
// is done.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().
		Str(log.FieldEvent, "reconcile.start").
		Dur("interval", r.interval).
		Msg("reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	_, _ = r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-r.trigger:
			ticker.Reset(r.interval)
		}
		_, _ = r.Tick(ctx)
	}
}
