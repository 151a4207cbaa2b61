// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reconcile

import (
	"context"
	"time"

	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/rs/zerolog"
)

// Signaler delivers device messages to the remote authority.
type Signaler interface {
	Register(ctx context.Context, deviceID string) (device.AuthStatus, error)
	Heartbeat(ctx context.Context, deviceID string) (device.AuthStatus, error)
}

// Heartbeat runs the liveness side channel. It is independent of the
// schedule loop so a slow fetch never delays it.
type Heartbeat struct {
	sig      Signaler
	ident    *device.Identity
	interval time.Duration
	logger   zerolog.Logger
}

// NewHeartbeat returns a heartbeat loop. Interval defaults to 10s.
func NewHeartbeat(sig Signaler, ident *device.Identity, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Heartbeat{
		sig:      sig,
		ident:    ident,
		interval: interval,
		logger:   log.WithComponent("heartbeat"),
	}
}

// Register announces the device. Failures are logged and returned.
func (h *Heartbeat) Register(ctx context.Context) error {
	st, err := h.sig.Register(ctx, h.ident.ID())
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "heartbeat.register_failed").
			Str(log.FieldDeviceID, h.ident.ID()).
			Msg("device registration failed")
		return err
	}
	h.apply(st)
	h.logger.Info().
		Str(log.FieldEvent, "heartbeat.registered").
		Str(log.FieldDeviceID, h.ident.ID()).
		Msg("device registered")
	return nil
}

// Beat sends one heartbeat.
func (h *Heartbeat) Beat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	st, err := h.sig.Heartbeat(ctx, h.ident.ID())
	if err != nil {
		metrics.RecordHeartbeat(metrics.OutcomeFailure)
		h.logger.Debug().Err(err).Str(log.FieldEvent, "heartbeat.failed").Msg("heartbeat failed")
		return err
	}
	metrics.RecordHeartbeat(metrics.OutcomeSuccess)
	h.apply(st)
	return nil
}

func (h *Heartbeat) apply(st device.AuthStatus) {
	if st != "" {
		h.ident.SetAuthStatus(st)
	}
}

// Run registers once, then beats every interval until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) error {
	_ = h.Register(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = h.Beat(ctx)
		}
	}
}
