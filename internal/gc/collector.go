// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gc removes expired schedule entries and reclaims their files.
package gc

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/download"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/rs/zerolog"
)

// Store is the part of the schedule store the collector needs.
type Store interface {
	RemoveExpired(now time.Time) []schedule.Item
	IDs() map[string]struct{}
}

// Files manages item directories under the media root.
type Files interface {
	Purge(id string) error
	PurgeDir(name string) error
	DirNames() ([]string, error)
	InFlight() []string
}

// Playback tells whether an item is still owned by the screen.
type Playback interface {
	DeferIfInUse(id string) bool
}

// Result summarizes one sweep.
type Result struct {
	Removed  int
	Purged   int
	Deferred int
	Failed   int
	Orphans  int
}

// Collector runs expiry sweeps.
type Collector struct {
	store    Store
	files    Files
	playback Playback
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	deferred map[string]struct{}
	failed   map[string]struct{}
}

// New returns a collector. Interval defaults to 30s.
func New(store Store, files Files, pb Playback, interval time.Duration, now func() time.Time) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Collector{
		store:    store,
		files:    files,
		playback: pb,
		interval: interval,
		now:      now,
		logger:   log.WithComponent("gc"),
		deferred: make(map[string]struct{}),
		failed:   make(map[string]struct{}),
	}
}

// Sweep removes every item whose window ended at now and purges its files,
// except items the playback scheduler still owns. Failed purges from earlier
// sweeps are retried, and directories no item accounts for are removed.
func (c *Collector) Sweep(ctx context.Context, now time.Time) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	// Only purges that failed in an earlier sweep are retried here.
	retry := make([]string, 0, len(c.failed))
	for id := range c.failed {
		retry = append(retry, id)
	}

	expired := c.store.RemoveExpired(now)
	res.Removed = len(expired)
	metrics.AddGCRemoved(res.Removed)

	for _, it := range expired {
		if c.playback != nil && c.playback.DeferIfInUse(it.ID) {
			c.deferred[it.ID] = struct{}{}
			res.Deferred++
			c.logger.Info().
				Str(log.FieldEvent, "gc.purge_deferred").
				Str(log.FieldItemID, it.ID).
				Msg("expired item still on screen, purge deferred to hand-off")
			continue
		}
		c.purge(it.ID, &res)
	}

	for _, id := range retry {
		if ctx.Err() != nil {
			break
		}
		if c.playback != nil && c.playback.DeferIfInUse(id) {
			continue
		}
		delete(c.failed, id)
		c.purge(id, &res)
	}

	for id := range c.deferred {
		if c.playback == nil || !c.playback.DeferIfInUse(id) {
			delete(c.deferred, id)
		}
	}

	if ctx.Err() == nil {
		res.Orphans = c.sweepOrphans()
	}

	if res.Removed > 0 || res.Orphans > 0 || res.Failed > 0 {
		c.logger.Info().
			Str(log.FieldEvent, "gc.sweep").
			Int("removed", res.Removed).
			Int("purged", res.Purged).
			Int("deferred", res.Deferred).
			Int("failed", res.Failed).
			Int("orphans", res.Orphans).
			Msg("expiry sweep complete")
	}
	return res
}

func (c *Collector) purge(id string, res *Result) {
	if err := c.files.Purge(id); err != nil {
		c.failed[id] = struct{}{}
		res.Failed++
		metrics.RecordPurge("gc", metrics.OutcomeFailure)
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "gc.purge_failed").
			Str(log.FieldItemID, id).
			Msg("purge failed, retrying next sweep")
		return
	}
	res.Purged++
	metrics.RecordPurge("gc", metrics.OutcomeSuccess)
}

// sweepOrphans removes item directories that belong to no stored item, no
// running download and no item the scheduler still holds. Directories are
// listed before the ids are read so a directory created afterwards is never
// seen.
func (c *Collector) sweepOrphans() int {
	names, err := c.files.DirNames()
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEvent, "gc.list_failed").Msg("could not list media root")
		return 0
	}
	if len(names) == 0 {
		return 0
	}

	keep := make(map[string]struct{})
	for id := range c.store.IDs() {
		keep[download.DirName(id)] = struct{}{}
	}
	for _, id := range c.files.InFlight() {
		keep[download.DirName(id)] = struct{}{}
	}
	for id := range c.deferred {
		keep[download.DirName(id)] = struct{}{}
	}
	for id := range c.failed {
		keep[download.DirName(id)] = struct{}{}
	}

	removed := 0
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := c.files.PurgeDir(name); err != nil {
			metrics.RecordPurge("orphan", metrics.OutcomeFailure)
			c.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "gc.orphan_failed").
				Str(log.FieldPath, name).
				Msg("could not remove orphan directory")
			continue
		}
		metrics.RecordPurge("orphan", metrics.OutcomeSuccess)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep(ctx, c.now())
		}
	}
}
