// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback decides what is on screen. It hands off between two
// render layers when the current scheduled item changes, rotates through an
// item's resources and reclaims superseded items after a grace delay.
package playback

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/rs/zerolog"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the read side of the schedule store.
type Store interface {
	Get(id string) (schedule.Item, bool)
	CurrentItem(now time.Time) (schedule.Item, bool)
	NextUpcoming(now time.Time) (schedule.Item, bool)
}

// Purger removes the files of an item.
type Purger interface {
	Purge(id string) error
}

// Prefetcher starts a background download.
type Prefetcher interface {
	Dispatch(ctx context.Context, id string) bool
}

// Config tunes the scheduler.
type Config struct {
	CheckInterval time.Duration
	GraceDelay    time.Duration
	ImageDuration time.Duration
	Clock         Clock
}

const (
	defaultCheckInterval = time.Second
	defaultGraceDelay    = 5 * time.Second
	defaultImageDuration = 5 * time.Second
	minWait              = 10 * time.Millisecond
)

type cleanup struct {
	itemID string
	layer  Layer
	due    time.Time
}

// Scheduler is the playback state machine. Decisions are taken in Tick and
// PlaybackEnded with an explicit time; Run drives them from real timers.
type Scheduler struct {
	store    Store
	renderer Renderer
	purger   Purger
	prefetch Prefetcher
	clock    Clock
	check    time.Duration
	grace    time.Duration
	image    time.Duration
	wake     chan struct{}
	logger   zerolog.Logger

	// step serializes decision steps. State fields are written only while
	// holding both step and mu, so code holding step may read them freely.
	step sync.Mutex
	mu   sync.Mutex

	rendered    string
	item        schedule.Item
	active      Layer
	index       int
	advanceAt   time.Time
	held        map[Layer]string
	queue       []cleanup
	purging     map[string]struct{} // popped from queue, Purge not yet returned
	lastHandoff time.Time
}

// New returns a scheduler. GraceDelay zero is honored; other zero values take
// their defaults.
func New(store Store, renderer Renderer, purger Purger, prefetch Prefetcher, cfg Config) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.GraceDelay < 0 {
		cfg.GraceDelay = defaultGraceDelay
	}
	if cfg.ImageDuration <= 0 {
		cfg.ImageDuration = defaultImageDuration
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Scheduler{
		store:    store,
		renderer: renderer,
		purger:   purger,
		prefetch: prefetch,
		clock:    cfg.Clock,
		check:    cfg.CheckInterval,
		grace:    cfg.GraceDelay,
		image:    cfg.ImageDuration,
		wake:     make(chan struct{}, 1),
		logger:   log.WithComponent("playback"),
		active:   LayerA,
		held:     make(map[Layer]string, 2),
		purging:  make(map[string]struct{}),
	}
}

// Tick runs one playback check at now: hand off when the current item
// changed, advance an image whose time is up and reclaim superseded items
// whose grace delay elapsed. File removal and prefetch run after the
// decision step is released.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.step.Lock()
	var prefetch string
	if cur, ok := s.store.CurrentItem(now); ok && cur.ID != s.rendered {
		prefetch = s.handoff(now, cur)
	}
	if !s.advanceAt.IsZero() && !now.Before(s.advanceAt) {
		s.advance(now, "timer")
	}
	reclaim := s.dueCleanups(now)
	s.step.Unlock()

	for _, id := range reclaim {
		s.purge(id)
	}
	if prefetch != "" && s.prefetch != nil {
		if s.prefetch.Dispatch(ctx, prefetch) {
			s.logger.Info().
				Str(log.FieldEvent, "playback.prefetch").
				Str(log.FieldItemID, prefetch).
				Msg("prefetching next item")
		}
	}
}

// handoff moves cur onto the hidden layer and flips layers. It returns the id
// of the next upcoming item when that still needs a download.
func (s *Scheduler) handoff(now time.Time, cur schedule.Item) string {
	prev, prevLayer := s.rendered, s.active
	next := prevLayer.Other()

	// Claim first, then re-read: a collector that removed the item in
	// between sees it as in use and leaves its files to the cleanup queue.
	s.mu.Lock()
	s.rendered = cur.ID
	s.mu.Unlock()

	fresh, ok := s.store.Get(cur.ID)
	if !ok || fresh.Status != schedule.StatusReady || !fresh.Materialized() {
		s.mu.Lock()
		s.rendered = prev
		s.queue = append(s.queue, cleanup{itemID: cur.ID, due: now.Add(s.grace)})
		s.mu.Unlock()
		s.logger.Debug().
			Str(log.FieldEvent, "playback.handoff_aborted").
			Str(log.FieldItemID, cur.ID).
			Msg("item left ready state before hand-off")
		return ""
	}

	a := s.assignment(fresh, 0, now)
	s.renderer.Show(next, a)
	s.renderer.SetActive(next)

	s.mu.Lock()
	s.item = fresh
	s.active = next
	s.index = 0
	s.advanceAt = a.Until
	s.held[next] = fresh.ID
	s.lastHandoff = now
	if prev != "" {
		s.queue = append(s.queue, cleanup{itemID: prev, layer: prevLayer, due: now.Add(s.grace)})
	}
	s.mu.Unlock()

	metrics.RecordHandoff(string(next))
	s.logger.Info().
		Str(log.FieldEvent, "playback.handoff").
		Str(log.FieldItemID, fresh.ID).
		Str("previous_item_id", prev).
		Str(log.FieldLayer, string(next)).
		Int("resources", len(fresh.Resources)).
		Msg("hand-off")

	if up, ok := s.store.NextUpcoming(now); ok && up.Status == schedule.StatusPending {
		return up.ID
	}
	return ""
}

func (s *Scheduler) assignment(it schedule.Item, idx int, now time.Time) Assignment {
	r := it.Resources[idx]
	a := Assignment{ItemID: it.ID, Index: idx, Resource: r}
	switch {
	case len(it.Resources) == 1:
		a.Loop = r.Kind == schedule.KindVideo
	case r.Kind == schedule.KindImage:
		a.Until = now.Add(r.Duration(s.image))
	}
	return a
}

// advance shows the next resource of the rendered item on the active layer.
func (s *Scheduler) advance(now time.Time, trigger string) {
	fresh, ok := s.store.Get(s.rendered)
	if !ok || fresh.Status != schedule.StatusReady || !fresh.Materialized() || len(fresh.Resources) < 2 {
		s.mu.Lock()
		s.advanceAt = time.Time{}
		s.mu.Unlock()
		s.logger.Debug().
			Str(log.FieldEvent, "playback.rotation_stopped").
			Str(log.FieldItemID, s.rendered).
			Msg("rendered item no longer ready, holding current resource")
		return
	}

	next := (s.index + 1) % len(fresh.Resources)
	a := s.assignment(fresh, next, now)
	s.renderer.Show(s.active, a)

	s.mu.Lock()
	s.item = fresh
	s.index = next
	s.advanceAt = a.Until
	s.mu.Unlock()

	metrics.RecordResourceAdvance(trigger)
	s.logger.Debug().
		Str(log.FieldEvent, "playback.advance").
		Str(log.FieldItemID, fresh.ID).
		Str(log.FieldResourceID, a.Resource.ID).
		Int(log.FieldIndex, next).
		Str("trigger", trigger).
		Msg("resource advanced")
}

// dueCleanups pops cleanup entries whose grace delay elapsed and returns the
// ids whose files must go. An item whose window is still open keeps its
// files; an item that is on screen again is never reclaimed.
func (s *Scheduler) dueCleanups(now time.Time) []string {
	if len(s.queue) == 0 {
		return nil
	}
	var reclaim []string
	keep := s.queue[:0:0]
	for _, c := range s.queue {
		if now.Before(c.due) {
			keep = append(keep, c)
			continue
		}
		if c.itemID == s.rendered {
			continue
		}
		if c.layer != "" && c.layer != s.active && s.held[c.layer] == c.itemID {
			s.renderer.Clear(c.layer)
			s.mu.Lock()
			delete(s.held, c.layer)
			s.mu.Unlock()
		}
		if it, ok := s.store.Get(c.itemID); ok && !it.Window.Ended(now) {
			s.logger.Debug().
				Str(log.FieldEvent, "playback.cleanup_kept").
				Str(log.FieldItemID, c.itemID).
				Msg("superseded item still scheduled, keeping files")
			continue
		}
		if !slices.Contains(reclaim, c.itemID) {
			reclaim = append(reclaim, c.itemID)
		}
	}
	s.mu.Lock()
	s.queue = keep
	for _, id := range reclaim {
		s.purging[id] = struct{}{}
	}
	s.mu.Unlock()
	return reclaim
}

// purge removes id's files. The id stays claimed until Purge returns so the
// collector never deletes the same directory concurrently.
func (s *Scheduler) purge(id string) {
	defer func() {
		s.mu.Lock()
		delete(s.purging, id)
		s.mu.Unlock()
	}()
	if err := s.purger.Purge(id); err != nil {
		metrics.RecordPurge("handoff", metrics.OutcomeFailure)
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "playback.purge_failed").
			Str(log.FieldItemID, id).
			Msg("could not reclaim superseded item, collector will retry")
		return
	}
	metrics.RecordPurge("handoff", metrics.OutcomeSuccess)
	s.logger.Info().
		Str(log.FieldEvent, "playback.purged").
		Str(log.FieldItemID, id).
		Msg("superseded item reclaimed")
}

// PlaybackEnded handles an end-of-playback report and reports whether it was
// honored. Only the video currently assigned to the active layer counts; a
// single-resource item keeps looping at index 0.
func (s *Scheduler) PlaybackEnded(ev EndEvent) bool {
	s.step.Lock()
	defer s.step.Unlock()

	if s.rendered == "" || ev.Layer != s.active || ev.ItemID != s.rendered {
		return false
	}
	cur := s.item.Resources[s.index]
	if ev.ResourceID != cur.ID || cur.Kind != schedule.KindVideo {
		return false
	}
	if len(s.item.Resources) == 1 {
		return true
	}
	s.advance(s.clock.Now(), "ended")
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// DeferIfInUse reports whether id is on screen, waiting for its grace delay
// or being purged by the scheduler right now. The caller must then leave its
// files alone; the scheduler reclaims them after the next hand-off.
func (s *Scheduler) DeferIfInUse(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.rendered {
		return true
	}
	if _, ok := s.purging[id]; ok {
		return true
	}
	for _, c := range s.queue {
		if c.itemID == id {
			return true
		}
	}
	return false
}

// nextDeadline returns the earliest pending rotation or cleanup time.
func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dl time.Time
	if !s.advanceAt.IsZero() {
		dl = s.advanceAt
	}
	for _, c := range s.queue {
		if dl.IsZero() || c.due.Before(dl) {
			dl = c.due
		}
	}
	return dl, !dl.IsZero()
}

func (s *Scheduler) untilNext(now time.Time) time.Duration {
	wait := s.check
	if dl, ok := s.nextDeadline(); ok {
		if d := dl.Sub(now); d < wait {
			wait = d
		}
	}
	return max(wait, minWait)
}

// Run ticks at the check interval, and earlier when a rotation or cleanup
// deadline comes first, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Str(log.FieldEvent, "playback.start").
		Dur("check_interval", s.check).
		Dur("grace_delay", s.grace).
		Msg("playback scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-s.wake:
		}
		now := s.clock.Now()
		s.Tick(ctx, now)
		timer.Reset(s.untilNext(now))
	}
}
