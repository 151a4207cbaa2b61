// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package schedule

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/persistence/kv"
	"github.com/rs/zerolog"
)

// Store is the single source of truth for scheduled items. Reads return
// copies; every mutation is one short critical section on one key. Changes
// are persisted write-behind by Run or Flush.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Item
	dirty map[string]struct{}

	backend kv.Backend
	notify  chan struct{}
	flushMu sync.Mutex
	logger  zerolog.Logger

	onFlushError func(error)
}

// Option configures a Store.
type Option func(*Store)

// WithFlushErrorHook registers fn to be called after every failed background flush.
func WithFlushErrorHook(fn func(error)) Option {
	return func(s *Store) { s.onFlushError = fn }
}

// Open loads every persisted item from backend. Items caught mid-download by a
// previous process are reset to Pending; undecodable records are skipped.
func Open(ctx context.Context, backend kv.Backend, opts ...Option) (*Store, error) {
	s := &Store{
		items:   make(map[string]*Item),
		dirty:   make(map[string]struct{}),
		backend: backend,
		notify:  make(chan struct{}, 1),
		logger:  log.WithComponent("schedule"),
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	for key, raw := range records {
		id, ok := idFromKey(key)
		if !ok {
			continue
		}
		it, err := decodeItem(raw)
		if err != nil || it.ID != id {
			s.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "schedule.record_skipped").
				Str(log.FieldItemID, id).
				Msg("skipping undecodable schedule record")
			s.dirty[id] = struct{}{}
			continue
		}
		if it.Status == StatusDownloading {
			it.Status = StatusPending
			it.clearLocal()
			s.dirty[id] = struct{}{}
		}
		s.items[id] = &it
	}

	s.logger.Info().
		Str(log.FieldEvent, "schedule.loaded").
		Str("backend", backend.Name()).
		Int("items", len(s.items)).
		Msg("schedule store opened")
	if len(s.dirty) > 0 {
		s.signal()
	}
	return s, nil
}

// List returns copies of all items ordered by start time then id.
func (s *Store) List() []Item {
	s.mu.RLock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, byStart)
	return out
}

// Get returns a copy of the item with id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return it.Clone(), true
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// UpsertMany inserts items whose id is unseen, as Pending with no local
// state, and returns copies of the admitted items. Known ids are left
// untouched regardless of the incoming copy.
func (s *Store) UpsertMany(items []Item) []Item {
	s.mu.Lock()
	admitted := make([]Item, 0, len(items))
	for _, in := range items {
		if _, exists := s.items[in.ID]; exists {
			continue
		}
		it := in.Clone()
		it.Status = StatusPending
		it.clearLocal()
		s.items[it.ID] = &it
		s.markDirtyLocked(it.ID)
		admitted = append(admitted, it.Clone())
	}
	s.mu.Unlock()
	slices.SortFunc(admitted, byStart)
	return admitted
}

// Update applies fn to the stored item under the store lock. fn must not block.
// Returning an error from fn discards its changes.
func (s *Store) Update(id string, fn func(*Item) error) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur.Clone(), err
	}
	next.ID = id
	if next.Status != StatusReady {
		next.clearLocal()
	} else if !next.Materialized() {
		return cur.Clone(), fmt.Errorf("%w: %s", ErrIncomplete, id)
	}
	s.items[id] = &next
	s.markDirtyLocked(id)
	return next.Clone(), nil
}

// UpdateStatus sets the status of id and reports whether the change was
// applied. It returns false for an unknown id and for a refused transition.
// Leaving Ready clears localRoot and every resource path. Entering Ready only
// succeeds when every resource already has a local path, so callers that
// finish a download use MarkReady instead.
func (s *Store) UpdateStatus(id string, status Status, localRoot string) bool {
	_, err := s.Update(id, func(it *Item) error {
		it.Status = status
		if status == StatusReady && localRoot != "" {
			it.LocalRoot = localRoot
		}
		return nil
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrUnknownItem):
		s.logger.Warn().
			Str(log.FieldEvent, "schedule.unknown_item").
			Str(log.FieldItemID, id).
			Str(log.FieldNewState, string(status)).
			Msg("status update for unknown item ignored")
		return false
	default:
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "schedule.update_rejected").
			Str(log.FieldItemID, id).
			Str(log.FieldNewState, string(status)).
			Msg("status update rejected")
		return false
	}
}

// MarkReady records the local path of every resource and sets the item Ready
// in one step. paths maps resource id to file path.
func (s *Store) MarkReady(id, localRoot string, paths map[string]string) error {
	_, err := s.Update(id, func(it *Item) error {
		for i := range it.Resources {
			p, ok := paths[it.Resources[i].ID]
			if !ok || p == "" {
				return fmt.Errorf("%w: resource %s has no path", ErrIncomplete, it.Resources[i].ID)
			}
			it.Resources[i].LocalPath = p
		}
		it.LocalRoot = localRoot
		it.Status = StatusReady
		return nil
	})
	return err
}

// CurrentItem returns the Ready item whose window contains now. Overlaps are
// resolved by earliest start, then id.
func (s *Store) CurrentItem(now time.Time) (Item, bool) {
	return s.pick(func(it *Item) bool { return it.Active(now) })
}

// NextItem returns the Ready item with the smallest start after now.
func (s *Store) NextItem(now time.Time) (Item, bool) {
	return s.pick(func(it *Item) bool {
		return it.Status == StatusReady && it.Window.Start.After(now)
	})
}

// NextUpcoming is NextItem without the Ready filter: the earliest item that
// starts after now, whatever its download state.
func (s *Store) NextUpcoming(now time.Time) (Item, bool) {
	return s.pick(func(it *Item) bool {
		return it.Status != StatusExpired && it.Window.Start.After(now)
	})
}

// Pending returns every Pending item whose window has not ended, earliest first.
func (s *Store) Pending(now time.Time) []Item {
	s.mu.RLock()
	var out []Item
	for _, it := range s.items {
		if it.Status == StatusPending && !it.Window.Ended(now) {
			out = append(out, it.Clone())
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, byStart)
	return out
}

func (s *Store) pick(match func(*Item) bool) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Item
	for _, it := range s.items {
		if !match(it) {
			continue
		}
		if best == nil || byStart(*it, *best) < 0 {
			best = it
		}
	}
	if best == nil {
		return Item{}, false
	}
	return best.Clone(), true
}

// RemoveExpired removes and returns every item with End <= now. The returned
// copies carry StatusExpired.
func (s *Store) RemoveExpired(now time.Time) []Item {
	s.mu.Lock()
	var out []Item
	for id, it := range s.items {
		if !it.Window.Ended(now) {
			continue
		}
		gone := it.Clone()
		gone.Status = StatusExpired
		out = append(out, gone)
		delete(s.items, id)
		s.markDirtyLocked(id)
	}
	s.mu.Unlock()
	slices.SortFunc(out, byStart)
	return out
}

// Counts returns the number of items per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Status]int, len(Statuses))
	for _, st := range Statuses {
		out[st] = 0
	}
	for _, it := range s.items {
		out[it.Status]++
	}
	return out
}

// IDs returns the set of stored ids.
func (s *Store) IDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.items))
	for id := range s.items {
		out[id] = struct{}{}
	}
	return out
}

func byStart(a, b Item) int {
	if c := a.Window.Start.Compare(b.Window.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
