// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package schedule

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/persistence/kv"
)

const (
	keyPrefix = "item:"

	flushDelay      = 200 * time.Millisecond
	flushRetryDelay = 5 * time.Second
	finalFlushLimit = 5 * time.Second
)

func itemKey(id string) string { return keyPrefix + id }

func idFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, keyPrefix), true
}

func decodeItem(raw []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *Store) markDirtyLocked(id string) {
	s.dirty[id] = struct{}{}
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Flush writes every pending change to the backend in one batch. On failure
// the affected ids stay dirty and are retried by the next flush.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	ids := s.dirty
	s.dirty = make(map[string]struct{})
	batch := kv.Batch{Puts: make(map[string][]byte, len(ids))}
	for id := range ids {
		it, ok := s.items[id]
		if !ok {
			batch.Deletes = append(batch.Deletes, itemKey(id))
			continue
		}
		raw, err := json.Marshal(it)
		if err != nil {
			// Item contains only plain fields; this cannot fail in practice.
			s.logger.Error().Err(err).Str(log.FieldItemID, id).Msg("encode schedule item")
			continue
		}
		batch.Puts[itemKey(id)] = raw
	}
	s.mu.Unlock()

	if err := s.backend.Apply(ctx, batch); err != nil {
		s.mu.Lock()
		for id := range ids {
			s.dirty[id] = struct{}{}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Dirty returns the number of changes not yet persisted.
func (s *Store) Dirty() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty)
}

// Run persists changes shortly after they happen until ctx is cancelled,
// then performs a final flush.
func (s *Store) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushLimit)
			err := s.Flush(final)
			cancel()
			if err != nil {
				s.logger.Error().
					Err(err).
					Str(log.FieldEvent, "schedule.final_flush_failed").
					Int("dirty", s.Dirty()).
					Msg("final schedule flush failed")
			}
			return nil
		case <-s.notify:
			if !armed {
				timer.Reset(flushDelay)
				armed = true
			}
		case <-timer.C:
			armed = false
			if err := s.Flush(ctx); err != nil {
				s.logger.Error().
					Err(err).
					Str(log.FieldEvent, "schedule.flush_failed").
					Str("backend", s.backend.Name()).
					Msg("persisting schedule failed, will retry")
				if s.onFlushError != nil {
					s.onFlushError(err)
				}
				timer.Reset(flushRetryDelay)
				armed = true
			}
		}
	}
}

// Ping checks the durability backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
