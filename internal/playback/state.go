// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import "time"

// State is a read-only view of the scheduler for status reporting.
type State struct {
	RenderedItemID string     `json:"renderedItemId,omitempty"`
	ActiveLayer    Layer      `json:"activeLayer"`
	ResourceIndex  int        `json:"resourceIndex"`
	NextAdvance    *time.Time `json:"nextAdvance,omitempty"`
	LastHandoff    *time.Time `json:"lastHandoff,omitempty"`
	PendingCleanup []string   `json:"pendingCleanup,omitempty"`
}

// Snapshot returns the current state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		RenderedItemID: s.rendered,
		ActiveLayer:    s.active,
		ResourceIndex:  s.index,
	}
	if !s.advanceAt.IsZero() {
		t := s.advanceAt
		st.NextAdvance = &t
	}
	if !s.lastHandoff.IsZero() {
		t := s.lastHandoff
		st.LastHandoff = &t
	}
	for _, c := range s.queue {
		st.PendingCleanup = append(st.PendingCleanup, c.itemID)
	}
	return st
}
