// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package render keeps the in-process render state that an external player
// process polls over the API.
package render

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/playback"
	"github.com/ManuGH/reelflow/internal/schedule"
)

// LayerView is what one layer currently holds.
type LayerView struct {
	Layer      playback.Layer `json:"layer"`
	Visible    bool           `json:"visible"`
	ItemID     string         `json:"itemId,omitempty"`
	ResourceID string         `json:"resourceId,omitempty"`
	Index      int            `json:"index"`
	Kind       schedule.Kind  `json:"kind,omitempty"`
	Path       string         `json:"path,omitempty"`
	Loop       bool           `json:"loop"`
	Until      *time.Time     `json:"until,omitempty"`
}

// Snapshot is a consistent view of both layers.
type Snapshot struct {
	Version uint64         `json:"version"`
	Active  playback.Layer `json:"active,omitempty"`
	Layers  []LayerView    `json:"layers"`
}

// Board implements playback.Renderer by recording assignments.
type Board struct {
	mu      sync.Mutex
	version uint64
	active  playback.Layer
	layers  map[playback.Layer]playback.Assignment
	changed chan struct{}
}

var _ playback.Renderer = (*Board)(nil)

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{
		layers:  make(map[playback.Layer]playback.Assignment, 2),
		changed: make(chan struct{}),
	}
}

// Show implements playback.Renderer.
func (b *Board) Show(layer playback.Layer, a playback.Assignment) {
	b.mu.Lock()
	b.layers[layer] = a
	b.bumpLocked()
	b.mu.Unlock()
}

// SetActive implements playback.Renderer.
func (b *Board) SetActive(layer playback.Layer) {
	b.mu.Lock()
	b.active = layer
	b.bumpLocked()
	b.mu.Unlock()
}

// Clear implements playback.Renderer.
func (b *Board) Clear(layer playback.Layer) {
	b.mu.Lock()
	if _, ok := b.layers[layer]; ok {
		delete(b.layers, layer)
		b.bumpLocked()
	}
	b.mu.Unlock()
}

func (b *Board) bumpLocked() {
	b.version++
	close(b.changed)
	b.changed = make(chan struct{})
}

// Snapshot returns the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() Snapshot {
	snap := Snapshot{Version: b.version, Active: b.active}
	for _, l := range []playback.Layer{playback.LayerA, playback.LayerB} {
		v := LayerView{Layer: l, Visible: l == b.active}
		if a, ok := b.layers[l]; ok {
			v.ItemID = a.ItemID
			v.ResourceID = a.Resource.ID
			v.Index = a.Index
			v.Kind = a.Resource.Kind
			v.Path = a.Resource.LocalPath
			v.Loop = a.Loop
			if !a.Until.IsZero() {
				until := a.Until
				v.Until = &until
			}
		}
		snap.Layers = append(snap.Layers, v)
	}
	return snap
}

// Wait blocks until the board version exceeds since or ctx is done, and
// returns the snapshot at that point.
func (b *Board) Wait(ctx context.Context, since uint64) Snapshot {
	for {
		b.mu.Lock()
		if b.version > since {
			snap := b.snapshotLocked()
			b.mu.Unlock()
			return snap
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return b.Snapshot()
		case <-ch:
		}
	}
}
