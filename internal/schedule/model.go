// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package schedule holds the scheduled item model and the Store that owns
// the authoritative copy of every item.
package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Status is the persisted lifecycle state of an Item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusReady       Status = "ready"
	StatusExpired     Status = "expired"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusDownloading, StatusReady, StatusExpired}

// Kind is the media type of a Resource.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Extension returns the file extension materialized files of this kind use.
func (k Kind) Extension() string {
	switch k {
	case KindVideo:
		return ".mp4"
	case KindImage:
		return ".jpg"
	}
	return ""
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Ended reports whether the window is over at now (End <= now).
func (w Window) Ended(now time.Time) bool {
	return !now.Before(w.End)
}

// Resource is one playable unit of an Item.
type Resource struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	RemoteURI string `json:"remoteUri"`
	// DisplayDuration applies to images only; zero means the configured default.
	DisplayDuration time.Duration `json:"displayDuration,omitempty"`
	LocalPath       string        `json:"localPath,omitempty"`
}

// Duration returns how long an image stays on screen.
func (r Resource) Duration(fallback time.Duration) time.Duration {
	if r.DisplayDuration > 0 {
		return r.DisplayDuration
	}
	return fallback
}

// Item is a unit of content bound to a time window.
type Item struct {
	ID        string     `json:"id"`
	Window    Window     `json:"window"`
	Resources []Resource `json:"resources"`
	Status    Status     `json:"status"`
	LocalRoot string     `json:"localRoot,omitempty"`
}

// Active reports whether the item should be on screen at now. It is derived
// and never persisted.
func (it Item) Active(now time.Time) bool {
	return it.Status == StatusReady && it.Window.Contains(now)
}

// Clone returns a deep copy.
func (it Item) Clone() Item {
	it.Resources = slices.Clone(it.Resources)
	return it
}

// Materialized reports whether every resource carries a local path.
func (it Item) Materialized() bool {
	if len(it.Resources) == 0 {
		return false
	}
	for _, r := range it.Resources {
		if r.LocalPath == "" {
			return false
		}
	}
	return true
}

// clearLocal drops every local location. Used whenever the item leaves Ready.
func (it *Item) clearLocal() {
	it.LocalRoot = ""
	for i := range it.Resources {
		it.Resources[i].LocalPath = ""
	}
}

// ErrInvalidItem classifies records that cannot be scheduled.
var ErrInvalidItem = errors.New("invalid item")

// Validate checks the shape of an item received from the remote authority.
func (it Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidItem)
	}
	if !it.Window.End.After(it.Window.Start) {
		return fmt.Errorf("%w %s: end %s not after start %s", ErrInvalidItem, it.ID,
			it.Window.End.Format(time.RFC3339), it.Window.Start.Format(time.RFC3339))
	}
	if len(it.Resources) == 0 {
		return fmt.Errorf("%w %s: no resources", ErrInvalidItem, it.ID)
	}
	seen := make(map[string]struct{}, len(it.Resources))
	for i, r := range it.Resources {
		if r.ID == "" {
			return fmt.Errorf("%w %s: resource %d has empty id", ErrInvalidItem, it.ID, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w %s: duplicate resource id %s", ErrInvalidItem, it.ID, r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Kind != KindVideo && r.Kind != KindImage {
			return fmt.Errorf("%w %s: resource %s has unknown kind %q", ErrInvalidItem, it.ID, r.ID, r.Kind)
		}
		if r.RemoteURI == "" {
			return fmt.Errorf("%w %s: resource %s has no uri", ErrInvalidItem, it.ID, r.ID)
		}
	}
	return nil
}
