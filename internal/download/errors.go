// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrFetch       = errors.New("download: transport failure")
	ErrBadStatus   = errors.New("download: non-success response")
	ErrWrite       = errors.New("download: local write failed")
	ErrUnknownItem = errors.New("download: item not in schedule")
)

// Error describes a failed materialization. It unwraps to both its sentinel
// and the lower-level cause.
type Error struct {
	Sentinel   error
	ItemID     string
	ResourceID string
	Status     int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("download %s: %v", e.ItemID, e.Sentinel)
	if e.ResourceID != "" {
		msg = fmt.Sprintf("download %s/%s: %v", e.ItemID, e.ResourceID, e.Sentinel)
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}
