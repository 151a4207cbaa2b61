// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package schedule

import "errors"

var (
	// ErrUnknownItem is returned when a mutation targets an id the store does not hold.
	ErrUnknownItem = errors.New("unknown schedule item")

	// ErrIncomplete is returned when an item would become Ready without every
	// resource having a local path.
	ErrIncomplete = errors.New("item not fully materialized")
)
