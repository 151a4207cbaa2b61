// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Field names shared by every component.
const (
	FieldComponent = "component"
	FieldEvent     = "event"

	FieldDeviceID   = "device_id"
	FieldRequestID  = "request_id"
	FieldTickID     = "tick_id"
	FieldItemID     = "item_id"
	FieldResourceID = "resource_id"
	FieldIndex      = "resource_index"
	FieldLayer      = "layer"

	FieldOldState = "old_state"
	FieldNewState = "new_state"

	FieldPath      = "path"
	FieldLocalRoot = "local_root"
	FieldBaseURL   = "base_url"
	FieldURL       = "url"
)
