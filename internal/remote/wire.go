// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/reelflow/internal/schedule"
)

// wireID accepts ids sent either as JSON strings or as numbers.
type wireID string

func (w *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*w = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*w = wireID(n.String())
	return nil
}

type tasksResponse struct {
	Tasks []taskDTO `json:"tasks"`
}

type taskDTO struct {
	ID        wireID        `json:"id"`
	StartTime int64         `json:"startTime"`
	EndTime   int64         `json:"endTime"`
	Resources []resourceDTO `json:"resources"`
	Status    string        `json:"status,omitempty"`
}

type resourceDTO struct {
	ID       wireID `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Duration int64  `json:"duration,omitempty"`
}

type deviceRequest struct {
	DeviceID  string `json:"deviceId"`
	Timestamp int64  `json:"timestamp"`
}

type deviceResponse struct {
	AuthStatus string `json:"authStatus,omitempty"`
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// toItem converts one task record. The remote status is ignored: the local
// lifecycle always starts at Pending.
func (t taskDTO) toItem() schedule.Item {
	it := schedule.Item{
		ID:     strings.TrimSpace(string(t.ID)),
		Window: schedule.Window{Start: fromMillis(t.StartTime), End: fromMillis(t.EndTime)},
		Status: schedule.StatusPending,
	}
	for _, r := range t.Resources {
		res := schedule.Resource{
			ID:        strings.TrimSpace(string(r.ID)),
			Kind:      schedule.Kind(strings.ToLower(strings.TrimSpace(r.Type))),
			RemoteURI: strings.TrimSpace(r.URL),
		}
		if res.Kind == schedule.KindImage && r.Duration > 0 {
			res.DisplayDuration = time.Duration(r.Duration) * time.Millisecond
		}
		it.Resources = append(it.Resources, res)
	}
	return it
}

// Schedule is a decoded schedule response.
type Schedule struct {
	Items []schedule.Item
	// Rejected holds one error per record that failed validation.
	Rejected []error
}

func decodeSchedule(tasks []taskDTO) Schedule {
	var out Schedule
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		it := t.toItem()
		if err := it.Validate(); err != nil {
			out.Rejected = append(out.Rejected, err)
			continue
		}
		if _, dup := seen[it.ID]; dup {
			out.Rejected = append(out.Rejected, fmt.Errorf("%w %s: duplicate id in response", schedule.ErrInvalidItem, it.ID))
			continue
		}
		seen[it.ID] = struct{}{}
		out.Items = append(out.Items, it)
	}
	return out
}
