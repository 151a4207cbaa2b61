// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/playback"
	"github.com/ManuGH/reelflow/internal/schedule"
)

type syncView struct {
	LastSync *time.Time `json:"lastSync,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type deviceView struct {
	ID         string            `json:"id"`
	AuthStatus device.AuthStatus `json:"authStatus"`
}

type statusResponse struct {
	Version   string                  `json:"version"`
	Device    deviceView              `json:"device"`
	Sync      syncView                `json:"sync"`
	Counts    map[schedule.Status]int `json:"counts"`
	Playback  playback.State          `json:"playback"`
	Downloads []string                `json:"downloads"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   s.deps.Version,
		Device:    deviceView{ID: s.deps.Device.ID(), AuthStatus: s.deps.Device.AuthStatus()},
		Counts:    s.deps.Store.Counts(),
		Playback:  s.deps.Playback.Snapshot(),
		Downloads: s.deps.Downloads.InFlight(),
	}
	last, err := s.deps.Sync.LastSync()
	if !last.IsZero() {
		resp.Sync.LastSync = &last
	}
	if err != nil {
		resp.Sync.Error = err.Error()
	}
	if resp.Downloads == nil {
		resp.Downloads = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items := s.deps.Store.List()
	if items == nil {
		items = []schedule.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleRender returns the board. With ?since=N it long-polls until the board
// version moves past N or ?wait elapses.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("since")
	if raw == "" {
		writeJSON(w, http.StatusOK, s.deps.Board.Snapshot())
		return
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid since %q", raw))
		return
	}

	wait := s.deps.MaxWait
	if v := q.Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeBadRequest(w, r, fmt.Sprintf("invalid wait %q", v))
			return
		}
		wait = min(d, s.deps.MaxWait)
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	writeJSON(w, http.StatusOK, s.deps.Board.Wait(ctx, since))
}

type endedRequest struct {
	Layer      string `json:"layer"`
	ItemID     string `json:"itemId"`
	ResourceID string `json:"resourceId"`
}

func (s *Server) handleEnded(w http.ResponseWriter, r *http.Request) {
	var req endedRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	layer, ok := playback.ParseLayer(req.Layer)
	if !ok {
		writeBadRequest(w, r, fmt.Sprintf("invalid layer %q", req.Layer))
		return
	}
	if req.ItemID == "" || req.ResourceID == "" {
		writeBadRequest(w, r, "itemId and resourceId are required")
		return
	}

	honored := s.deps.Playback.PlaybackEnded(playback.EndEvent{
		Layer: layer, ItemID: req.ItemID, ResourceID: req.ResourceID,
	})
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Debug().
		Str(log.FieldEvent, "api.render_ended").
		Str("layer", string(layer)).
		Str("item_id", req.ItemID).
		Str("resource_id", req.ResourceID).
		Bool("honored", honored).
		Msg("playback ended callback")
	writeJSON(w, http.StatusOK, map[string]bool{"honored": honored})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.deps.Sync.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
