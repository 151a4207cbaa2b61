// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device holds the identity the daemon presents to the remote
// authority and the authorization status it last reported.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ManuGH/reelflow/internal/fsutil"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/google/uuid"
)

const (
	idFile   = "device_id"
	authFile = "auth_status"
)

// AuthStatus is the authorization state reported by the remote authority.
type AuthStatus string

const (
	AuthWaiting    AuthStatus = "waiting"
	AuthAuthorized AuthStatus = "authorized"
	AuthRejected   AuthStatus = "rejected"
)

// ParseAuthStatus maps a wire value to an AuthStatus.
func ParseAuthStatus(s string) (AuthStatus, bool) {
	switch st := AuthStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case AuthWaiting, AuthAuthorized, AuthRejected:
		return st, true
	}
	return "", false
}

// Identity is the device id plus its current authorization status.
type Identity struct {
	id      string
	dataDir string

	mu     sync.RWMutex
	status AuthStatus
}

// Load returns the device identity. A non-empty override wins and is never
// written to disk; otherwise the id stored under dataDir is used, and a new
// UUID is generated and persisted on first start.
func Load(dataDir, override string) (*Identity, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("device: create data dir: %w", err)
	}
	ident := &Identity{dataDir: dataDir, status: readAuth(dataDir)}

	if id := strings.TrimSpace(override); id != "" {
		ident.id = id
		return ident, nil
	}

	logger := log.WithComponent("device")
	path := filepath.Join(dataDir, idFile)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if u, perr := uuid.Parse(strings.TrimSpace(string(raw))); perr == nil {
			ident.id = u.String()
			return ident, nil
		}
		logger.Warn().
			Str(log.FieldEvent, "device.id_invalid").
			Str(log.FieldPath, path).
			Msg("stored device id unreadable, generating a new one")
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("device: read id: %w", err)
	}

	ident.id = uuid.NewString()
	if err := fsutil.WriteFileAtomic(path, []byte(ident.id+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("device: persist id: %w", err)
	}
	logger.Info().
		Str(log.FieldEvent, "device.id_generated").
		Str(log.FieldDeviceID, ident.id).
		Msg("generated device id")
	return ident, nil
}

// ID returns the device id.
func (i *Identity) ID() string { return i.id }

// AuthStatus returns the last reported authorization status.
func (i *Identity) AuthStatus() AuthStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// SetAuthStatus records a status reported by the remote authority and returns
// whether it changed. Changes are persisted best effort.
func (i *Identity) SetAuthStatus(s AuthStatus) bool {
	i.mu.Lock()
	if i.status == s {
		i.mu.Unlock()
		return false
	}
	old := i.status
	i.status = s
	i.mu.Unlock()

	logger := log.WithComponent("device")
	if err := fsutil.WriteFileAtomic(filepath.Join(i.dataDir, authFile), []byte(string(s)+"\n"), 0o600); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "device.auth_persist_failed").Msg("could not persist auth status")
	}
	logger.Info().
		Str(log.FieldEvent, "device.auth_changed").
		Str(log.FieldOldState, string(old)).
		Str(log.FieldNewState, string(s)).
		Msg("authorization status changed")
	return true
}

func readAuth(dataDir string) AuthStatus {
	raw, err := os.ReadFile(filepath.Join(dataDir, authFile))
	if err != nil {
		return AuthWaiting
	}
	if st, ok := ParseAuthStatus(string(raw)); ok {
		return st
	}
	return AuthWaiting
}
