// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("REELFLOW_DATA", dataDir)

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, DefaultServerURL, cfg.Remote.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Schedule.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.Remote.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.Playback.CheckInterval)
	assert.Equal(t, 5*time.Second, cfg.Playback.GraceDelay)
	assert.Equal(t, 5*time.Second, cfg.Playback.ImageDuration)
	assert.Equal(t, filepath.Join(dataDir, "tasks"), cfg.Download.Root)
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dataDir, "schedule.db"), cfg.Store.Path)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromYAML(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
dataDir: `+dataDir+`
logLevel: debug
device:
  id: lobby-01
remote:
  serverUrl: http://authority.local:8080
  heartbeatInterval: 20s
schedule:
  syncInterval: 1m
playback:
  graceDelay: 0s
store:
  backend: sqlite
metrics:
  enabled: false
`)

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "lobby-01", cfg.Device.ID)
	assert.Equal(t, "http://authority.local:8080", cfg.Remote.ServerURL)
	assert.Equal(t, 20*time.Second, cfg.Remote.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.Schedule.SyncInterval)
	assert.Equal(t, time.Duration(0), cfg.Playback.GraceDelay)
	assert.Equal(t, filepath.Join(dataDir, "schedule.sqlite"), cfg.Store.Path)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestENVOverridesFile(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
dataDir: `+dataDir+`
remote:
  serverUrl: http://from-file.local
download:
  concurrency: 2
`)
	t.Setenv("REELFLOW_SERVER_URL", "https://from-env.local")
	t.Setenv("REELFLOW_DOWNLOAD_CONCURRENCY", "8")
	t.Setenv("REELFLOW_GRACE_DELAY", "2s")

	l := NewLoader(path, "test")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.local", cfg.Remote.ServerURL)
	assert.Equal(t, 8, cfg.Download.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Playback.GraceDelay)
	assert.Contains(t, l.ConsumedEnvKeys, "REELFLOW_SERVER_URL")
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "dataDir: /tmp\nbogus: true\n")

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_MultipleDocumentsRejected(t *testing.T) {
	path := writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n")

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := NewLoader(path, "test").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv("REELFLOW_DATA", t.TempDir())
	path := writeConfig(t, "")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncInterval, cfg.Schedule.SyncInterval)
}

func TestLoad_InvalidFailsValidation(t *testing.T) {
	t.Setenv("REELFLOW_DATA", t.TempDir())
	t.Setenv("REELFLOW_STORE_BACKEND", "redis")

	_, err := NewLoader("", "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.redis.addr")
}
