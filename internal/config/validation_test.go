// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig(t *testing.T) AppConfig {
	t.Helper()
	cfg := Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Download.Root = cfg.DataDir + "/tasks"
	cfg.Store.Path = cfg.DataDir + "/schedule.db"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig(t)))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"bad scheme", func(c *AppConfig) { c.Remote.ServerURL = "ftp://x" }, "remote.serverUrl"},
		{"zero sync interval", func(c *AppConfig) { c.Schedule.SyncInterval = 0 }, "schedule.syncInterval"},
		{"negative grace", func(c *AppConfig) { c.Playback.GraceDelay = -time.Second }, "playback.graceDelay"},
		{"concurrency too high", func(c *AppConfig) { c.Download.Concurrency = 64 }, "download.concurrency"},
		{"unknown backend", func(c *AppConfig) { c.Store.Backend = "mongo" }, "store.backend"},
		{"redis without addr", func(c *AppConfig) { c.Store.Backend = BackendRedis }, "store.redis.addr"},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }, "logLevel"},
		{"bad listen", func(c *AppConfig) { c.API.ListenAddr = "nope" }, "api.listenAddr"},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.field)
			}
		})
	}
}

func TestValidate_ZeroGraceAllowed(t *testing.T) {
	cfg := validConfig(t)
	cfg.Playback.GraceDelay = 0
	assert.NoError(t, Validate(cfg))
}
