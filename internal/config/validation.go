// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/reelflow/internal/validate"
)

// Validate checks a resolved configuration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)
	v.NotEmpty("dataDir", cfg.DataDir)

	v.URL("remote.serverUrl", cfg.Remote.ServerURL, []string{"http", "https"})
	v.DurationAtLeast("remote.timeout", cfg.Remote.Timeout, time.Millisecond)
	v.PositiveFloat("remote.rateLimit", cfg.Remote.RateLimit)
	v.Positive("remote.burst", cfg.Remote.Burst)
	v.Positive("remote.breakerThreshold", cfg.Remote.BreakerThreshold)
	v.DurationAtLeast("remote.breakerReset", cfg.Remote.BreakerReset, time.Millisecond)
	v.DurationAtLeast("remote.heartbeatInterval", cfg.Remote.HeartbeatInterval, time.Millisecond)

	v.DurationAtLeast("schedule.syncInterval", cfg.Schedule.SyncInterval, time.Millisecond)
	v.DurationAtLeast("schedule.gcInterval", cfg.Schedule.GCInterval, time.Millisecond)

	v.DurationAtLeast("playback.checkInterval", cfg.Playback.CheckInterval, time.Millisecond)
	v.DurationAtLeast("playback.graceDelay", cfg.Playback.GraceDelay, 0)
	v.DurationAtLeast("playback.imageDuration", cfg.Playback.ImageDuration, time.Millisecond)

	v.NotEmpty("download.root", cfg.Download.Root)
	v.Range("download.concurrency", cfg.Download.Concurrency, 1, 32)
	v.DurationAtLeast("download.timeout", cfg.Download.Timeout, time.Second)

	v.OneOf("store.backend", cfg.Store.Backend, Backends)
	switch cfg.Store.Backend {
	case BackendRedis:
		v.NotEmpty("store.redis.addr", cfg.Store.Redis.Addr)
		v.NonNegative("store.redis.db", cfg.Store.Redis.DB)
	case BackendBolt, BackendBadger, BackendSQLite:
		v.NotEmpty("store.path", cfg.Store.Path)
	}

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.Positive("api.rateLimit", cfg.API.RateLimit)

	if cfg.Metrics.Enabled {
		v.NotEmpty("metrics.listenAddr", cfg.Metrics.ListenAddr)
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
