// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads the daemon configuration.
// Precedence is ENV > YAML file > defaults.
package config

import "time"

// Store backend names accepted by StoreConfig.Backend.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Backends lists every supported store backend.
var Backends = []string{BackendMemory, BackendBolt, BackendBadger, BackendSQLite, BackendRedis}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version    string
	DataDir    string
	LogLevel   string
	LogService string

	Device    DeviceConfig
	Remote    RemoteConfig
	Schedule  ScheduleConfig
	Playback  PlaybackConfig
	Download  DownloadConfig
	Store     StoreConfig
	API       APIConfig
	Metrics   MetricsConfig
	Telemetry TelemetryConfig
}

// DeviceConfig identifies this display device to the remote authority.
type DeviceConfig struct {
	// ID overrides the generated, persisted device identifier when set.
	ID string
}

// RemoteConfig configures the remote schedule authority client.
type RemoteConfig struct {
	ServerURL         string
	Timeout           time.Duration
	RateLimit         float64 // requests per second
	Burst             int
	BreakerThreshold  int
	BreakerReset      time.Duration
	HeartbeatInterval time.Duration
}

// ScheduleConfig holds the reconciliation and garbage collection cadences.
type ScheduleConfig struct {
	SyncInterval time.Duration
	GCInterval   time.Duration
}

// PlaybackConfig holds playback scheduler timings.
type PlaybackConfig struct {
	CheckInterval time.Duration
	GraceDelay    time.Duration
	ImageDuration time.Duration
}

// DownloadConfig configures the download pipeline.
type DownloadConfig struct {
	Root        string
	Concurrency int
	Timeout     time.Duration
}

// StoreConfig selects the durable backend for the schedule store.
type StoreConfig struct {
	Backend string
	Path    string
	Redis   RedisConfig
}

// RedisConfig is only used by the redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// APIConfig configures the local control API.
type APIConfig struct {
	ListenAddr string
	RateLimit  int // requests per minute per client
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // grpc | http
	Endpoint     string
	SamplingRate float64
}
