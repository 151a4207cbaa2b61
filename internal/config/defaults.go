// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Default values applied before the file and environment layers.
const (
	DefaultDataDir           = "data"
	DefaultLogLevel          = "info"
	DefaultLogService        = "reelflow"
	DefaultServerURL         = "https://link.demo.com"
	DefaultRemoteTimeout     = 10 * time.Second
	DefaultRemoteRPS         = 2.0
	DefaultRemoteBurst       = 4
	DefaultBreakerThreshold  = 5
	DefaultBreakerReset      = 30 * time.Second
	DefaultSyncInterval      = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultCheckInterval     = time.Second
	DefaultGraceDelay        = 5 * time.Second
	DefaultImageDuration     = 5 * time.Second
	DefaultGCInterval        = 30 * time.Second
	DefaultDownloadWorkers   = 4
	DefaultDownloadTimeout   = 2 * time.Minute
	DefaultListenAddr        = ":8088"
	DefaultAPIRateLimit      = 120
	DefaultMetricsListenAddr = ":9090"
	DefaultTelemetryExporter = "grpc"
	DefaultTelemetryEndpoint = "localhost:4317"
	DefaultSamplingRate      = 1.0

	mediaDirName = "tasks"
)

// Defaults returns a configuration populated with default values only.
// Paths derived from DataDir are resolved by the loader.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    DefaultDataDir,
		LogLevel:   DefaultLogLevel,
		LogService: DefaultLogService,
		Remote: RemoteConfig{
			ServerURL:         DefaultServerURL,
			Timeout:           DefaultRemoteTimeout,
			RateLimit:         DefaultRemoteRPS,
			Burst:             DefaultRemoteBurst,
			BreakerThreshold:  DefaultBreakerThreshold,
			BreakerReset:      DefaultBreakerReset,
			HeartbeatInterval: DefaultHeartbeatInterval,
		},
		Schedule: ScheduleConfig{
			SyncInterval: DefaultSyncInterval,
			GCInterval:   DefaultGCInterval,
		},
		Playback: PlaybackConfig{
			CheckInterval: DefaultCheckInterval,
			GraceDelay:    DefaultGraceDelay,
			ImageDuration: DefaultImageDuration,
		},
		Download: DownloadConfig{
			Concurrency: DefaultDownloadWorkers,
			Timeout:     DefaultDownloadTimeout,
		},
		Store: StoreConfig{Backend: BackendBolt},
		API: APIConfig{
			ListenAddr: DefaultListenAddr,
			RateLimit:  DefaultAPIRateLimit,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: DefaultMetricsListenAddr,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultTelemetryExporter,
			Endpoint:     DefaultTelemetryEndpoint,
			SamplingRate: DefaultSamplingRate,
		},
	}
}

// defaultStorePath picks the on-disk location for a backend under dataDir.
func defaultStorePath(dataDir, backend string) string {
	switch backend {
	case BackendBadger:
		return joinData(dataDir, "schedule.badger")
	case BackendSQLite:
		return joinData(dataDir, "schedule.sqlite")
	case BackendBolt:
		return joinData(dataDir, "schedule.db")
	}
	return ""
}
