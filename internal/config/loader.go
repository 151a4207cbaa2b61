// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownConfigField wraps strict YAML failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("config: unknown field")
	// ErrUnsupportedFormat rejects config files without a .yaml or .yml suffix.
	ErrUnsupportedFormat = errors.New("config: unsupported format")
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // keys read during the last Load
}

// NewLoader creates a new configuration loader. An empty configPath means
// the configuration comes from defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path the loader reads, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env overrides -> derived paths -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Download.Root == "" {
		cfg.Download.Root = joinData(cfg.DataDir, mediaDirName)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath(cfg.DataDir, cfg.Store.Backend)
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause an error to prevent silent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogService, f.LogService)
	setString(&cfg.Device.ID, f.Device.ID)

	setString(&cfg.Remote.ServerURL, f.Remote.ServerURL)
	setDuration(&cfg.Remote.Timeout, f.Remote.Timeout)
	setFloat(&cfg.Remote.RateLimit, f.Remote.RateLimit)
	setInt(&cfg.Remote.Burst, f.Remote.Burst)
	setInt(&cfg.Remote.BreakerThreshold, f.Remote.BreakerThreshold)
	setDuration(&cfg.Remote.BreakerReset, f.Remote.BreakerReset)
	setDuration(&cfg.Remote.HeartbeatInterval, f.Remote.HeartbeatInterval)

	setDuration(&cfg.Schedule.SyncInterval, f.Schedule.SyncInterval)
	setDuration(&cfg.Schedule.GCInterval, f.Schedule.GCInterval)

	setDuration(&cfg.Playback.CheckInterval, f.Playback.CheckInterval)
	if f.Playback.GraceDelay != nil {
		cfg.Playback.GraceDelay = *f.Playback.GraceDelay
	}
	setDuration(&cfg.Playback.ImageDuration, f.Playback.ImageDuration)

	setString(&cfg.Download.Root, f.Download.Root)
	setInt(&cfg.Download.Concurrency, f.Download.Concurrency)
	setDuration(&cfg.Download.Timeout, f.Download.Timeout)

	setString(&cfg.Store.Backend, f.Store.Backend)
	setString(&cfg.Store.Path, f.Store.Path)
	setString(&cfg.Store.Redis.Addr, f.Store.Redis.Addr)
	setString(&cfg.Store.Redis.Password, f.Store.Redis.Password)
	setInt(&cfg.Store.Redis.DB, f.Store.Redis.DB)

	setString(&cfg.API.ListenAddr, f.API.ListenAddr)
	setInt(&cfg.API.RateLimit, f.API.RateLimit)

	if f.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *f.Metrics.Enabled
	}
	setString(&cfg.Metrics.ListenAddr, f.Metrics.ListenAddr)

	if f.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *f.Telemetry.Enabled
	}
	setString(&cfg.Telemetry.Exporter, f.Telemetry.Exporter)
	setString(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
	setFloat(&cfg.Telemetry.SamplingRate, f.Telemetry.SamplingRate)
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("REELFLOW_DATA", cfg.DataDir)
	cfg.LogLevel = l.envString("REELFLOW_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("REELFLOW_LOG_SERVICE", cfg.LogService)
	cfg.Device.ID = l.envString("REELFLOW_DEVICE_ID", cfg.Device.ID)

	cfg.Remote.ServerURL = l.envString("REELFLOW_SERVER_URL", cfg.Remote.ServerURL)
	cfg.Remote.Timeout = l.envDuration("REELFLOW_REMOTE_TIMEOUT", cfg.Remote.Timeout)
	cfg.Remote.RateLimit = l.envFloat("REELFLOW_REMOTE_RPS", cfg.Remote.RateLimit)
	cfg.Remote.Burst = l.envInt("REELFLOW_REMOTE_BURST", cfg.Remote.Burst)
	cfg.Remote.BreakerThreshold = l.envInt("REELFLOW_REMOTE_BREAKER_THRESHOLD", cfg.Remote.BreakerThreshold)
	cfg.Remote.BreakerReset = l.envDuration("REELFLOW_REMOTE_BREAKER_RESET", cfg.Remote.BreakerReset)
	cfg.Remote.HeartbeatInterval = l.envDuration("REELFLOW_HEARTBEAT_INTERVAL", cfg.Remote.HeartbeatInterval)

	cfg.Schedule.SyncInterval = l.envDuration("REELFLOW_SYNC_INTERVAL", cfg.Schedule.SyncInterval)
	cfg.Schedule.GCInterval = l.envDuration("REELFLOW_GC_INTERVAL", cfg.Schedule.GCInterval)

	cfg.Playback.CheckInterval = l.envDuration("REELFLOW_CHECK_INTERVAL", cfg.Playback.CheckInterval)
	cfg.Playback.GraceDelay = l.envDuration("REELFLOW_GRACE_DELAY", cfg.Playback.GraceDelay)
	cfg.Playback.ImageDuration = l.envDuration("REELFLOW_IMAGE_DURATION", cfg.Playback.ImageDuration)

	cfg.Download.Root = l.envString("REELFLOW_MEDIA_ROOT", cfg.Download.Root)
	cfg.Download.Concurrency = l.envInt("REELFLOW_DOWNLOAD_CONCURRENCY", cfg.Download.Concurrency)
	cfg.Download.Timeout = l.envDuration("REELFLOW_DOWNLOAD_TIMEOUT", cfg.Download.Timeout)

	cfg.Store.Backend = l.envString("REELFLOW_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("REELFLOW_STORE_PATH", cfg.Store.Path)
	cfg.Store.Redis.Addr = l.envString("REELFLOW_REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = l.envString("REELFLOW_REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = l.envInt("REELFLOW_REDIS_DB", cfg.Store.Redis.DB)

	cfg.API.ListenAddr = l.envString("REELFLOW_LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt("REELFLOW_API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Metrics.Enabled = l.envBool("REELFLOW_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = l.envString("REELFLOW_METRICS_LISTEN", cfg.Metrics.ListenAddr)

	cfg.Telemetry.Enabled = l.envBool("REELFLOW_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("REELFLOW_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("REELFLOW_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("REELFLOW_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

func joinData(dataDir, name string) string {
	return filepath.Join(dataDir, name)
}
