// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// FileConfig mirrors the YAML layout. Zero values mean "not set"; booleans
// are pointers so an explicit false can be told apart from absence.
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	Device struct {
		ID string `yaml:"id,omitempty"`
	} `yaml:"device,omitempty"`

	Remote struct {
		ServerURL         string        `yaml:"serverUrl,omitempty"`
		Timeout           time.Duration `yaml:"timeout,omitempty"`
		RateLimit         float64       `yaml:"rateLimit,omitempty"`
		Burst             int           `yaml:"burst,omitempty"`
		BreakerThreshold  int           `yaml:"breakerThreshold,omitempty"`
		BreakerReset      time.Duration `yaml:"breakerReset,omitempty"`
		HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
	} `yaml:"remote,omitempty"`

	Schedule struct {
		SyncInterval time.Duration `yaml:"syncInterval,omitempty"`
		GCInterval   time.Duration `yaml:"gcInterval,omitempty"`
	} `yaml:"schedule,omitempty"`

	Playback struct {
		CheckInterval time.Duration  `yaml:"checkInterval,omitempty"`
		GraceDelay    *time.Duration `yaml:"graceDelay,omitempty"`
		ImageDuration time.Duration  `yaml:"imageDuration,omitempty"`
	} `yaml:"playback,omitempty"`

	Download struct {
		Root        string        `yaml:"root,omitempty"`
		Concurrency int           `yaml:"concurrency,omitempty"`
		Timeout     time.Duration `yaml:"timeout,omitempty"`
	} `yaml:"download,omitempty"`

	Store struct {
		Backend string `yaml:"backend,omitempty"`
		Path    string `yaml:"path,omitempty"`
		Redis   struct {
			Addr     string `yaml:"addr,omitempty"`
			Password string `yaml:"password,omitempty"`
			DB       int    `yaml:"db,omitempty"`
		} `yaml:"redis,omitempty"`
	} `yaml:"store,omitempty"`

	API struct {
		ListenAddr string `yaml:"listenAddr,omitempty"`
		RateLimit  int    `yaml:"rateLimit,omitempty"`
	} `yaml:"api,omitempty"`

	Metrics struct {
		Enabled    *bool  `yaml:"enabled,omitempty"`
		ListenAddr string `yaml:"listenAddr,omitempty"`
	} `yaml:"metrics,omitempty"`

	Telemetry struct {
		Enabled      *bool   `yaml:"enabled,omitempty"`
		Exporter     string  `yaml:"exporter,omitempty"`
		Endpoint     string  `yaml:"endpoint,omitempty"`
		SamplingRate float64 `yaml:"samplingRate,omitempty"`
	} `yaml:"telemetry,omitempty"`
}
