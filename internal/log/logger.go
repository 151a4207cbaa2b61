// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultService = "reelflow"

// Config selects level, sink and the static fields stamped on every entry.
// Zero fields fall back to REELFLOW_LOG_LEVEL, stdout and "reelflow".
type Config struct {
	Level   string
	Output  io.Writer
	Service string
	Version string
}

var base atomic.Pointer[zerolog.Logger]

// Configure replaces the process logger. It is called once with defaults
// at startup, again after the config file is read, and on every reload.
// An unparseable level keeps info.
func Configure(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(levelOf(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = defaultService
	}

	l := zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()
	base.Store(&l)
}

func levelOf(s string) zerolog.Level {
	if s == "" {
		s = os.Getenv("REELFLOW_LOG_LEVEL")
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Base returns the current process logger.
func Base() zerolog.Logger {
	return *base.Load()
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

func init() {
	Configure(Config{})
}
