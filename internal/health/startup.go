// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ManuGH/reelflow/internal/config"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the loops start.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str(log.FieldEvent, "startup.checks").Msg("running pre-flight startup checks")

	for _, dir := range []struct{ name, path string }{
		{"data directory", cfg.DataDir},
		{"media root", cfg.Download.Root},
	} {
		if err := os.MkdirAll(dir.path, 0o750); err != nil {
			return fmt.Errorf("%s check failed: %w", dir.name, err)
		}
		if err := checkWritableDir(dir.path); err != nil {
			return fmt.Errorf("%s check failed: %w", dir.name, err)
		}
		logger.Info().Str(log.FieldPath, dir.path).Msgf("%s is writable", dir.name)
	}

	if err := checkListenAddr(logger, "API", cfg.API.ListenAddr); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := checkListenAddr(logger, "metrics", cfg.Metrics.ListenAddr); err != nil {
			return err
		}
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, name, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
	}
	logger.Debug().Str("addr", addr).Msgf("%s listen address is valid", name)
	return nil
}
