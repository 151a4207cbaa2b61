// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command reelflow runs the display-device daemon: it keeps the local
// schedule in sync with the remote authority, downloads content ahead of
// time and drives gapless A/B playback.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/reelflow/internal/app/bootstrap"
	rlog "github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, *configPath))
}

func run(ctx context.Context, configPath string) int {
	c, err := bootstrap.WireServices(ctx, version.Version, configPath)
	if err != nil {
		logger := rlog.WithComponent("daemon")
		logger.Error().
			Err(err).
			Str(rlog.FieldEvent, "startup.failed").
			Str("config_path", configPath).
			Msg("failed to start daemon")
		return 1
	}

	if err := c.Run(ctx); err != nil {
		c.Logger.Error().Err(err).Str(rlog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	c.Logger.Info().
		Str(rlog.FieldEvent, "daemon.exit").
		Str("commit", version.Commit).
		Msg("daemon exited")
	return 0
}
