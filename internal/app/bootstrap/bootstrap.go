// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bootstrap is the composition root: it builds every engine component
// once from the resolved configuration and hands them to the daemon.
package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/reelflow/internal/api"
	"github.com/ManuGH/reelflow/internal/config"
	"github.com/ManuGH/reelflow/internal/daemon"
	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/download"
	"github.com/ManuGH/reelflow/internal/gc"
	"github.com/ManuGH/reelflow/internal/health"
	rlog "github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/ManuGH/reelflow/internal/persistence/kv"
	"github.com/ManuGH/reelflow/internal/platform/httpx"
	"github.com/ManuGH/reelflow/internal/playback"
	"github.com/ManuGH/reelflow/internal/reconcile"
	"github.com/ManuGH/reelflow/internal/remote"
	"github.com/ManuGH/reelflow/internal/render"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/ManuGH/reelflow/internal/telemetry"
	buildinfo "github.com/ManuGH/reelflow/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Container is the production composition root output.
type Container struct {
	Config       config.AppConfig
	ConfigHolder *config.Holder
	Logger       zerolog.Logger
	Manager      daemon.Manager
	App          *daemon.App

	Store      *schedule.Store
	Identity   *device.Identity
	Remote     *remote.Client
	Downloads  *download.Pipeline
	Dispatcher *download.Dispatcher
	Reconciler *reconcile.Reconciler
	Heartbeat  *reconcile.Heartbeat
	Board      *render.Board
	Playback   *playback.Scheduler
	Collector  *gc.Collector
	Health     *health.Manager
	Server     *api.Server
}

// WireServices builds the production dependency graph and returns a runnable container.
func WireServices(ctx context.Context, version, explicitConfigPath string) (c *Container, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("wire services context is nil")
	}

	rlog.Configure(rlog.Config{
		Level:   "info",
		Service: config.DefaultLogService,
		Version: version,
	})

	configPath, err := resolveConfigPath(strings.TrimSpace(explicitConfigPath))
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	rlog.Configure(rlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger := rlog.WithComponent("bootstrap")

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(rlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str(rlog.FieldPath, configPath).
		Msg("configuration loaded")
	if configBytes, marshalErr := json.Marshal(cfg); marshalErr == nil {
		hash := sha256.Sum256(configBytes)
		logger.Info().
			Str(rlog.FieldEvent, "config.snapshot").
			Str("sha256", fmt.Sprintf("%x", hash)).
			Msg("configuration snapshot fingerprint")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, fmt.Errorf("startup checks failed: %w", err)
	}

	// Resources opened below are released in reverse order on a wiring failure.
	var closers []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i](context.WithoutCancel(ctx))
		}
	}()

	ident, err := device.Load(cfg.DataDir, cfg.Device.ID)
	if err != nil {
		return nil, fmt.Errorf("load device identity: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version,
		DeviceID:       ident.ID(),
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	closers = append(closers, tp.Shutdown)

	backend, err := kv.Open(kv.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Redis: kv.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	closers = append(closers, func(context.Context) error { return backend.Close() })

	store, err := schedule.Open(ctx, backend, schedule.WithFlushErrorHook(func(error) {
		metrics.RecordStoreFlushError()
	}))
	if err != nil {
		return nil, fmt.Errorf("open schedule store: %w", err)
	}

	remoteClient := remote.New(cfg.Remote.ServerURL, remote.Options{
		Timeout:          cfg.Remote.Timeout,
		RateLimit:        rate.Limit(cfg.Remote.RateLimit),
		RateLimitBurst:   cfg.Remote.Burst,
		BreakerThreshold: cfg.Remote.BreakerThreshold,
		BreakerReset:     cfg.Remote.BreakerReset,
		UserAgent:        buildinfo.UserAgent(),
	})

	pipeline, err := download.New(store, download.Config{
		Root:        cfg.Download.Root,
		Concurrency: cfg.Download.Concurrency,
		Client:      httpx.NewClient(cfg.Download.Timeout, httpx.WithTracing("download")),
	})
	if err != nil {
		return nil, fmt.Errorf("init download pipeline: %w", err)
	}
	dispatcher := download.NewDispatcher(pipeline)

	reconciler := reconcile.New(remoteClient, store, dispatcher, reconcile.Config{
		DeviceID: ident.ID(),
		Interval: cfg.Schedule.SyncInterval,
	})
	heartbeat := reconcile.NewHeartbeat(remoteClient, ident, cfg.Remote.HeartbeatInterval)

	board := render.NewBoard()
	player := playback.New(store, board, pipeline, dispatcher, playback.Config{
		CheckInterval: cfg.Playback.CheckInterval,
		GraceDelay:    cfg.Playback.GraceDelay,
		ImageDuration: cfg.Playback.ImageDuration,
	})
	collector := gc.New(store, pipeline, player, cfg.Schedule.GCInterval, nil)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewStoreChecker(backend.Name(), store.Ping))
	hm.RegisterChecker(health.NewRemoteChecker(remoteClient.Probe, remoteClient.BreakerState))
	hm.RegisterChecker(health.NewDirChecker("media_root", cfg.Download.Root))
	hm.RegisterChecker(health.NewLastSyncChecker(reconciler.LastSync, lastSyncMaxAge(cfg.Schedule.SyncInterval)))

	server := api.New(api.Deps{
		Version:        version,
		Health:         hm,
		Store:          store,
		Playback:       player,
		Board:          board,
		Sync:           reconciler,
		Downloads:      pipeline,
		Device:         ident,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracingService(cfg),
	})

	serverCfg := daemon.ServerConfig{APIAddr: cfg.API.ListenAddr}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		serverCfg.MetricsAddr = cfg.Metrics.ListenAddr
		metricsHandler = promhttp.Handler()
	}
	mgr, err := daemon.NewManager(serverCfg, daemon.Deps{
		Logger:         logger,
		APIHandler:     server.Handler(),
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		return nil, fmt.Errorf("create daemon manager: %w", err)
	}

	// LIFO: downloads drain first, then the final flush, then the backend closes.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("store_close", func(context.Context) error { return backend.Close() })
	mgr.RegisterShutdownHook("store_flush", store.Flush)
	mgr.RegisterShutdownHook("downloads_drain", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			dispatcher.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("downloads still running: %w", ctx.Err())
		}
	})

	holder := config.NewHolder(cfg, loader)
	cfgCh := make(chan config.AppConfig, 1)
	holder.RegisterListener(cfgCh)

	app := daemon.NewApp(logger, mgr, holder,
		daemon.Task{Name: "store_flush", Run: store.Run},
		daemon.Task{Name: "reconcile", Run: reconciler.Run},
		daemon.Task{Name: "heartbeat", Run: heartbeat.Run},
		daemon.Task{Name: "playback", Run: player.Run},
		daemon.Task{Name: "gc", Run: collector.Run},
		daemon.Task{Name: "config_apply", Run: func(ctx context.Context) error {
			return applyConfigChanges(ctx, cfgCh, remoteClient)
		}},
	)

	logger.Info().
		Str(rlog.FieldEvent, "startup").
		Str("version", version).
		Str("device_id", ident.ID()).
		Str("server", maskURL(cfg.Remote.ServerURL)).
		Str("store", backend.Name()).
		Str("media_root", cfg.Download.Root).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting reelflow")

	return &Container{
		Config:       cfg,
		ConfigHolder: holder,
		Logger:       logger,
		Manager:      mgr,
		App:          app,
		Store:        store,
		Identity:     ident,
		Remote:       remoteClient,
		Downloads:    pipeline,
		Dispatcher:   dispatcher,
		Reconciler:   reconciler,
		Heartbeat:    heartbeat,
		Board:        board,
		Playback:     player,
		Collector:    collector,
		Health:       hm,
		Server:       server,
	}, nil
}

// Run sweeps leftovers from a previous run and then runs the daemon until
// ctx is cancelled.
func (c *Container) Run(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("run context is nil")
	}
	if c == nil || c.App == nil {
		return fmt.Errorf("container is not fully initialized")
	}

	res := c.Collector.Sweep(ctx, time.Now())
	c.Logger.Info().
		Str(rlog.FieldEvent, "gc.startup_sweep").
		Int("removed", res.Removed).
		Int("orphans", res.Orphans).
		Msg("startup sweep completed")

	return c.App.Run(ctx)
}

type baseURLSetter interface {
	SetBaseURL(raw string)
}

// applyConfigChanges pushes hot-reloadable settings into running components.
func applyConfigChanges(ctx context.Context, ch <-chan config.AppConfig, remote baseURLSetter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-ch:
			remote.SetBaseURL(cfg.Remote.ServerURL)
			rlog.Configure(rlog.Config{
				Level:   cfg.LogLevel,
				Service: cfg.LogService,
				Version: cfg.Version,
			})
		}
	}
}

func lastSyncMaxAge(interval time.Duration) time.Duration {
	return max(3*interval, time.Minute)
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.LogService
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		absPath, err := filepath.Abs(explicit)
		if err != nil {
			return "", fmt.Errorf("resolve absolute path for explicit config %q: %w", explicit, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", fmt.Errorf("explicit config file not found %q: %w", absPath, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("explicit config path %q is a directory", absPath)
		}
		return absPath, nil
	}

	dataDir := strings.TrimSpace(config.ParseString("REELFLOW_DATA", config.DefaultDataDir))
	autoPath := filepath.Join(dataDir, "config.yaml")
	info, err := os.Stat(autoPath)
	switch {
	case err == nil && !info.IsDir():
		return filepath.Abs(autoPath)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("stat %q: %w", autoPath, err)
	}
	return "", nil
}

func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid_url]"
	}
	parsedURL.User = nil
	return parsedURL.String()
}
