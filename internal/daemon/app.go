// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/reelflow/internal/config"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/rs/zerolog"
)

// hookBudget bounds the whole post-run shutdown sequence.
const hookBudget = 30 * time.Second

// Task is a long-running loop owned by the App. Returning nil or
// context.Canceled is a clean stop; anything else stops the daemon.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// App runs the engine tasks, the config watcher and the servers under one
// errgroup, then hands over to Manager.Shutdown.
type App struct {
	logger  zerolog.Logger
	manager Manager
	holder  *config.Holder
	tasks   []Task
	reload  os.Signal
}

// NewApp wires an App. holder may be nil, which disables live reload.
func NewApp(logger zerolog.Logger, manager Manager, holder *config.Holder, tasks ...Task) *App {
	return &App{
		logger:  logger,
		manager: manager,
		holder:  holder,
		tasks:   tasks,
		reload:  syscall.SIGHUP,
	}
}

// Run blocks until ctx ends or a task fails. Shutdown hooks run after
// every task has returned, so nothing writes to a closed store.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		g.Go(func() error {
			if err := a.holder.Run(gctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
			}
			return nil
		})
		g.Go(func() error { return a.onReloadSignal(gctx) })
	}
	for _, t := range a.tasks {
		g.Go(func() error { return a.runTask(gctx, t) })
	}
	g.Go(func() error { return a.manager.Start(gctx) })

	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookBudget)
	defer cancel()
	return errors.Join(runErr, a.manager.Shutdown(stopCtx))
}

func (a *App) runTask(ctx context.Context, t Task) error {
	err := t.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		a.logger.Debug().Str("task", t.Name).Msg("task stopped")
		return nil
	}
	a.logger.Error().Err(err).
		Str(log.FieldEvent, "daemon.task_failed").
		Str("task", t.Name).
		Msg("task failed")
	return fmt.Errorf("%s: %w", t.Name, err)
}

// onReloadSignal re-reads the config file on SIGHUP. A failed reload keeps
// the running config.
func (a *App) onReloadSignal(ctx context.Context) error {
	if a.reload == nil {
		return nil
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, a.reload)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			a.logger.Info().Str(log.FieldEvent, "config.reload_signal").Msg("reloading config")
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}
