// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/reelflow/internal/resilience"
)

// PingFunc probes a dependency.
type PingFunc func(ctx context.Context) error

// StoreChecker reports the schedule store backend. A failing backend makes
// the daemon unready: nothing it downloads would survive a restart.
type StoreChecker struct {
	backend string
	ping    PingFunc
}

// NewStoreChecker creates a checker for the store backend.
func NewStoreChecker(backend string, ping PingFunc) *StoreChecker {
	return &StoreChecker{backend: backend, ping: ping}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.backend}
	}
	return CheckResult{Status: StatusHealthy, Message: c.backend}
}

// RemoteChecker probes the remote authority. The device keeps playing what
// it has while the remote is down, so failures only degrade.
type RemoteChecker struct {
	probe   PingFunc
	breaker func() resilience.State
}

// NewRemoteChecker creates a checker for the remote authority.
func NewRemoteChecker(probe PingFunc, breaker func() resilience.State) *RemoteChecker {
	return &RemoteChecker{probe: probe, breaker: breaker}
}

func (c *RemoteChecker) Name() string { return "remote" }

func (c *RemoteChecker) Check(ctx context.Context) CheckResult {
	if err := c.probe(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "remote unreachable"}
	}
	if c.breaker != nil {
		if st := c.breaker(); st != resilience.StateClosed {
			return CheckResult{Status: StatusDegraded, Message: "circuit " + string(st)}
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "remote reachable"}
}

// DirChecker checks that a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a checker for a writable directory.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(ctx context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}

// LastSyncChecker reports how fresh the local schedule is.
type LastSyncChecker struct {
	lastSync func() (time.Time, error)
	maxAge   time.Duration
}

// NewLastSyncChecker creates a checker for reconciliation freshness. A
// schedule older than maxAge is reported as degraded.
func NewLastSyncChecker(lastSync func() (time.Time, error), maxAge time.Duration) *LastSyncChecker {
	return &LastSyncChecker{lastSync: lastSync, maxAge: maxAge}
}

func (c *LastSyncChecker) Name() string { return "last_sync" }

func (c *LastSyncChecker) Check(ctx context.Context) CheckResult {
	last, lastErr := c.lastSync()
	if last.IsZero() {
		res := CheckResult{Status: StatusDegraded, Message: "no successful sync yet"}
		if lastErr != nil {
			res.Error = lastErr.Error()
		}
		return res
	}
	if age := time.Since(last); c.maxAge > 0 && age > c.maxAge {
		res := CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("last successful sync %s ago", age.Round(time.Second))}
		if lastErr != nil {
			res.Error = lastErr.Error()
		}
		return res
	}
	return CheckResult{Status: StatusHealthy, Message: "schedule in sync"}
}
