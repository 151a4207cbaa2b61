// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package download materializes the remote resources of a scheduled item
// into a per-item directory under the media root.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/fsutil"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/ManuGH/reelflow/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Store is the part of the schedule store the pipeline writes through.
// UpdateStatus reports whether the transition was applied. Only MarkReady
// may move an item into Ready.
type Store interface {
	Get(id string) (schedule.Item, bool)
	UpdateStatus(id string, status schedule.Status, localRoot string) bool
	MarkReady(id, localRoot string, paths map[string]string) error
}

// Config configures a Pipeline.
type Config struct {
	Root        string
	Concurrency int
	Client      *http.Client
}

// Pipeline downloads items all-or-nothing. Concurrent calls for one item are
// coalesced and the number of items downloading at once is bounded.
type Pipeline struct {
	root   string
	store  Store
	client *http.Client
	sem    *semaphore.Weighted
	group  singleflight.Group
	tracer trace.Tracer
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a pipeline writing under cfg.Root.
func New(store Store, cfg Config) (*Pipeline, error) {
	if cfg.Root == "" {
		return nil, errors.New("download: media root required")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("download: create media root: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Client == nil {
		return nil, errors.New("download: http client required")
	}
	return &Pipeline{
		root:     cfg.Root,
		store:    store,
		client:   cfg.Client,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		tracer:   telemetry.Tracer("reelflow/download"),
		logger:   log.WithComponent("download"),
		inflight: make(map[string]struct{}),
	}, nil
}

// Root returns the media root directory.
func (p *Pipeline) Root() string { return p.root }

// ItemDir returns the directory that holds the files of item id.
func (p *Pipeline) ItemDir(id string) string {
	return filepath.Join(p.root, fsutil.SafeName(id))
}

// DirName returns the directory name under Root used for item id.
func DirName(id string) string {
	return fsutil.SafeName(id)
}

// FileName returns the deterministic file name of a resource.
func FileName(r schedule.Resource) string {
	return fsutil.SafeName(r.ID) + r.Kind.Extension()
}

// Materialize downloads every resource of item id and marks it Ready. An
// item that is already Ready returns its local root without fetching. On
// failure the item is set back to Pending with no local paths.
func (p *Pipeline) Materialize(ctx context.Context, id string) (string, error) {
	v, err, _ := p.group.Do(id, func() (any, error) {
		return p.materialize(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Pipeline) materialize(ctx context.Context, id string) (string, error) {
	it, ok := p.store.Get(id)
	if !ok {
		return "", &Error{Sentinel: ErrUnknownItem, ItemID: id}
	}
	if it.Status == schedule.StatusReady && it.Materialized() {
		return it.LocalRoot, nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", &Error{Sentinel: ErrFetch, ItemID: id, Err: err}
	}
	defer p.sem.Release(1)

	p.track(id, true)
	defer p.track(id, false)

	ctx = log.ContextWithItemID(ctx, id)
	ctx, span := p.tracer.Start(ctx, "download.materialize",
		trace.WithAttributes(telemetry.ItemAttributes(id, len(it.Resources))...))
	defer span.End()

	logger := log.WithContext(ctx, p.logger)
	start := time.Now()

	if !p.store.UpdateStatus(id, schedule.StatusDownloading, "") {
		return "", &Error{Sentinel: ErrUnknownItem, ItemID: id}
	}

	root, paths, written, err := p.fetchAll(ctx, it)
	if err == nil {
		err = p.store.MarkReady(id, root, paths)
		if errors.Is(err, schedule.ErrUnknownItem) {
			// Removed (expired) while downloading; nothing will ever reference the files.
			p.purgeAfterRemoval(id, logger)
			err = &Error{Sentinel: ErrUnknownItem, ItemID: id, Err: err}
		}
	}
	if err != nil {
		p.store.UpdateStatus(id, schedule.StatusPending, "")
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialize failed")
		metrics.RecordDownload(metrics.OutcomeFailure, time.Since(start))
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "download.failed").
			Msg("materialization failed, item back to pending")
		return "", err
	}

	span.SetAttributes(attribute.Int64(telemetry.BytesKey, written))
	metrics.RecordDownload(metrics.OutcomeSuccess, time.Since(start))
	logger.Info().
		Str(log.FieldEvent, "download.ready").
		Str(log.FieldLocalRoot, root).
		Int("resources", len(paths)).
		Int64("bytes", written).
		Dur("duration", time.Since(start)).
		Msg("item materialized")
	return root, nil
}

// fetchAll downloads resources in order and stops at the first failure.
func (p *Pipeline) fetchAll(ctx context.Context, it schedule.Item) (string, map[string]string, int64, error) {
	rel := DirName(it.ID)
	dir, err := fsutil.ConfineRelPath(p.root, rel)
	if err != nil {
		return "", nil, 0, &Error{Sentinel: ErrWrite, ItemID: it.ID, Err: err}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", nil, 0, &Error{Sentinel: ErrWrite, ItemID: it.ID, Err: err}
	}

	paths := make(map[string]string, len(it.Resources))
	var total int64
	for _, res := range it.Resources {
		path, err := fsutil.ConfineRelPath(p.root, filepath.Join(rel, FileName(res)))
		if err != nil {
			return "", nil, total, &Error{Sentinel: ErrWrite, ItemID: it.ID, ResourceID: res.ID, Err: err}
		}
		n, err := p.fetch(ctx, it.ID, res, path)
		total += n
		if err != nil {
			return "", nil, total, err
		}
		metrics.AddDownloadBytes(string(res.Kind), n)
		paths[res.ID] = path
	}
	return dir, paths, total, nil
}

func (p *Pipeline) fetch(ctx context.Context, itemID string, res schedule.Resource, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.RemoteURI, nil)
	if err != nil {
		return 0, &Error{Sentinel: ErrFetch, ItemID: itemID, ResourceID: res.ID, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &Error{Sentinel: ErrFetch, ItemID: itemID, ResourceID: res.ID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &Error{Sentinel: ErrBadStatus, ItemID: itemID, ResourceID: res.ID, Status: resp.StatusCode}
	}

	n, err := fsutil.WriteAtomic(path, resp.Body, 0o644)
	if err != nil {
		sentinel := ErrWrite
		if ctx.Err() != nil || isReadErr(err) {
			sentinel = ErrFetch
		}
		return n, &Error{Sentinel: sentinel, ItemID: itemID, ResourceID: res.ID, Err: err}
	}
	return n, nil
}

// isReadErr reports whether a copy failure came from the response body rather
// than the local disk.
func isReadErr(err error) bool {
	var pe *os.PathError
	return !errors.As(err, &pe)
}

// Purge removes the directory of item id. A missing directory is not an error.
func (p *Pipeline) Purge(id string) error {
	return fsutil.RemoveConfined(p.root, DirName(id))
}

// PurgeDir removes a directory under Root by name.
func (p *Pipeline) PurgeDir(name string) error {
	return fsutil.RemoveConfined(p.root, name)
}

func (p *Pipeline) purgeAfterRemoval(id string, logger zerolog.Logger) {
	if err := p.Purge(id); err != nil {
		metrics.RecordPurge("orphan", metrics.OutcomeFailure)
		logger.Warn().Err(err).Str(log.FieldEvent, "download.orphan_purge_failed").Msg("could not remove files of removed item")
		return
	}
	metrics.RecordPurge("orphan", metrics.OutcomeSuccess)
}

// DirNames lists the item directories currently under Root.
func (p *Pipeline) DirNames() ([]string, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read media root: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// InFlight returns the ids currently being downloaded.
func (p *Pipeline) InFlight() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.inflight))
	for id := range p.inflight {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (p *Pipeline) track(id string, on bool) {
	p.mu.Lock()
	if on {
		p.inflight[id] = struct{}{}
	} else {
		delete(p.inflight, id)
	}
	n := len(p.inflight)
	p.mu.Unlock()
	metrics.SetDownloadsInFlight(n)
}
