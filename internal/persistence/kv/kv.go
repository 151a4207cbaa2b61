// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package kv provides the durable key-value backends behind the schedule store.
//
// Every backend holds one flat namespace of opaque values. Callers write in
// batches so that a flush is a single transaction where the backend supports it.
package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("kv: backend closed")

// Batch is a set of writes applied together.
type Batch struct {
	Puts    map[string][]byte
	Deletes []string
}

// Empty reports whether the batch has no writes.
func (b Batch) Empty() bool {
	return len(b.Puts) == 0 && len(b.Deletes) == 0
}

// Backend is a durable key-value namespace.
type Backend interface {
	// Name identifies the backend kind for logs and health output.
	Name() string
	// Load returns every stored key and value.
	Load(ctx context.Context) (map[string][]byte, error)
	// Apply writes a batch. Deleting a missing key is not an error.
	Apply(ctx context.Context, b Batch) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string // memory | bolt | badger | sqlite | redis
	Path    string // file or directory for embedded backends
	Redis   RedisConfig
}

// Open constructs the backend named by cfg.Backend.
func Open(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "bolt":
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return OpenBolt(cfg.Path)
	case "badger":
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return OpenBadger(cfg.Path)
	case "sqlite":
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return OpenSQLite(cfg.Path)
	case "redis":
		return OpenRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}

func ensureParent(path string) error {
	if path == "" {
		return errors.New("kv: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("kv: create parent dir: %w", err)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneMap(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = cloneBytes(v)
	}
	return out
}

