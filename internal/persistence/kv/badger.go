// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "sched:"

// Badger stores values under a key prefix in a badger directory.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the badger directory at path.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &Badger{db: db}, nil
}

func (s *Badger) Name() string { return "badger" }

func (s *Badger) Load(_ context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[strings.TrimPrefix(string(item.Key()), badgerPrefix)] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger load: %w", err)
	}
	return out, nil
}

func (s *Badger) Apply(_ context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range b.Puts {
		if err := wb.Set([]byte(badgerPrefix+k), cloneBytes(v)); err != nil {
			return fmt.Errorf("badger set %s: %w", k, err)
		}
	}
	for _, k := range b.Deletes {
		if err := wb.Delete([]byte(badgerPrefix + k)); err != nil {
			return fmt.Errorf("badger delete %s: %w", k, err)
		}
	}
	return wb.Flush()
}

func (s *Badger) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(badgerPrefix + "\x00ping"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *Badger) Close() error { return s.db.Close() }
