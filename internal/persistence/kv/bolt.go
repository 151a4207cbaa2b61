// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kv

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSchedule = []byte("b_schedule")

// Bolt stores values in a single bbolt bucket.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSchedule)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Name() string { return "bolt" }

func (b *Bolt) Load(_ context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchedule).ForEach(func(k, v []byte) error {
			// Values are only valid for the life of the transaction.
			out[string(k)] = cloneBytes(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt load: %w", err)
	}
	return out, nil
}

func (b *Bolt) Apply(_ context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketSchedule)
		for k, v := range batch.Puts {
			if err := bkt.Put([]byte(k), v); err != nil {
				return fmt.Errorf("bolt put %s: %w", k, err)
			}
		}
		for _, k := range batch.Deletes {
			if err := bkt.Delete([]byte(k)); err != nil {
				return fmt.Errorf("bolt delete %s: %w", k, err)
			}
		}
		return nil
	})
}

func (b *Bolt) Ping(_ context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSchedule) == nil {
			return fmt.Errorf("bolt: bucket %s missing", bucketSchedule)
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
