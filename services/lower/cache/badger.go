// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// DefaultTTL is applied when a BadgerStore is created without one.
const DefaultTTL = 24 * time.Hour

// badgerKeyPrefix namespaces lowering results; bump the version when the
// output schema changes so stale entries are never served.
const badgerKeyPrefix = "lower/v1/"

var errCacheMiss = errors.New("cache miss")

// BadgerStore persists results in BadgerDB with a per-entry TTL.
//
// Thread Safety: Safe for concurrent use. BadgerDB handles its own
// concurrency control.
type BadgerStore struct {
	db     *dgbadger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadger opens a BadgerDB at path. An empty path opens an in-memory
// database, which is what tests and the default config use.
func OpenBadger(path string) (*dgbadger.DB, error) {
	opts := dgbadger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return db, nil
}

// NewBadgerStore wraps an opened database. The store owns db and closes it
// on Close.
func NewBadgerStore(db *dgbadger.DB, ttl time.Duration, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, ttl: ttl, logger: logger}
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var raw []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("lower cache: miss", slog.String("key", shortKey(key)))
		recordLookup("badger", false, nil)
		return nil, false, nil
	}
	if err != nil {
		recordLookup("badger", false, err)
		return nil, false, fmt.Errorf("lower cache load: %w", err)
	}

	recordLookup("badger", true, nil)
	s.logger.Debug("lower cache: hit",
		slog.String("key", shortKey(key)),
		slog.Int("bytes", len(raw)),
	)
	return raw, true, nil
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(badgerKey(key), value).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("lower cache save: %w", err)
	}
	s.logger.Debug("lower cache: saved",
		slog.String("key", shortKey(key)),
		slog.Int("bytes", len(value)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// Len counts live entries. Used by the health endpoint.
func (s *BadgerStore) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func badgerKey(key string) []byte {
	return []byte(badgerKeyPrefix + key)
}
