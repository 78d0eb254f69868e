// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store wraps a single BadgerDB instance shared across the engine's
// components (embedding cache, graph snapshots, trace log, scorer
// checkpoints). Each component namespaces its keys with its
// own prefix; none owns the DB's lifecycle beyond Close.
package store

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// DB wraps a BadgerDB handle with context-aware transaction helpers, mirroring
// the storage access pattern the routing cache and graph snapshot manager
// were built against.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions are per-goroutine.
type DB struct {
	bdb    *badger.DB
	logger *slog.Logger
}

// Open opens (creating if absent) a BadgerDB instance rooted at dir. Pass
// an empty dir to run purely in-memory, which is the correct mode for tests.
func Open(dir string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db at %q: %w", dir, err)
	}
	return &DB{bdb: bdb, logger: logger}, nil
}

// Close flushes and closes the underlying BadgerDB instance.
func (d *DB) Close() error {
	return d.bdb.Close()
}

// WithReadTxn runs fn inside a read-only Badger transaction.
func (d *DB) WithReadTxn(_ context.Context, fn func(txn *badger.Txn) error) error {
	return d.bdb.View(fn)
}

// WithTxn runs fn inside a read-write Badger transaction, committing on a
// nil return and discarding on error.
func (d *DB) WithTxn(_ context.Context, fn func(txn *badger.Txn) error) error {
	return d.bdb.Update(fn)
}

// RunValueLogGC triggers Badger's value-log garbage collection, discarding
// space reclaimed from TTL-expired and overwritten entries. Intended to be
// called periodically (e.g. hourly) from a background goroutine; a
// badger.ErrNoRewrite return means there was nothing to reclaim and is not
// an error condition worth logging above debug.
func (d *DB) RunValueLogGC(discardRatio float64) error {
	return d.bdb.RunValueLogGC(discardRatio)
}
