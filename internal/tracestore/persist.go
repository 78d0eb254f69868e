// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracestore

// Persistence mirrors each appended Record to BadgerDB under its own key,
// grounded on services/trace/agent/routing/router_cache.go's
// BadgerRouterCacheStore (gob encoding, prefix-scanned key space, nil-safe
// non-fatal failures) rather than graphstore's whole-snapshot gzip+JSON
// shape, since a trace log is an append stream and re-marshaling the whole
// history on every write would be wasteful.

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/store"
)

const recordKeyPrefix = "tracestore/record/v1/"

func recordStorageKey(r Record) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", recordKeyPrefix, r.WorkflowID, r.StepIndex))
}

// Persistence persists Records to BadgerDB and replays them at startup.
type Persistence struct {
	db     *store.DB
	logger *slog.Logger
}

// NewPersistence wraps an already-open store.DB.
func NewPersistence(db *store.DB, logger *slog.Logger) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistence{db: db, logger: logger}
}

// Append gob-encodes r and writes it under its (workflowId, stepIndex) key.
func (p *Persistence) Append(ctx context.Context, r Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "encoding trace record")
	}
	key := recordStorageKey(r)
	err := p.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "writing trace record to badger")
	}
	return nil
}

// LoadAll replays every persisted record, in undefined order; Store.Warm
// feeds each one to the store's in-memory insert (which orders and
// de-duplicates), without writing it back to Badger.
func (p *Persistence) LoadAll(ctx context.Context) ([]Record, error) {
	var out []Record
	err := p.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var r Record
				if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&r); err != nil {
					return err
				}
				out = append(out, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "loading trace records from badger")
	}
	return out, nil
}

// Warm replays every persisted record into st. Called once at startup
// before the store accepts new appends in anger.
func (st *Store) Warm(ctx context.Context) error {
	if st.persist == nil {
		return nil
	}
	records, err := st.persist.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		st.insert(r)
	}
	st.logger.Info("tracestore: warmed from badger", slog.Int("record_count", len(records)))
	return nil
}
