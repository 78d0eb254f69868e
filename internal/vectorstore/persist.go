// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

// =============================================================================
// Embedding Persistence
// =============================================================================
//
// Vectors are expensive to compute (an embedding-model round trip per text)
// but change only when the underlying tool, capability, or intent text
// changes. PersistentStore keeps a BadgerDB-backed copy keyed by node id so
// a restarted engine can rehydrate the in-process Index without re-encoding
// every node, falling back to Weaviate or re-encoding only for ids it does
// not find.
//
// Storage layout:
//
//	vectorstore/vec/v1/{id}  →  gob-encoded storedVector{Kind, Vector}

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/store"
)

const vectorKeyPrefix = "vectorstore/vec/v1/"

var errVectorNotFound = errors.New("vector not found")

type storedVector struct {
	Kind   string
	Vector []float32
}

// PersistentStore persists embedding vectors in BadgerDB across restarts,
// grounded on the routing cache's corpus-hash-keyed gob encoding, but keyed
// by node id directly since cache invalidation here is driven by explicit
// remove/upsert calls rather than a corpus hash.
//
// # Thread Safety
//
// Safe for concurrent use.
type PersistentStore struct {
	db     *store.DB
	logger *slog.Logger
}

// NewPersistentStore wraps an already-open store.DB.
func NewPersistentStore(db *store.DB, logger *slog.Logger) *PersistentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistentStore{db: db, logger: logger}
}

// Save persists a single vector under id.
func (p *PersistentStore) Save(ctx context.Context, id, kind string, vec []float32) error {
	raw, err := gobEncodeVector(storedVector{Kind: kind, Vector: vec})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "encoding vector for "+id)
	}
	err = p.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(vectorKey(id), raw)
	})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "persisting vector for "+id)
	}
	return nil
}

// Delete removes the persisted vector for id, if any.
func (p *PersistentStore) Delete(ctx context.Context, id string) error {
	err := p.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(vectorKey(id))
	})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "deleting persisted vector for "+id)
	}
	return nil
}

// LoadAll rehydrates every persisted vector, for warming a fresh in-process
// Index at startup. Order is unspecified.
func (p *PersistentStore) LoadAll(ctx context.Context) (ids []string, kinds []string, vecs [][]float32, err error) {
	err = p.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(vectorKeyPrefix):])
			raw, copyErr := item.ValueCopy(nil)
			if copyErr != nil {
				return fmt.Errorf("copy value for %q: %w", id, copyErr)
			}
			sv, decodeErr := gobDecodeVector(raw)
			if decodeErr != nil {
				return fmt.Errorf("decode value for %q: %w", id, decodeErr)
			}
			ids = append(ids, id)
			kinds = append(kinds, sv.Kind)
			vecs = append(vecs, sv.Vector)
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "loading persisted vectors")
	}
	p.logger.Info("vectorstore: rehydrated persisted vectors", slog.Int("count", len(ids)))
	return ids, kinds, vecs, nil
}

func vectorKey(id string) []byte {
	return []byte(vectorKeyPrefix + id)
}

func gobEncodeVector(sv storedVector) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sv); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecodeVector(raw []byte) (storedVector, error) {
	var sv storedVector
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&sv); err != nil {
		return storedVector{}, fmt.Errorf("gob decode: %w", err)
	}
	return sv, nil
}
