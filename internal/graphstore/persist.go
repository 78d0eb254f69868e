// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

// Persistence mirrors the current snapshot to BadgerDB as a single
// gzip+JSON blob under a versioned key, grounded on
// services/trace/graph/snapshot.go's SnapshotManager.Save/Load (same
// gzip.BestCompression + json.Marshal shape), simplified to one "latest"
// slot since Component B's durable copy is the relational store mirror
//, not a history of named snapshots.

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/store"
)

const snapshotKey = "graphstore/snapshot/v1/latest"

// serializable is the on-disk shape of a Snapshot: plain slices instead of
// the in-memory indexes, which are rebuilt on load.
type serializable struct {
	Version      uint64
	Tools        []*Tool
	Capabilities []*Capability
	Edges        []*Edge
}

func toSerializable(s *Snapshot) *serializable {
	out := &serializable{Version: s.Version}
	out.Tools = s.AllTools()
	for _, c := range s.capabilities {
		out.Capabilities = append(out.Capabilities, c)
	}
	for _, e := range s.edges {
		out.Edges = append(out.Edges, e)
	}
	return out
}

func fromSerializable(sg *serializable) *Snapshot {
	s := newEmptySnapshot()
	s.Version = sg.Version
	for _, t := range sg.Tools {
		s.tools[t.ID] = t
	}
	for _, c := range sg.Capabilities {
		s.capabilities[c.FQDN] = c
		if c.IntegrityHash != "" && c.AliasOf == "" {
			s.hashIndex[c.IntegrityHash] = c.FQDN
		}
		for _, m := range c.Members {
			s.memberOf[m] = append(s.memberOf[m], c.FQDN)
		}
	}
	for _, e := range sg.Edges {
		key := edgeKey{from: e.From, to: e.To}
		s.edges[key] = e
		s.outEdges[e.From] = append(s.outEdges[e.From], key)
		s.inEdges[e.To] = append(s.inEdges[e.To], key)
	}
	return s
}

// Persistence saves and loads Store snapshots to/from BadgerDB.
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

// Save persists the store's current snapshot.
func (p *Persistence) Save(ctx context.Context, st *Store) error {
	snap := st.Current()
	jsonData, err := json.Marshal(toSerializable(snap))
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "marshaling graph snapshot")
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "creating gzip writer")
	}
	if _, err := gw.Write(jsonData); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "compressing graph snapshot")
	}
	if err := gw.Close(); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "closing gzip writer")
	}

	err = p.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), compressed.Bytes())
	})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "writing graph snapshot to badger")
	}
	p.logger.Info("graphstore: snapshot saved",
		slog.Uint64("version", snap.Version),
		slog.Int("tool_count", len(snap.tools)),
		slog.Int("capability_count", len(snap.capabilities)))
	return nil
}

// Load rehydrates a Snapshot from BadgerDB, or returns (nil, nil) if none
// has ever been saved.
func (p *Persistence) Load(ctx context.Context) (*Snapshot, error) {
	var compressed []byte
	err := p.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "reading graph snapshot from badger")
	}
	if compressed == nil {
		return nil, nil
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "opening gzip reader")
	}
	defer gr.Close()
	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "decompressing graph snapshot")
	}

	var sg serializable
	if err := json.Unmarshal(raw, &sg); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "unmarshaling graph snapshot")
	}
	return fromSerializable(&sg), nil
}

// Restore loads the persisted snapshot (if any) directly into st, bypassing
// the normal mutate path since this only runs once at startup before any
// reader sees the store.
func (p *Persistence) Restore(ctx context.Context, st *Store) error {
	snap, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	st.ptr.Store(snap)
	p.logger.Info("graphstore: restored snapshot", slog.Uint64("version", snap.Version))
	return nil
}
