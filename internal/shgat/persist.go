// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shgat

// Persistence serializes Parameters to a versioned blob keyed by
// architecture hash. During Save the encoded blob is copied into a
// memguard.LockedBuffer for the duration of the Badger write and GCS
// mirror, then destroyed; Load decodes from an ordinary byte slice. A
// secondary GCS mirror is optional and best
// effort: Badger is always the source of truth for startup load.

import (
	"bytes"
	"context"
	"encoding/gob"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/awnumar/memguard"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/store"
)

const blobKeyPrefix = "shgat/params/v1/"

func blobKey(archHash string) []byte {
	return []byte(blobKeyPrefix + archHash)
}

// gobParameters is the on-disk shape; Parameters itself is kept
// unexported-field-free so gob can round-trip it directly, but we name a
// distinct type to decouple the wire format from in-memory layout changes.
type gobParameters struct {
	Arch    ArchConfig
	Layers  []LayerParams
	Fusion  FusionParams
	Version uint64
}

func toGob(p *Parameters) gobParameters {
	return gobParameters{Arch: p.Arch, Layers: p.Layers, Fusion: p.Fusion, Version: p.Version}
}

func fromGob(g gobParameters) *Parameters {
	return &Parameters{Arch: g.Arch, Layers: g.Layers, Fusion: g.Fusion, Version: g.Version}
}

// Persistence saves/loads parameter blobs for one architecture.
type Persistence struct {
	db          *store.DB
	gcsBucket   *storage.BucketHandle
	gcsObjectFn func(archHash string) string
	logger      *slog.Logger
}

// PersistenceOption configures optional backends on Persistence.
type PersistenceOption func(*Persistence)

// WithGCSMirror enables a best-effort secondary write to a GCS bucket,
// keyed the same way as the local Badger blob.
func WithGCSMirror(bucket *storage.BucketHandle) PersistenceOption {
	return func(p *Persistence) {
		p.gcsBucket = bucket
		p.gcsObjectFn = func(archHash string) string { return blobKeyPrefix + archHash + ".gob" }
	}
}

// NewPersistence wraps an already-open store.DB.
func NewPersistence(db *store.DB, logger *slog.Logger, opts ...PersistenceOption) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persistence{db: db, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save writes params atomically (write-then-rename is Badger's own
// transaction-commit durability contract; the staged in-memory encoding
// step below locks the plaintext bytes in a memguard buffer for the
// duration of the write, then destroys them).
func (p *Persistence) Save(ctx context.Context, params *Parameters) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toGob(params)); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "encoding shgat parameter blob")
	}

	locked := memguard.NewBufferFromBytes(buf.Bytes())
	defer locked.Destroy()

	err := p.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(blobKey(params.Arch.Hash()), locked.Bytes())
	})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "writing shgat parameter blob to badger")
	}

	if p.gcsBucket != nil {
		p.mirrorToGCS(ctx, params.Arch.Hash(), locked.Bytes())
	}

	p.logger.Info("shgat: parameter blob saved",
		slog.String("arch", params.Arch.Hash()),
		slog.Uint64("version", params.Version))
	return nil
}

func (p *Persistence) mirrorToGCS(ctx context.Context, archHash string, data []byte) {
	w := p.gcsBucket.Object(p.gcsObjectFn(archHash)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		p.logger.Warn("shgat: gcs mirror write failed", slog.String("error", err.Error()))
		_ = w.Close()
		return
	}
	if err := w.Close(); err != nil {
		p.logger.Warn("shgat: gcs mirror close failed", slog.String("error", err.Error()))
	}
}

// Load reads the blob for arch, discarding and returning (nil, false) if
// the shape doesn't match the requested architecture. Loading at startup
// is best-effort: a shape mismatch logs a warning and starts cold rather
// than failing.
func (p *Persistence) Load(ctx context.Context, arch ArchConfig) (*Parameters, bool) {
	var raw []byte
	err := p.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(arch.Hash()))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		p.logger.Warn("shgat: parameter blob load failed, starting cold", slog.String("error", err.Error()))
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	var g gobParameters
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&g); err != nil {
		p.logger.Warn("shgat: parameter blob decode failed, starting cold", slog.String("error", err.Error()))
		return nil, false
	}
	if !shapeMatches(g.Arch, arch) {
		p.logger.Warn("shgat: parameter blob shape mismatch, starting cold",
			slog.String("stored_arch", g.Arch.Hash()), slog.String("wanted_arch", arch.Hash()))
		return nil, false
	}
	return fromGob(g), true
}

func shapeMatches(a, b ArchConfig) bool {
	return a.EmbeddingDim == b.EmbeddingDim &&
		a.NumHeads == b.NumHeads &&
		a.HiddenDim == b.HiddenDim &&
		a.NumLayers == b.NumLayers &&
		a.MLPHiddenDim == b.MLPHiddenDim
}
