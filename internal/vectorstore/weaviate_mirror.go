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

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/data"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
)

// weaviateClassName is the schema class backing the persistent vector
// mirror. One class holds tools, capabilities, and training intents alike;
// the node kind is stored in the "kind" property so queries can filter by it.
const weaviateClassName = "CapgatewayVector"

// WeaviateMirror is the durable, cross-restart mirror of the in-process
// embedding index (class weaviateClassName, cosine HNSW with DefaultM and
// DefaultEFConstruction). The in-process Index remains the source of truth for hot-path
// Knn; the mirror is consulted only when the in-process index is cold and
// is written to on every Upsert so a restarted engine can rehydrate.
//
// Thread Safety: safe for concurrent use; the underlying weaviate client
// is itself safe for concurrent use over HTTP.
type WeaviateMirror struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewWeaviateMirror dials a Weaviate instance at scheme://host and ensures
// the backing class exists with its HNSW configuration.
func NewWeaviateMirror(ctx context.Context, scheme, host string, logger *slog.Logger) (*WeaviateMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := weaviate.Config{Scheme: scheme, Host: host}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "creating weaviate client")
	}

	m := &WeaviateMirror{client: client, logger: logger}
	if err := m.ensureClass(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WeaviateMirror) ensureClass(ctx context.Context) error {
	exists, err := m.client.Schema().ClassExistenceChecker().WithClassName(weaviateClassName).Do(ctx)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "checking weaviate schema")
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      weaviateClassName,
		Vectorizer: "none",
		VectorIndexConfig: map[string]any{
			"distance":       "cosine",
			"maxConnections": DefaultM,
			"efConstruction": DefaultEFConstruction,
		},
		Properties: []*models.Property{
			{Name: "externalID", DataType: []string{"text"}},
			{Name: "kind", DataType: []string{"text"}},
		},
	}
	if err := m.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "creating weaviate class")
	}
	m.logger.Info("weaviate mirror: class created",
		slog.String("class", weaviateClassName),
		slog.Int("m", DefaultM),
		slog.Int("ef_construction", DefaultEFConstruction))
	return nil
}

// Upsert mirrors a single vector to Weaviate, keyed by a deterministic
// UUID derived from the external id so repeated upserts overwrite rather
// than duplicate.
func (m *WeaviateMirror) Upsert(ctx context.Context, id, kind string, vec []float32) error {
	uuid := deterministicUUID(id)
	props := map[string]any{"externalID": id, "kind": kind}

	_, err := m.client.Data().Creator().
		WithClassName(weaviateClassName).
		WithID(uuid).
		WithProperties(props).
		WithVector(vec).
		Do(ctx)
	if err != nil {
		// Object may already exist; fall back to an update.
		err = m.client.Data().Updater().
			WithClassName(weaviateClassName).
			WithID(uuid).
			WithProperties(props).
			WithVector(vec).
			WithMerge(data.MergeType).
			Do(ctx)
	}
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "mirroring vector to weaviate")
	}
	return nil
}

// Knn queries the durable mirror for the nearest vectors to query,
// restricted by kind when kind is non-empty. Used as the cold-start path
// when the in-process Index has fewer than coldStartThreshold points.
func (m *WeaviateMirror) Knn(ctx context.Context, query []float32, k int, kind string) ([]Match, error) {
	nearVector := m.client.GraphQL().NearVectorArgBuilder().WithVector(query)

	builder := m.client.GraphQL().Get().
		WithClassName(weaviateClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(
			graphql.Field{Name: "externalID"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		)

	if kind != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"kind"}).
			WithOperator(filters.Equal).
			WithValueText(kind))
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "querying weaviate mirror")
	}
	if resp.Errors != nil && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql errors: %v", resp.Errors)
	}

	return parseWeaviateMatches(resp)
}

// Remove deletes the mirrored object for id.
func (m *WeaviateMirror) Remove(ctx context.Context, id string) error {
	err := m.client.Data().Deleter().
		WithClassName(weaviateClassName).
		WithID(deterministicUUID(id)).
		Do(ctx)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "deleting mirrored vector")
	}
	return nil
}
