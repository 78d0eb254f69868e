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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var cacheTracer = otel.Tracer("capgateway.vectorstore")

var (
	knnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "capgateway",
		Subsystem: "vectorstore",
		Name:      "knn_latency_seconds",
		Help:      "Latency of Knn queries against the embedding cache.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	mirrorFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "capgateway",
		Subsystem: "vectorstore",
		Name:      "mirror_fallback_total",
		Help:      "Number of Knn queries served from the Weaviate mirror due to cold-start.",
	})
)

// Cache offers upsert/get/knn/remove over unit-norm vectors, backed by the
// in-process approximate Index and optionally mirrored to a durable
// WeaviateMirror for cross-restart continuity and as the cold-start query
// path.
//
// Thread Safety: safe for concurrent use. Knn/Get never block Upsert/Remove
// beyond the brief exclusive section each holds while patching the index.
type Cache struct {
	index   *Index
	mirror  *WeaviateMirror
	persist *PersistentStore
	logger  *slog.Logger
}

// NewCache constructs a Cache. mirror and persist may each be nil: a nil
// mirror runs in-process only (the correct mode for tests and for
// deployments without a Weaviate endpoint configured); a nil persist skips
// BadgerDB persistence entirely.
func NewCache(dim int, mirror *WeaviateMirror, persist *PersistentStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{index: New(dim, logger), mirror: mirror, persist: persist, logger: logger}
}

// Warm rehydrates the in-process index from the persistent store, if one is
// configured. Call once at startup before serving traffic.
func (c *Cache) Warm(ctx context.Context) error {
	if c.persist == nil {
		return nil
	}
	ids, _, vecs, err := c.persist.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := c.index.UpsertBatch(ids, vecs); err != nil {
		return err
	}
	c.logger.Info("vectorstore: warmed index from persistent store", slog.Int("count", len(ids)))
	return nil
}

// Upsert stores vec for id in the in-process index and, if configured,
// mirrors it to Weaviate. Mirror failures are logged and non-fatal: the
// in-process index remains authoritative for the current process
// lifetime.
func (c *Cache) Upsert(ctx context.Context, id, kind string, vec []float32) error {
	if err := c.index.Upsert(id, vec); err != nil {
		return err
	}
	if c.persist != nil {
		if err := c.persist.Save(ctx, id, kind, vec); err != nil {
			c.logger.Warn("vectorstore: persist upsert failed, continuing in-process only",
				slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	if c.mirror != nil {
		if err := c.mirror.Upsert(ctx, id, kind, vec); err != nil {
			c.logger.Warn("vectorstore: mirror upsert failed, continuing in-process only",
				slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	return nil
}

// UpsertBatch upserts many vectors, warming the mirror concurrently with
// a bounded worker pool rather than one goroutine per vector.
func (c *Cache) UpsertBatch(ctx context.Context, ids []string, kinds []string, vecs [][]float32) error {
	if err := c.index.UpsertBatch(ids, vecs); err != nil {
		return err
	}
	if c.mirror == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, 10)
	for i := range ids {
		i := i
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := c.mirror.Upsert(gctx, ids[i], kinds[i], vecs[i]); err != nil {
				c.logger.Warn("vectorstore: batch mirror upsert failed",
					slog.String("id", ids[i]), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return g.Wait()
}

// Get returns the stored vector for id from the in-process index.
func (c *Cache) Get(id string) ([]float32, bool) {
	return c.index.Get(id)
}

// Remove deletes id from both the in-process index and the mirror.
func (c *Cache) Remove(ctx context.Context, id string) {
	c.index.Remove(id)
	if c.persist != nil {
		if err := c.persist.Delete(ctx, id); err != nil {
			c.logger.Warn("vectorstore: persist remove failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	if c.mirror != nil {
		if err := c.mirror.Remove(ctx, id); err != nil {
			c.logger.Warn("vectorstore: mirror remove failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
}

// Knn returns the top-k matches for query, falling back to the durable
// mirror when the in-process index is still cold.
func (c *Cache) Knn(ctx context.Context, query []float32, k int, kind string, filter func(string) bool) ([]Match, error) {
	ctx, span := cacheTracer.Start(ctx, "vectorstore.Knn")
	defer span.End()
	timer := prometheus.NewTimer(knnLatency)
	defer timer.ObserveDuration()

	if c.index.Len() < coldStartThreshold && c.mirror != nil {
		mirrorFallbackTotal.Inc()
		span.SetAttributes(attribute.Bool("cold_start_mirror_fallback", true))
		matches, err := c.mirror.Knn(ctx, query, k, kind)
		if err == nil {
			return matches, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "mirror fallback failed, using in-process index")
		c.logger.Warn("vectorstore: mirror fallback failed, using in-process index", slog.String("error", err.Error()))
	}
	return c.index.Knn(ctx, query, k, filter)
}

// Len returns the number of vectors held by the in-process index.
func (c *Cache) Len() int { return c.index.Len() }
