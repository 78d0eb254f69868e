// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore is Component A of the ranking engine: the embedding
// cache and vector index. It stores unit-norm dense vectors for tools,
// capabilities, and training intents, and answers approximate and exact
// nearest-neighbor queries.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
)

// Defaults matching the persisted HNSW mirror's configuration: cosine
// distance, M=16 connections per node, efConstruction=64.
const (
	DefaultDim             = 1024
	DefaultM               = 16
	DefaultEFConstruction  = 64
	coldStartThreshold     = 32
	defaultBatchPatchLimit = 256
)

// Match is one result of a KNN query.
type Match struct {
	ID     string
	Cosine float64
}

type node struct {
	id        string
	vec       []float32
	neighbors []string // up to M ids, kept sorted by distance to this node
}

// Index is an approximate nearest-neighbor index over unit-norm vectors,
// built as a single-layer navigable small-world graph (a simplified HNSW):
// each insert greedily links to its M nearest existing points, and
// queries greedily expand from an entry point along those links.
//
// Below coldStartThreshold (32) points, Index falls back to an exact
// brute-force scan — the approximate graph has too few points to beat it
// on both speed and recall.
//
// Thread Safety: reads (Get, Knn) take a brief read lock and never block
// on writers except during the structural patch itself; Upsert/Remove
// take the write lock only for the duration of one structural patch.
type Index struct {
	mu             sync.RWMutex
	dim            int
	m              int
	efConstruction int
	nodes          map[string]*node
	order          []string // insertion order, used for deterministic exact scan
	logger         *slog.Logger
}

// New creates an empty Index for vectors of the given dimension.
func New(dim int, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dim:            dim,
		m:              DefaultM,
		efConstruction: DefaultEFConstruction,
		nodes:          make(map[string]*node),
		logger:         logger,
	}
}

// Upsert inserts or replaces the vector for id. The vector must be finite
// and is L2-normalized before storage.
func (ix *Index) Upsert(id string, vec []float32) error {
	if len(vec) != ix.dim {
		return gatewayerr.New(gatewayerr.KindDimensionMismatch,
			fmt.Sprintf("vector for %q has dim %d, want %d", id, len(vec), ix.dim))
	}
	unit, err := normalize(vec)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindDimensionMismatch, err, "normalizing vector for "+id)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.nodes[id]; exists {
		ix.removeLocked(id)
	}

	n := &node{id: id, vec: unit}
	ix.nodes[id] = n
	ix.order = append(ix.order, id)
	ix.linkLocked(n)
	return nil
}

// UpsertBatch upserts each (id, vec) pair in order via Upsert, stopping at
// the first error; it does not coalesce the inserts into one structural
// pass.
func (ix *Index) UpsertBatch(ids []string, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("ids and vecs length mismatch: %d vs %d", len(ids), len(vecs))
	}
	for i := range ids {
		if err := ix.Upsert(ids[i], vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored unit vector for id, or ok=false if absent.
func (ix *Index) Get(id string) (vec []float32, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n, exists := ix.nodes[id]
	if !exists {
		return nil, false
	}
	cp := make([]float32, len(n.vec))
	copy(cp, n.vec)
	return cp, true
}

// Remove deletes id from the index, unlinking it from neighbors.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Knn returns the top-k matches for query by cosine similarity, ties
// broken by lexicographic id, optionally restricted to ids for which
// filter returns true. Returns an empty slice if the index is empty.
func (ix *Index) Knn(_ context.Context, query []float32, k int, filter func(id string) bool) ([]Match, error) {
	if len(query) != ix.dim {
		return nil, gatewayerr.New(gatewayerr.KindDimensionMismatch,
			fmt.Sprintf("query has dim %d, want %d", len(query), ix.dim))
	}
	unit, err := normalize(query)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDimensionMismatch, err, "normalizing query vector")
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.nodes) == 0 {
		return []Match{}, nil
	}
	if len(ix.nodes) < coldStartThreshold {
		return ix.exactScanLocked(unit, k, filter), nil
	}
	return ix.greedySearchLocked(unit, k, filter), nil
}

func (ix *Index) exactScanLocked(query []float32, k int, filter func(string) bool) []Match {
	matches := make([]Match, 0, len(ix.nodes))
	for _, id := range ix.order {
		n, ok := ix.nodes[id]
		if !ok {
			continue
		}
		if filter != nil && !filter(id) {
			continue
		}
		matches = append(matches, Match{ID: id, Cosine: float64(dot(query, n.vec))})
	}
	sortMatches(matches)
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// greedySearchLocked expands a candidate frontier from an arbitrary entry
// point along the navigable-graph links built at insert time, keeping the
// efConstruction-sized best-so-far set, then returns the top-k.
func (ix *Index) greedySearchLocked(query []float32, k int, filter func(string) bool) []Match {
	ef := ix.efConstruction
	if k > ef {
		ef = k
	}

	visited := make(map[string]bool, ef*2)
	entry := ix.order[0]
	candidates := []Match{{ID: entry, Cosine: float64(dot(query, ix.nodes[entry].vec))}}
	visited[entry] = true
	best := append([]Match(nil), candidates...)

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Cosine > candidates[j].Cosine })
		cur := candidates[0]
		candidates = candidates[1:]

		worstBest := 0.0
		if len(best) >= ef {
			sortMatches(best)
			worstBest = best[ef-1].Cosine
			if cur.Cosine < worstBest {
				break
			}
		}

		n := ix.nodes[cur.ID]
		for _, nb := range n.neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode, ok := ix.nodes[nb]
			if !ok {
				continue
			}
			sim := float64(dot(query, nbNode.vec))
			candidates = append(candidates, Match{ID: nb, Cosine: sim})
			best = append(best, Match{ID: nb, Cosine: sim})
		}
	}

	filtered := best[:0:0]
	for _, m := range best {
		if filter != nil && !filter(m.ID) {
			continue
		}
		filtered = append(filtered, m)
	}
	// Dedup (a node may be added to best multiple times during expansion).
	seen := make(map[string]bool, len(filtered))
	dedup := filtered[:0:0]
	for _, m := range filtered {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		dedup = append(dedup, m)
	}
	sortMatches(dedup)
	if k < len(dedup) {
		dedup = dedup[:k]
	}
	return dedup
}

// linkLocked connects a freshly inserted node to its M nearest existing
// neighbors (by brute-force distance against the current node set, which
// is cheap at the scale this engine targets) and prunes the reverse
// links so no node exceeds M connections.
func (ix *Index) linkLocked(n *node) {
	type cand struct {
		id  string
		sim float64
	}
	cands := make([]cand, 0, len(ix.nodes))
	for id, other := range ix.nodes {
		if id == n.id {
			continue
		}
		cands = append(cands, cand{id: id, sim: float64(dot(n.vec, other.vec))})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > ix.m {
		cands = cands[:ix.m]
	}
	for _, c := range cands {
		n.neighbors = append(n.neighbors, c.id)
		other := ix.nodes[c.id]
		other.neighbors = append(other.neighbors, n.id)
		ix.pruneNeighbors(other)
	}
}

// pruneNeighbors keeps only the M closest neighbors of n.
func (ix *Index) pruneNeighbors(n *node) {
	if len(n.neighbors) <= ix.m {
		return
	}
	type cand struct {
		id  string
		sim float64
	}
	cands := make([]cand, 0, len(n.neighbors))
	for _, id := range n.neighbors {
		other, ok := ix.nodes[id]
		if !ok {
			continue
		}
		cands = append(cands, cand{id: id, sim: float64(dot(n.vec, other.vec))})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > ix.m {
		cands = cands[:ix.m]
	}
	n.neighbors = n.neighbors[:0]
	for _, c := range cands {
		n.neighbors = append(n.neighbors, c.id)
	}
}

func (ix *Index) removeLocked(id string) {
	n, ok := ix.nodes[id]
	if !ok {
		return
	}
	for _, nbID := range n.neighbors {
		if nb, ok := ix.nodes[nbID]; ok {
			nb.neighbors = removeString(nb.neighbors, id)
		}
	}
	delete(ix.nodes, id)
	ix.order = removeString(ix.order, id)
}

func removeString(s []string, target string) []string {
	out := s[:0:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func sortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Cosine != m[j].Cosine {
			return m[i].Cosine > m[j].Cosine
		}
		return m[i].ID < m[j].ID
	})
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) ([]float32, error) {
	var sumSq float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("vector contains non-finite value")
		}
		sumSq += f * f
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return nil, fmt.Errorf("vector has zero norm")
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
