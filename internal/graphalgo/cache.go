// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphalgo

import (
	"sync"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// Cache memoizes algorithm results against the snapshot version that
// produced them. A cached result is valid
// exactly as long as the snapshot it was computed from remains current;
// Component H invalidates by virtue of the version check failing after any
// mutation, without needing to explicitly notify this cache.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	pageRankVersion uint64
	pageRank        map[string]float64

	louvainVersion uint64
	louvain        map[string]int

	hyperPRVersion uint64
	hyperPR        map[string]float64
}

// NewCache creates an empty algorithm result cache.
func NewCache() *Cache {
	return &Cache{}
}

// PageRank returns the cached PageRank result for snap's version, computing
// and storing it on a miss.
func (c *Cache) PageRank(snap *graphstore.Snapshot, opts PageRankOptions) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pageRank != nil && c.pageRankVersion == snap.Version {
		return c.pageRank
	}
	c.pageRank = PageRank(snap, opts)
	c.pageRankVersion = snap.Version
	return c.pageRank
}

// Louvain returns the cached Louvain community assignment for snap's
// version, computing and storing it on a miss.
func (c *Cache) Louvain(snap *graphstore.Snapshot) map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.louvain != nil && c.louvainVersion == snap.Version {
		return c.louvain
	}
	c.louvain = Louvain(snap)
	c.louvainVersion = snap.Version
	return c.louvain
}

// HypergraphPageRank returns the cached hypergraph PageRank for snap's
// version, computing and storing it on a miss.
func (c *Cache) HypergraphPageRank(snap *graphstore.Snapshot, opts HypergraphPageRankOptions) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hyperPR != nil && c.hyperPRVersion == snap.Version {
		return c.hyperPR
	}
	c.hyperPR = HypergraphPageRank(snap, opts)
	c.hyperPRVersion = snap.Version
	return c.hyperPR
}
