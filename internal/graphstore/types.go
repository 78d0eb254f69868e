// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphstore is Component B: the in-memory directed weighted
// multigraph of tools and the hypergraph of capabilities built over them.
package graphstore

import "time"

// EdgeSource distinguishes user-declared edges from ones inferred by
// observation; user sources get a higher confidence base.
type EdgeSource string

const (
	EdgeSourceUser    EdgeSource = "user"
	EdgeSourceLearned EdgeSource = "learned"
)

// EdgeType classifies the relationship an observed tool->tool edge encodes.
type EdgeType string

const (
	EdgeTypeData     EdgeType = "data"
	EdgeTypeControl  EdgeType = "control"
	EdgeTypeSequence EdgeType = "sequence"
	EdgeTypeContains EdgeType = "contains"
	EdgeTypeUses     EdgeType = "uses"
)

// tentativeThreshold is the observed-count floor below which an edge is
// excluded from structural features.
const tentativeThreshold = 3

// CachedToolFeatures holds algorithm outputs cached against a Tool,
// versioned against the snapshot that produced them.
type CachedToolFeatures struct {
	PageRank         float64
	LouvainCommunity int
	AdamicAdarDigest string
	HeatDiffusion    float64
	Recency          float64
	SnapshotVersion  uint64
}

// Tool is a vertex in the graph.
type Tool struct {
	ID           string // "server:name"
	Description  string
	Embedding    []float32
	LastSeen     time.Time
	UsageCount   uint64
	SuccessCount uint64
	Deprecated   bool
	Features     CachedToolFeatures
}

// CachedHyperedgeFeatures holds algorithm outputs cached against a
// Capability.
type CachedHyperedgeFeatures struct {
	SpectralCluster    int
	HypergraphPageRank float64
	Cooccurrence       float64
	Recency            float64
	AdamicAdar         float64
	HeatDiffusion      float64
	SnapshotVersion    uint64
}

// Capability is a hyperedge over tools and/or other capabilities.
type Capability struct {
	FQDN           string
	ShortHash      string
	IntegrityHash  string // full hex SHA-256 the FQDN's ShortHash is derived from
	Description    string
	Embedding      []float32
	Members        []string // ordered multiset: tool ids or nested capability FQDNs
	HierarchyLevel int
	UsageCount     uint64
	SuccessCount   uint64
	LastUsed       time.Time
	Features       CachedHyperedgeFeatures
	// AliasOf is set when this FQDN was superseded by a merge; readers
	// resolving an alias should follow it to the canonical FQDN for the
	// grace period after a merge, before readers are expected to have
	// migrated to the canonical FQDN.
	AliasOf string
}

// Edge is a directed, weighted tool->tool relationship.
type Edge struct {
	From          string
	To            string
	ObservedCount uint64
	Confidence    float64
	Source        EdgeSource
	LastObserved  time.Time
	Type          EdgeType
}

// Tentative reports whether the edge's observed count is still below the
// threshold at which it participates in structural features.
func (e Edge) Tentative() bool {
	return e.ObservedCount < tentativeThreshold
}

// InverseConfidenceWeight maps confidence to a Dijkstra edge weight: higher
// confidence means a shorter distance. Confidence of exactly
// 1 is clamped to a tiny positive weight to avoid a zero-length edge.
func (e Edge) InverseConfidenceWeight() float64 {
	const epsilon = 1e-6
	w := 1 - e.Confidence
	if w < epsilon {
		return epsilon
	}
	return w
}
