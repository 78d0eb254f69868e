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
	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// HypergraphPageRankOptions configures hypergraph PageRank.
type HypergraphPageRankOptions struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int
}

// DefaultHypergraphPageRankOptions mirrors PageRank's defaults; the
// hypergraph variant has no separate tuning constants of its own.
func DefaultHypergraphPageRankOptions() HypergraphPageRankOptions {
	return HypergraphPageRankOptions{Damping: 0.85, Tolerance: 1e-6, MaxIterations: 100}
}

// HypergraphPageRank runs PageRank's bipartite iteration over a
// vertex/hyperedge graph:
//
//	rank(v) = (1-d)/|V| + d * sum_{e ni v} (rank_e / |e|)
//	rank_e  = sum_{v in e} rank(v) / |e|
//
// over the vertex set (tools and capabilities used as members) and
// hyperedge set (capabilities), alternating the two update equations until
// the L1 change in vertex ranks falls below Tolerance.
func HypergraphPageRank(snap *graphstore.Snapshot, opts HypergraphPageRankOptions) map[string]float64 {
	vertexIDs := make(map[string]bool)
	for _, t := range snap.AllTools() {
		vertexIDs[t.ID] = true
	}
	caps := snap.AllCapabilities()
	for _, c := range caps {
		vertexIDs[c.FQDN] = true
		for _, m := range c.Members {
			vertexIDs[m] = true
		}
	}
	vIDs := make([]string, 0, len(vertexIDs))
	for id := range vertexIDs {
		vIDs = append(vIDs, id)
	}
	nV := len(vIDs)
	if nV == 0 {
		return map[string]float64{}
	}

	rankV := make(map[string]float64, nV)
	for _, id := range vIDs {
		rankV[id] = 1.0 / float64(nV)
	}
	rankE := make(map[string]float64, len(caps))

	d := opts.Damping
	base := (1 - d) / float64(nV)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		for _, c := range caps {
			if len(c.Members) == 0 {
				rankE[c.FQDN] = 0
				continue
			}
			var sum float64
			for _, m := range c.Members {
				sum += rankV[m]
			}
			rankE[c.FQDN] = sum / float64(len(c.Members))
		}

		nextV := make(map[string]float64, nV)
		for _, id := range vIDs {
			nextV[id] = base
		}
		for _, c := range caps {
			if len(c.Members) == 0 {
				continue
			}
			contribution := d * rankE[c.FQDN] / float64(len(c.Members))
			for _, m := range c.Members {
				nextV[m] += contribution
			}
		}

		var l1 float64
		for _, id := range vIDs {
			diff := nextV[id] - rankV[id]
			if diff < 0 {
				diff = -diff
			}
			l1 += diff
		}
		rankV = nextV
		if l1 < opts.Tolerance {
			break
		}
	}

	return rankV
}
