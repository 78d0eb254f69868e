// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphalgo is Component C: the graph algorithms run over a
// Component B snapshot (weighted PageRank, Louvain, Adamic-Adar, Dijkstra,
// hypergraph PageRank, heat diffusion, spectral clustering).
//
// None of these have a teacher analogue: the only prior "PageRank"-labeled
// code (services/trace/graph's find_important tool) is a degree-based
// heuristic, not power iteration. These are built directly from the
// standard weighted-PageRank formulation.
package graphalgo

import (
	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// PageRankOptions configures weighted PageRank.
type PageRankOptions struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int
}

// DefaultPageRankOptions returns the algorithm's recommended defaults.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{Damping: 0.85, Tolerance: 1e-6, MaxIterations: 100}
}

// PageRank computes weighted PageRank over the tool graph's non-tentative
// edges, using observed-count-derived confidence as edge weight. Converges
// when the L1 change across all nodes falls below Tolerance, or after
// MaxIterations.
func PageRank(snap *graphstore.Snapshot, opts PageRankOptions) map[string]float64 {
	tools := snap.AllTools()
	n := len(tools)
	if n == 0 {
		return map[string]float64{}
	}

	ids := make([]string, n)
	idx := make(map[string]int, n)
	for i, t := range tools {
		ids[i] = t.ID
		idx[t.ID] = i
	}

	// outWeightSum[i] = sum of confidence-weights on i's outgoing edges;
	// outEdges[i] = list of (j, weight) pairs.
	type wEdge struct {
		to     int
		weight float64
	}
	outEdges := make([][]wEdge, n)
	outWeightSum := make([]float64, n)
	for i, id := range ids {
		for _, e := range snap.Neighbors(id, false) {
			j, ok := idx[e.To]
			if !ok {
				continue
			}
			w := e.Confidence
			if w <= 0 {
				w = 0.01
			}
			outEdges[i] = append(outEdges[i], wEdge{to: j, weight: w})
			outWeightSum[i] += w
		}
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	d := opts.Damping
	base := (1 - d) / float64(n)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		next := make([]float64, n)
		// Dangling mass: nodes with no outgoing weighted edges distribute
		// their rank uniformly, the standard PageRank dangling-node fix.
		var danglingMass float64
		for i := range rank {
			if outWeightSum[i] == 0 {
				danglingMass += rank[i]
			}
		}
		danglingShare := d * danglingMass / float64(n)

		for i := range next {
			next[i] = base + danglingShare
		}
		for i, edges := range outEdges {
			if outWeightSum[i] == 0 {
				continue
			}
			contribution := d * rank[i] / outWeightSum[i]
			for _, e := range edges {
				next[e.to] += contribution * e.weight
			}
		}

		var l1 float64
		for i := range rank {
			diff := next[i] - rank[i]
			if diff < 0 {
				diff = -diff
			}
			l1 += diff
		}
		rank = next
		if l1 < opts.Tolerance {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, id := range ids {
		out[id] = rank[i]
	}
	return out
}
