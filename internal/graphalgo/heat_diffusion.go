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
	"math"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// HeatDiffusionOptions configures heat propagation.
type HeatDiffusionOptions struct {
	Steps                int
	DiffusionCoefficient float64
}

// DefaultHeatDiffusionOptions returns the algorithm's recommended defaults.
func DefaultHeatDiffusionOptions() HeatDiffusionOptions {
	return HeatDiffusionOptions{Steps: 3, DiffusionCoefficient: 0.5}
}

// HeatDiffusion propagates heat from a source set through the normalized
// graph Laplacian for Steps iterations, returning a value in [0,1] per
// tool. Each step updates heat h as
// h'(v) = h(v) + coefficient * sum_{u~v} w(u,v)/sqrt(deg(u)*deg(v)) *
// (h(u) - h(v)), with the edge weights normalized by the degrees of
// both endpoints.
func HeatDiffusion(snap *graphstore.Snapshot, source []string, opts HeatDiffusionOptions) map[string]float64 {
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

	type wEdge struct {
		to     int
		weight float64
	}
	adj := make([][]wEdge, n)
	degree := make([]float64, n)
	addUndirected := func(i, j int, w float64) {
		adj[i] = append(adj[i], wEdge{to: j, weight: w})
		adj[j] = append(adj[j], wEdge{to: i, weight: w})
		degree[i] += w
		degree[j] += w
	}
	for i, id := range ids {
		for _, e := range snap.Neighbors(id, false) {
			j, ok := idx[e.To]
			if !ok || j <= i {
				continue // each undirected pair added once
			}
			w := e.Confidence
			if w <= 0 {
				w = 0.01
			}
			addUndirected(i, j, w)
		}
	}

	heat := make([]float64, n)
	for _, s := range source {
		if i, ok := idx[s]; ok {
			heat[i] = 1.0
		}
	}

	c := opts.DiffusionCoefficient
	for step := 0; step < opts.Steps; step++ {
		next := make([]float64, n)
		copy(next, heat)
		for i := range adj {
			if degree[i] == 0 {
				continue
			}
			var laplacianTerm float64
			for _, e := range adj[i] {
				if degree[e.to] == 0 {
					continue
				}
				norm := e.weight / math.Sqrt(degree[i]*degree[e.to])
				laplacianTerm += norm * (heat[e.to] - heat[i])
			}
			next[i] = heat[i] + c*laplacianTerm
		}
		heat = next
	}

	out := make(map[string]float64, n)
	for i, id := range ids {
		v := heat[i]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[id] = v
	}
	return out
}
