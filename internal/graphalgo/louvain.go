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
	"math/rand"
	"sort"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// louvainSeed fixes the randomized tiebreak order so community assignment
// is reproducible across runs.
const louvainSeed = 1337

// Louvain assigns each tool a community id by modularity-optimizing local
// moves: a single-level pass that repeatedly moves nodes into the
// neighboring community that yields the largest modularity gain, until no
// move improves modularity. This single-level form is the dominant cost of
// full multi-level Louvain and is sufficient at the tool-graph scale this
// engine targets (hundreds to low thousands of nodes).
func Louvain(snap *graphstore.Snapshot) map[string]int {
	tools := snap.AllTools()
	n := len(tools)
	if n == 0 {
		return map[string]int{}
	}

	ids := make([]string, n)
	idx := make(map[string]int, n)
	for i, t := range tools {
		ids[i] = t.ID
		idx[t.ID] = i
	}

	// Build undirected weighted adjacency from non-tentative edges.
	adj := make([]map[int]float64, n)
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	var totalWeight float64
	addEdge := func(i, j int, w float64) {
		adj[i][j] += w
		if i != j {
			adj[j][i] += w
		}
		totalWeight += w
	}
	for i, id := range ids {
		for _, e := range snap.Neighbors(id, false) {
			j, ok := idx[e.To]
			if !ok {
				continue
			}
			addEdge(i, j, e.Confidence)
		}
	}
	if totalWeight == 0 {
		// No structural signal: every node is its own community.
		out := make(map[string]int, n)
		for i, id := range ids {
			out[id] = i
		}
		return out
	}
	m2 := totalWeight * 2

	degree := make([]float64, n)
	for i := range adj {
		for _, w := range adj[i] {
			degree[i] += w
		}
	}

	community := make([]int, n)
	for i := range community {
		community[i] = i
	}
	commWeight := append([]float64(nil), degree...)

	rng := rand.New(rand.NewSource(louvainSeed))
	order := rng.Perm(n)

	improved := true
	for improved {
		improved = false
		for _, i := range order {
			curComm := community[i]
			commWeight[curComm] -= degree[i]

			// Gather candidate communities among i's neighbors, sorted by
			// id for a deterministic tiebreak order.
			neighborComms := make(map[int]float64)
			for j, w := range adj[i] {
				neighborComms[community[j]] += w
			}
			candidates := make([]int, 0, len(neighborComms))
			for c := range neighborComms {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)

			bestComm := curComm
			bestGain := -1.0
			for _, c := range candidates {
				kIIn := neighborComms[c]
				gain := kIIn - commWeight[c]*degree[i]/m2
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}
			community[i] = bestComm
			commWeight[bestComm] += degree[i]
			if bestComm != curComm {
				improved = true
			}
		}
	}

	out := make(map[string]int, n)
	for i, id := range ids {
		out[id] = community[i]
	}
	return out
}
