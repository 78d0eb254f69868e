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

// AdamicAdar computes the Adamic-Adar similarity between nodes a and b:
// the sum over their common neighbors w of 1/log(degree(w)+1). Returns 0
// if there are no common neighbors.
func AdamicAdar(snap *graphstore.Snapshot, a, b string) float64 {
	neighborsA := undirectedNeighborSet(snap, a)
	neighborsB := undirectedNeighborSet(snap, b)

	var sum float64
	for w := range neighborsA {
		if _, common := neighborsB[w]; !common {
			continue
		}
		degree := len(undirectedNeighborSet(snap, w))
		if degree == 0 {
			continue
		}
		sum += 1.0 / math.Log(float64(degree)+1)
	}
	return sum
}

// undirectedNeighborSet returns the set of ids adjacent to id by either a
// non-tentative outgoing or incoming edge.
func undirectedNeighborSet(snap *graphstore.Snapshot, id string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range snap.Neighbors(id, false) {
		set[e.To] = struct{}{}
	}
	for _, e := range snap.InNeighbors(id, false) {
		set[e.From] = struct{}{}
	}
	return set
}
