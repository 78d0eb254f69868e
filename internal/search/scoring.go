// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"math"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// cosine computes cosine similarity between two vectors, tolerant of
// unequal lengths (the shorter length wins) and zero vectors (returns 0
// rather than NaN).
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// density is edges / (nodes*(nodes-1)), the directed-graph density used to
// adapt alpha: a sparse graph leans on semantic similarity, a dense one
// leans on structural (graph) signal.
func density(snap *graphstore.Snapshot) float64 {
	tools := snap.AllTools()
	caps := snap.AllCapabilities()
	nodes := len(tools) + len(caps)
	if nodes <= 1 {
		return 0
	}
	edges := 0
	for _, t := range tools {
		edges += len(snap.Neighbors(t.ID, true))
	}
	for _, c := range caps {
		edges += len(snap.Neighbors(c.FQDN, true))
	}
	return float64(edges) / float64(nodes*(nodes-1))
}

// adaptiveAlpha implements the blend-coefficient rule: alpha shrinks as
// the graph densifies (structural signal becomes more trustworthy),
// floored so semantic similarity is never fully discounted, and pinned at
// 1.0 for an empty graph where there is no structure to lean on.
func adaptiveAlpha(snap *graphstore.Snapshot, floor float64) float64 {
	if len(snap.AllTools())+len(snap.AllCapabilities()) == 0 {
		return 1.0
	}
	alpha := 1.0 - density(snap)*2.0
	if alpha < floor {
		return floor
	}
	if alpha > 1.0 {
		return 1.0
	}
	return alpha
}

// combine applies the unified-search scoring rule: a convex blend of
// semantic and graph signal, scaled by reliability, clamped below the
// maximum achievable score so a perfect blend never reads as complete
// certainty.
func combine(alpha, semantic, graphScore, reliability float64) float64 {
	score := (alpha*semantic + (1-alpha)*graphScore) * reliability
	const maxScore = 0.95
	if score > maxScore {
		return maxScore
	}
	if score < 0 {
		return 0
	}
	return score
}

// graphActivation resolves a candidate's graph term from a heat map
// computed over tools: a tool reads its own value directly; a capability
// averages the (recursively resolved) activation of its members, the same
// way membership composes for reliability.
func graphActivation(snap *graphstore.Snapshot, heat map[string]float64, id string, depth int) float64 {
	if depth > 8 {
		return 0
	}
	if v, ok := heat[id]; ok {
		return v
	}
	c, ok := snap.Capability(id)
	if !ok || len(c.Members) == 0 {
		return 0
	}
	var sum float64
	for _, member := range c.Members {
		sum += graphActivation(snap, heat, member, depth+1)
	}
	return sum / float64(len(c.Members))
}
