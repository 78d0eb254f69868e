// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shgat

import "math"

const leakyReLUSlope = 0.2

// depthDecay scales layer-ℓ contributions before fusion; deeper layers
// contribute progressively less to the final score.
const depthDecay = 0.8

func leakyReLU(x float64) float64 {
	if x >= 0 {
		return x
	}
	return leakyReLUSlope * x
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		var sum float64
		n := len(row)
		if len(v) < n {
			n = len(v)
		}
		for j := 0; j < n; j++ {
			sum += row[j] * v[j]
		}
		out[i] = sum
	}
	return out
}

func dotF64(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func concatVec(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		e := math.Exp(s - max)
		out[i] = e
		sum += e
	}
	if sum == 0 {
		uniform := 1.0 / float64(len(scores))
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// attentionLogit computes LeakyReLU(a^T [Wq.x || Wk.y]) for one head
// : x is the "query" side embedding (the updating node), y is
// a neighbor's embedding.
func attentionLogit(h HeadParams, x, y []float64) float64 {
	q := matVec(h.Wq, x)
	k := matVec(h.Wk, y)
	concat := concatVec(q, k)
	return leakyReLU(dotF64(h.AttnVec, concat))
}

// headOutput computes one head's weighted-sum output over a set of
// neighbor embeddings, given the updating node's own embedding.
func headOutput(h HeadParams, self []float64, neighbors [][]float64, dropout float64, rngState *uint64) []float64 {
	perHead := len(h.Wq)
	if len(neighbors) == 0 {
		return make([]float64, perHead)
	}
	logits := make([]float64, len(neighbors))
	for i, n := range neighbors {
		logits[i] = attentionLogit(h, self, n)
	}
	weights := softmax(logits)

	out := make([]float64, perHead)
	for i, n := range neighbors {
		w := weights[i]
		if dropout > 0 && rngState != nil && dropoutDrop(rngState, dropout) {
			continue
		}
		kv := matVec(h.Wk, n)
		for d := range out {
			out[d] += w * kv[d]
		}
	}
	return out
}

// dropoutDrop is a tiny deterministic xorshift-based Bernoulli draw, used
// only when a non-zero dropout rate is supplied during training forward
// passes; scoring paths pass dropout=0 so this is never invoked at serve
// time.
func dropoutDrop(state *uint64, rate float64) bool {
	*state ^= *state << 13
	*state ^= *state >> 7
	*state ^= *state << 17
	frac := float64(*state%1000000) / 1000000.0
	return frac < rate
}

// layerForward runs one V->E then E->V message-passing step.
//
// vertices maps a vertex id to its current embedding; hyperedges maps a
// capability FQDN to its member vertex ids. Returns updated embeddings for
// both sides, each projected back to HiddenDim via the layer's ProjE/ProjV.
func layerForward(lp LayerParams, arch ArchConfig, vertices map[string][]float64, hyperedgeMembers map[string][]string, hyperedgeSelf map[string][]float64, dropout float64, rngState *uint64) (map[string][]float64, map[string][]float64) {
	newHyperedges := make(map[string][]float64, len(hyperedgeMembers))
	for fqdn, members := range hyperedgeMembers {
		self := hyperedgeSelf[fqdn]
		concatHeads := make([]float64, 0, arch.HiddenDim)
		for _, head := range lp.Heads {
			var neighborEmb [][]float64
			for _, m := range members {
				if v, ok := vertices[m]; ok {
					neighborEmb = append(neighborEmb, v)
				}
			}
			out := headOutput(head, self, neighborEmb, dropout, rngState)
			concatHeads = append(concatHeads, out...)
		}
		newHyperedges[fqdn] = matVec(lp.ProjE, padTo(concatHeads, arch.HiddenDim))
	}

	memberOf := make(map[string][]string)
	for fqdn, members := range hyperedgeMembers {
		for _, m := range members {
			memberOf[m] = append(memberOf[m], fqdn)
		}
	}

	newVertices := make(map[string][]float64, len(vertices))
	for id, self := range vertices {
		edges := memberOf[id]
		concatHeads := make([]float64, 0, arch.HiddenDim)
		for _, head := range lp.Heads {
			var neighborEmb [][]float64
			for _, e := range edges {
				if v, ok := newHyperedges[e]; ok {
					neighborEmb = append(neighborEmb, v)
				}
			}
			out := headOutput(head, self, neighborEmb, dropout, rngState)
			concatHeads = append(concatHeads, out...)
		}
		newVertices[id] = matVec(lp.ProjV, padTo(concatHeads, arch.HiddenDim))
	}

	return newVertices, newHyperedges
}

func padTo(v []float64, n int) []float64 {
	if len(v) >= n {
		return v[:n]
	}
	out := make([]float64, n)
	copy(out, v)
	return out
}
