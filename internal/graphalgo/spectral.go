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
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// spectralSeed fixes the k-means initialization so cluster assignment is
// reproducible across runs, the same determinism requirement Louvain
// applies.
const spectralSeed = 4242

// SpectralCluster computes the k smallest non-trivial eigenvectors of the
// normalized Laplacian of the capability graph (capabilities as nodes,
// edges weighted by shared-membership count), then k-means clusters the
// resulting embedding rows. Uses
// gonum.org/v1/gonum/mat's symmetric eigendecomposition.
func SpectralCluster(snap *graphstore.Snapshot, k int) map[string]int {
	caps := snap.AllCapabilities()
	n := len(caps)
	if n == 0 || k <= 0 {
		return map[string]int{}
	}
	if k >= n {
		out := make(map[string]int, n)
		for i, c := range caps {
			out[c.FQDN] = i
		}
		return out
	}

	ids := make([]string, n)
	idx := make(map[string]int, n)
	for i, c := range caps {
		ids[i] = c.FQDN
		idx[c.FQDN] = i
	}

	// Weighted adjacency: two capabilities are connected with weight equal
	// to the number of members they share.
	adj := mat.NewSymDense(n, nil)
	degree := make([]float64, n)
	for i := 0; i < n; i++ {
		memberSetI := toSet(caps[i].Members)
		for j := i + 1; j < n; j++ {
			shared := 0
			for m := range memberSetI {
				if _, ok := toSet(caps[j].Members)[m]; ok {
					shared++
				}
			}
			if shared > 0 {
				adj.SetSym(i, j, float64(shared))
				degree[i] += float64(shared)
				degree[j] += float64(shared)
			}
		}
	}

	// Normalized Laplacian L = I - D^-1/2 A D^-1/2.
	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				if degree[i] > 0 {
					lap.SetSym(i, j, 1)
				}
				continue
			}
			a := adj.At(i, j)
			if a == 0 || degree[i] == 0 || degree[j] == 0 {
				continue
			}
			lap.SetSym(i, j, -a/(math.Sqrt(degree[i])*math.Sqrt(degree[j])))
		}
	}

	var eig mat.EigenSym
	ok := eig.Factorize(lap, true)
	if !ok {
		// Degenerate graph (e.g. fully disconnected): fall back to
		// singleton clusters capped at k.
		out := make(map[string]int, n)
		for i, id := range ids {
			out[id] = i % k
		}
		return out
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Eigenvalues come back unsorted from gonum; sort ascending and take
	// the k smallest, skipping the trivial near-zero eigenvalue when more
	// than k are available.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	start := 0
	if n > k {
		start = 1
	}
	cols := order[start : start+k]
	if len(cols) < k {
		cols = order[:k]
	}

	embedding := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		for c, col := range cols {
			row[c] = vectors.At(i, col)
		}
		embedding[i] = row
	}

	assignment := kmeans(embedding, k, spectralSeed)
	out := make(map[string]int, n)
	for i, id := range ids {
		out[id] = assignment[i]
	}
	return out
}

func toSet(s []string) map[string]struct{} {
	m := make(map[string]struct{}, len(s))
	for _, v := range s {
		m[v] = struct{}{}
	}
	return m
}

// kmeans runs a fixed-seed, fixed-iteration Lloyd's algorithm over rows.
func kmeans(rows [][]float64, k, seed int) []int {
	n := len(rows)
	dim := len(rows[0])
	rng := rand.New(rand.NewSource(int64(seed)))

	centroids := make([][]float64, k)
	perm := rng.Perm(n)
	for c := 0; c < k; c++ {
		centroids[c] = append([]float64(nil), rows[perm[c%n]]...)
	}

	assignment := make([]int, n)
	const maxIter = 50
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, row := range rows {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				d := squaredDist(row, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignment[i] != best {
				changed = true
			}
			assignment[i] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, row := range rows {
			c := assignment[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += row[d]
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
		if !changed {
			break
		}
	}
	return assignment
}

func squaredDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
