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

import (
	"math"
	"math/rand"
)

// coldStartSeed fixes the network's initial weights below
// minTracesForTraining so two cold scorers with the same architecture
// always agree: cold-start initialization is deterministic, not random.
const coldStartSeed = 20240101

// HeadParams holds one attention head's projection weights. Wq and Wk are
// row-major [perHeadDim][embeddingDim]; AttnVec has length 2*perHeadDim,
// split as [a_q | a_k] against the concatenated query/key projections
// .
type HeadParams struct {
	Wq      [][]float64
	Wk      [][]float64
	AttnVec []float64
}

// LayerParams is one message-passing layer's full head set plus the
// post-concatenation projections back to HiddenDim for each direction.
type LayerParams struct {
	Heads []HeadParams
	ProjV [][]float64 // HiddenDim x HiddenDim, applied after E->V concat
	ProjE [][]float64 // HiddenDim x HiddenDim, applied after V->E concat
}

// FusionParams is the small MLP that turns K head scores plus 17
// TraceStats scalars into a single fused logit.
type FusionParams struct {
	W1 [][]float64 // MLPHiddenDim x (K+17)
	B1 []float64
	W2 []float64 // length MLPHiddenDim
	B2 float64
}

// Parameters is one immutable, versioned parameter blob. Scoring and
// training never mutate a Parameters in place; training produces a new
// Parameters and the scorer swaps an atomic pointer to it, so a write is
// always all-or-nothing from a reader's perspective.
type Parameters struct {
	Arch    ArchConfig
	Layers  []LayerParams
	Fusion  FusionParams
	Version uint64
}

// NewColdParameters deterministically initializes a fresh parameter blob
// for the given architecture, used both at true cold start and whenever K
// changes.
func NewColdParameters(arch ArchConfig) *Parameters {
	return newParameters(arch, coldStartSeed)
}

// newParameters builds a parameter blob with small random Gaussian-ish
// weights from a fixed seed, using the classic Xavier-style scale
// 1/sqrt(fanIn) to keep initial activations well-conditioned.
func newParameters(arch ArchConfig, seed int64) *Parameters {
	rng := rand.New(rand.NewSource(seed))
	perHead := arch.PerHeadDim()

	layers := make([]LayerParams, arch.NumLayers)
	for l := range layers {
		// Layer 0 reads raw embeddingDim-sized vectors; every subsequent
		// layer reads the previous layer's HiddenDim-sized output.
		inputDim := arch.HiddenDim
		if l == 0 {
			inputDim = arch.EmbeddingDim
		}
		heads := make([]HeadParams, arch.NumHeads)
		for h := range heads {
			heads[h] = HeadParams{
				Wq:      randMatrix(rng, perHead, inputDim),
				Wk:      randMatrix(rng, perHead, inputDim),
				AttnVec: randVector(rng, 2*perHead),
			}
		}
		layers[l] = LayerParams{
			Heads: heads,
			ProjV: randMatrix(rng, arch.HiddenDim, arch.HiddenDim),
			ProjE: randMatrix(rng, arch.HiddenDim, arch.HiddenDim),
		}
	}

	fusionInputDim := arch.NumHeads + 17
	fusion := FusionParams{
		W1: randMatrix(rng, arch.MLPHiddenDim, fusionInputDim),
		B1: make([]float64, arch.MLPHiddenDim),
		W2: randVector(rng, arch.MLPHiddenDim),
		B2: 0,
	}

	return &Parameters{Arch: arch, Layers: layers, Fusion: fusion, Version: 1}
}

func randMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	scale := xavierScale(cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = randRow(rng, cols, scale)
	}
	return m
}

func randRow(rng *rand.Rand, n int, scale float64) []float64 {
	row := make([]float64, n)
	for j := range row {
		row[j] = (rng.Float64()*2 - 1) * scale
	}
	return row
}

func randVector(rng *rand.Rand, n int) []float64 {
	scale := xavierScale(n)
	return randRow(rng, n, scale)
}

func xavierScale(fanIn int) float64 {
	if fanIn <= 0 {
		return 0.1
	}
	return 1.0 / math.Sqrt(float64(fanIn))
}
