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

import "github.com/AleutianAI/capgateway/internal/tracestore"

// FusionForwardResult exposes the fusion MLP's intermediate activations so
// internal/replay can compute an analytic gradient without reaching into
// this package's unexported fields.
//
// Only the fusion layer is trained (see DESIGN.md's Component F entry):
// the message-passing layer weights stay at their deterministic cold-start
// initialization. Backpropagating through the full attention stack is out
// of scope for this engine's training budget; the fusion MLP is where
// TraceStats and head scores combine, and is the part the training
// protocol's loss most directly supervises.
type FusionForwardResult struct {
	Input      []float64 // concatenation of head scores and the 17 TraceStats
	Hidden     []float64 // pre-activation-output of the hidden layer (post-LeakyReLU)
	HiddenPre  []float64 // pre-activation sums, needed for the LeakyReLU derivative
	Prediction float64
}

// FusionForward runs the fusion MLP forward pass using the scorer's live
// fusion parameters and returns the activations the trainer needs.
func (s *Scorer) FusionForward(headScores []float64, feats tracestore.Features) FusionForwardResult {
	params := s.params.Load().Fusion
	traceSlice := feats.Slice()
	input := make([]float64, 0, len(headScores)+len(traceSlice))
	input = append(input, headScores...)
	input = append(input, traceSlice[:]...)

	hiddenPre := make([]float64, len(params.B1))
	hidden := make([]float64, len(params.B1))
	for i := range hidden {
		var sum float64
		row := params.W1[i]
		n := len(row)
		if len(input) < n {
			n = len(input)
		}
		for j := 0; j < n; j++ {
			sum += row[j] * input[j]
		}
		sum += params.B1[i]
		hiddenPre[i] = sum
		hidden[i] = leakyReLU(sum)
	}
	var out float64
	for i, w := range params.W2 {
		if i < len(hidden) {
			out += w * hidden[i]
		}
	}
	out += params.B2
	return FusionForwardResult{Input: input, Hidden: hidden, HiddenPre: hiddenPre, Prediction: sigmoid(out)}
}

// Arch returns the scorer's architecture, for the trainer to size
// gradient buffers without reaching into private fields.
func (s *Scorer) Arch() ArchConfig {
	s.archMu.RLock()
	defer s.archMu.RUnlock()
	return s.arch
}

// WithFusion returns a copy of p with a new fusion parameter set, bumping
// the version; the message-passing layers are shared by reference since
// this package's training only updates fusion weights.
func (p *Parameters) WithFusion(next FusionParams) *Parameters {
	return &Parameters{Arch: p.Arch, Layers: p.Layers, Fusion: next, Version: p.Version + 1}
}

// LeakyReLUDerivative is the subgradient of LeakyReLU at the pre-activation
// value x, used by the trainer's backward pass.
func LeakyReLUDerivative(x float64) float64 {
	if x >= 0 {
		return 1
	}
	return leakyReLUSlope
}

// Sigmoid exposes the package's sigmoid for the trainer's loss/gradient
// computation.
func Sigmoid(x float64) float64 { return sigmoid(x) }
