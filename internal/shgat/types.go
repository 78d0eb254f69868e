// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shgat is Component E: the superhypergraph attention network that
// fuses graph-structural signal and trace statistics into a single
// candidate score.
package shgat

import "fmt"

// State is the scorer's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateCold          State = "cold"
	StateTrained       State = "trained"
	StateTraining      State = "training"
	StateStale         State = "stale"
)

// CandidateKind distinguishes which cached embedding space a score request
// resolves against.
type CandidateKind string

const (
	CandidateTool       CandidateKind = "tool"
	CandidateCapability CandidateKind = "capability"
)

// AdaptiveK selects the attention head count from observed trace volume
// : <1k->4, <10k->8, <100k->12, else 16.
func AdaptiveK(traceVolume int) int {
	switch {
	case traceVolume < 1000:
		return 4
	case traceVolume < 10000:
		return 8
	case traceVolume < 100000:
		return 12
	default:
		return 16
	}
}

// HiddenDimFor returns the default hidden dimension for a given head count
// .
func HiddenDimFor(k int) int {
	return 16 * k
}

// ArchConfig names the dimensions that define a parameter blob's shape.
// Changing any field invalidates a loaded blob.
type ArchConfig struct {
	EmbeddingDim int
	NumHeads     int
	HiddenDim    int
	NumLayers    int
	MLPHiddenDim int
}

// Hash returns a stable, human-readable architecture key used to namespace
// persisted parameter blobs.
func (a ArchConfig) Hash() string {
	return fmt.Sprintf("d%d-k%d-h%d-l%d-m%d", a.EmbeddingDim, a.NumHeads, a.HiddenDim, a.NumLayers, a.MLPHiddenDim)
}

// PerHeadDim is hiddenDim / numHeads, the dimension of a single attention
// head's projected space.
func (a ArchConfig) PerHeadDim() int {
	if a.NumHeads == 0 {
		return 0
	}
	return a.HiddenDim / a.NumHeads
}
