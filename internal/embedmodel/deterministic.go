// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedmodel

import (
	"context"
	"hash/fnv"
)

// Deterministic is a fake Model that derives a vector from the hash of its
// input text, for use in tests and as a cold-start placeholder when no
// embedding server is reachable. It produces no semantic signal — two
// unrelated strings are as "close" as two paraphrases — but is fully
// reproducible across runs, which property tests depend
// on.
type Deterministic struct {
	dim int
}

// NewDeterministic builds a Deterministic model producing vectors of dim.
func NewDeterministic(dim int) *Deterministic {
	return &Deterministic{dim: dim}
}

// Encode derives a pseudo-random but fully deterministic vector from text.
func (d *Deterministic) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, d.dim)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>40)) / float32(1<<23)
	}
	return vec, nil
}

// Dim returns the configured dimensionality.
func (d *Deterministic) Dim() int { return d.dim }

// Dispose is a no-op.
func (d *Deterministic) Dispose() error { return nil }
