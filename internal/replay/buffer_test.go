// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package replay

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

func mkEntry(id string) Entry {
	return Entry{
		IntentEmbedding: []float32{1, 0, 0},
		CandidateID:     id,
		CandidateKind:   shgat.CandidateTool,
		Outcome:         tracestore.OutcomeSuccess,
		Features:        tracestore.DefaultFeatures(),
		HeadScores:      []float64{0.5, 0.5},
	}
}

func TestBuffer_AddSeedsMaxPriority(t *testing.T) {
	b := NewBuffer(10)
	b.Add(mkEntry("a"))
	b.UpdatePriority(0, 1.5) // raises maxSeen to 1.5
	b.Add(mkEntry("b"))

	require.Equal(t, 1.5, b.entries[1].priority)
}

func TestBuffer_EvictsLowestPriorityWhenFull(t *testing.T) {
	b := NewBuffer(2)
	b.Add(mkEntry("a"))
	b.UpdatePriority(0, 0.1)
	b.Add(mkEntry("b"))
	b.UpdatePriority(1, 0.9)

	b.Add(mkEntry("c")) // should evict "a" (lowest priority)

	ids := []string{b.entries[0].CandidateID, b.entries[1].CandidateID}
	require.NotContains(t, ids, "a")
	require.Contains(t, ids, "b")
	require.Contains(t, ids, "c")
}

func TestBuffer_SampleReturnsWeightsNormalizedToOne(t *testing.T) {
	b := NewBuffer(100)
	for i := 0; i < 20; i++ {
		b.Add(mkEntry("x"))
	}
	rng := rand.New(rand.NewSource(1))
	_, entries, weights := b.Sample(8, 0.6, 0.4, rng)

	require.Len(t, entries, 8)
	require.Len(t, weights, 8)
	maxWeight := 0.0
	for _, w := range weights {
		require.GreaterOrEqual(t, w, 0.0)
		require.LessOrEqual(t, w, 1.0+1e-9)
		if w > maxWeight {
			maxWeight = w
		}
	}
	require.InDelta(t, 1.0, maxWeight, 1e-9)
}

func TestBuffer_SampleCapsAtBufferLength(t *testing.T) {
	b := NewBuffer(100)
	b.Add(mkEntry("only"))
	rng := rand.New(rand.NewSource(1))

	indices, entries, weights := b.Sample(10, 0.6, 0.4, rng)
	require.Len(t, indices, 1)
	require.Len(t, entries, 1)
	require.Len(t, weights, 1)
}

func TestBuffer_UpdatePriorityFloorsAtNonzero(t *testing.T) {
	b := NewBuffer(10)
	b.Add(mkEntry("a"))
	b.UpdatePriority(0, 0)
	require.Greater(t, b.entries[0].priority, 0.0)
}

func TestBuffer_EmptySampleReturnsNil(t *testing.T) {
	b := NewBuffer(10)
	rng := rand.New(rand.NewSource(1))
	indices, entries, weights := b.Sample(5, 0.6, 0.4, rng)
	require.Nil(t, indices)
	require.Nil(t, entries)
	require.Nil(t, weights)
}
