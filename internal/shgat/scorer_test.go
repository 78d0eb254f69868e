// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package shgat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

func testArch() ArchConfig {
	return ArchConfig{EmbeddingDim: 8, NumHeads: 4, HiddenDim: 16, NumLayers: 2, MLPHiddenDim: 8}
}

func TestAdaptiveK(t *testing.T) {
	require.Equal(t, 4, AdaptiveK(500))
	require.Equal(t, 8, AdaptiveK(5000))
	require.Equal(t, 12, AdaptiveK(50000))
	require.Equal(t, 16, AdaptiveK(500000))
}

func TestNewColdParameters_Deterministic(t *testing.T) {
	a := NewColdParameters(testArch())
	b := NewColdParameters(testArch())
	require.Equal(t, a.Layers[0].Heads[0].Wq, b.Layers[0].Heads[0].Wq)
}

func TestScorer_ColdStart_RejectsDimensionMismatch(t *testing.T) {
	st := graphstore.New(nil, nil)
	s := New(Config{Arch: testArch(), Graph: st, TraceVolume: func() int { return 0 }})

	_, err := s.Score(context.Background(), []float32{1, 2, 3}, "srv:read", CandidateTool, nil)
	require.Error(t, err)
}

func TestScorer_ColdStart_UnknownCandidateRejected(t *testing.T) {
	st := graphstore.New(nil, nil)
	s := New(Config{Arch: testArch(), Graph: st, TraceVolume: func() int { return 0 }})

	intent := make([]float32, 8)
	intent[0] = 1
	_, err := s.Score(context.Background(), intent, "srv:missing", CandidateTool, nil)
	require.Error(t, err)
}

func TestScorer_ColdStart_ScoresKnownTool(t *testing.T) {
	st := graphstore.New(nil, nil)
	emb := make([]float32, 8)
	emb[0] = 1
	_, err := st.AddOrGetTool("srv:read", "reads a file", emb)
	require.NoError(t, err)

	s := New(Config{Arch: testArch(), Graph: st, TraceVolume: func() int { return 0 }})
	intent := make([]float32, 8)
	intent[0] = 1

	res, err := s.Score(context.Background(), intent, "srv:read", CandidateTool, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Score, 0.0)
	require.LessOrEqual(t, res.Score, 1.0)
	require.Equal(t, StateCold, s.State())
}

func TestScorer_MarkStale_OnlyFromTrained(t *testing.T) {
	st := graphstore.New(nil, nil)
	s := New(Config{Arch: testArch(), Graph: st, TraceVolume: func() int { return 0 }})
	require.Equal(t, StateCold, s.State())
	s.MarkStale()
	require.Equal(t, StateCold, s.State())

	s.SetState(StateTrained)
	s.MarkStale()
	require.Equal(t, StateStale, s.State())
}

func TestScorer_RollbackToCheckpoint_RestoresPriorParameters(t *testing.T) {
	st := graphstore.New(nil, nil)
	s := New(Config{Arch: testArch(), Graph: st, TraceVolume: func() int { return 0 }})
	original := s.CurrentParameters()

	next := NewColdParameters(testArch())
	next.Version = 2
	s.SwapParameters(next)
	require.Equal(t, uint64(2), s.CurrentParameters().Version)

	s.RollbackToCheckpoint()
	require.Equal(t, original, s.CurrentParameters())
}
