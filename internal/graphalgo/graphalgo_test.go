// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graphalgo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

func unitVec4(x float32) []float32 { return []float32{x, 0, 0, 0} }

func buildChain(t *testing.T) *graphstore.Store {
	t.Helper()
	st := graphstore.New(nil, nil)
	ids := []string{"srv:a", "srv:b", "srv:c", "srv:d"}
	for _, id := range ids {
		_, err := st.AddOrGetTool(id, "d", unitVec4(1))
		require.NoError(t, err)
	}
	for i := 0; i < len(ids)-1; i++ {
		for n := 0; n < 5; n++ {
			require.NoError(t, st.ObserveEdge(ids[i], ids[i+1], graphstore.EdgeSourceUser, graphstore.EdgeTypeSequence))
		}
	}
	return st
}

func TestPageRank_SumsToApproxOne(t *testing.T) {
	st := buildChain(t)
	ranks := PageRank(st.Current(), DefaultPageRankOptions())
	require.Len(t, ranks, 4)
	var sum float64
	for _, r := range ranks {
		sum += r
	}
	require.InDelta(t, 1.0, sum, 1e-3)
}

func TestAdamicAdar_ZeroWithoutCommonNeighbor(t *testing.T) {
	st := buildChain(t)
	sim := AdamicAdar(st.Current(), "srv:a", "srv:d")
	require.Equal(t, 0.0, sim)
}

func TestAdamicAdar_PositiveWithCommonNeighbor(t *testing.T) {
	st := buildChain(t)
	sim := AdamicAdar(st.Current(), "srv:a", "srv:c")
	require.Greater(t, sim, 0.0)
}

func TestDijkstra_FindsChainPath(t *testing.T) {
	st := buildChain(t)
	res := Dijkstra(st.Current(), "srv:a", "srv:d")
	require.True(t, res.Found)
	require.Equal(t, []string{"srv:a", "srv:b", "srv:c", "srv:d"}, res.Path)
}

func TestDijkstra_UnreachableReportsNotFound(t *testing.T) {
	st := graphstore.New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)
	_, err = st.AddOrGetTool("srv:b", "d", unitVec4(1))
	require.NoError(t, err)
	res := Dijkstra(st.Current(), "srv:a", "srv:b")
	require.False(t, res.Found)
}

func TestLouvain_Deterministic(t *testing.T) {
	st := buildChain(t)
	a := Louvain(st.Current())
	b := Louvain(st.Current())
	require.Equal(t, a, b)
}

func TestHeatDiffusion_SourceStaysHighest(t *testing.T) {
	st := buildChain(t)
	heat := HeatDiffusion(st.Current(), []string{"srv:a"}, DefaultHeatDiffusionOptions())
	require.GreaterOrEqual(t, heat["srv:a"], heat["srv:d"])
}

func TestHypergraphPageRank_NonNegative(t *testing.T) {
	st := buildChain(t)
	_, err := st.AddOrGetCapability(graphstore.AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "act",
		Embedding: unitVec4(1), Members: []string{"srv:a", "srv:b"},
		CanonicalContent: []byte("x"),
	})
	require.NoError(t, err)
	ranks := HypergraphPageRank(st.Current(), DefaultHypergraphPageRankOptions())
	for _, r := range ranks {
		require.GreaterOrEqual(t, r, 0.0)
	}
}
