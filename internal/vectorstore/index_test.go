// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"math"
	"testing"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/stretchr/testify/require"
)

func unitVec(t *testing.T, dim int, seed int) []float32 {
	t.Helper()
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32((i+seed)%7+1) / 7
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func TestIndex_UpsertGet(t *testing.T) {
	ix := New(8, nil)
	vec := unitVec(t, 8, 1)
	require.NoError(t, ix.Upsert("tool:a", vec))

	got, ok := ix.Get("tool:a")
	require.True(t, ok)
	require.Len(t, got, 8)
}

func TestIndex_DimensionMismatchRejected(t *testing.T) {
	ix := New(8, nil)
	err := ix.Upsert("tool:a", make([]float32, 4))
	require.Error(t, err)
	require.True(t, gatewayerr.Is(err, gatewayerr.KindDimensionMismatch))
}

func TestIndex_KnnEmptyBeforeInsert(t *testing.T) {
	ix := New(8, nil)
	matches, err := ix.Knn(context.Background(), unitVec(t, 8, 1), 5, nil)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestIndex_KnnColdStartExactScan(t *testing.T) {
	ix := New(8, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, ix.Upsert(string(rune('a'+i)), unitVec(t, 8, i)))
	}
	matches, err := ix.Knn(context.Background(), unitVec(t, 8, 0), 3, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	// Exact match should rank first.
	require.Equal(t, "a", matches[0].ID)
	require.InDelta(t, 1.0, matches[0].Cosine, 1e-6)
}

func TestIndex_KnnAboveColdStartThreshold(t *testing.T) {
	ix := New(8, nil)
	for i := 0; i < 64; i++ {
		require.NoError(t, ix.Upsert(string(rune('A'+i%26))+string(rune('0'+i/26)), unitVec(t, 8, i)))
	}
	matches, err := ix.Knn(context.Background(), unitVec(t, 8, 0), 5, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(matches), 5)
	require.NotEmpty(t, matches)
}

func TestIndex_KnnFilter(t *testing.T) {
	ix := New(8, nil)
	require.NoError(t, ix.Upsert("tool:a", unitVec(t, 8, 0)))
	require.NoError(t, ix.Upsert("cap:b", unitVec(t, 8, 0)))

	matches, err := ix.Knn(context.Background(), unitVec(t, 8, 0), 5, func(id string) bool {
		return id == "cap:b"
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "cap:b", matches[0].ID)
}

func TestIndex_Remove(t *testing.T) {
	ix := New(8, nil)
	require.NoError(t, ix.Upsert("tool:a", unitVec(t, 8, 0)))
	ix.Remove("tool:a")
	_, ok := ix.Get("tool:a")
	require.False(t, ok)
	require.Equal(t, 0, ix.Len())
}

func TestIndex_TieBrokenByLexicographicID(t *testing.T) {
	ix := New(4, nil)
	v := []float32{1, 0, 0, 0}
	require.NoError(t, ix.Upsert("b", v))
	require.NoError(t, ix.Upsert("a", v))
	matches, err := ix.Knn(context.Background(), v, 2, nil)
	require.NoError(t, err)
	require.Equal(t, "a", matches[0].ID)
	require.Equal(t, "b", matches[1].ID)
}
