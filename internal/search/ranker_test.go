// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/vectorstore"
)

const testDim = 4

var errEncodeFailed = errors.New("embedder unavailable")

func unit(i int) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	return v
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Encode(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

func newTestRanker(t *testing.T, embedder Embedder) (*Ranker, *graphstore.Store, *vectorstore.Cache) {
	t.Helper()
	st := graphstore.New(nil, nil)
	vs := vectorstore.NewCache(testDim, nil, nil, nil)

	_, err := st.AddOrGetTool("srv:read", "reads a file from disk", unit(0))
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(context.Background(), "srv:read", "tool", unit(0)))

	_, err = st.AddOrGetTool("srv:fetch", "fetches a url over http", unit(1))
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(context.Background(), "srv:fetch", "tool", unit(1)))

	r := New(Config{
		Graph:    st,
		Vectors:  vs,
		Embedder: embedder,
	})
	return r, st, vs
}

func TestRanker_RankBySemanticSimilarity(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{vec: unit(0)})
	resp, err := r.Rank(context.Background(), Options{Intent: "read a file", MinScore: 0})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "srv:read", resp.Results[0].ID)
}

func TestRanker_PinnedCandidateAlwaysIncluded(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{vec: unit(1)})
	resp, err := r.Rank(context.Background(), Options{
		Intent:   "fetch a url",
		MinScore: 0.99, // would exclude everything on score alone
		Pinned:   []string{"srv:read"},
	})
	require.NoError(t, err)
	found := false
	for _, res := range resp.Results {
		if res.ID == "srv:read" {
			found = true
			require.True(t, res.Pinned)
		}
	}
	require.True(t, found)
}

func TestRanker_UnknownPinnedIDSkippedNotErrored(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{vec: unit(0)})
	resp, err := r.Rank(context.Background(), Options{
		Intent: "read a file",
		Pinned: []string{"srv:nonexistent"},
	})
	require.NoError(t, err)
	for _, res := range resp.Results {
		require.NotEqual(t, "srv:nonexistent", res.ID)
	}
}

func TestRanker_EncoderFailureFallsBackToLexical(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{err: errEncodeFailed})
	resp, err := r.Rank(context.Background(), Options{Intent: "read a file", MinScore: 0})
	require.NoError(t, err)
	require.True(t, resp.LexicalFallback)
	require.NotEmpty(t, resp.Results)
}

func TestRanker_LexicalFallbackWhenNoEmbedder(t *testing.T) {
	r, _, _ := newTestRanker(t, nil)
	resp, err := r.Rank(context.Background(), Options{Intent: "read a file", MinScore: 0})
	require.NoError(t, err)
	require.True(t, resp.LexicalFallback)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "srv:read", resp.Results[0].ID)
}

func TestRanker_MinConfidenceTriggersEscalation(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{vec: unit(0)})
	resp, err := r.Rank(context.Background(), Options{
		Intent:        "read a file",
		MinScore:      0,
		MinConfidence: 1.5, // above the 0.95 score cap, guaranteed to trigger
	})
	require.NoError(t, err)
	require.True(t, resp.EscalationRecommended)
}

func TestRanker_FilterRestrictsCandidateKind(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{vec: unit(0)})
	resp, err := r.Rank(context.Background(), Options{
		Intent: "read a file", MinScore: 0, Filter: FilterCapabilities,
	})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestRanker_CacheServesRepeatedIdenticalRequest(t *testing.T) {
	r, _, _ := newTestRanker(t, fakeEmbedder{vec: unit(0)})
	opts := Options{Intent: "read a file", MinScore: 0}
	first, err := r.Rank(context.Background(), opts)
	require.NoError(t, err)
	second, err := r.Rank(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
