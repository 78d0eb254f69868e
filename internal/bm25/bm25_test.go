// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package bm25

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize_SplitsCamelCaseAndDropsNoise(t *testing.T) {
	terms := Tokenize("parseConfig for the build")
	require.True(t, terms["parse"])
	require.True(t, terms["config"])
	require.True(t, terms["build"])
	require.False(t, terms["for"])
	require.False(t, terms["the"])
}

func TestIndex_EmptyCorpusScoresEmpty(t *testing.T) {
	idx := Build(nil)
	require.True(t, idx.IsEmpty())
	require.Empty(t, idx.Score("read a file"))
}

func TestIndex_ScoreRanksMoreRelevantDocHigher(t *testing.T) {
	idx := Build([]Document{
		{ID: "fs.read", Text: "read file contents from disk"},
		{ID: "net.fetch", Text: "fetch a url over http"},
	})
	scores := idx.Score("read file")
	require.Greater(t, scores["fs.read"], scores["net.fetch"])
}

func TestIndex_ScoreNormalizedToUnitMax(t *testing.T) {
	idx := Build([]Document{
		{ID: "a", Text: "read write delete file"},
		{ID: "b", Text: "read file"},
	})
	scores := idx.Score("read file")
	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	require.InDelta(t, 1.0, maxScore, 1e-9)
}

func TestIndex_NoMatchingTermsReturnsEmpty(t *testing.T) {
	idx := Build([]Document{{ID: "a", Text: "read file contents"}})
	require.Empty(t, idx.Score("launch rocket"))
}
