// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

func testArch() shgat.ArchConfig {
	return shgat.ArchConfig{EmbeddingDim: 4, NumHeads: 2, HiddenDim: 8, NumLayers: 1, MLPHiddenDim: 4}
}

func newTestScorer(t *testing.T) *shgat.Scorer {
	t.Helper()
	st := graphstore.New(nil, nil)
	return shgat.New(shgat.Config{Arch: testArch(), Graph: st, TraceVolume: func() int { return 0 }})
}

func fillBuffer(b *Buffer, n int, outcome tracestore.Outcome) {
	for i := 0; i < n; i++ {
		b.Add(Entry{
			IntentEmbedding: []float32{1, 0, 0, 0},
			CandidateID:     "srv:read",
			CandidateKind:   shgat.CandidateTool,
			Outcome:         outcome,
			Features:        tracestore.DefaultFeatures(),
			HeadScores:      []float64{0.4, 0.6},
		})
	}
}

func TestTrainer_TrainUpdatesParametersVersion(t *testing.T) {
	scorer := newTestScorer(t)
	buf := NewBuffer(100)
	fillBuffer(buf, 40, tracestore.OutcomeSuccess)

	before := scorer.CurrentParameters().Version

	cfg := DefaultConfig()
	cfg.BatchSize = 8
	cfg.Epochs = 1
	tr := New(buf, scorer, cfg, nil)

	processed, err := tr.Train(context.Background())
	require.NoError(t, err)
	require.Greater(t, processed, 0)
	require.Greater(t, scorer.CurrentParameters().Version, before)
}

func TestTrainer_RespectsSoftBudget(t *testing.T) {
	scorer := newTestScorer(t)
	buf := NewBuffer(1000)
	fillBuffer(buf, 500, tracestore.OutcomeSuccess)

	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.Epochs = 1000
	cfg.SoftBudget = 1 * time.Millisecond
	tr := New(buf, scorer, cfg, nil)

	start := time.Now()
	_, err := tr.Train(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestTrainer_ConcurrentTrainDoesNotBlock(t *testing.T) {
	scorer := newTestScorer(t)
	buf := NewBuffer(100)
	fillBuffer(buf, 40, tracestore.OutcomeSuccess)
	tr := New(buf, scorer, DefaultConfig(), nil)

	tr.trainMu.Lock()
	processed, err := tr.Train(context.Background())
	tr.trainMu.Unlock()

	require.NoError(t, err)
	require.Equal(t, 0, processed)
}

func TestTrainer_UpdatesBufferPriorities(t *testing.T) {
	scorer := newTestScorer(t)
	buf := NewBuffer(100)
	fillBuffer(buf, 16, tracestore.OutcomeSuccess)

	cfg := DefaultConfig()
	cfg.BatchSize = 16
	// Sampling is with replacement, so a single batch of 16 need not touch
	// all 16 entries; enough epochs make every entry get sampled.
	cfg.Epochs = 50
	tr := New(buf, scorer, cfg, nil)

	_, err := tr.Train(context.Background())
	require.NoError(t, err)

	for _, e := range buf.entries {
		require.NotEqual(t, 1.0, e.priority) // seeded default overwritten by a real TD-error
	}
}
