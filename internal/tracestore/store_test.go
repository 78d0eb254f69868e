// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mkRecord(workflowID string, step int, candidate string, outcome Outcome, at time.Time) Record {
	return Record{
		WorkflowID:      workflowID,
		StepIndex:       step,
		Timestamp:       at,
		IntentText:      "read a file",
		IntentEmbedding: []float32{1, 0, 0, 0},
		ContextToolIDs:  []string{"srv:list"},
		CandidateID:     candidate,
		Outcome:         outcome,
		Duration:        50 * time.Millisecond,
	}
}

func TestStore_AppendIdempotentPerWorkflowStep(t *testing.T) {
	st := New(30*24*time.Hour, nil, nil)
	now := time.Now()
	r := mkRecord("wf-1", 0, "srv:read", OutcomeSuccess, now)

	require.NoError(t, st.Append(context.Background(), r))
	require.NoError(t, st.Append(context.Background(), r))
	require.Equal(t, 1, st.Len())
}

func TestStore_RecentReturnsTimeOrdered(t *testing.T) {
	st := New(30*24*time.Hour, nil, nil)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		r := mkRecord("wf-1", i, "srv:read", OutcomeSuccess, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, st.Append(context.Background(), r))
	}
	recent := st.Recent(3)
	require.Len(t, recent, 3)
	for i := 1; i < len(recent); i++ {
		require.True(t, recent[i].Timestamp.After(recent[i-1].Timestamp) || recent[i].Timestamp.Equal(recent[i-1].Timestamp))
	}
}

func TestStore_GCDropsOldRecords(t *testing.T) {
	st := New(time.Hour, nil, nil)
	old := mkRecord("wf-old", 0, "srv:read", OutcomeSuccess, time.Now().Add(-2*time.Hour))
	fresh := mkRecord("wf-new", 0, "srv:read", OutcomeSuccess, time.Now())
	require.NoError(t, st.Append(context.Background(), old))
	require.NoError(t, st.Append(context.Background(), fresh))

	removed := st.GC()
	require.Equal(t, 1, removed)
	require.Equal(t, 1, st.Len())
}

func TestFeatureBuilder_ColdStartReturnsDefaults(t *testing.T) {
	st := New(30*24*time.Hour, nil, nil)
	fb := NewFeatureBuilder(st)
	f := fb.FeaturesFor(context.Background(), []float32{1, 0, 0, 0}, "srv:read", nil)
	require.Equal(t, DefaultFeatures(), f)
}

func TestFeatureBuilder_HistoricalSuccessRate(t *testing.T) {
	st := New(30*24*time.Hour, nil, nil)
	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.Append(context.Background(), mkRecord("wf-1", i, "srv:read", OutcomeSuccess, now.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, st.Append(context.Background(), mkRecord("wf-2", 0, "srv:read", OutcomeFailure, now.Add(4*time.Second))))

	fb := NewFeatureBuilder(st)
	f := fb.FeaturesFor(context.Background(), []float32{1, 0, 0, 0}, "srv:read", nil)
	require.InDelta(t, 0.75, f.HistoricalSuccessRate, 1e-9)
}

func TestFeatureBuilder_MemoizesWithinQuery(t *testing.T) {
	st := New(30*24*time.Hour, nil, nil)
	require.NoError(t, st.Append(context.Background(), mkRecord("wf-1", 0, "srv:read", OutcomeSuccess, time.Now())))

	fb := NewFeatureBuilder(st)
	a := fb.FeaturesFor(context.Background(), []float32{1, 0, 0, 0}, "srv:read", []string{"srv:list"})
	// Append a new failing record; the memoized result should not change
	// until ResetQuery is called, matching the "within a query" LRU scope.
	require.NoError(t, st.Append(context.Background(), mkRecord("wf-2", 0, "srv:read", OutcomeFailure, time.Now())))
	b := fb.FeaturesFor(context.Background(), []float32{1, 0, 0, 0}, "srv:read", []string{"srv:list"})
	require.Equal(t, a, b)

	fb.ResetQuery()
	c := fb.FeaturesFor(context.Background(), []float32{1, 0, 0, 0}, "srv:read", []string{"srv:list"})
	require.NotEqual(t, a, c)
}

func TestFeatureBuilder_ErrorTypeAffinityDistributes(t *testing.T) {
	st := New(30*24*time.Hour, nil, nil)
	now := time.Now()
	r1 := mkRecord("wf-1", 0, "srv:read", OutcomeFailure, now)
	r1.ErrorKind = ErrorKindTimeout
	r2 := mkRecord("wf-2", 0, "srv:read", OutcomeFailure, now.Add(time.Second))
	r2.ErrorKind = ErrorKindNetwork
	require.NoError(t, st.Append(context.Background(), r1))
	require.NoError(t, st.Append(context.Background(), r2))

	fb := NewFeatureBuilder(st)
	f := fb.FeaturesFor(context.Background(), []float32{1, 0, 0, 0}, "srv:read", nil)
	require.InDelta(t, 0.5, f.ErrorTypeAffinity[0], 1e-9)
	require.InDelta(t, 0.5, f.ErrorTypeAffinity[4], 1e-9)
}
