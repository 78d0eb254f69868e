// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
)

func unitVec4(x float32) []float32 {
	return []float32{x, 0, 0, 0}
}

func TestStore_AddOrGetTool(t *testing.T) {
	st := New(nil, nil)
	tool, err := st.AddOrGetTool("srv:a", "does a thing", unitVec4(1))
	require.NoError(t, err)
	require.Equal(t, "srv:a", tool.ID)

	again, err := st.AddOrGetTool("srv:a", "ignored", unitVec4(1))
	require.NoError(t, err)
	require.Same(t, tool, again)
}

func TestStore_AddOrGetTool_RejectsNonUnitEmbedding(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", []float32{1, 1, 0, 0})
	require.Error(t, err)
	require.True(t, gatewayerr.Is(err, gatewayerr.KindDimensionMismatch))
}

func TestStore_TouchToolUse_SuccessNeverExceedsUsage(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)

	require.NoError(t, st.TouchToolUse("srv:a", true))
	require.NoError(t, st.TouchToolUse("srv:a", false))

	tool, ok := st.Current().Tool("srv:a")
	require.True(t, ok)
	require.Equal(t, uint64(2), tool.UsageCount)
	require.Equal(t, uint64(1), tool.SuccessCount)
	require.LessOrEqual(t, tool.SuccessCount, tool.UsageCount)
}

func TestStore_AddOrGetCapability_RejectsUnknownMember(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "org", Project: "proj", Namespace: "ns", Action: "act",
		Embedding: unitVec4(1), Members: []string{"srv:ghost"},
		CanonicalContent: []byte("code"),
	})
	require.Error(t, err)
	require.True(t, gatewayerr.Is(err, gatewayerr.KindIntegrityViolation))
}

func TestStore_AddOrGetCapability_DedupsByIntegrityHash(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)

	in := AddOrGetCapabilityInput{
		Org: "org", Project: "proj", Namespace: "ns", Action: "act",
		Embedding: unitVec4(1), Members: []string{"srv:a"},
		CanonicalContent: []byte("same code"),
	}
	c1, err := st.AddOrGetCapability(in)
	require.NoError(t, err)
	c2, err := st.AddOrGetCapability(in)
	require.NoError(t, err)
	require.Equal(t, c1.FQDN, c2.FQDN)
}

func TestStore_HierarchyLevel(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)

	leaf, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "leaf",
		Embedding: unitVec4(1), Members: []string{"srv:a"},
		CanonicalContent: []byte("leaf"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, leaf.HierarchyLevel)

	parent, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "parent",
		Embedding: unitVec4(1), Members: []string{leaf.FQDN},
		CanonicalContent: []byte("parent"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, parent.HierarchyLevel)
}

func TestStore_UpdateCapabilityMembers_RejectsContainsCycle(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)

	x, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "x",
		Embedding: unitVec4(1), Members: []string{"srv:a"},
		CanonicalContent: []byte("x"),
	})
	require.NoError(t, err)

	z, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "z",
		Embedding: unitVec4(1), Members: []string{x.FQDN},
		CanonicalContent: []byte("z"),
	})
	require.NoError(t, err)

	err = st.UpdateCapabilityMembers(x.FQDN, []string{z.FQDN})
	require.Error(t, err)
	require.True(t, gatewayerr.Is(err, gatewayerr.KindCycleDetected))

	reloaded, ok := st.Current().Capability(x.FQDN)
	require.True(t, ok)
	require.Equal(t, []string{"srv:a"}, reloaded.Members)
}

func TestStore_UpdateCapabilityMembers_RejectsSelfContainment(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)

	x, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "x",
		Embedding: unitVec4(1), Members: []string{"srv:a"},
		CanonicalContent: []byte("x"),
	})
	require.NoError(t, err)

	err = st.UpdateCapabilityMembers(x.FQDN, []string{x.FQDN})
	require.Error(t, err)
	require.True(t, gatewayerr.Is(err, gatewayerr.KindCycleDetected))
}

// TestStore_MergeCapabilities covers the reconciliation path: two
// capabilities created independently (distinct FQDNs) later turn out to
// share an integrity hash, e.g. after a graph snapshot imported from
// another node is found to duplicate local content. AddOrGetCapability's
// own hash dedup (I5) means two calls through the public API alone can
// never produce this state, so the collision is forced directly on the
// snapshot here, the same way a reconciliation pass would splice in data
// observed out of band.
func TestStore_MergeCapabilities(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)

	a, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "a",
		Embedding: unitVec4(1), Members: []string{"srv:a"},
		CanonicalContent: []byte("sharedContent"),
	})
	require.NoError(t, err)
	b, err := st.AddOrGetCapability(AddOrGetCapabilityInput{
		Org: "o", Project: "p", Namespace: "n", Action: "b",
		Embedding: unitVec4(1), Members: []string{"srv:a"},
		CanonicalContent: []byte("contentB"),
	})
	require.NoError(t, err)

	err = st.mutate(func(s *Snapshot) error {
		bCap := *s.capabilities[b.FQDN]
		bCap.IntegrityHash = s.capabilities[a.FQDN].IntegrityHash
		s.capabilities[b.FQDN] = &bCap
		return nil
	}, nil)
	require.NoError(t, err)

	canonical, err := st.MergeCapabilities(a.FQDN, b.FQDN)
	require.NoError(t, err)
	require.Contains(t, []string{a.FQDN, b.FQDN}, canonical)

	cap, ok := st.Current().Capability(a.FQDN)
	require.True(t, ok)
	require.Equal(t, canonical, cap.FQDN)
}

func TestStore_ObserveEdge_ConfidenceIncreasesAndTentativeBelowThreshold(t *testing.T) {
	st := New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)
	_, err = st.AddOrGetTool("srv:b", "d", unitVec4(1))
	require.NoError(t, err)

	require.NoError(t, st.ObserveEdge("srv:a", "srv:b", EdgeSourceLearned, EdgeTypeSequence))
	edges := st.Current().Neighbors("srv:a", true)
	require.Len(t, edges, 1)
	require.True(t, edges[0].Tentative())
	first := edges[0].Confidence

	for i := 0; i < 5; i++ {
		require.NoError(t, st.ObserveEdge("srv:a", "srv:b", EdgeSourceLearned, EdgeTypeSequence))
	}
	edges = st.Current().Neighbors("srv:a", true)
	require.False(t, edges[0].Tentative())
	require.Greater(t, edges[0].Confidence, first)
}

func TestStore_ObserveEdge_UnknownToolRejected(t *testing.T) {
	st := New(nil, nil)
	err := st.ObserveEdge("srv:ghost1", "srv:ghost2", EdgeSourceLearned, EdgeTypeSequence)
	require.Error(t, err)
	require.True(t, gatewayerr.Is(err, gatewayerr.KindUnknownID))
}
