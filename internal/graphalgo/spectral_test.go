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

func TestSpectralCluster_AssignsEveryCapability(t *testing.T) {
	st := graphstore.New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)
	_, err = st.AddOrGetTool("srv:b", "d", unitVec4(1))
	require.NoError(t, err)

	fqdns := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		c, err := st.AddOrGetCapability(graphstore.AddOrGetCapabilityInput{
			Org: "o", Project: "p", Namespace: "n", Action: string(rune('a' + i)),
			Embedding: unitVec4(1), Members: []string{"srv:a"},
			CanonicalContent: []byte{byte(i)},
		})
		require.NoError(t, err)
		fqdns = append(fqdns, c.FQDN)
	}

	clusters := SpectralCluster(st.Current(), 2)
	require.Len(t, clusters, 4)
	for _, fqdn := range fqdns {
		_, ok := clusters[fqdn]
		require.True(t, ok)
	}
}

func TestSpectralCluster_Deterministic(t *testing.T) {
	st := graphstore.New(nil, nil)
	_, err := st.AddOrGetTool("srv:a", "d", unitVec4(1))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := st.AddOrGetCapability(graphstore.AddOrGetCapabilityInput{
			Org: "o", Project: "p", Namespace: "n", Action: string(rune('a' + i)),
			Embedding: unitVec4(1), Members: []string{"srv:a"},
			CanonicalContent: []byte{byte(i)},
		})
		require.NoError(t, err)
	}
	a := SpectralCluster(st.Current(), 2)
	b := SpectralCluster(st.Current(), 2)
	require.Equal(t, a, b)
}
