// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPersistentStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	ps := NewPersistentStore(newTestDB(t), nil)

	require.NoError(t, ps.Save(ctx, "tool:a", "tool", []float32{1, 0, 0, 0}))
	require.NoError(t, ps.Save(ctx, "cap:b", "capability", []float32{0, 1, 0, 0}))

	ids, kinds, vecs, err := ps.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.ElementsMatch(t, []string{"tool:a", "cap:b"}, ids)
	require.ElementsMatch(t, []string{"tool", "capability"}, kinds)
	require.Len(t, vecs, 2)

	require.NoError(t, ps.Delete(ctx, "tool:a"))
	ids, _, _, err = ps.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"cap:b"}, ids)
}

func TestCache_WarmRehydratesIndex(t *testing.T) {
	ctx := context.Background()
	ps := NewPersistentStore(newTestDB(t), nil)
	require.NoError(t, ps.Save(ctx, "tool:a", "tool", unitVec(t, 8, 0)))
	require.NoError(t, ps.Save(ctx, "tool:b", "tool", unitVec(t, 8, 1)))

	c := NewCache(8, nil, ps, nil)
	require.Equal(t, 0, c.Len())
	require.NoError(t, c.Warm(ctx))
	require.Equal(t, 2, c.Len())

	_, ok := c.Get("tool:a")
	require.True(t, ok)
}
