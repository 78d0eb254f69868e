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

	"github.com/AleutianAI/capgateway/internal/store"
)

func TestPersistence_AppendAndWarmRoundTrips(t *testing.T) {
	db, err := store.Open("", nil)
	require.NoError(t, err)
	defer db.Close()

	persist := NewPersistence(db, nil)
	st := New(30*24*time.Hour, persist, nil)

	now := time.Now()
	require.NoError(t, st.Append(context.Background(), mkRecord("wf-1", 0, "srv:read", OutcomeSuccess, now)))
	require.NoError(t, st.Append(context.Background(), mkRecord("wf-1", 1, "srv:write", OutcomeFailure, now.Add(time.Second))))

	fresh := New(30*24*time.Hour, persist, nil)
	require.NoError(t, fresh.Warm(context.Background()))
	require.Equal(t, 2, fresh.Len())
}
