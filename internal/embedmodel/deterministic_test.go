// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministic_EncodeIsStable(t *testing.T) {
	m := NewDeterministic(16)
	v1, err := m.Encode(context.Background(), "find_references")
	require.NoError(t, err)
	v2, err := m.Encode(context.Background(), "find_references")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Len(t, v1, 16)
}

func TestDeterministic_DistinctTextsDiffer(t *testing.T) {
	m := NewDeterministic(16)
	v1, _ := m.Encode(context.Background(), "alpha")
	v2, _ := m.Encode(context.Background(), "beta")
	require.NotEqual(t, v1, v2)
}
