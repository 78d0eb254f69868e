// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, 1024, c.EmbeddingDim)
	require.Equal(t, 8, c.NumHeads)
	require.True(t, c.AdaptiveHeads)
	require.Equal(t, 0.5, c.AdaptiveAlphaFloor)
}

func TestManager_ApplyOverrideFile_RejectsArchitectureKeys(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddingDim: 2048\nadaptiveAlphaFloor: 0.7\n"), 0o644))

	rejected, err := m.ApplyOverrideFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"embeddingDim"}, rejected)

	got := m.Get()
	require.Equal(t, 1024, got.EmbeddingDim, "architecture key must not change live")
	require.Equal(t, 0.7, got.AdaptiveAlphaFloor, "non-architecture key should hot-reload")
}

func TestManager_WatchOverride(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reliabilityBoost: 1.5\n"), 0o644))

	stop, err := m.WatchOverride(path)
	require.NoError(t, err)
	defer func() { _ = stop() }()

	require.NoError(t, os.WriteFile(path, []byte("reliabilityBoost: 1.9\n"), 0o644))

	require.Eventually(t, func() bool {
		return m.Get().ReliabilityBoost == 1.9
	}, 2*time.Second, 10*time.Millisecond)
}
