// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graphsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/vectorstore"
)

func testArch() shgat.ArchConfig {
	return shgat.ArchConfig{EmbeddingDim: 4, NumHeads: 2, HiddenDim: 8, NumLayers: 1, MLPHiddenDim: 4}
}

// wire builds a Store/Controller pair the way cmd/gatewayd would: the
// Store is constructed without a sink, the Controller is built to target
// it, then the Controller is installed as the Store's sink.
func wire(t *testing.T) (*graphstore.Store, *Controller) {
	t.Helper()
	store := graphstore.New(nil, nil)
	scorer := shgat.New(shgat.Config{Arch: testArch(), Graph: store, TraceVolume: func() int { return 0 }})
	scorer.SetState(shgat.StateTrained)
	vectors := vectorstore.NewCache(4, nil, nil, nil)

	ctrl := New(Config{Graph: store, Scorer: scorer, Vectors: vectors})
	store.SetSink(ctrl)
	return store, ctrl
}

func runFor(t *testing.T, ctrl *Controller) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	return func() {
		cancel()
		ctrl.Wait()
	}
}

func TestController_AppliesCapabilityCreated(t *testing.T) {
	store, ctrl := wire(t)
	stop := runFor(t, ctrl)
	defer stop()

	_, err := store.AddOrGetTool("srv:read", "reads a file", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	sub := ctrl.hub.subscribe()
	defer ctrl.hub.unsubscribe(sub)

	err = ctrl.Submit(context.Background(), Event{
		ID:               "ev-1",
		Kind:             KindCapabilityCreated,
		Org:              "acme",
		Project:          "proj",
		Namespace:        "ns",
		Action:           "act",
		Description:      "reads then writes",
		Embedding:        []float32{1, 0, 0, 0},
		Members:          []string{"srv:read"},
		CanonicalContent: []byte("read-write-v1"),
	})
	require.NoError(t, err)

	select {
	case ev := <-sub:
		require.Equal(t, KindCapabilityCreated, ev.Kind)
		require.Empty(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for applied event")
	}

	snap := store.Current()
	require.Len(t, snap.AllCapabilities(), 1)
}

func TestController_DuplicateEventIDIsIdempotent(t *testing.T) {
	store, ctrl := wire(t)
	stop := runFor(t, ctrl)
	defer stop()

	_, err := store.AddOrGetTool("srv:read", "reads a file", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	ev := Event{
		ID:               "dup-1",
		Kind:             KindCapabilityCreated,
		Org:              "acme",
		Project:          "proj",
		Namespace:        "ns",
		Action:           "act",
		Description:      "reads",
		Embedding:        []float32{1, 0, 0, 0},
		Members:          []string{"srv:read"},
		CanonicalContent: []byte("read-v1"),
	}
	require.NoError(t, ctrl.Submit(context.Background(), ev))
	require.NoError(t, ctrl.Submit(context.Background(), ev))

	// Give the single consumer goroutine time to drain both.
	require.Eventually(t, func() bool {
		return len(store.Current().AllCapabilities()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestController_MergeDropsAbsorbedEmbeddingFromVectors exercises the
// EventSink.CapabilityMerged callback directly: Store invokes it with
// (absorbed, canonical) after a successful merge, and Controller is
// responsible for dropping the absorbed id's embedding.
func TestController_MergeDropsAbsorbedEmbeddingFromVectors(t *testing.T) {
	_, ctrl := wire(t)

	require.NoError(t, ctrl.cfg.Vectors.Upsert(context.Background(), "acme.proj.ns.old.ab12", "capability", []float32{1, 0, 0, 0}))
	_, ok := ctrl.cfg.Vectors.Get("acme.proj.ns.old.ab12")
	require.True(t, ok)

	ctrl.CapabilityMerged("acme.proj.ns.old.ab12", "acme.proj.ns.new.cd34")

	_, ok = ctrl.cfg.Vectors.Get("acme.proj.ns.old.ab12")
	require.False(t, ok, "absorbed embedding should be dropped from the vector index")
}

func TestController_UnknownEventKindFailsButIsRecordedAsSeen(t *testing.T) {
	_, ctrl := wire(t)
	stop := runFor(t, ctrl)
	defer stop()

	sub := ctrl.hub.subscribe()
	defer ctrl.hub.unsubscribe(sub)

	require.NoError(t, ctrl.Submit(context.Background(), Event{ID: "bad-1", Kind: Kind("capability.unknown")}))

	select {
	case ev := <-sub:
		require.NotEmpty(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for applied event")
	}

	require.True(t, ctrl.alreadySeen("bad-1"))
}
