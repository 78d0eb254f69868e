// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/graphsync"
	"github.com/AleutianAI/capgateway/internal/replay"
	"github.com/AleutianAI/capgateway/internal/search"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/tracestore"
	"github.com/AleutianAI/capgateway/internal/vectorstore"
)

const testDim = 4

func unit(i int) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	return v
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Encode(_ context.Context, _ string) ([]float32, error) { return f.vec, nil }

// testServer wires a full Server against in-memory components, the way
// cmd/gatewayd does, and returns it alongside the graph store and event
// controller for assertions. The controller is never started with Run in
// most tests: Submit only needs a receiver for the queue, and tests that
// care about application order start it themselves.
func testServer(t *testing.T) (*Server, *graphstore.Store, *graphsync.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	graph := graphstore.New(nil, nil)
	_, err := graph.AddOrGetTool("srv:read", "reads a file from disk", unit(0))
	require.NoError(t, err)

	vectors := vectorstore.NewCache(testDim, nil, nil, nil)
	require.NoError(t, vectors.Upsert(context.Background(), "srv:read", "tool", unit(0)))

	arch := shgat.ArchConfig{EmbeddingDim: testDim, NumHeads: 2, HiddenDim: 8, NumLayers: 1, MLPHiddenDim: 4}
	scorer := shgat.New(shgat.Config{Arch: arch, Graph: graph, TraceVolume: func() int { return 0 }})

	traces := tracestore.New(0, nil, nil)
	buffer := replay.NewBuffer(64)
	trainer := replay.New(buffer, scorer, replay.DefaultConfig(), nil)

	events := graphsync.New(graphsync.Config{Graph: graph, Scorer: scorer, Vectors: vectors})
	graph.SetSink(events)

	ranker := search.New(search.Config{Graph: graph, Vectors: vectors, Scorer: scorer, Embedder: fakeEmbedder{vec: unit(0)}})

	srv := New(Config{
		Ranker:       ranker,
		Traces:       traces,
		Buffer:       buffer,
		Trainer:      trainer,
		Events:       events,
		Graph:        graph,
		Scorer:       scorer,
		TrainTimeout: 2 * time.Second,
	})
	return srv, graph, events
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleRank_ReturnsRankedResults(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/rank", RankRequest{Intent: "read a file", MinScore: 0})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "srv:read", resp.Results[0].ID)
}

func TestHandleRank_RejectsMissingIntent(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/rank", RankRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleObserveTrace_Accepted(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/traces", TraceRequest{
		WorkflowID:  "wf-1",
		CandidateID: "srv:read",
		Outcome:     "success",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleObserveTrace_FeedsReplayBufferAndGraph(t *testing.T) {
	srv, graph, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/traces", TraceRequest{
		WorkflowID:      "wf-1",
		IntentEmbedding: unit(0),
		CandidateID:     "srv:read",
		Outcome:         "success",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, srv.cfg.Buffer.Len())

	tool, ok := graph.Current().Tool("srv:read")
	require.True(t, ok)
	require.Equal(t, uint64(1), tool.UsageCount)
	require.Equal(t, uint64(1), tool.SuccessCount)

	trainRec := doJSON(t, srv, http.MethodPost, "/v1/train", nil)
	require.Equal(t, http.StatusOK, trainRec.Code)
	var resp TrainResponse
	require.NoError(t, json.Unmarshal(trainRec.Body.Bytes(), &resp))
	require.True(t, resp.Trained)
	require.Greater(t, resp.Examples, 0)
}

func TestHandleObserveTrace_RejectsBadOutcome(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/traces", map[string]any{
		"workflowId":  "wf-1",
		"candidateId": "srv:read",
		"outcome":     "maybe",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrainNow_EmptyBufferStillResponds(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/train", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Trained)
	require.Equal(t, 0, resp.Examples)
}

func TestHandleCapabilityCreated_Accepted(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/events/capability-created", CapabilityCreatedRequest{
		ID:        "ev-1",
		Org:       "acme",
		Project:   "proj",
		Namespace: "fs",
		Action:    "read",
		Embedding: unit(0),
		Members:   []string{"srv:read"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp EventAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Accepted)
	require.Equal(t, "ev-1", resp.ID)
}

func TestHandleCapabilityUpdated_RejectsMalformedFQDN(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/events/capability-updated", CapabilityUpdatedRequest{
		ID:   "ev-2",
		FQDN: "not-an-fqdn",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGraphStats_ReportsCounts(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/v1/graph/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GraphStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.ToolCount)
}

func TestHandleScorerState_ReportsCurrentState(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/v1/scorer/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScorerStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.State)
}

func TestHandleHealthz_OK(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetrics_ServesPrometheusFormat(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
