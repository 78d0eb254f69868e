// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the engine's Ranking, Training, Event Sink, and
// introspection APIs over HTTP, wiring gin DTOs and validation onto the
// Component G/F/H/B implementations.
package api

import (
	"time"

	"github.com/AleutianAI/capgateway/internal/search"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

// RankRequest is the inbound body for POST /v1/rank.
type RankRequest struct {
	Intent          string    `json:"intent,omitempty" binding:"required_without=IntentEmbedding"`
	IntentEmbedding []float32 `json:"intentEmbedding,omitempty" binding:"required_without=Intent"`
	Context         []string  `json:"context,omitempty"`
	Limit           int       `json:"limit,omitempty" binding:"omitempty,min=1,max=500"`
	MinScore        float64   `json:"minScore,omitempty" binding:"omitempty,min=0,max=1"`
	Filter          string    `json:"filter,omitempty" binding:"omitempty,oneof=tools capabilities both"`
	Pinned          []string  `json:"pinned,omitempty"`
	MinConfidence   float64   `json:"minConfidence,omitempty" binding:"omitempty,min=0,max=1"`
	DeadlineMs      int64     `json:"deadlineMs,omitempty" binding:"omitempty,min=0"`
}

func (r RankRequest) toOptions() search.Options {
	return search.Options{
		Intent:          r.Intent,
		IntentEmbedding: r.IntentEmbedding,
		Context:         r.Context,
		Limit:           r.Limit,
		MinScore:        r.MinScore,
		Filter:          search.Filter(r.Filter),
		Pinned:          r.Pinned,
		MinConfidence:   r.MinConfidence,
	}
}

// RankResultDTO is one ranked candidate in a RankResponse.
type RankResultDTO struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Score       float64   `json:"score"`
	HeadWeights []float64 `json:"headWeights,omitempty"`
	Reliability float64   `json:"reliability"`
	Semantic    float64   `json:"semantic"`
	Graph       float64   `json:"graph"`
	Pinned      bool      `json:"pinned,omitempty"`
}

// RankResponse is the outbound body for POST /v1/rank.
type RankResponse struct {
	Results               []RankResultDTO `json:"results"`
	EscalationRecommended bool            `json:"escalationRecommended,omitempty"`
	Incomplete            bool            `json:"incomplete,omitempty"`
	LexicalFallback       bool            `json:"lexicalFallback,omitempty"`
}

func toRankResponse(resp search.Response) RankResponse {
	out := RankResponse{
		Results:               make([]RankResultDTO, 0, len(resp.Results)),
		EscalationRecommended: resp.EscalationRecommended,
		Incomplete:            resp.Incomplete,
		LexicalFallback:       resp.LexicalFallback,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, RankResultDTO{
			ID:          r.ID,
			Kind:        string(r.Kind),
			Score:       r.Score,
			HeadWeights: r.HeadWeights,
			Reliability: r.Reliability,
			Semantic:    r.Semantic,
			Graph:       r.Graph,
			Pinned:      r.Pinned,
		})
	}
	return out
}

// TraceRequest is the inbound body for POST /v1/traces (Training API
// `observe`).
type TraceRequest struct {
	WorkflowID      string    `json:"workflowId" binding:"required"`
	StepIndex       int       `json:"stepIndex" binding:"omitempty,min=0"`
	IntentText      string    `json:"intentText,omitempty"`
	IntentEmbedding []float32 `json:"intentEmbedding,omitempty"`
	ContextToolIDs  []string  `json:"contextToolIds,omitempty" binding:"omitempty,max=5"`
	CandidateID     string    `json:"candidateId" binding:"required"`
	CandidateKind   string    `json:"candidateKind,omitempty" binding:"omitempty,oneof=tool capability"`
	Outcome         string    `json:"outcome" binding:"required,oneof=success failure"`
	DurationMs      int64     `json:"durationMs" binding:"omitempty,min=0"`
	ErrorKind       string    `json:"errorKind,omitempty" binding:"omitempty,oneof=timeout permission not-found validation network unknown"`
}

// kind resolves the candidate's CandidateKind, defaulting to a tool when
// the caller omits it: most traced invocations are direct tool calls.
func (r TraceRequest) kind() shgat.CandidateKind {
	if r.CandidateKind == string(shgat.CandidateCapability) {
		return shgat.CandidateCapability
	}
	return shgat.CandidateTool
}

func (r TraceRequest) toRecord() tracestore.Record {
	return tracestore.Record{
		WorkflowID:      r.WorkflowID,
		StepIndex:       r.StepIndex,
		Timestamp:       time.Now(),
		IntentText:      r.IntentText,
		IntentEmbedding: r.IntentEmbedding,
		ContextToolIDs:  r.ContextToolIDs,
		CandidateID:     r.CandidateID,
		Outcome:         tracestore.Outcome(r.Outcome),
		Duration:        time.Duration(r.DurationMs) * time.Millisecond,
		ErrorKind:       tracestore.ErrorKind(r.ErrorKind),
	}
}

// TrainRequest is the inbound body for POST /v1/train (Training API
// `trainNow`). An empty body trains with the trainer's configured
// defaults.
type TrainRequest struct {
	DeadlineMs int64 `json:"deadlineMs,omitempty" binding:"omitempty,min=0"`
}

// TrainResponse reports the outcome of one training run:
// {trained, examples, avgLoss, updatedPriorities}.
type TrainResponse struct {
	Trained           bool    `json:"trained"`
	Examples          int     `json:"examples"`
	AvgLoss           float64 `json:"avgLoss"`
	UpdatedPriorities int     `json:"updatedPriorities"`
}

// CapabilityCreatedRequest is the inbound body for
// POST /v1/events/capability-created.
type CapabilityCreatedRequest struct {
	ID               string    `json:"id" binding:"required"`
	Org              string    `json:"org" binding:"required"`
	Project          string    `json:"project" binding:"required"`
	Namespace        string    `json:"namespace" binding:"required"`
	Action           string    `json:"action" binding:"required"`
	Description      string    `json:"description,omitempty"`
	Embedding        []float32 `json:"embedding" binding:"required"`
	Members          []string  `json:"members,omitempty"`
	CanonicalContent string    `json:"canonicalContent,omitempty"`
}

// CapabilityUpdatedRequest is the inbound body for
// POST /v1/events/capability-updated.
type CapabilityUpdatedRequest struct {
	ID      string   `json:"id" binding:"required"`
	FQDN    string   `json:"fqdn" binding:"required,capability_fqdn"`
	Members []string `json:"members,omitempty"`
}

// CapabilityMergedRequest is the inbound body for
// POST /v1/events/capability-merged.
type CapabilityMergedRequest struct {
	ID     string `json:"id" binding:"required"`
	MergeA string `json:"mergeA" binding:"required,capability_fqdn"`
	MergeB string `json:"mergeB" binding:"required,capability_fqdn"`
}

// EventAcceptedResponse is written for every Event Sink endpoint once the
// event has been queued (not yet applied — application is asynchronous,
// see graphsync.Controller).
type EventAcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id"`
}

// GraphStatsResponse is the outbound body for GET /v1/graph/stats.
type GraphStatsResponse struct {
	Version         uint64 `json:"version"`
	ToolCount       int    `json:"toolCount"`
	CapabilityCount int    `json:"capabilityCount"`
}

// ScorerStateResponse is the outbound body for GET /v1/scorer/state.
type ScorerStateResponse struct {
	State string `json:"state"`
}
