// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/replay"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

// handleObserveTrace serves POST /v1/traces, the Training API's `observe`.
// Beyond appending to the trace log (D), this is where an observed
// invocation feeds the rest of the learning loop: it becomes a replay.Entry
// for F's trainer, and it updates B's usage counts and learned edges so
// search/reliability.go's bands and C's graph algorithms see real traffic.
func (s *Server) handleObserveTrace(c *gin.Context) {
	var req TraceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	record := req.toRecord()
	if err := s.cfg.Traces.Append(c.Request.Context(), record); err != nil {
		writeError(c, err)
		return
	}

	kind := req.kind()
	s.recordReplayEntry(c.Request.Context(), record, kind)
	s.updateGraphFromTrace(record, kind)

	c.Status(http.StatusAccepted)
}

// recordReplayEntry scores the observed candidate the way a rank request
// would, then pushes the resulting (features, head scores, outcome) triple
// into F's replay buffer. Scoring failure (e.g. the candidate was never
// ranked so its embedding isn't cached yet) only skips this trace for
// training; the trace itself is already durably appended.
func (s *Server) recordReplayEntry(ctx context.Context, record tracestore.Record, kind shgat.CandidateKind) {
	if s.cfg.Buffer == nil || s.cfg.Scorer == nil || len(record.IntentEmbedding) == 0 {
		return
	}
	result, err := s.cfg.Scorer.Score(ctx, record.IntentEmbedding, record.CandidateID, kind, record.ContextToolIDs)
	if err != nil {
		s.logger.Warn("traces: skipping replay entry, scoring failed",
			slog.String("candidateId", record.CandidateID), slog.String("error", err.Error()))
		return
	}
	s.cfg.Buffer.Add(replay.Entry{
		IntentEmbedding: record.IntentEmbedding,
		CandidateID:     record.CandidateID,
		CandidateKind:   kind,
		ContextToolIDs:  record.ContextToolIDs,
		Outcome:         record.Outcome,
		Features:        result.Features,
		HeadScores:      result.HeadScores,
	})
}

// updateGraphFromTrace feeds an observed invocation back into B: the
// candidate's usage/success counts, and a learned sequence edge from each
// preceding context tool into the candidate. Both operations are only
// defined over tools (data-model §3's usage counts and learned edges are
// tool properties), so a capability candidate or an id the graph has never
// seen as a tool is skipped rather than failing the request.
func (s *Server) updateGraphFromTrace(record tracestore.Record, kind shgat.CandidateKind) {
	if s.cfg.Graph == nil || kind != shgat.CandidateTool {
		return
	}
	if err := s.cfg.Graph.TouchToolUse(record.CandidateID, record.Outcome == tracestore.OutcomeSuccess); err != nil {
		s.logger.Debug("traces: touchToolUse skipped", slog.String("candidateId", record.CandidateID), slog.String("error", err.Error()))
	}
	for _, ctxToolID := range record.ContextToolIDs {
		if ctxToolID == record.CandidateID {
			continue
		}
		if err := s.cfg.Graph.ObserveEdge(ctxToolID, record.CandidateID, graphstore.EdgeSourceLearned, graphstore.EdgeTypeSequence); err != nil {
			s.logger.Debug("traces: observeEdge skipped",
				slog.String("from", ctxToolID), slog.String("to", record.CandidateID), slog.String("error", err.Error()))
		}
	}
}

// handleTrainNow serves POST /v1/train, the Training API's `trainNow`.
func (s *Server) handleTrainNow(c *gin.Context) {
	var req TrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidationError(c, err)
			return
		}
	}

	timeout := s.cfg.TrainTimeout
	if req.DeadlineMs > 0 {
		timeout = time.Duration(req.DeadlineMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	_, err := s.cfg.Trainer.Train(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		writeError(c, err)
		return
	}

	examples, avgLoss, updatedPriorities := s.cfg.Trainer.Stats()
	c.JSON(http.StatusOK, TrainResponse{
		Trained:           examples > 0,
		Examples:          examples,
		AvgLoss:           avgLoss,
		UpdatedPriorities: updatedPriorities,
	})
}
