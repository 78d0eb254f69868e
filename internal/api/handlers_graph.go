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
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGraphStats serves GET /v1/graph/stats.
func (s *Server) handleGraphStats(c *gin.Context) {
	snap := s.cfg.Graph.Current()
	c.JSON(http.StatusOK, GraphStatsResponse{
		Version:         snap.Version,
		ToolCount:       len(snap.AllTools()),
		CapabilityCount: len(snap.AllCapabilities()),
	})
}

// handleScorerState serves GET /v1/scorer/state.
func (s *Server) handleScorerState(c *gin.Context) {
	if s.cfg.Scorer == nil {
		c.JSON(http.StatusOK, ScorerStateResponse{State: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, ScorerStateResponse{State: string(s.cfg.Scorer.State())})
}

// handleHealthz serves GET /healthz: a liveness/readiness check. The
// process is ready once its graph store exists, which it always does by
// the time Server.New wires routes — readiness beyond "process is up" is
// reported per-component via GET /v1/graph/stats and /v1/scorer/state
// instead of a single opaque boolean.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
