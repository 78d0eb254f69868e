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

	"github.com/AleutianAI/capgateway/internal/graphsync"
)

// handleCapabilityCreated serves POST /v1/events/capability-created, the
// inbound onCapabilityCreated Event Sink API.
func (s *Server) handleCapabilityCreated(c *gin.Context) {
	var req CapabilityCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	ev := graphsync.Event{
		ID:               req.ID,
		Kind:             graphsync.KindCapabilityCreated,
		Org:              req.Org,
		Project:          req.Project,
		Namespace:        req.Namespace,
		Action:           req.Action,
		Description:      req.Description,
		Embedding:        req.Embedding,
		Members:          req.Members,
		CanonicalContent: []byte(req.CanonicalContent),
	}
	s.submitEvent(c, ev)
}

// handleCapabilityUpdated serves POST /v1/events/capability-updated, the
// inbound onCapabilityUpdated Event Sink API.
func (s *Server) handleCapabilityUpdated(c *gin.Context) {
	var req CapabilityUpdatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	ev := graphsync.Event{
		ID:      req.ID,
		Kind:    graphsync.KindCapabilityUpdated,
		FQDN:    req.FQDN,
		Members: req.Members,
	}
	s.submitEvent(c, ev)
}

// handleCapabilityMerged serves POST /v1/events/capability-merged, the
// inbound onCapabilityMerged Event Sink API.
func (s *Server) handleCapabilityMerged(c *gin.Context) {
	var req CapabilityMergedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	ev := graphsync.Event{
		ID:     req.ID,
		Kind:   graphsync.KindCapabilityMerged,
		MergeA: req.MergeA,
		MergeB: req.MergeB,
	}
	s.submitEvent(c, ev)
}

// submitEvent enqueues ev on the graph sync controller. Submission only
// blocks on queue capacity; application happens asynchronously on the
// controller's single consumer goroutine, so a 202 here means "accepted",
// not "applied" — watch GET /v1/events/stream for the Applied event.
func (s *Server) submitEvent(c *gin.Context, ev graphsync.Event) {
	if err := s.cfg.Events.Submit(c.Request.Context(), ev); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, EventAcceptedResponse{Accepted: true, ID: ev.ID})
}

// handleEventStream serves GET /v1/events/stream, the websocket mirror of
// applied capability-lifecycle events.
func (s *Server) handleEventStream(c *gin.Context) {
	s.cfg.Events.StreamHandler().ServeHTTP(c.Writer, c.Request)
}
