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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/graphsync"
	"github.com/AleutianAI/capgateway/internal/replay"
	"github.com/AleutianAI/capgateway/internal/search"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/telemetry"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

// Config bundles the component instances and cross-cutting dependencies
// the HTTP surface is wired onto.
type Config struct {
	Ranker  *search.Ranker        // required; backs POST /v1/rank
	Traces  *tracestore.Store     // required; backs POST /v1/traces
	Buffer  *replay.Buffer        // required; POST /v1/traces converts each observed trace into a replay.Entry here
	Trainer *replay.Trainer       // required; backs POST /v1/train
	Events  *graphsync.Controller // required; backs the Event Sink API and /v1/events/stream
	Graph   *graphstore.Store     // required; backs GET /v1/graph/stats
	Scorer  *shgat.Scorer         // required; scores each observed trace into F's replay buffer (B's usage/edge updates go through Graph)

	Metrics *telemetry.HTTPMetrics // optional; route-level request metrics
	Logger  *slog.Logger

	// TrainTimeout bounds how long a POST /v1/train request waits for
	// Trainer.Train before the handler gives up and reports the trainer's
	// stats so far. Defaults to 60s when zero; set explicitly to override
	// per-deployment.
	TrainTimeout time.Duration
}

// Server is the engine's HTTP surface: the Ranking, Training, and Event
// Sink APIs, plus introspection and operational endpoints.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *gin.Engine
}

// New builds a Server with every route registered. The returned Server's
// Handler is ready to pass to http.Server or router.Run.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = 60 * time.Second
	}

	registerValidators(logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("capgateway"))
	if cfg.Metrics != nil {
		router.Use(telemetry.GinMiddleware(cfg.Metrics, logger))
	}

	s := &Server{cfg: cfg, logger: logger, router: router}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/v1")
	v1.POST("/rank", s.handleRank)
	v1.POST("/traces", s.handleObserveTrace)
	v1.POST("/train", s.handleTrainNow)

	events := v1.Group("/events")
	events.POST("/capability-created", s.handleCapabilityCreated)
	events.POST("/capability-updated", s.handleCapabilityUpdated)
	events.POST("/capability-merged", s.handleCapabilityMerged)
	events.GET("/stream", s.handleEventStream)

	v1.GET("/graph/stats", s.handleGraphStats)
	v1.GET("/scorer/state", s.handleScorerState)

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)
}
