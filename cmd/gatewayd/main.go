// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gatewayd starts the context-optimization ranking and learning
// engine: the Ranking, Training, and Event Sink APIs described by
// internal/api, backed by the embedding cache, graph store, SHGAT scorer,
// and replay trainer.
//
// Usage:
//
//	go run ./cmd/gatewayd
//	go run ./cmd/gatewayd -port 9090 -data-dir /var/lib/capgateway
//
// With Ollama-served embeddings:
//
//	EMBEDDING_SERVICE_URL=http://localhost:11434 EMBEDDING_MODEL=nomic-embed-text-v2-moe \
//	  go run ./cmd/gatewayd
//
// With an OTLP collector:
//
//	OTEL_EXPORTER_OTLP_ENDPOINT=otel-collector:4317 go run ./cmd/gatewayd
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/capgateway/internal/api"
	"github.com/AleutianAI/capgateway/internal/config"
	"github.com/AleutianAI/capgateway/internal/embedmodel"
	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/graphalgo"
	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/graphsync"
	"github.com/AleutianAI/capgateway/internal/replay"
	"github.com/AleutianAI/capgateway/internal/search"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/store"
	"github.com/AleutianAI/capgateway/internal/telemetry"
	"github.com/AleutianAI/capgateway/internal/tracestore"
	"github.com/AleutianAI/capgateway/internal/vectorstore"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode (gin debug logging, verbose traces)")
	dataDir := flag.String("data-dir", envOr("DATA_DIR", ""), "BadgerDB directory for persistence; empty runs fully in-memory")
	configOverride := flag.String("config-override", "", "Optional YAML file of non-architectural config overrides, hot-reloaded on change")
	weaviateHost := flag.String("weaviate-host", os.Getenv("WEAVIATE_HOST"), "Optional Weaviate host:port for vector mirroring")
	flag.Parse()

	logger := slog.Default()
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	cfgMgr, err := config.NewManager(logger)
	if err != nil {
		logger.Error("loading default config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *configOverride != "" {
		if rejected, err := cfgMgr.ApplyOverrideFile(*configOverride); err != nil {
			logger.Error("applying config override", slog.String("error", err.Error()))
			os.Exit(1)
		} else if len(rejected) > 0 {
			logger.Warn("config override rejected architecture-defining keys", slog.Any("keys", rejected))
		}
		stopWatch, err := cfgMgr.WatchOverride(*configOverride)
		if err != nil {
			logger.Warn("config hot-reload watcher unavailable", slog.String("error", err.Error()))
		} else {
			defer stopWatch()
		}
	}
	cfg := cfgMgr.Get()

	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  "capgateway",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:  envOr("DEPLOY_ENV", "development"),
	})
	if err != nil {
		logger.Error("initializing telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewHTTPMetrics(providers.MeterProvider)
	if err != nil {
		logger.Error("constructing HTTP metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := openDataStore(*dataDir, logger)
	if err != nil {
		logger.Error("opening data store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("closing data store", slog.String("error", err.Error()))
			}
		}()
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		logger.Error("constructing embedding model", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := embedder.Dispose(); err != nil {
			logger.Warn("disposing embedding model", slog.String("error", err.Error()))
		}
	}()

	graph := graphstore.New(nil, logger)
	var graphPersist *graphstore.Persistence
	if db != nil {
		graphPersist = graphstore.NewPersistence(db, logger)
		if err := graphPersist.Restore(ctx, graph); err != nil {
			logger.Warn("restoring graph snapshot", slog.String("error", err.Error()))
		}
	}

	var vecPersist *vectorstore.PersistentStore
	var weaviateMirror *vectorstore.WeaviateMirror
	if db != nil {
		vecPersist = vectorstore.NewPersistentStore(db, logger)
	}
	if *weaviateHost != "" {
		weaviateMirror, err = vectorstore.NewWeaviateMirror(ctx, "http", *weaviateHost, logger)
		if err != nil {
			logger.Warn("weaviate mirror unavailable, continuing without it", slog.String("error", err.Error()))
			weaviateMirror = nil
		}
	}
	vectors := vectorstore.NewCache(cfg.EmbeddingDim, weaviateMirror, vecPersist, logger)
	if err := vectors.Warm(ctx); err != nil {
		logger.Warn("warming vector cache", slog.String("error", err.Error()))
	}

	var tracePersist *tracestore.Persistence
	if db != nil {
		tracePersist = tracestore.NewPersistence(db, logger)
	}
	traces := tracestore.New(time.Duration(cfg.TraceRetentionDays)*24*time.Hour, tracePersist, logger)
	if err := traces.Warm(ctx); err != nil {
		logger.Warn("warming trace store", slog.String("error", err.Error()))
	}
	features := tracestore.NewFeatureBuilder(traces)

	arch := shgat.ArchConfig{
		EmbeddingDim: cfg.EmbeddingDim,
		NumHeads:     cfg.NumHeads,
		HiddenDim:    cfg.HiddenDim,
		NumLayers:    cfg.NumLayers,
		MLPHiddenDim: cfg.MLPHiddenDim,
	}
	scorer := shgat.New(shgat.Config{
		Arch:                 arch,
		MinTracesForTraining: cfg.MinTracesForTraining,
		TraceVolume:          traces.Len,
		Graph:                graph,
		Vectors:              vectors,
		Features:             features,
		Logger:               logger,
	})
	var paramPersist *shgat.Persistence
	if db != nil {
		paramPersist = shgat.NewPersistence(db, logger)
		if params, ok := paramPersist.Load(ctx, arch); ok {
			scorer.SwapParameters(params)
			scorer.SetState(shgat.StateTrained)
		}
	}

	buffer := replay.NewBuffer(cfg.MaxBufferSize)
	trainerCfg := replay.DefaultConfig()
	trainerCfg.BatchSize = cfg.BatchSize
	trainerCfg.Epochs = cfg.Epochs
	trainerCfg.LearningRate = cfg.LearningRate
	trainerCfg.L2Lambda = cfg.L2Lambda
	trainerCfg.Dropout = cfg.Dropout
	trainer := replay.New(buffer, scorer, trainerCfg, logger)

	events := graphsync.New(graphsync.Config{
		Graph:   graph,
		Scorer:  scorer,
		Vectors: vectors,
		Logger:  logger,
	})
	graph.SetSink(events)
	go events.Run(ctx)
	defer events.Wait()

	ranker := search.New(search.Config{
		Graph:    graph,
		Vectors:  vectors,
		Scorer:   scorer,
		Embedder: embedder,

		HeatDiffusion: graphalgo.HeatDiffusionOptions{
			Steps:                cfg.HeatDiffusionSteps,
			DiffusionCoefficient: cfg.HeatDiffusionCoefficient,
		},
		AdaptiveAlphaFloor: cfg.AdaptiveAlphaFloor,
		ReliabilityPenalty: cfg.ReliabilityPenalty,
		ReliabilityBoost:   cfg.ReliabilityBoost,
		Logger:             logger,
	})

	apiServer := api.New(api.Config{
		Ranker:  ranker,
		Traces:  traces,
		Buffer:  buffer,
		Trainer: trainer,
		Events:  events,
		Graph:   graph,
		Scorer:  scorer,
		Metrics: metrics,
		Logger:  logger,
	})

	if db != nil && graphPersist != nil {
		go periodicGraphSnapshot(ctx, graph, graphPersist, logger)
	}

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down capgateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		httpServer.SetKeepAlivesEnabled(false)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("starting capgateway server", slog.String("address", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openDataStore opens the shared BadgerDB instance at dir, or returns a nil
// *store.DB (every persistence layer stays disabled) when dir is empty.
func openDataStore(dir string, logger *slog.Logger) (*store.DB, error) {
	if dir == "" {
		logger.Warn("no data-dir set, running without persistence: graph, vectors, traces, and scorer parameters do not survive a restart")
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return store.Open(dir, logger)
}

// buildEmbedder constructs the embedding model backing intent and
// capability encoding: a deterministic fake only when EMBEDDING_SERVICE_URL
// and EMBEDDING_MODEL are both unset and EMBEDDING_DETERMINISTIC=true,
// otherwise an Ollama-served model built from those two variables.
func buildEmbedder(cfg config.Config, logger *slog.Logger) (embedmodel.Model, error) {
	serverURL := os.Getenv("EMBEDDING_SERVICE_URL")
	model := os.Getenv("EMBEDDING_MODEL")
	if serverURL == "" && model == "" && os.Getenv("EMBEDDING_DETERMINISTIC") == "true" {
		logger.Info("using deterministic embedding model (EMBEDDING_DETERMINISTIC=true)")
		return embedmodel.NewDeterministic(cfg.EmbeddingDim), nil
	}
	m, err := embedmodel.NewOllamaModel(serverURL, model, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "constructing embedding model")
	}
	return m, nil
}

// periodicGraphSnapshot saves the graph store to BadgerDB every interval
// until ctx is canceled, so a restart resumes from a recent snapshot
// instead of an empty graph.
func periodicGraphSnapshot(ctx context.Context, graph *graphstore.Store, persist *graphstore.Persistence, logger *slog.Logger) {
	const interval = 5 * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := persist.Save(saveCtx, graph); err != nil {
				logger.Warn("final graph snapshot save", slog.String("error", err.Error()))
			}
			cancel()
			return
		case <-ticker.C:
			if err := persist.Save(ctx, graph); err != nil {
				logger.Warn("periodic graph snapshot save", slog.String("error", err.Error()))
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
