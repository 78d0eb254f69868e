// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/graphalgo"
	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/vectorstore"
)

var (
	rankLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "capgateway_search_rank_duration_seconds",
		Help: "Latency of Unified Search ranking requests.",
	})
	rankLexicalFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgateway_search_lexical_fallback_total",
		Help: "Ranking requests that fell back to BM25 because the embedder was unavailable.",
	})
	rankCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgateway_search_cache_hits_total",
		Help: "Ranking requests served from the result cache.",
	})
)

// Config bundles Ranker's construction-time dependencies and tunables.
type Config struct {
	Graph    *graphstore.Store
	Vectors  *vectorstore.Cache
	Scorer   *shgat.Scorer // optional; supplies HeadWeights for explainability
	Embedder Embedder

	KSem   int // semantic candidate fan-out across all kinds; default 50
	KGraph int // graph-derived candidate cap; default 100

	HeatDiffusion graphalgo.HeatDiffusionOptions

	AdaptiveAlphaFloor float64
	ReliabilityPenalty float64
	ReliabilityBoost   float64

	DefaultLimit    int
	DefaultMinScore float64

	CacheTTL time.Duration

	Logger *slog.Logger
}

// Ranker implements Component G: it answers a ranking request by blending
// embedding-index similarity with graph-propagated activation, scaled by
// candidate reliability.
type Ranker struct {
	cfg     Config
	logger  *slog.Logger
	lexical lexicalIndex
	cache   *resultCache
}

// New constructs a Ranker, filling in zero-valued tunables with the
// defaults named in the external ranking API.
func New(cfg Config) *Ranker {
	if cfg.KSem <= 0 {
		cfg.KSem = 50
	}
	if cfg.KGraph <= 0 {
		cfg.KGraph = 100
	}
	if cfg.HeatDiffusion.Steps == 0 {
		cfg.HeatDiffusion = graphalgo.DefaultHeatDiffusionOptions()
	}
	if cfg.AdaptiveAlphaFloor == 0 {
		cfg.AdaptiveAlphaFloor = 0.5
	}
	if cfg.ReliabilityPenalty == 0 {
		cfg.ReliabilityPenalty = 0.1
	}
	if cfg.ReliabilityBoost == 0 {
		cfg.ReliabilityBoost = 1.2
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.DefaultMinScore == 0 {
		cfg.DefaultMinScore = 0.3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{cfg: cfg, logger: logger, cache: newResultCache(cfg.CacheTTL)}
}

// Rank answers one ranking request. It never returns an error for a
// degraded embedder; it falls back to BM25 lexical scoring instead. It
// does return an error for a request with neither an intent embedding nor
// intent text. The dimension of a precomputed embedding is not checked.
func (r *Ranker) Rank(ctx context.Context, opts Options) (Response, error) {
	timer := prometheus.NewTimer(rankLatency)
	defer timer.ObserveDuration()

	opts = applyDefaults(opts, r.cfg)
	snap := r.cfg.Graph.Current()

	var activeHeads []bool
	if r.cfg.Scorer != nil {
		activeHeads = r.cfg.Scorer.ActiveHeadsMask()
	}
	key := cacheKey(opts, snap.Version, activeHeads)
	if cached, ok := r.cache.get(key); ok {
		rankCacheHits.Inc()
		return cached, nil
	}

	resp, err := r.rank(ctx, opts, snap)
	if err != nil {
		return Response{}, err
	}
	r.cache.put(key, resp)
	return resp, nil
}

func applyDefaults(opts Options, cfg Config) Options {
	if opts.Limit <= 0 {
		opts.Limit = cfg.DefaultLimit
	}
	if opts.MinScore == 0 {
		opts.MinScore = cfg.DefaultMinScore
	}
	if opts.Filter == "" {
		opts.Filter = FilterBoth
	}
	return opts
}

func (r *Ranker) rank(ctx context.Context, opts Options, snap *graphstore.Snapshot) (Response, error) {
	queryEmbedding, lexicalScores, lexicalFallback, err := r.resolveIntent(ctx, opts)
	if err != nil {
		return Response{}, err
	}
	if lexicalFallback {
		rankLexicalFallbacks.Inc()
	}

	candidates, incomplete := r.gatherCandidates(ctx, opts, snap, queryEmbedding, lexicalScores)

	heat := map[string]float64{}
	if len(opts.Context) > 0 {
		heat = graphalgo.HeatDiffusion(snap, opts.Context, r.cfg.HeatDiffusion)
	}
	alpha := adaptiveAlpha(snap, r.cfg.AdaptiveAlphaFloor)

	results := make([]Result, 0, len(candidates))
	for id, kind := range candidates {
		if !matchesFilter(kind, opts.Filter) {
			continue
		}
		res := r.scoreCandidate(ctx, snap, id, kind, queryEmbedding, lexicalScores, lexicalFallback, heat, alpha)
		results = append(results, res)
	}

	results = appendPinned(ctx, results, r, snap, opts, queryEmbedding, lexicalScores, lexicalFallback, heat, alpha)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	filtered := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Pinned || res.Score >= opts.MinScore {
			filtered = append(filtered, res)
		}
	}

	nonPinned := 0
	final := make([]Result, 0, len(filtered))
	for _, res := range filtered {
		if res.Pinned {
			final = append(final, res)
			continue
		}
		if nonPinned >= opts.Limit {
			continue
		}
		final = append(final, res)
		nonPinned++
	}

	resp := Response{Results: final, Incomplete: incomplete, LexicalFallback: lexicalFallback}
	if opts.MinConfidence > 0 && (len(final) == 0 || topScore(final) < opts.MinConfidence) {
		resp.EscalationRecommended = true
	}
	return resp, nil
}

func topScore(results []Result) float64 {
	best := 0.0
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}

// resolveIntent embeds opts.Intent (or returns a precomputed embedding
// as given, without checking its dimension), falling back to BM25 lexical scores when no embedder is configured or
// encoding fails, so a degraded embedding model never blocks ranking
// entirely.
func (r *Ranker) resolveIntent(ctx context.Context, opts Options) (embedding []float32, lexical map[string]float64, fallback bool, err error) {
	if len(opts.IntentEmbedding) > 0 {
		return opts.IntentEmbedding, nil, false, nil
	}
	if opts.Intent == "" {
		return nil, nil, false, gatewayerr.New(gatewayerr.KindDimensionMismatch, "rank requires an intent embedding or intent text")
	}
	if r.cfg.Embedder == nil {
		return nil, r.lexicalFallback(opts), true, nil
	}
	vec, encErr := r.cfg.Embedder.Encode(ctx, opts.Intent)
	if encErr != nil {
		r.logger.Warn("search: embedder encode failed, falling back to lexical scoring",
			slog.String("error", encErr.Error()))
		return nil, r.lexicalFallback(opts), true, nil
	}
	return vec, nil, false, nil
}

func (r *Ranker) lexicalFallback(opts Options) map[string]float64 {
	idx := r.lexical.forSnapshot(r.cfg.Graph.Current())
	return idx.Score(opts.Intent)
}

func matchesFilter(kind shgat.CandidateKind, filter Filter) bool {
	switch filter {
	case FilterToolsOnly:
		return kind == shgat.CandidateTool
	case FilterCapabilities:
		return kind == shgat.CandidateCapability
	default:
		return true
	}
}
