// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/shgat"
)

// gatherCandidates unions the semantic candidate set (nearest neighbors in
// the embedding index, or the top lexical matches in fallback mode) with
// the graph candidate set (1-hop neighbors and enclosing hyperedges of
// every context seed), capped at KSem/KGraph. It returns incomplete=true
// if the caller's deadline expired before the graph expansion finished.
func (r *Ranker) gatherCandidates(ctx context.Context, opts Options, snap *graphstore.Snapshot, queryEmbedding []float32, lexicalScores map[string]float64) (map[string]shgat.CandidateKind, bool) {
	candidates := make(map[string]shgat.CandidateKind)

	if queryEmbedding != nil {
		matches, err := r.cfg.Vectors.Knn(ctx, queryEmbedding, r.cfg.KSem, "", nil)
		if err != nil {
			r.logger.Warn("search: semantic knn failed, continuing with graph candidates only",
				slog.String("error", err.Error()))
		}
		for _, m := range matches {
			if kind, ok := kindOf(snap, m.ID); ok {
				candidates[m.ID] = kind
			}
		}
	} else if len(lexicalScores) > 0 {
		for _, id := range topLexicalIDs(lexicalScores, r.cfg.KSem) {
			if kind, ok := kindOf(snap, id); ok {
				candidates[id] = kind
			}
		}
	}

	incomplete := false
	graphAdded := 0
	for _, seed := range opts.Context {
		if ctx.Err() != nil {
			incomplete = true
			break
		}
		for _, e := range snap.Neighbors(seed, false) {
			if graphAdded >= r.cfg.KGraph {
				break
			}
			if kind, ok := kindOf(snap, e.To); ok {
				if _, exists := candidates[e.To]; !exists {
					graphAdded++
				}
				candidates[e.To] = kind
			}
		}
		for _, c := range snap.HyperedgesContaining(seed) {
			if graphAdded >= r.cfg.KGraph {
				break
			}
			if _, exists := candidates[c.FQDN]; !exists {
				graphAdded++
			}
			candidates[c.FQDN] = shgat.CandidateCapability
		}
	}

	return candidates, incomplete
}

func topLexicalIDs(scores map[string]float64, limit int) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func kindOf(snap *graphstore.Snapshot, id string) (shgat.CandidateKind, bool) {
	if _, ok := snap.Tool(id); ok {
		return shgat.CandidateTool, true
	}
	if _, ok := snap.Capability(id); ok {
		return shgat.CandidateCapability, true
	}
	return "", false
}

// scoreCandidate computes one candidate's semantic, graph, and
// reliability terms and fuses them via the adaptive-alpha rule. In
// lexical-fallback mode the BM25 score stands in for semantic similarity
// directly (already normalized to [0,1]).
func (r *Ranker) scoreCandidate(
	ctx context.Context,
	snap *graphstore.Snapshot,
	id string,
	kind shgat.CandidateKind,
	queryEmbedding []float32,
	lexicalScores map[string]float64,
	lexicalFallback bool,
	heat map[string]float64,
	alpha float64,
) Result {
	var semantic float64
	if lexicalFallback {
		semantic = lexicalScores[id]
	} else {
		semantic = cosine(queryEmbedding, candidateEmbedding(snap, id))
	}

	graphTerm := graphActivation(snap, heat, id, 0)
	rel := reliability(snap, id, r.cfg.ReliabilityPenalty, r.cfg.ReliabilityBoost, 0)
	score := combine(alpha, semantic, graphTerm, rel)

	var headWeights []float64
	if r.cfg.Scorer != nil && queryEmbedding != nil {
		if sr, err := r.cfg.Scorer.Score(ctx, queryEmbedding, id, kind, nil); err == nil {
			headWeights = sr.HeadScores
		}
	}

	return Result{
		ID:          id,
		Kind:        kind,
		Score:       score,
		HeadWeights: headWeights,
		Reliability: rel,
		Semantic:    semantic,
		Graph:       graphTerm,
	}
}

func candidateEmbedding(snap *graphstore.Snapshot, id string) []float32 {
	if t, ok := snap.Tool(id); ok {
		return t.Embedding
	}
	if c, ok := snap.Capability(id); ok {
		return c.Embedding
	}
	return nil
}

// appendPinned adds every pinned candidate to results, computing its score
// if it was not already in the candidate set, and skipping (with a
// warning, never an error) any pinned id absent from the graph.
func appendPinned(
	ctx context.Context,
	results []Result,
	r *Ranker,
	snap *graphstore.Snapshot,
	opts Options,
	queryEmbedding []float32,
	lexicalScores map[string]float64,
	lexicalFallback bool,
	heat map[string]float64,
	alpha float64,
) []Result {
	if len(opts.Pinned) == 0 {
		return results
	}
	have := make(map[string]int, len(results))
	for i, res := range results {
		have[res.ID] = i
	}
	for _, id := range opts.Pinned {
		kind, ok := kindOf(snap, id)
		if !ok {
			r.logger.Warn("search: pinned id not found in graph, skipping", slog.String("id", id))
			continue
		}
		if i, exists := have[id]; exists {
			results[i].Pinned = true
			continue
		}
		res := r.scoreCandidate(ctx, snap, id, kind, queryEmbedding, lexicalScores, lexicalFallback, heat, alpha)
		res.Pinned = true
		results = append(results, res)
	}
	return results
}
