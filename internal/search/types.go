// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search is Component G: unified ranking over tools and
// capabilities, blending semantic similarity against the embedding index
// with graph-propagated activation from a caller-supplied context, scaled
// by each candidate's observed reliability.
package search

import (
	"context"

	"github.com/AleutianAI/capgateway/internal/shgat"
)

// Filter restricts the candidate kinds a ranking request considers.
type Filter string

const (
	FilterBoth         Filter = "both"
	FilterToolsOnly    Filter = "tools"
	FilterCapabilities Filter = "capabilities"
)

// Embedder is the narrow encode/dispose boundary Unified Search needs from
// an embedding model. vectorstore and shgat depend on the same shape.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Options configures one ranking request.
type Options struct {
	// Intent is raw text to embed. Ignored if IntentEmbedding is set.
	Intent string
	// IntentEmbedding is a precomputed embedding; takes precedence over Intent.
	IntentEmbedding []float32
	// Context lists seed tool/capability ids whose neighborhood biases the
	// graph term and from which heat diffusion propagates.
	Context []string
	// Limit caps the number of non-pinned results returned. Default 10.
	Limit int
	// MinScore discards non-pinned candidates scoring below it. Default 0.3.
	MinScore float64
	// Filter restricts candidate kinds. Default FilterBoth.
	Filter Filter
	// Pinned ids are always present in the result with Pinned=true,
	// regardless of score or Limit. An id absent from the graph is
	// skipped with a logged warning rather than failing the request.
	Pinned []string
	// MinConfidence, if > 0, sets EscalationRecommended on the response
	// when the top result's score falls below it.
	MinConfidence float64
}

// Result is one ranked candidate.
type Result struct {
	ID          string
	Kind        shgat.CandidateKind
	Score       float64
	HeadWeights []float64
	Reliability float64
	Semantic    float64
	Graph       float64
	Pinned      bool
}

// Response is the outcome of a ranking request.
type Response struct {
	Results               []Result
	EscalationRecommended bool
	Incomplete            bool
	LexicalFallback       bool
}
