// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bm25 ranks an arbitrary corpus of short text documents against a
// query using Okapi BM25. It serves as the lexical fallback ranking path
// when embedding-based semantic search is unavailable or inconclusive.
package bm25

import (
	"math"
	"regexp"
	"strings"
)

// Tuning constants. Standard values recommended by Robertson et al.
const (
	// k1 controls term frequency saturation. Higher = slower saturation.
	// Range [1.2, 2.0] is typical; 1.5 is a robust middle ground.
	k1 = 1.5

	// b controls document length normalization. 0 = no normalization,
	// 1 = full normalization; 0.75 is the standard default.
	b = 0.75
)

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonWord       = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// noiseWords are dropped during tokenization: too common to carry ranking
// signal on their own, the way stopword lists work for any BM25 corpus.
var noiseWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "with": true,
	"is": true, "are": true, "be": true, "this": true, "that": true,
}

// Tokenize splits text into a deduplicated lowercase term set: it splits on
// non-word delimiters, breaks camelCase boundaries, and drops noise words.
func Tokenize(text string) map[string]bool {
	text = camelBoundary.ReplaceAllString(text, "$1 $2")
	text = strings.ToLower(text)
	fields := nonWord.Split(text, -1)

	terms := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == "" || noiseWords[f] {
			continue
		}
		terms[f] = true
	}
	return terms
}

// doc holds the BM25 representation of a single corpus document.
type doc struct {
	id  string
	tf  map[string]int
	len int
}

// Index is a pre-built inverted index over a corpus of documents, each
// identified by an opaque id (a tool id or capability FQDN).
//
// # Thread Safety
//
// Index is immutable after construction via Build. Safe for concurrent use
// without additional synchronization.
type Index struct {
	docs   []doc
	idf    map[string]float64
	avgLen float64
}

// Document is one corpus entry to index: Text is the concatenation of
// whatever fields should contribute to lexical matching (name, description,
// keywords).
type Document struct {
	ID   string
	Text string
}

// Build constructs an Index from a corpus of documents. An empty corpus
// produces a valid index that scores every query as empty.
func Build(docs []Document) *Index {
	if len(docs) == 0 {
		return &Index{idf: make(map[string]float64)}
	}

	built := make([]doc, 0, len(docs))
	totalLen := 0
	df := make(map[string]int)

	for _, d := range docs {
		terms := Tokenize(d.Text)
		tf := make(map[string]int, len(terms))
		for t := range terms {
			tf[t] = 1
			df[t]++
		}
		built = append(built, doc{id: d.ID, tf: tf, len: len(tf)})
		totalLen += len(tf)
	}

	n := len(built)
	idf := make(map[string]float64, len(df))
	for term, docFreq := range df {
		idf[term] = math.Log(float64(n+1)/float64(docFreq+1)) + 1.0
	}

	return &Index{docs: built, idf: idf, avgLen: float64(totalLen) / float64(n)}
}

// IsEmpty reports whether the index has no documents.
func (idx *Index) IsEmpty() bool { return len(idx.docs) == 0 }

// Score computes a BM25 score for every document that shares at least one
// term with query, normalized to [0,1] by dividing by the maximum score in
// the result set.
func (idx *Index) Score(query string) map[string]float64 {
	if query == "" || len(idx.docs) == 0 {
		return map[string]float64{}
	}
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return map[string]float64{}
	}

	scores := make(map[string]float64, len(idx.docs))
	var maxScore float64
	for _, d := range idx.docs {
		s := score(queryTerms, d, idx.idf, idx.avgLen)
		if s > 0 {
			scores[d.id] = s
			if s > maxScore {
				maxScore = s
			}
		}
	}
	if maxScore > 0 {
		for id := range scores {
			scores[id] /= maxScore
		}
	}
	return scores
}

func score(queryTerms map[string]bool, d doc, idf map[string]float64, avgLen float64) float64 {
	dl := float64(d.len)
	var total float64
	for term := range queryTerms {
		tf, inDoc := d.tf[term]
		if !inDoc {
			continue
		}
		termIDF, known := idf[term]
		if !known {
			continue
		}
		tfFloat := float64(tf)
		numerator := tfFloat * (k1 + 1)
		lengthNorm := k1 * (1.0 - b + b*dl/avgLen)
		denominator := tfFloat + lengthNorm
		total += termIDF * (numerator / denominator)
	}
	return total
}
