// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replay is Component F: the prioritized experience replay buffer
// and the trainer that consumes it to fine-tune Component E's fusion MLP.
package replay

import (
	"math"
	"math/rand"
	"sync"

	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

// defaultMaxBufferSize is the buffer's default capacity cap.
const defaultMaxBufferSize = 50000

// Entry is one training example: a scored candidate and its realized
// outcome, with the priority PER samples against.
type Entry struct {
	IntentEmbedding []float32
	CandidateID     string
	CandidateKind   shgat.CandidateKind
	ContextToolIDs  []string
	Outcome         tracestore.Outcome
	Features        tracestore.Features
	HeadScores      []float64
	priority        float64
	seq             uint64 // insertion order, used for FIFO eviction/insertion ties
}

// Buffer is a bounded prioritized replay buffer.
//
// # Thread Safety
//
// Safe for concurrent use; a single writer (the ingestion path adding new
// examples) and the trainer (sampling, updating priorities) may operate
// concurrently.
type Buffer struct {
	mu      sync.Mutex
	entries []*Entry
	cap     int
	nextSeq uint64
	maxSeen float64
}

// NewBuffer creates a buffer with the given capacity, defaulting to 50000
// when capacity<=0.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultMaxBufferSize
	}
	return &Buffer{cap: capacity, maxSeen: 1}
}

// Add inserts e with priority equal to the maximum priority seen so far,
// guaranteeing it is sampled at least once. When full, the lowest-priority
// entry is evicted, ties broken FIFO (lowest seq wins).
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.priority = b.maxSeen
	e.seq = b.nextSeq
	b.nextSeq++

	if len(b.entries) < b.cap {
		b.entries = append(b.entries, &e)
		return
	}

	worst := 0
	for i := 1; i < len(b.entries); i++ {
		c := b.entries[i]
		w := b.entries[worst]
		if c.priority < w.priority || (c.priority == w.priority && c.seq < w.seq) {
			worst = i
		}
	}
	b.entries[worst] = &e
}

// Len reports how many entries are currently stored.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Sample draws n entries proportional to priority^alpha, returning their
// indices (stable within this buffer instance
// until the next Add causes an eviction), the entries themselves, and
// per-example importance-sampling weights w_i = (N*P(i))^-beta,
// normalized so the maximum weight in the batch is 1 (the standard PER
// convention, keeping gradient scale stable).
func (b *Buffer) Sample(n int, alpha, beta float64, rng *rand.Rand) ([]int, []*Entry, []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := len(b.entries)
	if total == 0 || n <= 0 {
		return nil, nil, nil
	}
	if n > total {
		n = total
	}

	weights := make([]float64, total)
	var sum float64
	for i, e := range b.entries {
		w := math.Pow(e.priority, alpha)
		weights[i] = w
		sum += w
	}
	if sum == 0 {
		sum = 1
	}
	probs := make([]float64, total)
	for i, w := range weights {
		probs[i] = w / sum
	}

	indices := make([]int, 0, n)
	entries := make([]*Entry, 0, n)
	isWeights := make([]float64, 0, n)
	maxISWeight := 0.0

	for k := 0; k < n; k++ {
		idx := sampleIndex(probs, rng)
		indices = append(indices, idx)
		entries = append(entries, b.entries[idx])

		p := probs[idx]
		if p <= 0 {
			p = 1.0 / float64(total)
		}
		w := math.Pow(float64(total)*p, -beta)
		isWeights = append(isWeights, w)
		if w > maxISWeight {
			maxISWeight = w
		}
	}
	if maxISWeight > 0 {
		for i := range isWeights {
			isWeights[i] /= maxISWeight
		}
	}
	return indices, entries, isWeights
}

func sampleIndex(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r <= cum {
			return i
		}
	}
	return len(probs) - 1
}

// UpdatePriority sets the priority of the entry at idx to the absolute
// TD-error observed during training, and tracks the running maximum so
// future Add calls continue to seed new entries at max priority.
func (b *Buffer) UpdatePriority(idx int, tdError float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx < 0 || idx >= len(b.entries) {
		return
	}
	p := math.Abs(tdError)
	if p == 0 {
		p = 1e-6
	}
	b.entries[idx].priority = p
	if p > b.maxSeen {
		b.maxSeen = p
	}
}
