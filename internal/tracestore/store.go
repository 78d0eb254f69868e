// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracestore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	workflowID string
	stepIndex  int
}

// Store is the append-only trace log: a lock-free-append queue in spirit,
// implemented here as a mutex-guarded slice since the engine's target
// trace volume does not warrant a true lock-free structure; what matters
// is the single-writer-per-key discipline, not the specific data
// structure.
//
// # Thread Safety
//
// Append is idempotent per (workflowId, stepIndex) and safe for concurrent
// callers. Recent/FeaturesFor take a read lock.
type Store struct {
	mu        sync.RWMutex
	records   []Record // time order
	seen      map[recordKey]bool
	retention time.Duration
	persist   *Persistence
	logger    *slog.Logger
}

// New creates a Store with the given retention window; records older than
// retention are garbage-collected by time. persist may be nil to run
// in-memory only.
func New(retention time.Duration, persist *Persistence, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Store{seen: make(map[recordKey]bool), retention: retention, persist: persist, logger: logger}
}

// Append inserts record, which is a no-op if (WorkflowID, StepIndex) was
// already recorded.
func (s *Store) Append(ctx context.Context, r Record) error {
	if !s.insert(r) {
		return nil
	}
	if s.persist != nil {
		if err := s.persist.Append(ctx, r); err != nil {
			s.logger.Warn("tracestore: persist append failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// insert adds r to the in-memory log without touching the persistence
// backend, reporting whether it was new. Used both by Append and by Warm,
// which replays already-persisted records and must not write them back.
func (s *Store) insert(r Record) bool {
	key := recordKey{workflowID: r.WorkflowID, stepIndex: r.StepIndex}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.records = append(s.records, r)
	sort.Slice(s.records, func(i, j int) bool { return s.records[i].Timestamp.Before(s.records[j].Timestamp) })
	return true
}

// GC drops records older than the retention window.
func (s *Store) GC() int {
	cutoff := time.Now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0:0]
	removed := 0
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			delete(s.seen, recordKey{workflowID: r.WorkflowID, stepIndex: r.StepIndex})
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed
}

// Recent returns the last n records in time order, or all records if fewer
// than n exist.
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n >= len(s.records) {
		out := make([]Record, len(s.records))
		copy(out, s.records)
		return out
	}
	out := make([]Record, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// RecentWindow returns every record within the last Δt window.
func (s *Store) RecentWindow(window time.Duration) []Record {
	cutoff := time.Now().Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns every retained record, for trainer batch construction.
func (s *Store) All() []Record {
	s.mu.RLock()
	n := len(s.records)
	s.mu.RUnlock()
	return s.Recent(n)
}
