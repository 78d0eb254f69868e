// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"sync"

	"github.com/AleutianAI/capgateway/internal/bm25"
	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// lexicalIndex lazily rebuilds a bm25.Index over tool and capability
// descriptions whenever the graph snapshot advances, so the fallback path
// in degraded mode (embedder unavailable) never scores against a stale
// corpus.
type lexicalIndex struct {
	mu      sync.Mutex
	version uint64
	idx     *bm25.Index
}

func (l *lexicalIndex) forSnapshot(snap *graphstore.Snapshot) *bm25.Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idx != nil && l.version == snap.Version {
		return l.idx
	}
	docs := make([]bm25.Document, 0, len(snap.AllTools())+len(snap.AllCapabilities()))
	for _, t := range snap.AllTools() {
		docs = append(docs, bm25.Document{ID: t.ID, Text: t.ID + " " + t.Description})
	}
	for _, c := range snap.AllCapabilities() {
		docs = append(docs, bm25.Document{ID: c.FQDN, Text: c.FQDN + " " + c.Description})
	}
	l.idx = bm25.Build(docs)
	l.version = snap.Version
	return l.idx
}
