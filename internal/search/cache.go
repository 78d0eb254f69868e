// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// resultCache memoizes a Response under a content hash of the request
// shape, the graph snapshot version, and the active heads mask. Unlike a
// long-lived embedding cache, entries here expire quickly: a ranking
// result reflects live reliability counters, not a static embedding, so
// staleness must be bounded independently of the snapshot-version key.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	response Response
	expires  time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &resultCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *resultCache) get(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Response{}, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return Response{}, false
	}
	return e.response, true
}

func (c *resultCache) put(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: resp, expires: time.Now().Add(c.ttl)}
}

// cacheKey derives a stable key from the request shape plus the
// corpus-identifying inputs (snapshot version, active heads mask) that
// invalidate a cached ranking when the graph or scorer configuration
// changes underneath it.
func cacheKey(opts Options, snapshotVersion uint64, activeHeads []bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "intent=%s\n", opts.Intent)
	if len(opts.IntentEmbedding) > 0 {
		h := sha256.Sum256(float32sToBytes(opts.IntentEmbedding))
		fmt.Fprintf(&b, "embedding=%s\n", hex.EncodeToString(h[:]))
	}
	ctx := append([]string(nil), opts.Context...)
	sort.Strings(ctx)
	fmt.Fprintf(&b, "context=%s\n", strings.Join(ctx, ","))
	pinned := append([]string(nil), opts.Pinned...)
	sort.Strings(pinned)
	fmt.Fprintf(&b, "pinned=%s\n", strings.Join(pinned, ","))
	fmt.Fprintf(&b, "filter=%s\nlimit=%d\nminScore=%f\nminConfidence=%f\n",
		opts.Filter, opts.Limit, opts.MinScore, opts.MinConfidence)
	fmt.Fprintf(&b, "snapshot=%d\nheads=%s\n", snapshotVersion, headsMaskString(activeHeads))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func headsMaskString(mask []bool) string {
	var b strings.Builder
	for _, active := range mask {
		if active {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func float32sToBytes(v []float32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, f := range v {
		bits := math.Float32bits(f)
		out = append(out, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	return out
}
