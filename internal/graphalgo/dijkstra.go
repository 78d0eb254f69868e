// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphalgo

import (
	"container/heap"
	"math"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// PathResult is the outcome of a Dijkstra shortest-path query.
type PathResult struct {
	Distance float64
	Path     []string // from source to target inclusive; nil if unreachable
	Found    bool
}

// Dijkstra finds the shortest path from source to target over edges
// weighted by InverseConfidenceWeight, so higher-confidence edges are
// preferentially traversed.
func Dijkstra(snap *graphstore.Snapshot, source, target string) PathResult {
	if _, ok := snap.Tool(source); !ok {
		return PathResult{}
	}
	dist := map[string]float64{source: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &priorityQueue{{id: source, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if cur.id == target {
			break
		}
		for _, e := range snap.Neighbors(cur.id, false) {
			if visited[e.To] {
				continue
			}
			alt := dist[cur.id] + e.InverseConfidenceWeight()
			if existing, ok := dist[e.To]; !ok || alt < existing {
				dist[e.To] = alt
				prev[e.To] = cur.id
				heap.Push(pq, pqItem{id: e.To, dist: alt})
			}
		}
	}

	d, ok := dist[target]
	if !ok {
		return PathResult{Distance: math.Inf(1)}
	}
	path := []string{target}
	for cur := target; cur != source; {
		p, ok := prev[cur]
		if !ok {
			return PathResult{Distance: math.Inf(1)}
		}
		path = append([]string{p}, path...)
		cur = p
	}
	return PathResult{Distance: d, Path: path, Found: true}
}

type pqItem struct {
	id   string
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
