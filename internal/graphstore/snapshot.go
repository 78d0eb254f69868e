// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

// Snapshot is an immutable view of the graph at a point in time. Mutations
// never modify a Snapshot in place; Store.mutate builds a new one and
// publishes it atomically, giving readers a single-writer/many-readers
// view with no locking on the read path.
type Snapshot struct {
	Version uint64

	tools        map[string]*Tool
	capabilities map[string]*Capability
	edges        map[edgeKey]*Edge
	// outEdges/inEdges index edges by endpoint for O(degree) neighbor walks.
	outEdges map[string][]edgeKey
	inEdges  map[string][]edgeKey
	// memberOf indexes, for a tool or capability id, every capability that
	// lists it as a member (the reverse of Capability.Members).
	memberOf map[string][]string
	// hashIndex maps integrity hash -> canonical FQDN, for merge/dedup (I5).
	hashIndex map[string]string
}

type edgeKey struct {
	from string
	to   string
}

func newEmptySnapshot() *Snapshot {
	return &Snapshot{
		tools:        make(map[string]*Tool),
		capabilities: make(map[string]*Capability),
		edges:        make(map[edgeKey]*Edge),
		outEdges:     make(map[string][]edgeKey),
		inEdges:      make(map[string][]edgeKey),
		memberOf:     make(map[string][]string),
		hashIndex:    make(map[string]string),
	}
}

// clone produces a shallow-structural copy whose top-level maps are
// independent (so the mutator can add/remove/replace entries) but whose
// *Tool/*Capability/*Edge values are shared until replaced — cheap because
// Store's write path always replaces rather than mutates an entry in
// place.
func (s *Snapshot) clone() *Snapshot {
	cp := &Snapshot{
		Version:      s.Version,
		tools:        make(map[string]*Tool, len(s.tools)),
		capabilities: make(map[string]*Capability, len(s.capabilities)),
		edges:        make(map[edgeKey]*Edge, len(s.edges)),
		outEdges:     make(map[string][]edgeKey, len(s.outEdges)),
		inEdges:      make(map[string][]edgeKey, len(s.inEdges)),
		memberOf:     make(map[string][]string, len(s.memberOf)),
		hashIndex:    make(map[string]string, len(s.hashIndex)),
	}
	for k, v := range s.tools {
		cp.tools[k] = v
	}
	for k, v := range s.capabilities {
		cp.capabilities[k] = v
	}
	for k, v := range s.edges {
		cp.edges[k] = v
	}
	for k, v := range s.outEdges {
		cp.outEdges[k] = append([]edgeKey(nil), v...)
	}
	for k, v := range s.inEdges {
		cp.inEdges[k] = append([]edgeKey(nil), v...)
	}
	for k, v := range s.memberOf {
		cp.memberOf[k] = append([]string(nil), v...)
	}
	for k, v := range s.hashIndex {
		cp.hashIndex[k] = v
	}
	return cp
}

// Tool returns the tool with the given id, if present.
func (s *Snapshot) Tool(id string) (*Tool, bool) {
	t, ok := s.tools[id]
	return t, ok
}

// Capability returns the capability with the given FQDN, following the
// alias chain to its end if the FQDN was superseded by a merge.
func (s *Snapshot) Capability(fqdn string) (*Capability, bool) {
	c, ok := s.capabilities[fqdn]
	if !ok {
		return nil, false
	}
	if c.AliasOf != "" {
		return s.Capability(c.AliasOf)
	}
	return c, true
}

// AllTools returns every tool, including deprecated ones.
func (s *Snapshot) AllTools() []*Tool {
	out := make([]*Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	return out
}

// AllCapabilities returns every non-aliased capability.
func (s *Snapshot) AllCapabilities() []*Capability {
	out := make([]*Capability, 0, len(s.capabilities))
	for _, c := range s.capabilities {
		if c.AliasOf == "" {
			out = append(out, c)
		}
	}
	return out
}

// Neighbors returns the outgoing edges from id, excluding tentative edges
// unless includeTentative is true.
func (s *Snapshot) Neighbors(id string, includeTentative bool) []*Edge {
	keys := s.outEdges[id]
	out := make([]*Edge, 0, len(keys))
	for _, k := range keys {
		e := s.edges[k]
		if e == nil {
			continue
		}
		if !includeTentative && e.Tentative() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// InNeighbors returns the incoming edges to id, excluding tentative edges
// unless includeTentative is true.
func (s *Snapshot) InNeighbors(id string, includeTentative bool) []*Edge {
	keys := s.inEdges[id]
	out := make([]*Edge, 0, len(keys))
	for _, k := range keys {
		e := s.edges[k]
		if e == nil {
			continue
		}
		if !includeTentative && e.Tentative() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HyperedgesContaining returns every capability whose Members includes id.
func (s *Snapshot) HyperedgesContaining(id string) []*Capability {
	fqdns := s.memberOf[id]
	out := make([]*Capability, 0, len(fqdns))
	for _, fqdn := range fqdns {
		if c, ok := s.Capability(fqdn); ok {
			out = append(out, c)
		}
	}
	return out
}

// Subgraph returns the induced subgraph (tools, capabilities, edges) over
// the given node ids, for algorithms that operate on a bounded region
// rather than the whole graph.
func (s *Snapshot) Subgraph(ids []string) *Snapshot {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	sub := newEmptySnapshot()
	sub.Version = s.Version
	for id := range want {
		if t, ok := s.tools[id]; ok {
			sub.tools[id] = t
		}
		if c, ok := s.capabilities[id]; ok {
			sub.capabilities[id] = c
		}
	}
	for k, e := range s.edges {
		if want[k.from] && want[k.to] {
			sub.edges[k] = e
			sub.outEdges[k.from] = append(sub.outEdges[k.from], k)
			sub.inEdges[k.to] = append(sub.inEdges[k.to], k)
		}
	}
	return sub
}
