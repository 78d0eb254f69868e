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

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
)

// EventSink receives notifications after a mutation's snapshot pointer
// flip, so subscribers only ever observe committed state. Component H
// implements this; Store depends only on the interface to avoid an import
// cycle.
type EventSink interface {
	CapabilityCreated(fqdn string)
	CapabilityUpdated(fqdn string)
	CapabilityMerged(oldFQDN, newFQDN string)
}

type noopSink struct{}

func (noopSink) CapabilityCreated(string)        {}
func (noopSink) CapabilityUpdated(string)        {}
func (noopSink) CapabilityMerged(string, string) {}

// Store is Component B: the in-memory directed weighted multigraph of
// tools plus the hypergraph of capabilities, published via an atomic
// snapshot pointer so readers never block on writers.
//
// # Thread Safety
//
// Exactly one mutation runs at a time (writeMu). Reads via Current() never
// take a lock: they load the atomic pointer and walk an immutable
// Snapshot.
type Store struct {
	writeMu sync.Mutex
	ptr     atomic.Pointer[Snapshot]
	sink    EventSink
	logger  *slog.Logger
}

// New creates an empty Store. sink may be nil to run without event
// notification (the correct mode for tests).
func New(sink EventSink, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = noopSink{}
	}
	st := &Store{sink: sink, logger: logger}
	st.ptr.Store(newEmptySnapshot())
	return st
}

// SetSink replaces the store's event sink. Wiring code that builds a sink
// depending on the store itself (Component H's controller both consumes
// Store mutations and drives them) constructs the Store with a nil sink
// first, builds the sink, then calls SetSink before any mutation occurs.
func (st *Store) SetSink(sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	st.sink = sink
}

// Current returns the current immutable snapshot. Safe to call without
// holding any lock.
func (st *Store) Current() *Snapshot {
	return st.ptr.Load()
}

// mutate runs fn against a clone of the current snapshot under the write
// lock, bumps the version, publishes the new snapshot, then invokes notify
// before releasing the lock.
func (st *Store) mutate(fn func(s *Snapshot) error, notify func()) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	cur := st.ptr.Load()
	next := cur.clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Version = cur.Version + 1
	st.ptr.Store(next)
	if notify != nil {
		notify()
	}
	return nil
}

// AddOrGetTool returns the existing tool with id, or creates it with the
// given description and embedding if absent: tools are created when first
// observed.
func (st *Store) AddOrGetTool(id, description string, embedding []float32) (*Tool, error) {
	if err := checkUnitNorm(embedding); err != nil {
		return nil, err
	}
	var out *Tool
	err := st.mutate(func(s *Snapshot) error {
		if existing, ok := s.tools[id]; ok {
			out = existing
			return nil
		}
		t := &Tool{
			ID:          id,
			Description: description,
			Embedding:   embedding,
			LastSeen:    now(),
		}
		s.tools[id] = t
		out = t
		return nil
	}, nil)
	return out, err
}

// TouchToolUse records a use of tool id, incrementing usage count and, if
// success is true, the success count (I4: success <= usage is maintained
// by construction here).
func (st *Store) TouchToolUse(id string, success bool) error {
	return st.mutate(func(s *Snapshot) error {
		t, ok := s.tools[id]
		if !ok {
			return gatewayerr.New(gatewayerr.KindUnknownID, "unknown tool: "+id)
		}
		cp := *t
		cp.UsageCount++
		if success {
			cp.SuccessCount++
		}
		cp.LastSeen = now()
		s.tools[id] = &cp
		return nil
	}, nil)
}

// AddOrGetCapabilityInput describes a capability to create.
type AddOrGetCapabilityInput struct {
	Namespace        string
	Action           string
	Org              string
	Project          string
	Description      string
	Embedding        []float32
	Members          []string
	CanonicalContent []byte // code/command+args/url+env-keys, whichever the tool kind defines
}

// AddOrGetCapability computes the integrity hash and FQDN for input, and
// either returns the existing capability sharing that hash (I5) or creates
// a new one after validating members exist (I1) and the contains hierarchy
// is acyclic with a correct hierarchy_level (I2).
func (st *Store) AddOrGetCapability(in AddOrGetCapabilityInput) (*Capability, error) {
	if err := checkUnitNorm(in.Embedding); err != nil {
		return nil, err
	}
	hash := IntegrityHash(in.CanonicalContent)
	short := ShortHash(hash)

	var out *Capability
	var created bool
	err := st.mutate(func(s *Snapshot) error {
		if existingFQDN, ok := s.hashIndex[hash]; ok {
			existing, ok := s.capabilities[existingFQDN]
			if ok {
				out = existing
				return nil
			}
		}

		for _, m := range in.Members {
			if !memberExists(s, m) {
				return gatewayerr.New(gatewayerr.KindIntegrityViolation,
					fmt.Sprintf("capability member %q does not exist", m))
			}
		}

		fqdn := FQDN(in.Org, in.Project, in.Namespace, in.Action, short)
		level, err := computeHierarchyLevel(s, fqdn, in.Members)
		if err != nil {
			return err
		}

		c := &Capability{
			FQDN:           fqdn,
			ShortHash:      short,
			IntegrityHash:  hash,
			Description:    in.Description,
			Embedding:      in.Embedding,
			Members:        append([]string(nil), in.Members...),
			HierarchyLevel: level,
			LastUsed:       now(),
		}
		s.capabilities[fqdn] = c
		s.hashIndex[hash] = fqdn
		for _, m := range in.Members {
			s.memberOf[m] = append(s.memberOf[m], fqdn)
		}
		out = c
		created = true
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	if created {
		st.sink.CapabilityCreated(out.FQDN)
	}
	return out, nil
}

// UpdateCapabilityMembers replaces the member list of an existing
// capability, re-validating I1/I2 and recomputing hierarchy_level.
func (st *Store) UpdateCapabilityMembers(fqdn string, members []string) error {
	err := st.mutate(func(s *Snapshot) error {
		c, ok := s.capabilities[fqdn]
		if !ok {
			return gatewayerr.New(gatewayerr.KindUnknownID, "unknown capability: "+fqdn)
		}
		for _, m := range members {
			if !memberExists(s, m) {
				return gatewayerr.New(gatewayerr.KindIntegrityViolation,
					fmt.Sprintf("capability member %q does not exist", m))
			}
		}
		level, err := computeHierarchyLevel(s, fqdn, members)
		if err != nil {
			return err
		}

		for _, old := range c.Members {
			s.memberOf[old] = removeString(s.memberOf[old], fqdn)
		}
		cp := *c
		cp.Members = append([]string(nil), members...)
		cp.HierarchyLevel = level
		s.capabilities[fqdn] = &cp
		for _, m := range members {
			s.memberOf[m] = append(s.memberOf[m], fqdn)
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}
	st.sink.CapabilityUpdated(fqdn)
	return nil
}

// MergeCapabilities unifies two capabilities sharing an integrity hash:
// redirects inbound references to the canonical (oldest) FQDN, aggregates
// usage/success counts, and marks the non-canonical one as an alias
// .
func (st *Store) MergeCapabilities(fqdnA, fqdnB string) (canonical string, err error) {
	var absorbed string
	err = st.mutate(func(s *Snapshot) error {
		a, ok := s.capabilities[fqdnA]
		if !ok {
			return gatewayerr.New(gatewayerr.KindUnknownID, "unknown capability: "+fqdnA)
		}
		b, ok := s.capabilities[fqdnB]
		if !ok {
			return gatewayerr.New(gatewayerr.KindUnknownID, "unknown capability: "+fqdnB)
		}
		if a.IntegrityHash != b.IntegrityHash {
			return gatewayerr.New(gatewayerr.KindIntegrityViolation,
				"cannot merge capabilities with different integrity hashes")
		}

		keep, drop := a, b
		if b.LastUsed.Before(a.LastUsed) {
			keep, drop = b, a
		}

		mergedCp := *keep
		mergedCp.UsageCount = a.UsageCount + b.UsageCount
		mergedCp.SuccessCount = a.SuccessCount + b.SuccessCount
		s.capabilities[keep.FQDN] = &mergedCp

		aliasCp := *drop
		aliasCp.AliasOf = keep.FQDN
		s.capabilities[drop.FQDN] = &aliasCp
		s.hashIndex[drop.IntegrityHash] = keep.FQDN

		// Redirect inbound references: any capability listing drop.FQDN as
		// a member now lists keep.FQDN instead.
		for _, parentFQDN := range s.memberOf[drop.FQDN] {
			parent, ok := s.capabilities[parentFQDN]
			if !ok {
				continue
			}
			pc := *parent
			pc.Members = replaceString(pc.Members, drop.FQDN, keep.FQDN)
			s.capabilities[parentFQDN] = &pc
			s.memberOf[keep.FQDN] = append(s.memberOf[keep.FQDN], parentFQDN)
		}
		delete(s.memberOf, drop.FQDN)
		canonical = keep.FQDN
		absorbed = drop.FQDN
		return nil
	}, nil)
	if err != nil {
		return "", err
	}
	st.sink.CapabilityMerged(absorbed, canonical)
	return canonical, nil
}

// ObserveEdge records an observation of a tool->tool edge, updating
// confidence as a monotone function of observed-count modulated by source
// .
func (st *Store) ObserveEdge(from, to string, source EdgeSource, typ EdgeType) error {
	return st.mutate(func(s *Snapshot) error {
		if _, ok := s.tools[from]; !ok {
			return gatewayerr.New(gatewayerr.KindUnknownID, "unknown tool: "+from)
		}
		if _, ok := s.tools[to]; !ok {
			return gatewayerr.New(gatewayerr.KindUnknownID, "unknown tool: "+to)
		}
		key := edgeKey{from: from, to: to}
		e, existed := s.edges[key]
		var observed uint64 = 1
		if existed {
			observed = e.ObservedCount + 1
		}
		cp := Edge{
			From:          from,
			To:            to,
			ObservedCount: observed,
			Confidence:    confidenceFor(observed, source),
			Source:        source,
			LastObserved:  now(),
			Type:          typ,
		}
		s.edges[key] = &cp
		if !existed {
			s.outEdges[from] = append(s.outEdges[from], key)
			s.inEdges[to] = append(s.inEdges[to], key)
		}
		return nil
	}, nil)
}

// confidenceFor computes confidence as a monotone, saturating function of
// observed-count, with user-sourced edges starting from a higher base than
// learned ones.
func confidenceFor(observedCount uint64, source EdgeSource) float64 {
	base := 0.5
	if source == EdgeSourceUser {
		base = 0.8
	}
	// Saturating growth toward 1.0; asymptote controlled by a decay
	// constant so a handful of observations already moves confidence
	// meaningfully without ever reaching exactly 1.
	growth := 1 - math.Exp(-float64(observedCount)/3.0)
	conf := base + (1-base)*growth
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func memberExists(s *Snapshot, id string) bool {
	if _, ok := s.tools[id]; ok {
		return true
	}
	_, ok := s.capabilities[id]
	return ok
}

// computeHierarchyLevel enforces I2: no cycle through contains edges (here,
// capability membership of another capability), and hierarchy_level =
// 1 + max(level of contained capability), 0 for a leaf with no nested
// capability members.
//
// A proposed member m closes a cycle with self iff self already contains m
// transitively, i.e. m is an ancestor of self: walking up from self through
// memberOf (parent, grandparent, ...) and finding m among them means a path
// m -> ... -> self already exists, so adding self -> m would close the
// loop. selfFQDN is the capability being created or updated; an empty
// string (never a valid FQDN) disables the self/ancestor checks, which a
// freshly-created capability has no need for since nothing can reference it
// yet.
func computeHierarchyLevel(s *Snapshot, selfFQDN string, members []string) (int, error) {
	var ancestors map[string]struct{}
	if selfFQDN != "" {
		ancestors = ancestorsOf(s, selfFQDN)
	}

	level := 0
	for _, m := range members {
		if m == selfFQDN {
			return 0, gatewayerr.New(gatewayerr.KindCycleDetected,
				fmt.Sprintf("capability %q cannot contain itself", selfFQDN))
		}
		if _, isAncestor := ancestors[m]; isAncestor {
			return 0, gatewayerr.New(gatewayerr.KindCycleDetected,
				fmt.Sprintf("adding %q as a member of %q would create a contains cycle", m, selfFQDN))
		}
		child, ok := s.capabilities[m]
		if !ok {
			continue // tool member: contributes level 0
		}
		if child.HierarchyLevel+1 > level {
			level = child.HierarchyLevel + 1
		}
	}
	return level, nil
}

// ancestorsOf walks up from fqdn through memberOf (every capability that
// lists fqdn, or one of its ancestors, as a member) and returns the full
// ancestor set.
func ancestorsOf(s *Snapshot, fqdn string) map[string]struct{} {
	seen := make(map[string]struct{})
	queue := []string{fqdn}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, parent := range s.memberOf[cur] {
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			queue = append(queue, parent)
		}
	}
	return seen
}

func removeString(s []string, target string) []string {
	out := s[:0:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func replaceString(s []string, old, new string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		if v == old {
			out[i] = new
		} else {
			out[i] = v
		}
	}
	return out
}

func checkUnitNorm(v []float32) error {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1) > 1e-6 {
		return gatewayerr.New(gatewayerr.KindDimensionMismatch,
			fmt.Sprintf("embedding is not unit-norm (norm=%f)", norm))
	}
	return nil
}

var nowFn = time.Now

func now() time.Time { return nowFn() }
