// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphsync is Component H: the single writer that applies
// capability-lifecycle events to the graph store in emission order, and
// fans the resulting, already-committed events out to anything watching
// for them.
package graphsync

import "github.com/AleutianAI/capgateway/internal/graphstore"

// Kind discriminates the three capability-lifecycle events this package
// consumes.
type Kind string

const (
	KindCapabilityCreated Kind = "capability.created"
	KindCapabilityUpdated Kind = "capability.updated"
	KindCapabilityMerged  Kind = "capability.merged"
)

// Event is one inbound capability-lifecycle notification, posted by
// whatever owns capability discovery and compilation (out of scope here).
// ID is the idempotency key: an event already applied under this ID is a
// silent no-op on redelivery.
type Event struct {
	ID   string
	Kind Kind

	// Created fields. Store computes the integrity hash and FQDN itself;
	// the event supplies everything AddOrGetCapability needs to do so.
	Org              string
	Project          string
	Namespace        string
	Action           string
	Description      string
	Embedding        []float32
	Members          []string
	CanonicalContent []byte

	// Updated fields. FQDN names the existing capability; Members is the
	// replacement member list. Store's UpdateCapabilityMembers has no
	// embedding parameter, so an Updated event that also sets Embedding
	// logs a warning and updates membership only (see DESIGN.md).
	FQDN string

	// Merged fields. The two capabilities being unified; Store itself
	// decides which one survives (the one with the older LastUsed), so
	// this package does not assume an ordering between them.
	MergeA string
	MergeB string
}

// Applied is an Event after it has been committed to the graph, broadcast
// to stream subscribers in application order.
type Applied struct {
	Event
	Canonical string // Merged: the FQDN that survived
	Absorbed  string // Merged: the FQDN that was folded into Canonical
	Err       string // set if application failed; still recorded for idempotency
}

// toCapabilityInput adapts a Created event to the Store's input shape.
func (e Event) toCapabilityInput() graphstore.AddOrGetCapabilityInput {
	return graphstore.AddOrGetCapabilityInput{
		Namespace:        e.Namespace,
		Action:           e.Action,
		Org:              e.Org,
		Project:          e.Project,
		Description:      e.Description,
		Embedding:        e.Embedding,
		Members:          e.Members,
		CanonicalContent: e.CanonicalContent,
	}
}
