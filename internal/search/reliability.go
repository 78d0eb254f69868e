// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import "github.com/AleutianAI/capgateway/internal/graphstore"

const (
	reliabilityPenaltyThreshold = 0.5
	reliabilityBoostThreshold   = 0.9
)

// reliabilityFactor maps a success rate to a multiplier: a poor track
// record drags the final score down hard, a strong one gets a modest
// boost, and the broad middle band is left alone.
func reliabilityFactor(successRate, penalty, boost float64) float64 {
	switch {
	case successRate < reliabilityPenaltyThreshold:
		return penalty
	case successRate > reliabilityBoostThreshold:
		return boost
	default:
		return 1.0
	}
}

// toolSuccessRate returns a tool's observed success rate, treating an
// unexercised tool as neutral (no evidence of failure yet) rather than
// penalizing it for lack of usage.
func toolSuccessRate(t *graphstore.Tool) float64 {
	if t.UsageCount == 0 {
		return 1.0
	}
	return float64(t.SuccessCount) / float64(t.UsageCount)
}

func capabilitySuccessRate(c *graphstore.Capability) float64 {
	if c.UsageCount == 0 {
		return 1.0
	}
	return float64(c.SuccessCount) / float64(c.UsageCount)
}

// reliability computes the reliability term for a candidate: its own
// success-rate band multiplied by, for a capability, the minimum
// reliability of its members (transitiveReliability), so an unreliable
// member drags the whole capability down regardless of the capability's
// own track record.
func reliability(snap *graphstore.Snapshot, id string, penalty, boost float64, depth int) float64 {
	if depth > 8 {
		// Pathological self-referential membership; stop recursing rather
		// than looping forever.
		return 1.0
	}
	if t, ok := snap.Tool(id); ok {
		return reliabilityFactor(toolSuccessRate(t), penalty, boost)
	}
	c, ok := snap.Capability(id)
	if !ok {
		return 1.0
	}
	own := reliabilityFactor(capabilitySuccessRate(c), penalty, boost)
	if len(c.Members) == 0 {
		return own
	}
	transitive := 1.0
	for _, member := range c.Members {
		if r := reliability(snap, member, penalty, boost, depth+1); r < transitive {
			transitive = r
		}
	}
	return own * transitive
}
