// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracestore is Component D: the append-only trace log and the
// feature builder that derives TraceFeatures for a (candidate, context)
// pair from the rolling trace window.
package tracestore

import "time"

// Outcome is the terminal result of a tool/capability invocation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindNotFound   ErrorKind = "not-found"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// ErrorKinds enumerates every ErrorKind in a fixed order, used to index the
// six errorTypeAffinity scalars in TraceFeatures.
var ErrorKinds = [6]ErrorKind{
	ErrorKindTimeout, ErrorKindPermission, ErrorKindNotFound,
	ErrorKindValidation, ErrorKindNetwork, ErrorKindUnknown,
}

// Record is a single trace entry. Append-only and immutable after
// insertion.
type Record struct {
	WorkflowID      string
	StepIndex       int
	Timestamp       time.Time
	IntentText      string
	IntentEmbedding []float32
	ContextToolIDs  []string // ordered, last <= 5
	CandidateID     string
	Outcome         Outcome
	Duration        time.Duration
	ErrorKind       ErrorKind // empty if Outcome == success
}

// Features is the 17-scalar TraceStats vector, all values in [0,1] unless
// noted.
type Features struct {
	HistoricalSuccessRate    float64
	ContextualSuccessRate    float64
	IntentSimilarSuccessRate float64
	CooccurrenceWithContext  float64
	SequencePosition         float64
	RecencyScore             float64
	UsageFrequency           float64
	AvgExecutionTime         float64
	ErrorRecoveryRate        float64
	AvgPathLengthToSuccess   float64
	PathVariance             float64
	ErrorTypeAffinity        [6]float64
}

// DefaultFeatures returns the cold-start defaults: all 0.5 except counts
// (0) and path length (3).
func DefaultFeatures() Features {
	f := Features{
		HistoricalSuccessRate:    0.5,
		ContextualSuccessRate:    0.5,
		IntentSimilarSuccessRate: 0.5,
		CooccurrenceWithContext:  0.5,
		SequencePosition:         0.5,
		RecencyScore:             0.5,
		UsageFrequency:           0,
		AvgExecutionTime:         0.5,
		ErrorRecoveryRate:        0.5,
		AvgPathLengthToSuccess:   3,
		PathVariance:             0.5,
	}
	for i := range f.ErrorTypeAffinity {
		f.ErrorTypeAffinity[i] = 0.5
	}
	return f
}

// Slice returns the 17 scalars in a fixed order, for feeding the SHGAT
// fusion MLP.
func (f Features) Slice() [17]float64 {
	var out [17]float64
	out[0] = f.HistoricalSuccessRate
	out[1] = f.ContextualSuccessRate
	out[2] = f.IntentSimilarSuccessRate
	out[3] = f.CooccurrenceWithContext
	out[4] = f.SequencePosition
	out[5] = f.RecencyScore
	out[6] = f.UsageFrequency
	out[7] = f.AvgExecutionTime
	out[8] = f.ErrorRecoveryRate
	out[9] = f.AvgPathLengthToSuccess
	out[10] = f.PathVariance
	for i, v := range f.ErrorTypeAffinity {
		out[11+i] = v
	}
	return out
}
