// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gatewayerr defines the typed error kinds surfaced across the
// ranking and learning engine's component boundaries.
package gatewayerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error classes a caller needs to branch on.
type Kind string

const (
	// KindDimensionMismatch indicates a vector's dimension does not match
	// the engine's configured embeddingDim.
	KindDimensionMismatch Kind = "dimension_mismatch"

	// KindUnknownID indicates a reference to a tool, capability, or
	// candidate id that does not exist in the current snapshot.
	KindUnknownID Kind = "unknown_id"

	// KindIntegrityViolation indicates a structural invariant was violated
	// (e.g. a capability referencing a nonexistent member).
	KindIntegrityViolation Kind = "integrity_violation"

	// KindCycleDetected indicates a `contains` edge would introduce a
	// cycle in the capability hierarchy.
	KindCycleDetected Kind = "cycle_detected"

	// KindStorageUnavailable indicates a persistence backend (Badger,
	// Weaviate, GCS) could not be reached after retries.
	KindStorageUnavailable Kind = "storage_unavailable"

	// KindTrainingDiverged indicates NaN/Inf was observed mid-batch and
	// parameters were rolled back to the last checkpoint.
	KindTrainingDiverged Kind = "training_diverged"

	// KindDeadlineExceeded indicates a scoring or training deadline
	// elapsed before the operation finished.
	KindDeadlineExceeded Kind = "deadline_exceeded"

	// KindResourceExhausted indicates a bounded buffer (PER buffer,
	// vector index batch) is full and cannot accept more work.
	KindResourceExhausted Kind = "resource_exhausted"
)

// Error is the engine's typed error. It wraps an underlying cause while
// exposing a stable Kind for callers that need to branch (e.g. the API
// layer mapping to HTTP status codes).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error that wraps cause, annotating it with kind and
// message. If cause is nil, Wrap returns nil — mirrors errors.Wrap's
// nil-safety so call sites can do `return gatewayerr.Wrap(...)` unconditionally
// after an `if err != nil` guard without a second nil check.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: errors.WithStack(cause)}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
