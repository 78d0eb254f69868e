// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedmodel adapts external embedding models to the fixed-width
// vector contract Component A's vectorstore requires: encode(text) ->
// vector[D]. Models are pluggable behind the Model interface so the engine
// can run against a local Ollama-served model in production and a
// deterministic fake in tests.
package embedmodel

import (
	"context"
)

// Model encodes text into a fixed-dimension embedding vector.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Model interface {
	// Encode returns a dense vector for text. The returned vector need not
	// be unit-normalized; callers normalize before storage.
	Encode(ctx context.Context, text string) ([]float32, error)

	// Dim returns the dimensionality this model produces.
	Dim() int

	// Dispose releases any resources (HTTP clients, background workers)
	// held by the model.
	Dispose() error
}
