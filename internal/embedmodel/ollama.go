// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedmodel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
)

// queryTimeout bounds a single encode call on the hot scoring path, so a
// stalled model server degrades a request rather than hanging it.
const queryTimeout = 3 * time.Second

// OllamaModel adapts an Ollama-served embedding model to the Model
// interface via langchaingo's embeddings.EmbedderClient.
//
// # Thread Safety
//
// Safe for concurrent use; langchaingo's client is stateless per call.
type OllamaModel struct {
	embedder embeddings.Embedder
	dim      int
	logger   *slog.Logger
}

// NewOllamaModel constructs an OllamaModel. serverURL defaults to
// EMBEDDING_SERVICE_URL or a local container-network default; model
// defaults to EMBEDDING_MODEL or "nomic-embed-text-v2-moe".
func NewOllamaModel(serverURL, model string, dim int, logger *slog.Logger) (*OllamaModel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if serverURL == "" {
		serverURL = envOr("EMBEDDING_SERVICE_URL", "http://host.containers.internal:11434")
	}
	if model == "" {
		model = envOr("EMBEDDING_MODEL", "nomic-embed-text-v2-moe")
	}

	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "creating ollama client")
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "creating langchaingo embedder")
	}

	return &OllamaModel{embedder: embedder, dim: dim, logger: logger}, nil
}

// Encode embeds text, applying queryTimeout to bound the hot scoring path.
func (m *OllamaModel) Encode(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vecs, err := m.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageUnavailable, err, "embedding text via ollama")
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("ollama embedder returned empty vector")
	}
	return vecs[0], nil
}

// Dim returns the configured dimensionality.
func (m *OllamaModel) Dim() int { return m.dim }

// Dispose is a no-op: langchaingo's Ollama client holds no resources that
// outlive a single call.
func (m *OllamaModel) Dispose() error { return nil }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
