// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// deterministicUUID maps an external id (e.g. "server:name" or a
// capability FQDN) to a stable v5 UUID, namespaced so the same external
// id always resolves to the same Weaviate object.
func deterministicUUID(externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(externalID)).String()
}

// weaviateGetResponse mirrors the subset of the GraphQL Get response shape
// this package reads from.
type weaviateGetResponse struct {
	Data struct {
		Get map[string][]map[string]any `json:"Get"`
	} `json:"data"`
}

// parseWeaviateMatches extracts Match values from a raw GraphQL response.
// Defined against a generic shape rather than the client's typed response
// so it tolerates minor schema drift between weaviate-go-client releases.
func parseWeaviateMatches(resp any) ([]Match, error) {
	asMap, ok := toMap(resp)
	if !ok {
		return nil, fmt.Errorf("unexpected weaviate response shape")
	}
	data, _ := asMap["data"].(map[string]any)
	get, _ := data["Get"].(map[string]any)
	rows, _ := get[weaviateClassName].([]any)

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id, _ := row["externalID"].(string)
		additional, _ := row["_additional"].(map[string]any)
		dist, _ := additional["distance"].(float64)
		// Weaviate reports cosine distance; cosine similarity = 1 - distance.
		matches = append(matches, Match{ID: id, Cosine: 1 - dist})
	}
	return matches, nil
}

// toMap does a best-effort structural conversion of the client's typed
// GraphQL response into a plain map for parseWeaviateMatches to walk, by
// round-tripping through JSON rather than depending on the exact exported
// struct shape of the client's response type.
func toMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}
