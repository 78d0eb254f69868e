// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AleutianAI/capgateway/internal/api"
)

// client is a thin HTTP client over a running gatewayd instance's API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *client) rank(ctx context.Context, req api.RankRequest) (api.RankResponse, error) {
	var resp api.RankResponse
	err := c.postJSON(ctx, "/v1/rank", req, &resp)
	return resp, err
}

func (c *client) trainNow(ctx context.Context, req api.TrainRequest) (api.TrainResponse, error) {
	var resp api.TrainResponse
	err := c.postJSON(ctx, "/v1/train", req, &resp)
	return resp, err
}

func (c *client) graphStats(ctx context.Context) (api.GraphStatsResponse, error) {
	var resp api.GraphStatsResponse
	err := c.getJSON(ctx, "/v1/graph/stats", &resp)
	return resp, err
}

func (c *client) scorerState(ctx context.Context) (api.ScorerStateResponse, error) {
	var resp api.ScorerStateResponse
	err := c.getJSON(ctx, "/v1/scorer/state", &resp)
	return resp, err
}

func (c *client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s (%s)", errResp.Error, errResp.Code)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
