// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for HTTPMetrics.
const meterName = "github.com/AleutianAI/capgateway"

// HTTPMetrics holds the OTel metric instruments recorded by the API
// layer's middleware. Component-internal metrics (ranking latency, replay
// buffer depth, scorer training progress, graph sync queue depth) are
// recorded where they're produced via promauto instead; HTTPMetrics covers
// only the transport-level view a dashboard needs across every route.
type HTTPMetrics struct {
	RequestDuration metric.Float64Histogram
	RequestsTotal   metric.Int64Counter
	ResponseErrors  metric.Int64Counter
}

// NewHTTPMetrics creates HTTPMetrics using mp's Meter. Pass
// otel.GetMeterProvider() to bind against whatever provider Init
// registered globally.
func NewHTTPMetrics(mp metric.MeterProvider) (*HTTPMetrics, error) {
	m := mp.Meter(meterName)

	dur, err := m.Float64Histogram("capgateway.http.request.duration",
		metric.WithDescription("HTTP request latency by route and method."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	total, err := m.Int64Counter("capgateway.http.requests_total",
		metric.WithDescription("Total HTTP requests served, by route, method, and status."),
	)
	if err != nil {
		return nil, err
	}

	errs, err := m.Int64Counter("capgateway.http.response_errors_total",
		metric.WithDescription("Total HTTP responses with a 4xx or 5xx status, by route and status."),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{RequestDuration: dur, RequestsTotal: total, ResponseErrors: errs}, nil
}

// RecordRequest records one completed HTTP request's duration, route,
// method, and status.
func (m *HTTPMetrics) RecordRequest(ctx context.Context, route, method string, status int, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	m.RequestDuration.Record(ctx, seconds, attrs)
	m.RequestsTotal.Add(ctx, 1, attrs)
	if status >= 400 {
		m.ResponseErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("route", route),
			attribute.Int("status", status),
		))
	}
}
