// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestHTTPMetrics(t *testing.T) (*HTTPMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewHTTPMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_RecordRequest_Success(t *testing.T) {
	m, reader := newTestHTTPMetrics(t)
	ctx := context.Background()

	m.RecordRequest(ctx, "/v1/rank", "POST", 200, 0.012)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	dur := findMetric(rm, "capgateway.http.request.duration")
	require.NotNil(t, dur)
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.EqualValues(t, 1, hist.DataPoints[0].Count)

	total := findMetric(rm, "capgateway.http.requests_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	require.EqualValues(t, 1, sum.DataPoints[0].Value)

	errs := findMetric(rm, "capgateway.http.response_errors_total")
	require.Nil(t, errs, "2xx response should not increment the error counter")
}

func TestHTTPMetrics_RecordRequest_ErrorStatusIncrementsErrors(t *testing.T) {
	m, reader := newTestHTTPMetrics(t)
	ctx := context.Background()

	m.RecordRequest(ctx, "/v1/train", "POST", 503, 1.2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	errs := findMetric(rm, "capgateway.http.response_errors_total")
	require.NotNil(t, errs)
	sum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	require.EqualValues(t, 1, sum.DataPoints[0].Value)
}
