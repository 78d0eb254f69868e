// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestGinMiddleware_RecordsRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewHTTPMetrics(mp)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m, nil))
	r.GET("/v1/graph/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/graph/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	total := findMetric(rm, "capgateway.http.requests_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	attrs := sum.DataPoints[0].Attributes.ToSlice()
	var gotRoute, gotMethod string
	for _, kv := range attrs {
		switch string(kv.Key) {
		case "route":
			gotRoute = kv.Value.AsString()
		case "method":
			gotMethod = kv.Value.AsString()
		}
	}
	require.Equal(t, "/v1/graph/stats", gotRoute)
	require.Equal(t, "GET", gotMethod)
}

func TestGinMiddleware_UnmatchedRouteLabeled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewHTTPMetrics(mp)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m, nil))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	errs := findMetric(rm, "capgateway.http.response_errors_total")
	require.NotNil(t, errs)
	sum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	route, ok := sum.DataPoints[0].Attributes.Value("route")
	require.True(t, ok)
	require.Equal(t, "unmatched", route.AsString())
}
