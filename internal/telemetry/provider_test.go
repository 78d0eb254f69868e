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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_StdoutTraceExporterWhenNoEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	providers, err := Init(context.Background(), Config{
		ServiceName: "capgateway-test",
		Registerer:  reg,
	})
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.MeterProvider)

	require.Same(t, providers.TracerProvider, otel.GetTracerProvider())
	require.Same(t, providers.MeterProvider, otel.GetMeterProvider())

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_DefaultsServiceNameAndSamplingRatio(t *testing.T) {
	reg := prometheus.NewRegistry()
	providers, err := Init(context.Background(), Config{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })
	require.NotNil(t, providers.TracerProvider)
}

func TestNewStdoutMetricReader(t *testing.T) {
	reader, err := newStdoutMetricReader()
	require.NoError(t, err)
	require.NotNil(t, reader)
	require.NoError(t, reader.Shutdown(context.Background()))
}
