// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestTraceID_EmptyWithNoSpan(t *testing.T) {
	require.Empty(t, TraceID(context.Background()))
}

func TestStartSpan_RecordsSpanAndTraceID(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx, span := StartSpan(context.Background(), "rank")
	id := TraceID(ctx)
	require.Len(t, id, 32)
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "rank", spans[0].Name)
}

func TestLogger_IncludesTraceAndSpanID(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	tracer := tp.Tracer("test")

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, span := tracer.Start(context.Background(), "span")
	defer span.End()

	Logger(ctx, base).Info("scored candidate set")

	out := buf.String()
	require.Contains(t, out, "trace_id=")
	require.Contains(t, out, "span_id=")
}

func TestLogger_NoActiveSpanReturnsBase(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Logger(context.Background(), base).Info("no span active")

	require.NotContains(t, buf.String(), "trace_id")
}

func TestLogger_NilBaseFallsBackToDefault(t *testing.T) {
	l := Logger(context.Background(), nil)
	require.NotNil(t, l)
}

func TestTracer_ReturnsNonNilTracer(t *testing.T) {
	require.NotNil(t, Tracer())
}
