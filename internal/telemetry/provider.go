// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the engine's OpenTelemetry tracer and meter
// providers and the structured-logging helpers built on top of them.
//
// Metrics recorded through the OTel Metrics API and metrics registered
// directly against prometheus.DefaultRegisterer (the promauto counters and
// histograms scattered across vectorstore, shgat, replay, search, and
// graphsync) both end up on the same /metrics endpoint: the Prometheus
// bridge exporter and promhttp.Handler both read from
// prometheus.DefaultGatherer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the tracer and meter providers.
type Config struct {
	// ServiceName is reported on every span and the resource attached to
	// every metric. Defaults to "capgateway".
	ServiceName string

	// ServiceVersion is reported alongside ServiceName.
	ServiceVersion string

	// Environment is a free-form deployment label (e.g. "production",
	// "staging", "development").
	Environment string

	// OTLPEndpoint is a gRPC collector address (e.g. "otel-collector:4317").
	// When empty, spans are exported to stdout instead — useful for local
	// development and tests, where a collector is rarely running.
	OTLPEndpoint string

	// Insecure disables TLS on the OTLP gRPC connection. Only meaningful
	// when OTLPEndpoint is set.
	Insecure bool

	// SamplingRatio is the fraction of traces sampled, in [0, 1]. Defaults
	// to 1.0 (sample everything) when zero.
	SamplingRatio float64

	// Registerer is where the Prometheus metric bridge registers its
	// collector. Defaults to prometheus.DefaultRegisterer, which is also
	// where every promauto.New* call elsewhere in the engine registers,
	// so a single /metrics scrape sees both. Tests pass a throwaway
	// *prometheus.Registry to avoid colliding with other tests' global
	// registrations.
	Registerer prometheus.Registerer
}

// Providers bundles the constructed tracer and meter providers along with
// a Shutdown func that flushes and closes every exporter.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Shutdown       func(context.Context) error
}

// Init builds the tracer and meter providers described by cfg, registers
// them as the global OTel providers, and installs the W3C TraceContext and
// Baggage propagators. The returned Providers.Shutdown must be called (e.g.
// via defer) before process exit so buffered spans and metrics flush.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "capgateway"
	}
	if cfg.SamplingRatio == 0 {
		cfg.SamplingRatio = 1.0
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	var shutdownFuncs []func(context.Context) error

	traceExporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRatio >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRatio <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	promExp, err := promexporter.New(promexporter.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus metric reader: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}

	return &Providers{TracerProvider: tp, MeterProvider: mp, Shutdown: shutdown}, nil
}

// newTraceExporter returns an OTLP gRPC exporter when cfg.OTLPEndpoint is
// set, otherwise a stdout exporter for local development.
func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.OTLPEndpoint == "" {
		return stdouttrace.New(stdouttrace.WithoutTimestamps())
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	client := otlptracegrpc.NewClient(opts...)
	exp, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP gRPC trace exporter for %s: %w", cfg.OTLPEndpoint, err)
	}
	return exp, nil
}

// newStdoutMetricReader is used by tests that want a metric reader they can
// flush synchronously rather than waiting on Prometheus's pull model.
func newStdoutMetricReader() (sdkmetric.Reader, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
