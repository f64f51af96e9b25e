// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lower

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/tslower/services/lower/config"
)

// Telemetry holds the installed providers.
type Telemetry struct {
	// MetricsHandler serves the Prometheus scrape endpoint. It always
	// includes the engine's own collectors.
	MetricsHandler http.Handler

	// Shutdown flushes pending telemetry. Must be called before exit.
	Shutdown func(ctx context.Context) error
}

type shutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTelemetry installs global trace and metric providers.
//
// Description:
//
//	Traces go to stdout, an OTLP gRPC collector, or nowhere. Metrics are
//	exposed through an OTel Prometheus reader on a private registry, pushed
//	periodically to stdout, or left to the default registry alone. The W3C
//	TraceContext propagator is always installed.
//
// Inputs:
//
//	ctx - Context for exporter setup.
//	cfg - Exporter selection.
//	w - Destination of stdout exporters. nil means os.Stderr.
//
// Outputs:
//
//	*Telemetry - Installed providers. Never nil on success.
//	error - Non-nil if an exporter could not be created.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (*Telemetry, error) {
	if w == nil {
		w = os.Stderr
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", Version),
	)

	tpShutdown, err := initTracing(ctx, cfg, res, w)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	handler, mpShutdown, err := initMetrics(cfg, res, w)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init metrics: %w", err), tpShutdown(ctx))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		MetricsHandler: handler,
		Shutdown: func(ctx context.Context) error {
			return errors.Join(tpShutdown(ctx), mpShutdown(ctx))
		},
	}, nil
}

func initTracing(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, w io.Writer) (shutdownFunc, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Traces {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return noopShutdown, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", cfg.Traces, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func initMetrics(cfg config.TelemetryConfig, res *resource.Resource, w io.Writer) (http.Handler, shutdownFunc, error) {
	switch cfg.Metrics {
	case "prometheus":
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, registry}
		return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}), mp.Shutdown, nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		return promhttp.Handler(), mp.Shutdown, nil
	}
	return promhttp.Handler(), noopShutdown, nil
}
