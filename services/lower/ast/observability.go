// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// lowerTracerName is the OTel tracer name for the lowering engine.
const lowerTracerName = "tslower.ast"

var tracer = otel.Tracer(lowerTracerName)

// Package-level Prometheus metrics for lowering operations.
var (
	// lowerDuration measures lowering latency.
	//
	// Labels:
	//   - mode: "module" or "expression"
	//   - outcome: "success", "syntax", "input", "canceled" or "error"
	lowerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tslower",
			Subsystem: "ast",
			Name:      "lower_duration_seconds",
			Help:      "Duration of lowering calls in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"mode", "outcome"},
	)

	// lowerTotal counts lowering calls.
	//
	// Labels:
	//   - mode: "module" or "expression"
	//   - outcome: see lowerDuration
	lowerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tslower",
			Subsystem: "ast",
			Name:      "lower_total",
			Help:      "Total number of lowering calls.",
		},
		[]string{"mode", "outcome"},
	)

	// lowerSourceBytes observes input sizes.
	lowerSourceBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tslower",
			Subsystem: "ast",
			Name:      "source_bytes",
			Help:      "Size of lowered sources in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
	)

	// itemsTotal counts emitted items.
	//
	// Labels:
	//   - type: item discriminant, e.g. "CallExpression"
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tslower",
			Subsystem: "ast",
			Name:      "items_total",
			Help:      "Total lowered items by type.",
		},
		[]string{"type"},
	)
)

// startLowerSpan starts a span for one lowering call.
func startLowerSpan(ctx context.Context, mode string, size int, isTsx bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.Lower",
		trace.WithAttributes(
			attribute.String("lower.mode", mode),
			attribute.Int("lower.source_bytes", size),
			attribute.Bool("lower.tsx", isTsx),
		),
	)
}

// finishLowerSpan records the outcome on the span.
func finishLowerSpan(span trace.Span, items int, err error) {
	span.SetAttributes(attribute.Int("lower.items", items))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// outcomeOf maps an error to a low-cardinality label value.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSyntax):
		return "syntax"
	case IsInputError(err):
		return "input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// recordLowerMetrics records Prometheus metrics for a completed call.
//
// Thread Safety: Safe for concurrent use.
func recordLowerMetrics(mode string, duration time.Duration, size int, items []Item, err error) {
	outcome := outcomeOf(err)
	lowerDuration.WithLabelValues(mode, outcome).Observe(duration.Seconds())
	lowerTotal.WithLabelValues(mode, outcome).Inc()
	lowerSourceBytes.Observe(float64(size))
	for _, it := range items {
		itemsTotal.WithLabelValues(it.ItemType()).Inc()
	}
}
