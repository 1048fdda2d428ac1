// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires up the "nova" OpenTelemetry tracer the same
// way a service obtains its own named tracer from otel.Tracer(...): a
// package-level Tracer() accessor backed by a process-wide
// TracerProvider that Init configures once at startup.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName follows the "<service>.<component>" naming convention used
// for otel.Tracer(...) names elsewhere in the codebase, with "nova" as
// the service.
const tracerName = "nova.scan"

// Tracer returns the package-wide tracer. Valid before Init is called
// (it falls back to the OTel no-op tracer, same as calling otel.Tracer
// before any provider is registered), so call sites never need a nil
// check.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// Init configures the process-wide TracerProvider from NOVA_OTEL_EXPORTER
// ("otlp", the default, or "stdout" for local debugging) and
// NOVA_OTEL_ENDPOINT (the OTLP/gRPC collector address, default
// "localhost:4317" — only consulted for the otlp exporter), then
// installs the W3C trace-context + baggage propagator the same way
// cmd/trace/main.go's otel.SetTextMapPropagator call does. The returned
// shutdown func must be called (typically via defer) before the process
// exits, to flush pending spans.
func Init(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	exporter, err := newExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if strings.EqualFold(os.Getenv("NOVA_OTEL_EXPORTER"), "stdout") {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	endpoint := os.Getenv("NOVA_OTEL_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
}

// StartScan starts a span for one Scanner.Scan call, attaching
// attributes call sites commonly want (input and rule counts) the same
// way cmd/trace/main.go's warmMainModel span names its operation.
func StartScan(ctx context.Context, inputCount, ruleCount int) (context.Context, oteltrace.Span) {
	return Tracer().Start(ctx, "scan",
		oteltrace.WithAttributes(
			attribute.Int("nova.input_count", inputCount),
			attribute.Int("nova.rule_count", ruleCount),
		),
	)
}
