// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span names for the pipeline's tracing boundaries.
const (
	SpanSession    = "research.session"
	SpanStage      = "research.stage"
	SpanLLMCall    = "research.llm_call"
	SpanSourceCall = "research.source_call"
	SpanCheckpoint = "research.checkpoint"
)

// Attribute keys, mirroring the teacher's Attr* naming convention.
const (
	AttrSessionID  = "research.session_id"
	AttrQuery      = "research.query"
	AttrStageName  = "research.stage_name"
	AttrIteration  = "research.iteration"
	AttrModel      = "gen_ai.request.model"
	AttrSourceName = "research.source_name"
	AttrCheckpoint = "research.checkpoint_type"
	AttrErrorKind  = "research.error_kind"
)

// Tracer wraps an OpenTelemetry tracer with pipeline-specific span
// helpers. A nil *Tracer is valid and makes every method a no-op, so
// callers never need to check for tracing being disabled.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer from cfg. A disabled or nil config returns a
// nil *Tracer (not an error) so call sites can unconditionally call its
// methods.
func NewTracer(ctx context.Context, cfg *TracingConfig) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: creating exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: creating resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

func createExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		return createOTLPExporter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

func createOTLPExporter(ctx context.Context, cfg *TracingConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.IsInsecure() {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Start begins a bare span. Safe to call on a nil Tracer.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartSession begins the span covering one Coordinator.Run.
func (t *Tracer) StartSession(ctx context.Context, sessionID, query string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanSession, trace.WithAttributes(
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrQuery, query),
	))
}

// StartStage begins the span covering one stage executor's full event
// sequence (Planner, Searcher, Analyzer, Writer, Critic, Validator).
func (t *Tracer) StartStage(ctx context.Context, stageName string, iteration int) (context.Context, trace.Span) {
	return t.Start(ctx, SpanStage, trace.WithAttributes(
		attribute.String(AttrStageName, stageName),
		attribute.Int(AttrIteration, iteration),
	))
}

// StartLLMCall begins the span covering one structuredGenerate/streamText
// round trip.
func (t *Tracer) StartLLMCall(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanLLMCall, trace.WithAttributes(attribute.String(AttrModel, model)))
}

// StartSourceCall begins the span covering one source client Search or
// GetPaper call.
func (t *Tracer) StartSourceCall(ctx context.Context, sourceName string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanSourceCall, trace.WithAttributes(attribute.String(AttrSourceName, sourceName)))
}

// StartCheckpoint begins the span covering one checkpoint's suspend-to-
// resolve round trip.
func (t *Tracer) StartCheckpoint(ctx context.Context, checkpointType string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanCheckpoint, trace.WithAttributes(attribute.String(AttrCheckpoint, checkpointType)))
}

// RecordError records a classified error on span, tagging its errs.Kind.
func (t *Tracer) RecordError(span trace.Span, kind string, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
}

// Shutdown flushes and stops the tracer provider. Safe to call on a nil
// Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func noopSpan() trace.Span {
	_, span := trace.NewNoopTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
