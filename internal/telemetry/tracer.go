package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry span creation for the executor/gatewayhttp
// pipeline. Trimmed from the teacher's Tracer (internal/observability):
// this repo doesn't ship an OTLP collector, so there's no exporter/batcher
// wiring here — the value is in-process span/attribute propagation across
// the executor's goroutines (one per conversation, plus per-request
// goroutines for LLM calls and tool runs), not external trace export.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures resource attributes attached to every span.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// NewTracer builds a Tracer with an always-on sampler and no external
// exporter.
func NewTracer(config TraceConfig) *Tracer {
	if config.ServiceName == "" {
		config.ServiceName = "phoenix"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(config.ServiceName)}
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// Start begins a span and returns the context carrying it.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed and attaches the error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceTransition starts a span around one statemachine.Transition call.
func (t *Tracer) TraceTransition(ctx context.Context, conversationID, event string) (context.Context, trace.Span) {
	return t.Start(ctx, "conv.transition",
		attribute.String("conversation_id", conversationID),
		attribute.String("event", event),
	)
}

// TraceLLMRequest starts a span around one provider call.
func (t *Tracer) TraceLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, "llm.request",
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
}

// TraceToolExecution starts a span around one tool run.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, "tool.execute", attribute.String("tool_name", toolName))
}
