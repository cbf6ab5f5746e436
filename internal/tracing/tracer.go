package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OTel exporter wrapped around the JSONL trace
// plane. Grounded on internal/observability/tracing.go's TraceConfig.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP collector endpoint; empty disables export
	SamplingRate   float64
	EnableInsecure bool
}

// Tracer wraps spans around each llm.call.*/worker.tool.* pair so the
// JSONL trace plane and a distributed-tracing backend observe the same
// invariant (spec §9: trace coverage).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer. If cfg.Endpoint is empty, spans are
// created against the global no-op provider (export disabled).
func NewTracer(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(serviceNameOr(cfg.ServiceName))}, func(context.Context) error { return nil }
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(serviceNameOr(cfg.ServiceName))}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceNameOr(cfg.ServiceName)),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	if cfg.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{tracer: provider.Tracer(serviceNameOr(cfg.ServiceName))}, provider.Shutdown
}

func serviceNameOr(name string) string {
	if name == "" {
		return "choiros-core"
	}
	return name
}

// StartLLMCall opens a span around one adapter.Plan invocation.
func (t *Tracer) StartLLMCall(ctx context.Context, role, callID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("role", role),
		attribute.String("call_id", callID),
	))
}

// StartToolCall opens a span around one adapter.ExecuteTool invocation.
func (t *Tracer) StartToolCall(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "worker.tool.call", trace.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.String("call_id", callID),
	))
}

// RecordError marks the span as failed.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
