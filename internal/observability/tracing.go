package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TraceConfig configures the runtime's tracer provider. Grounded on the
// teacher's internal/observability/tracing.go TraceConfig.
type TraceConfig struct {
	ServiceName string
	Version     string
	Environment string
	// Endpoint, if set, is an OTLP/gRPC collector address; spans are
	// exported there. If empty, spans are recorded in-process only (no
	// exporter registered) — useful for embedding without a collector.
	Endpoint        string
	EnableInsecure  bool
	SamplingRatio   float64 // a value in (0,1) samples that fraction; 0 or >=1 samples every trace
}

// Tracer wraps an OTel tracer with the span names the Agent Loop and MCP
// client use, so call sites don't repeat string literals.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer backed by an in-process SDK TracerProvider
// configured from cfg. Callers that don't need tracing can pass a nil
// *Tracer everywhere one is accepted; span-starting methods on a nil
// *Tracer start no span and return ctx unchanged together with
// trace.SpanFromContext(ctx) (the span ctx already carries, or a no-op
// span when it carries none).
func NewTracer(ctx context.Context, cfg TraceConfig) (*Tracer, func(context.Context) error, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.Version),
		attribute.String("environment", cfg.Environment),
	)
	sampler := sdktrace.AlwaysSample()
	if cfg.SamplingRatio > 0 && cfg.SamplingRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRatio)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if cfg.Endpoint != "" {
		dialOpts := []grpc.DialOption{grpc.WithBlock()}
		if cfg.EnableInsecure {
			dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}
		conn, err := grpc.NewClient(cfg.Endpoint, dialOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("observability: dial otlp collector: %w", err)
		}
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithGRPCConn(conn)))
		if err != nil {
			return nil, nil, fmt.Errorf("observability: start otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: tp.Tracer("agentcore")}, tp.Shutdown, nil
}

// StartLoopSpan starts a span covering one Agent Loop phase.
func (t *Tracer) StartLoopSpan(ctx context.Context, phase string, runID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "agent_loop."+phase, trace.WithAttributes(
		attribute.String("run_id", runID),
	))
}

// StartToolSpan starts a span covering one tool invocation.
func (t *Tracer) StartToolSpan(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.String("tool_call_id", toolCallID),
	))
}

// StartMCPSpan starts a span covering one JSON-RPC round trip.
func (t *Tracer) StartMCPSpan(ctx context.Context, serverID, method string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "mcp."+method, trace.WithAttributes(
		attribute.String("mcp_server", serverID),
	))
}
