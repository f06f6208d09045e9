package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexuscore/agentrt/internal/agent"
)

// TracerConfig configures the OTLP/gRPC exporter backing a Tracer.
type TracerConfig struct {
	ServiceName  string
	Endpoint     string
	SamplingRate float64
}

// NewTracerProvider dials an OTLP/gRPC collector and returns a
// TracerProvider batching spans to it. Callers are responsible for
// calling Shutdown on the returned provider when done.
func NewTracerProvider(ctx context.Context, cfg TracerConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)
	return tp, nil
}

// Tracer wraps a Runtime's SendTo/StreamTo calls in a span, following the
// same decorator shape as Metrics: it is composed around a Runtime
// rather than built into the execution loop, so a Runtime used without
// telemetry never pays for span bookkeeping.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer that starts spans against the given
// provider's named tracer. Pass otel.GetTracerProvider() to use the
// process-global provider, or a *sdktrace.TracerProvider from
// NewTracerProvider for a dedicated one.
func NewTracer(provider trace.TracerProvider, name string) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(name)}
}

// SendTo starts a span around rt.SendTo, recording the agent name and
// any returned error, then delegates to rt.SendTo itself.
func (t *Tracer) SendTo(ctx context.Context, rt *agent.Runtime, agentName, userMessage string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "agent.send_to", trace.WithAttributes(
		attribute.String("agent.name", agentName),
	))
	defer span.End()

	text, err := rt.SendTo(ctx, agentName, userMessage)
	if err != nil {
		span.RecordError(err)
	}
	return text, err
}

// StreamTo starts a span around rt.StreamTo's setup; because the
// returned channel outlives this call, the span ends when the channel is
// obtained, not when it is drained — StreamTo's own per-round diagnostics
// carry the rest of the lifecycle.
func (t *Tracer) StreamTo(ctx context.Context, rt *agent.Runtime, agentName, userMessage string) (<-chan *agent.StreamChunk, error) {
	ctx, span := t.tracer.Start(ctx, "agent.stream_to", trace.WithAttributes(
		attribute.String("agent.name", agentName),
	))
	defer span.End()

	chunks, err := rt.StreamTo(ctx, agentName, userMessage)
	if err != nil {
		span.RecordError(err)
	}
	return chunks, err
}
