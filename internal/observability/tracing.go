// Package observability wires the process-wide OpenTelemetry tracer
// provider. It carries no domain logic of its own; it exists so the
// admin HTTP surface can attach a span to every inbound request the way
// a production deployment of this library would want, without pulling
// in a full collector/exporter pipeline for the demo binary.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/webitel/cluster-sharding"

// NewTracerProvider builds the process-wide TracerProvider and installs
// it as the global one via otel.SetTracerProvider, so any package calling
// otel.Tracer(tracerName) picks it up without being wired through fx
// itself. No SpanExporter is registered by default: spans are sampled
// and built same as in production, just not shipped anywhere until a
// caller swaps in a real exporter via sdktrace.WithBatcher.
func NewTracerProvider() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	return tp
}

// Shutdown flushes and stops tp, with the context fx's OnStop hook hands
// to every lifecycle callback.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}

// StartSpan starts a span named spanName as a child of ctx, drawn from
// the currently installed global TracerProvider. Callers must End() the
// returned span.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName)
}
