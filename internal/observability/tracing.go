package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts every gallery span. It points at the no-op global provider
// until SetupTracing installs a real one.
var Tracer trace.Tracer = otel.Tracer("gallery")

// TraceSettings selects where spans go.
type TraceSettings struct {
	Service     string
	Environment string
	Enabled     bool
	// Exporter is "otlp" or "stdout"; anything else means stdout.
	Exporter     string
	OTLPEndpoint string
	SampleRatio  float64
}

// SetupTracing installs the global tracer provider and W3C propagators.
// The returned func flushes pending spans; it is safe to call when tracing
// is disabled.
func SetupTracing(ctx context.Context, s TraceSettings) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !s.Enabled {
		Tracer = otel.Tracer(s.Service)
		return noop, nil
	}

	exp, err := spanExporter(ctx, s)
	if err != nil {
		return noop, fmt.Errorf("tracing exporter %q: %w", s.Exporter, err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(s.Service),
		semconv.DeploymentEnvironment(s.Environment),
	))
	if err != nil {
		return noop, fmt.Errorf("tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(s.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	Tracer = provider.Tracer(s.Service)
	return provider.Shutdown, nil
}

func spanExporter(ctx context.Context, s TraceSettings) (sdktrace.SpanExporter, error) {
	if strings.EqualFold(s.Exporter, "otlp") {
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(s.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

// samplerFor clamps ratio into [0, 1]; a ratio of 1 or more samples every
// trace regardless of the parent decision.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Span is a started span whose outcome is recorded once by Finish.
type Span struct {
	span trace.Span
}

// StartSpan opens an internal span named op carrying attrs.
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{span: span}
}

// Annotate adds attributes learned after the span started.
func (s *Span) Annotate(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// Finish marks the span failed when err is non-nil and ends it.
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// TraceID is the hex trace id, empty when the span is not sampled or
// recorded by a no-op provider.
func (s *Span) TraceID() string {
	sc := s.span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
