// Package otel wires OpenTelemetry tracing for the simulation server.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrInvalidSampleRatio is returned for ratios outside [0, 1].
var ErrInvalidSampleRatio = errors.New("otel: sample ratio must be within [0, 1]")

// Settings selects where engine spans go. The server fills it from config.ServerConfig.
type Settings struct {
	ServiceName string
	Endpoint    string  // OTLP/HTTP collector URL; empty disables tracing
	Enabled     bool    // false disables tracing even with an endpoint
	SampleRatio float64 // Share of root traces kept (ticks are frequent)
	Profile     string  // Engine preset, recorded on the resource
}

// Active reports whether Setup would install an exporter.
func (s Settings) Active() bool {
	return s.Enabled && s.Endpoint != ""
}

func (s Settings) sampler() sdktrace.Sampler {
	switch {
	case s.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case s.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRatio))
	}
}

// Setup installs the global tracer provider used by the engine's tick and
// decide spans. While tracing is inactive the global provider stays the no-op
// default and the returned shutdown does nothing.
//
// The returned shutdown flushes pending spans and should be deferred by the caller.
func Setup(ctx context.Context, s Settings) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if s.SampleRatio < 0 || s.SampleRatio > 1 {
		return noop, fmt.Errorf("%w: %v", ErrInvalidSampleRatio, s.SampleRatio)
	}
	if !s.Active() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(s.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("otel exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(s.ServiceName)}
	if s.Profile != "" {
		attrs = append(attrs, attribute.String("galaxy.profile", s.Profile))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(s.sampler()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
