package mytracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	ServiceName string
	// Endpoint is host:port of an OTLP/http collector; export is disabled when empty.
	Endpoint   string
	AuthHeader string
	Insecure   bool
}

// Setup installs the global propagator and tracer provider. The returned func flushes pending spans.
func Setup(c context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		options = append(options, otlptracehttp.WithInsecure())
	}
	if cfg.AuthHeader != "" {
		options = append(options, otlptracehttp.WithHeaders(map[string]string{"Authorization": strings.TrimSpace(cfg.AuthHeader)}))
	}

	exporter, err := otlptracehttp.New(c, options...)
	if err != nil {
		return nil, fmt.Errorf("error creating trace exporter: %s", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName))),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
