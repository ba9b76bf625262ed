package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer resolves through the global provider, so spans started before
// SetupTracing are no-ops.
var Tracer trace.Tracer = otel.Tracer("pyscan")

type TracingOptions struct {
	// Exporter is "otlp", "stdout" or empty for no tracing.
	Exporter     string
	OTLPEndpoint string
	ServiceName  string
}

// SetupTracing installs a global tracer provider and returns its shutdown
// function. With no exporter configured it installs nothing.
func SetupTracing(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch opts.Exporter {
	case "":
		return func(context.Context) error { return nil }, nil
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(opts.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", opts.Exporter, err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	Tracer = tp.Tracer("pyscan")
	return tp.Shutdown, nil
}
