// Package telemetry wires OpenTelemetry tracing and metrics behind the
// service configuration (otel_enabled, otel_exporter, otlp_endpoint).
// With telemetry disabled the global providers are no-ops and the
// instrumented paths cost nothing.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/scullers68/sprint-reports"

// Exporter names accepted in Settings.Exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Settings selects the exporter wiring for both signals. It mirrors the
// otel_* keys of the service configuration.
type Settings struct {
	Enabled     bool
	ServiceName string
	Version     string
	Exporter    string // ExporterStdout or ExporterOTLP
	Endpoint    string // OTLP gRPC target, host:port
}

type providers struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
}

var active *providers

// Enabled reports whether Init installed real providers.
func Enabled() bool { return active != nil }

// Init installs the global providers described by s. Disabled settings
// install no-ops; Shutdown then has nothing to flush.
func Init(ctx context.Context, s Settings) error {
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(s.ServiceName),
			semconv.ServiceVersionKey.String(s.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	spans, reader, err := buildExporters(ctx, s)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spans),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	active = &providers{traces: tp, metrics: mp}
	return nil
}

func buildExporters(ctx context.Context, s Settings) (sdktrace.SpanExporter, sdkmetric.Reader, error) {
	if s.Exporter == ExporterOTLP {
		return buildOTLPExporters(ctx, s.Endpoint)
	}
	spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	metrics, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, err
	}
	reader := sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(15*time.Second))
	return spans, reader, nil
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics and stops the active
// providers. Safe to call when Init was skipped or disabled.
func Shutdown(ctx context.Context) {
	if active == nil {
		return
	}
	_ = active.traces.Shutdown(ctx)
	_ = active.metrics.Shutdown(ctx)
	active = nil
}
