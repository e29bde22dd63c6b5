package main

import (
	"context"
	"fmt"
	"os"

	DatadogTracer "github.com/salvationdao/hubotel/ext/datadog"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type shutdownFunc func(ctx context.Context) error

// newTracerProvider builds the trace pipeline selected by conf.Exporter and installs it globally
func newTracerProvider(conf TraceConfig, version string) (trace.TracerProvider, shutdownFunc, error) {
	var (
		tp       trace.TracerProvider
		shutdown shutdownFunc
	)

	switch conf.Exporter {
	case "datadog":
		dd := DatadogTracer.New(DatadogTracer.Config{
			Service:   conf.Service,
			Env:       conf.Env,
			Version:   version,
			AgentAddr: conf.AgentAddr,
		})
		tp = dd
		shutdown = func(context.Context) error { return dd.Stop() }
	case "stdout":
		opts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stdout)}
		if conf.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exp, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("stdout exporter: %w", err)
		}
		sdk := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(conf.Service),
				semconv.ServiceVersion(version),
				semconv.DeploymentEnvironment(conf.Env),
			)),
		)
		tp = sdk
		shutdown = sdk.Shutdown
	case "none", "":
		tp = noop.NewTracerProvider()
		shutdown = func(context.Context) error { return nil }
	default:
		return nil, nil, fmt.Errorf("unknown trace exporter %q", conf.Exporter)
	}

	otel.SetTracerProvider(tp)
	return tp, shutdown, nil
}

// newMeterProvider exports metrics on the default prometheus registry, served by promhttp.Handler()
func newMeterProvider() (*sdkmetric.MeterProvider, error) {
	exp, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)
	return mp, nil
}
