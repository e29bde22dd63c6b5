package DatadogTracer

import (
	"fmt"

	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// Config selects the Datadog service the hub spans are reported under
type Config struct {
	Service string
	Env     string
	Version string
	// AgentAddr is host:port of the trace agent. Default is the tracer's own default (localhost:8126)
	AgentAddr string
}

// DatadogTracer is an OpenTelemetry TracerProvider backed by the Datadog tracer.
// Hand it to hubotel.Config.TracerProvider; spans keep the otel attribute names.
type DatadogTracer struct {
	*ddotel.TracerProvider
}

func New(conf Config) *DatadogTracer {
	return &DatadogTracer{TracerProvider: ddotel.NewTracerProvider(startOptions(conf)...)}
}

func startOptions(conf Config) []tracer.StartOption {
	var opts []tracer.StartOption
	if conf.Service != "" {
		opts = append(opts, tracer.WithService(conf.Service))
	}
	if conf.Env != "" {
		opts = append(opts, tracer.WithEnv(conf.Env))
	}
	if conf.Version != "" {
		opts = append(opts, tracer.WithServiceVersion(conf.Version))
	}
	if conf.AgentAddr != "" {
		opts = append(opts, tracer.WithAgentAddr(conf.AgentAddr))
	}
	return opts
}

// Stop flushes pending spans and stops the Datadog tracer
func (ht *DatadogTracer) Stop() error {
	if err := ht.TracerProvider.Shutdown(); err != nil {
		return fmt.Errorf("stop datadog tracer: %w", err)
	}
	return nil
}
