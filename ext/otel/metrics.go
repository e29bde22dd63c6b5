package hubotel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/atomic"
)

// Instrument names
const (
	MetricActiveConnections = "hub.connection.active.count"
	MetricConnected         = "hub.connection.connected"
	MetricDisconnected      = "hub.connection.disconnected"
	MetricInvocations       = "hub.invocation.message"
	MetricDuration          = "hub.invocation.duration"
)

type metricsRecorder struct {
	active       metric.Int64UpDownCounter
	connected    metric.Int64Counter
	disconnected metric.Int64Counter
	invocations  metric.Int64Counter
	duration     metric.Float64Histogram

	// mirrors the active up/down counter, which cannot be read back through the api
	activeCount atomic.Int64
}

func newMetricsRecorder(mp metric.MeterProvider) (*metricsRecorder, error) {
	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(Version))

	m := &metricsRecorder{}
	var err error
	m.active, err = meter.Int64UpDownCounter(MetricActiveConnections,
		metric.WithDescription("Number of connections currently open on the hub."),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricActiveConnections, err)
	}
	m.connected, err = meter.Int64Counter(MetricConnected,
		metric.WithDescription("Number of connections established."),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricConnected, err)
	}
	m.disconnected, err = meter.Int64Counter(MetricDisconnected,
		metric.WithDescription("Number of connections closed."),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDisconnected, err)
	}
	m.invocations, err = meter.Int64Counter(MetricInvocations,
		metric.WithDescription("Number of hub method invocations."),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricInvocations, err)
	}
	m.duration, err = meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Duration of hub method invocations."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDuration, err)
	}
	return m, nil
}

func (m *metricsRecorder) recordInvocation(ctx context.Context, ic *InvocationContext, d time.Duration) {
	attrs := metric.WithAttributes(
		semconv.RPCServiceKey.String(ic.HubName),
		semconv.RPCMethodKey.String(ic.MethodName),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, milliseconds(d), attrs)
}

func (m *metricsRecorder) recordConnected(ctx context.Context, ic *InvocationContext) {
	attrs := metric.WithAttributes(semconv.RPCServiceKey.String(ic.HubName))
	m.activeCount.Inc()
	m.active.Add(ctx, 1, attrs)
	m.connected.Add(ctx, 1, attrs)
}

func (m *metricsRecorder) recordDisconnected(ctx context.Context, ic *InvocationContext) {
	attrs := metric.WithAttributes(semconv.RPCServiceKey.String(ic.HubName))
	m.activeCount.Dec()
	m.active.Add(ctx, -1, attrs)
	m.disconnected.Add(ctx, 1, attrs)
}
