package hubotel

import (
	"time"

	hub "github.com/salvationdao/hubotel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config is read once by New. Changing it afterwards has no effect on the Instrumentation.
//
// Hooks and the filter run inline on the invocation goroutine. A panic inside one is
// recovered, logged at error level and treated as if the hook had not been set;
// the outcome of the call is never affected.
// Hooks only run for spans that are recording.
type Config struct {
	// IsolateTraceContext starts every invocation in a new trace instead of the caller's.
	// Without it every command of a connection hangs off the connection request's trace.
	IsolateTraceContext bool

	// Filter decides per hub method invocation whether it is instrumented. nil instruments everything.
	// Returning false, or panicking, calls the method directly: no span, hooks, log scope or metrics.
	// Connects and disconnects are always instrumented.
	Filter func(ic *InvocationContext) bool

	// OnConnected runs before the connect continuation
	OnConnected func(span trace.Span, ic *InvocationContext)
	// OnDisconnected runs before the disconnect continuation. cause is what ended the connection, nil on a clean close.
	OnDisconnected func(span trace.Span, ic *InvocationContext, cause error)
	// OnMethodInvoked runs before a hub method is called
	OnMethodInvoked func(span trace.Span, ic *InvocationContext)
	// OnMethodResult runs after a hub method returned successfully, with the value it replied
	OnMethodResult func(span trace.Span, ic *InvocationContext, result interface{})
	// OnException runs when any continuation fails, after the span is marked as an error
	OnException func(span trace.Span, ic *InvocationContext, err error)

	// TracerProvider defaults to otel.GetTracerProvider()
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to otel.GetMeterProvider()
	MeterProvider metric.MeterProvider
	// Log is a levelled error aware logger.
	// Default does nothing with the log messages
	Log hub.Logger
	// Now defaults to time.Now
	Now func() time.Time
}
