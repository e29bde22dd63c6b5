package hubotel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// RPCSystem is the rpc.system value of every hub span
const RPCSystem = "hub"

// ConnectionIDKey holds the hub session id on spans
const ConnectionIDKey = attribute.Key("hub.connection.id")

// spanHandle is the span of one invocation. The zero value is notRecording and every method on it does nothing.
type spanHandle struct {
	span trace.Span
}

var notRecording = spanHandle{}

func (h spanHandle) recording() bool {
	return h.span != nil
}

func (h spanHandle) markOk() {
	if !h.recording() {
		return
	}
	h.span.SetStatus(codes.Ok, "")
}

func (h spanHandle) markError(err error) {
	if !h.recording() {
		return
	}
	attrs := []attribute.KeyValue{
		semconv.ExceptionTypeKey.String(errorType(err)),
		semconv.ExceptionMessageKey.String(err.Error()),
	}
	if stack := stackTrace(err); stack != "" {
		attrs = append(attrs, semconv.ExceptionStacktraceKey.String(stack))
	}
	h.span.SetAttributes(attrs...)
	h.span.RecordError(err)
	h.span.SetStatus(codes.Error, err.Error())
}

func (h spanHandle) end() {
	if !h.recording() {
		return
	}
	h.span.End()
}

type spanManager struct {
	tracer trace.Tracer
}

func newSpanManager(tp trace.TracerProvider) *spanManager {
	return &spanManager{
		tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version)),
	}
}

// start opens the span for ic. With isolate set the span starts a new trace,
// linked to whatever span the caller had in ctx.
// A span the backend declined to record is ended straight away and reported as notRecording;
// the returned context still carries it so the sampling decision reaches child spans.
func (m *spanManager) start(ctx context.Context, ic *InvocationContext, isolate bool) (context.Context, spanHandle) {
	attrs := []attribute.KeyValue{
		semconv.RPCSystemKey.String(RPCSystem),
		semconv.RPCServiceKey.String(ic.HubName),
		semconv.RPCMethodKey.String(ic.MethodName),
		ConnectionIDKey.String(ic.ConnectionID),
	}
	if ic.RemoteAddress != "" {
		attrs = append(attrs, semconv.ServerAddressKey.String(ic.RemoteAddress))
	}

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	}
	if isolate {
		var isolation []trace.SpanStartOption
		ctx, isolation = isolateTrace(ctx)
		opts = append(opts, isolation...)
	}

	ctx, span := m.tracer.Start(ctx, ic.HubName+"/"+ic.MethodName, opts...)
	if !span.IsRecording() {
		span.End()
		return ctx, notRecording
	}
	return ctx, spanHandle{span: span}
}

func errorType(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%T", pe.Value)
	}
	return fmt.Sprintf("%T", err)
}

// stackTrace returns the stack carried by err: the goroutine stack of a recovered panic,
// or the %+v rendering of errors that print one (pkg/errors and friends).
func stackTrace(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return string(pe.Stack)
	}
	if verbose := fmt.Sprintf("%+v", err); verbose != err.Error() {
		return verbose
	}
	return ""
}
