package hubotel

import (
	"context"
	"fmt"
	"time"

	hub "github.com/salvationdao/hubotel"
	"go.opentelemetry.io/otel/trace"
)

// isolateTrace derives a context with no parent span, so the next span starts a trace of its own.
// ctx itself is left untouched: the caller keeps its trace once the invocation returns,
// and concurrent invocations never observe each other's isolation.
// The caller's span, if any, is kept as a link.
func isolateTrace(ctx context.Context) (context.Context, []trace.SpanStartOption) {
	opts := []trace.SpanStartOption{trace.WithNewRoot()}
	if parent := trace.SpanContextFromContext(ctx); parent.IsValid() {
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: parent}))
	}
	return trace.ContextWithSpanContext(ctx, trace.SpanContext{}), opts
}

// correlationScope is the log scope of one invocation
type correlationScope struct {
	log hub.Logger
	ic  *InvocationContext
}

// beginScope stores a logger carrying the invocation fields on ctx.
// Handlers reach it with hub.LoggerFromContext.
func beginScope(ctx context.Context, base hub.Logger, ic *InvocationContext) (context.Context, *correlationScope) {
	log := base.
		With("hub_name", ic.HubName).
		With("method_name", ic.MethodName).
		With("invocation_id", ic.InvocationID)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		log = log.With("trace_id", sc.TraceID().String()).With("span_id", sc.SpanID().String())
	}
	return hub.ContextWithLogger(ctx, log), &correlationScope{log: log, ic: ic}
}

func (s *correlationScope) opened(cat category, cause error) {
	switch cat {
	case categoryConnect:
		s.log.Infof("hub connection established to %s", s.ic.HubName)
	case categoryInvoke:
		s.log.Infof("invoking hub method %s.%s", s.ic.HubName, s.ic.MethodName)
	case categoryDisconnect:
		if cause != nil {
			s.log.Err(cause).Infof("hub connection to %s was disconnected with error", s.ic.HubName)
			return
		}
		s.log.Infof("hub connection to %s was disconnected", s.ic.HubName)
	}
}

func (s *correlationScope) closed(d time.Duration, err error) {
	if err != nil {
		s.log.Err(err).Errorf("%s.%s failed after %.3fms", s.ic.HubName, s.ic.MethodName, milliseconds(d))
		return
	}
	s.log.Debugf("duration: %.3fms", milliseconds(d))
}

// protect runs user supplied or sink code. A panic is logged and reported as false, never re-raised.
func protect(log hub.Logger, what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			log.Err(fmt.Errorf("%v", r)).Errorf("%s panicked", what)
		}
	}()
	fn()
	return true
}
