// Package hubotel instruments a hub with OpenTelemetry tracing and metrics and with correlated logs.
//
// An *Instrumentation is a hub.Interceptor:
//
//	inst, err := hubotel.New(&hubotel.Config{Log: log})
//	apiHub := hub.New(&hub.Config{Interceptor: inst})
//
// It observes every connect, command and disconnect without changing what they return.
package hubotel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	hub "github.com/salvationdao/hubotel"
	"go.opentelemetry.io/otel"
)

const (
	Version             = "0.1.0"
	instrumentationName = "github.com/salvationdao/hubotel/ext/otel"
)

// ErrInvocationAborted is reported when a continuation neither returned nor panicked (runtime.Goexit)
var ErrInvocationAborted = errors.New("invocation aborted")

// PanicError is what the span and hooks see when a continuation panics.
// The panic itself is re-raised with its original value.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type category int

const (
	categoryConnect category = iota
	categoryInvoke
	categoryDisconnect
)

// Instrumentation wraps hub invocations. It is safe for concurrent use.
type Instrumentation struct {
	conf    Config
	log     hub.Logger
	now     func() time.Time
	spans   *spanManager
	metrics *metricsRecorder
}

var _ hub.Interceptor = (*Instrumentation)(nil)

// New creates the instrumentation. A nil conf is the zero Config.
func New(conf *Config) (*Instrumentation, error) {
	if conf == nil {
		conf = &Config{}
	}

	in := &Instrumentation{
		conf: *conf,
		log:  hub.NopLogger(),
		now:  time.Now,
	}
	if conf.Log != nil {
		in.log = conf.Log
	}
	if conf.Now != nil {
		in.now = conf.Now
	}

	tp := conf.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	in.spans = newSpanManager(tp)

	mp := conf.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	metrics, err := newMetricsRecorder(mp)
	if err != nil {
		return nil, fmt.Errorf("hubotel metrics: %w", err)
	}
	in.metrics = metrics

	return in, nil
}

// ActiveConnections is the current value of the active connection gauge
func (in *Instrumentation) ActiveConnections() int64 {
	return in.metrics.activeCount.Load()
}

// Connect wraps a connect continuation
func (in *Instrumentation) Connect(ctx context.Context, ic *InvocationContext, next func(ctx context.Context) error) error {
	_, err := in.intercept(ctx, ic, categoryConnect, nil, func(ctx context.Context) (interface{}, error) {
		return nil, next(ctx)
	})
	return err
}

// Invoke wraps a method continuation and returns exactly what it returned
func (in *Instrumentation) Invoke(ctx context.Context, ic *InvocationContext, next func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	return in.intercept(ctx, ic, categoryInvoke, nil, next)
}

// Disconnect wraps a disconnect continuation. cause is passed through to next untouched.
func (in *Instrumentation) Disconnect(ctx context.Context, ic *InvocationContext, cause error, next func(ctx context.Context, cause error) error) error {
	_, err := in.intercept(ctx, ic, categoryDisconnect, cause, func(ctx context.Context) (interface{}, error) {
		return nil, next(ctx, cause)
	})
	return err
}

// OnConnected implements hub.Interceptor
func (in *Instrumentation) OnConnected(ctx context.Context, lt *hub.Lifetime, next hub.ConnectFunc) error {
	return in.Connect(ctx, lifetimeContext(lt, MethodOnConnected), func(ctx context.Context) error {
		return next(ctx, lt)
	})
}

// InvokeMethod implements hub.Interceptor
func (in *Instrumentation) InvokeMethod(ctx context.Context, inv *hub.Invocation, next hub.InvokeFunc) (interface{}, error) {
	return in.Invoke(ctx, invocationContext(inv), func(ctx context.Context) (interface{}, error) {
		return next(ctx, inv)
	})
}

// OnDisconnected implements hub.Interceptor
func (in *Instrumentation) OnDisconnected(ctx context.Context, lt *hub.Lifetime, cause error, next hub.DisconnectFunc) error {
	return in.Disconnect(ctx, lifetimeContext(lt, MethodOnDisconnected), cause, func(ctx context.Context, cause error) error {
		return next(ctx, lt, cause)
	})
}

func (in *Instrumentation) intercept(ctx context.Context, ic *InvocationContext, cat category, cause error, next func(context.Context) (interface{}, error)) (result interface{}, err error) {
	if ic == nil {
		ic = &InvocationContext{}
	}
	// filtered invocations bypass instrumentation entirely. Connects and disconnects are never
	// filtered so the active connection gauge stays balanced.
	if cat == categoryInvoke && !in.instrumented(ic) {
		return next(ctx)
	}
	if ic.InvocationID == "" {
		ic.InvocationID = newInvocationID()
	}

	ctx, span := in.startSpan(ctx, ic)

	ctx, scope := beginScope(ctx, in.log, ic)
	scope.opened(cat, cause)

	in.enrichBefore(span, scope, cat, ic, cause)

	sw := startStopwatch(in.now)
	settled := false
	defer func() {
		if settled {
			return
		}
		r := recover()
		var failure error = ErrInvocationAborted
		if r != nil {
			failure = &PanicError{Value: r, Stack: debug.Stack()}
		}
		in.complete(ctx, span, scope, cat, ic, sw.elapsed(), nil, failure)
		if r != nil {
			panic(r)
		}
	}()

	result, err = next(ctx)
	settled = true

	in.complete(ctx, span, scope, cat, ic, sw.elapsed(), result, err)
	return result, err
}

// instrumented evaluates the filter. A panicking filter counts as false.
func (in *Instrumentation) instrumented(ic *InvocationContext) bool {
	if in.conf.Filter == nil {
		return true
	}
	keep := false
	ok := protect(in.log, "filter", func() {
		keep = in.conf.Filter(ic)
	})
	return ok && keep
}

// startSpan opens the span for ic. A tracer that panics leaves the call untraced on the original ctx.
func (in *Instrumentation) startSpan(ctx context.Context, ic *InvocationContext) (context.Context, spanHandle) {
	spanCtx, span := ctx, notRecording
	if !protect(in.log, "span start", func() {
		spanCtx, span = in.spans.start(ctx, ic, in.conf.IsolateTraceContext)
	}) {
		return ctx, notRecording
	}
	return spanCtx, span
}

func (in *Instrumentation) enrichBefore(span spanHandle, scope *correlationScope, cat category, ic *InvocationContext, cause error) {
	if !span.recording() {
		return
	}
	switch cat {
	case categoryConnect:
		if hook := in.conf.OnConnected; hook != nil {
			protect(scope.log, "OnConnected", func() { hook(span.span, ic) })
		}
	case categoryInvoke:
		if hook := in.conf.OnMethodInvoked; hook != nil {
			protect(scope.log, "OnMethodInvoked", func() { hook(span.span, ic) })
		}
	case categoryDisconnect:
		if hook := in.conf.OnDisconnected; hook != nil {
			protect(scope.log, "OnDisconnected", func() { hook(span.span, ic, cause) })
		}
	}
}

// complete records the outcome of a settled continuation. Nothing in here may panic out:
// the result has already been decided.
func (in *Instrumentation) complete(ctx context.Context, span spanHandle, scope *correlationScope, cat category, ic *InvocationContext, d time.Duration, result interface{}, err error) {
	protect(scope.log, "metrics", func() {
		switch cat {
		case categoryConnect:
			in.metrics.recordConnected(ctx, ic)
		case categoryInvoke:
			in.metrics.recordInvocation(ctx, ic, d)
		case categoryDisconnect:
			in.metrics.recordDisconnected(ctx, ic)
		}
	})

	if err != nil {
		protect(scope.log, "span status", func() { span.markError(err) })
		if hook := in.conf.OnException; hook != nil && span.recording() {
			protect(scope.log, "OnException", func() { hook(span.span, ic, err) })
		}
	} else {
		protect(scope.log, "span status", span.markOk)
		if hook := in.conf.OnMethodResult; hook != nil && cat == categoryInvoke && span.recording() {
			protect(scope.log, "OnMethodResult", func() { hook(span.span, ic, result) })
		}
	}

	protect(scope.log, "span end", span.end)
	scope.closed(d, err)
}
