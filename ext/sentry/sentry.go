package SentryTracer

import (
	"errors"

	"github.com/getsentry/sentry-go"
	hubotel "github.com/salvationdao/hubotel/ext/otel"
	"go.opentelemetry.io/otel/trace"
)

type SentryTracer struct {
	hub *sentry.Hub
	// Ignore reports errors that are part of normal operation (ie, access forbidden) and should not reach sentry
	Ignore func(err error) bool
}

// New reports through sentryHub, or a clone of the current hub when nil
func New(sentryHub *sentry.Hub) *SentryTracer {
	if sentryHub == nil {
		sentryHub = sentry.CurrentHub().Clone()
	}
	return &SentryTracer{hub: sentryHub}
}

// OnException is a hubotel.Config.OnException hook.
// Each failed invocation becomes one sentry event tagged with the hub, method, connection and trace it belongs to.
func (st *SentryTracer) OnException(span trace.Span, ic *hubotel.InvocationContext, err error) {
	if st.Ignore != nil && st.Ignore(err) {
		return
	}
	st.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags(span, ic) {
			scope.SetTag(k, v)
		}
		if ic.Client != nil && ic.Client.Identifier() != "" {
			scope.SetUser(sentry.User{ID: ic.Client.Identifier()})
		}
		var pe *hubotel.PanicError
		if errors.As(err, &pe) {
			scope.SetLevel(sentry.LevelFatal)
			scope.SetExtra("stack", string(pe.Stack))
		}
		st.hub.CaptureException(err)
	})
}

func tags(span trace.Span, ic *hubotel.InvocationContext) map[string]string {
	t := map[string]string{
		"hub":           ic.HubName,
		"cmd":           ic.MethodName,
		"connection_id": ic.ConnectionID,
		"invocation_id": ic.InvocationID,
	}
	if ic.TransactionID != "" {
		t["transaction_id"] = ic.TransactionID
	}
	if ic.Client != nil && ic.Client.Identifier() != "" {
		t["client_id"] = ic.Client.Identifier()
	}
	if sc := span.SpanContext(); sc.IsValid() {
		t["trace_id"] = sc.TraceID().String()
		t["span_id"] = sc.SpanID().String()
	}
	return t
}
