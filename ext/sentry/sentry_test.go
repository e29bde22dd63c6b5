package SentryTracer

import (
	"context"
	"errors"
	"testing"

	hub "github.com/salvationdao/hubotel"
	hubotel "github.com/salvationdao/hubotel/ext/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestTags(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	_, span := tp.Tracer("test").Start(context.Background(), "Chat/PostMessage")
	defer span.End()

	got := tags(span, &hubotel.InvocationContext{
		HubName:       "Chat",
		MethodName:    "PostMessage",
		ConnectionID:  "conn-1",
		InvocationID:  "inv-1",
		TransactionID: "tx-1",
	})

	assert.Equal(t, "Chat", got["hub"])
	assert.Equal(t, "PostMessage", got["cmd"])
	assert.Equal(t, "conn-1", got["connection_id"])
	assert.Equal(t, "inv-1", got["invocation_id"])
	assert.Equal(t, "tx-1", got["transaction_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), got["trace_id"])
	assert.NotContains(t, got, "client_id")
}

func TestTagsIncludeClientIdentifier(t *testing.T) {
	hubc := hub.NewHubClient(context.Background(), hub.New(&hub.Config{}), nil, nil, nil)
	hubc.SetIdentifier("alice")

	got := tags(trace.SpanFromContext(context.Background()), &hubotel.InvocationContext{
		HubName:    "Chat",
		MethodName: "PostMessage",
		Client:     hubc,
	})
	assert.Equal(t, "alice", got["client_id"])
	assert.NotContains(t, got, "trace_id")
}

func TestIgnoredErrorsAreDropped(t *testing.T) {
	forbidden := errors.New("access forbidden")
	st := New(nil)
	st.Ignore = func(err error) bool { return errors.Is(err, forbidden) }

	tp := sdktrace.NewTracerProvider()
	_, span := tp.Tracer("test").Start(context.Background(), "Chat/PostMessage")
	defer span.End()

	require.NotPanics(t, func() {
		st.OnException(span, &hubotel.InvocationContext{HubName: "Chat"}, forbidden)
		st.OnException(span, &hubotel.InvocationContext{HubName: "Chat"}, errors.New("boom"))
	})
}
