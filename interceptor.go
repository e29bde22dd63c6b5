package hub

import "context"

// Lifetime describes a connection lifecycle event (connect or disconnect)
type Lifetime struct {
	Hub    string
	Client *Client
}

// Invocation describes a single command routed to a registered HubCommandFunc
type Invocation struct {
	Hub           string
	Method        HubCommandKey
	TransactionID string
	Payload       []byte
	Client        *Client
}

// ConnectFunc is the remainder of the connect pipeline
type ConnectFunc func(ctx context.Context, lt *Lifetime) error

// InvokeFunc is the remainder of the invocation pipeline. The returned value is what the handler replied with.
type InvokeFunc func(ctx context.Context, inv *Invocation) (interface{}, error)

// DisconnectFunc is the remainder of the disconnect pipeline. cause is the error that ended the connection, nil on a clean close.
type DisconnectFunc func(ctx context.Context, lt *Lifetime, cause error) error

// Interceptor wraps every connect, command and disconnect the hub dispatches.
//
// Implementations must call next exactly once and return what it returned, unchanged.
// Everything else they do is a side effect (tracing, metrics, logging).
type Interceptor interface {
	OnConnected(ctx context.Context, lt *Lifetime, next ConnectFunc) error
	InvokeMethod(ctx context.Context, inv *Invocation, next InvokeFunc) (interface{}, error)
	OnDisconnected(ctx context.Context, lt *Lifetime, cause error, next DisconnectFunc) error
}

type defaultInterceptor struct{}

func (defaultInterceptor) OnConnected(ctx context.Context, lt *Lifetime, next ConnectFunc) error {
	return next(ctx, lt)
}

func (defaultInterceptor) InvokeMethod(ctx context.Context, inv *Invocation, next InvokeFunc) (interface{}, error) {
	return next(ctx, inv)
}

func (defaultInterceptor) OnDisconnected(ctx context.Context, lt *Lifetime, cause error, next DisconnectFunc) error {
	return next(ctx, lt, cause)
}
