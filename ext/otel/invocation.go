package hubotel

import (
	"github.com/gofrs/uuid"
	hub "github.com/salvationdao/hubotel"
)

// Method names used for lifecycle events, which have no command key of their own
const (
	MethodOnConnected    = "OnConnected"
	MethodOnDisconnected = "OnDisconnected"
)

// InvocationContext identifies one connect, command or disconnect.
// A fresh one is built for every call and handed to the filter and enrichment hooks.
type InvocationContext struct {
	HubName       string
	MethodName    string
	ConnectionID  string
	RemoteAddress string // "" when the transport could not tell
	// InvocationID correlates log lines. It is unrelated to the trace and span ids.
	InvocationID string

	TransactionID string
	Payload       []byte
	Client        *hub.Client // nil when the call did not come through a hub
}

func newInvocationID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

func lifetimeContext(lt *hub.Lifetime, method string) *InvocationContext {
	ic := &InvocationContext{
		HubName:    lt.Hub,
		MethodName: method,
		Client:     lt.Client,
	}
	if lt.Client != nil {
		ic.ConnectionID = string(lt.Client.SessionID)
		ic.RemoteAddress = lt.Client.RemoteAddress()
	}
	return ic
}

func invocationContext(inv *hub.Invocation) *InvocationContext {
	ic := &InvocationContext{
		HubName:       inv.Hub,
		MethodName:    string(inv.Method),
		TransactionID: inv.TransactionID,
		Payload:       inv.Payload,
		Client:        inv.Client,
	}
	if inv.Client != nil {
		ic.ConnectionID = string(inv.Client.SessionID)
		ic.RemoteAddress = inv.Client.RemoteAddress()
	}
	return ic
}
