package hub

import (
	"context"
	"sync"
)

//events
type Event string
type EventHandler func(ctx context.Context, client *Client) error

type ErrorCallback func(error)

const (
	// EventOnline fires inside the connect pipeline, after the client was stored
	EventOnline Event = "ONLINE"
	// EventOffline fires inside the disconnect pipeline, after the client was removed
	EventOffline Event = "OFFLINE"
)

type HubEvents struct {
	events map[Event][]EventHandler
	sync.RWMutex
}

func newHubEvents() *HubEvents {
	return &HubEvents{events: map[Event][]EventHandler{EventOnline: {}, EventOffline: {}}}
}

// AddEventHandler registers handler for event. Handlers run in registration order.
func (ev *HubEvents) AddEventHandler(event Event, handler EventHandler) {
	ev.Lock()
	defer ev.Unlock()
	ev.events[event] = append(ev.events[event], handler)
}

// Trigger runs every handler for event, reporting failures to errCallback.
// It returns the first error so the caller can fail the lifecycle step.
func (ev *HubEvents) Trigger(ctx context.Context, event Event, client *Client, errCallback ErrorCallback) error {
	ev.RLock()
	handlers := ev.events[event]
	ev.RUnlock()

	var first error
	for _, fn := range handlers {
		err := fn(ctx, client)
		if err != nil {
			if first == nil {
				first = err
			}
			if errCallback != nil {
				errCallback(err)
			}
		}
	}
	return first
}
