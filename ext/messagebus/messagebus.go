package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	hub "github.com/salvationdao/hubotel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/salvationdao/hubotel/ext/messagebus"

type BusKey string

// bus is the set of clients subscribed to one key
type bus struct {
	clients map[*hub.Client]bool
	sync.RWMutex
}

func (b *bus) insert(hubc *hub.Client) {
	b.Lock()
	b.clients[hubc] = true
	b.Unlock()
}

func (b *bus) remove(hubc *hub.Client) {
	b.Lock()
	delete(b.clients, hubc)
	b.Unlock()
}

// snapshot returns the online subscribers, dropping the ones that went offline
func (b *bus) snapshot() []*hub.Client {
	b.Lock()
	defer b.Unlock()
	out := make([]*hub.Client, 0, len(b.clients))
	for hubc := range b.clients {
		if hubc.Offline.Load() {
			delete(b.clients, hubc)
			continue
		}
		out = append(out, hubc)
	}
	return out
}

type Message struct {
	Key     BusKey      `json:"key"`
	Payload interface{} `json:"payload"`
}

// MessageBus fans messages out to the clients subscribed to a key.
// Publishing from inside a hub handler creates a span under the invocation span.
type MessageBus struct {
	log    *zerolog.Logger
	tracer trace.Tracer
	busses map[BusKey]*bus
	sync.RWMutex
}

type Option func(mb *MessageBus)

// WithTracerProvider overrides otel.GetTracerProvider()
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(mb *MessageBus) {
		mb.tracer = tp.Tracer(instrumentationName)
	}
}

func NewMessageBus(log *zerolog.Logger, opts ...Option) *MessageBus {
	mb := &MessageBus{
		log:    log,
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
		busses: make(map[BusKey]*bus),
	}
	for _, opt := range opts {
		opt(mb)
	}
	return mb
}

func (mb *MessageBus) bus(busKey BusKey, create bool) *bus {
	mb.RLock()
	b, ok := mb.busses[busKey]
	mb.RUnlock()
	if ok || !create {
		return b
	}

	mb.Lock()
	defer mb.Unlock()
	if b, ok = mb.busses[busKey]; ok {
		return b
	}
	b = &bus{clients: map[*hub.Client]bool{}}
	mb.busses[busKey] = b
	return b
}

// Sub subscribes hubc to busKey
func (mb *MessageBus) Sub(busKey BusKey, hubc *hub.Client) {
	mb.bus(busKey, true).insert(hubc)
}

// Unsub removes hubc from busKey
func (mb *MessageBus) Unsub(busKey BusKey, hubc *hub.Client) {
	if b := mb.bus(busKey, false); b != nil {
		b.remove(hubc)
	}
}

// UnsubAll removes hubc from every key. It has the hub.ClientOfflineFn signature.
func (mb *MessageBus) UnsubAll(hubc *hub.Client) {
	mb.RLock()
	defer mb.RUnlock()
	for _, b := range mb.busses {
		b.remove(hubc)
	}
}

// Subscribers returns how many online clients are subscribed to busKey
func (mb *MessageBus) Subscribers(busKey BusKey) int {
	b := mb.bus(busKey, false)
	if b == nil {
		return 0
	}
	return len(b.snapshot())
}

// Send publishes data to every client subscribed to busKey and returns how many it was sent to.
func (mb *MessageBus) Send(ctx context.Context, busKey BusKey, data interface{}) (int, error) {
	_, span := mb.tracer.Start(ctx, "messagebus.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messagebus.key", string(busKey))),
	)
	defer span.End()

	jd, err := json.Marshal(&Message{Key: busKey, Payload: data})
	if err != nil {
		err = fmt.Errorf("marshal %s: %w", busKey, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		mb.log.Err(err).Msg("messagebus send")
		return 0, err
	}

	b := mb.bus(busKey, false)
	if b == nil {
		span.SetAttributes(attribute.Int("messagebus.recipients", 0))
		return 0, nil
	}

	clients := b.snapshot()
	span.SetAttributes(attribute.Int("messagebus.recipients", len(clients)))
	for _, hubc := range clients {
		hubc := hubc
		go hubc.SendErrorCallback(jd, func(err error) {
			b.remove(hubc)
			mb.log.Debug().Err(err).Str("session_id", string(hubc.SessionID)).Msg("dropped subscriber")
		})
	}
	return len(clients), nil
}
