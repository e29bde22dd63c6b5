package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	hub "github.com/salvationdao/hubotel"
	"github.com/salvationdao/hubotel/ext/messagebus"
	"github.com/salvationdao/terror"
)

const (
	HubKeyAdd         hub.HubCommandKey = "Add"
	HubKeyEcho        hub.HubCommandKey = "Echo"
	HubKeyFail        hub.HubCommandKey = "Fail"
	HubKeyEnterRoom   hub.HubCommandKey = "EnterRoom"
	HubKeyLeaveRoom   hub.HubCommandKey = "LeaveRoom"
	HubKeyPostMessage hub.HubCommandKey = "PostMessage"
	HubKeyGetMessages hub.HubCommandKey = "GetMessages"
)

// request is the inbound frame, with the command arguments in Payload
type request[T any] struct {
	Key           hub.HubCommandKey `json:"key"`
	TransactionID string            `json:"transaction_id"`
	Payload       T                 `json:"payload"`
}

func decode[T any](payload []byte) (T, error) {
	req := &request[T]{}
	if err := json.Unmarshal(payload, req); err != nil {
		return req.Payload, terror.Error(err, "Invalid request received")
	}
	return req.Payload, nil
}

// CalcController holds the unary commands
type CalcController struct{}

func NewCalcController(apiHub *hub.Hub) *CalcController {
	cc := &CalcController{}
	apiHub.Handle(HubKeyAdd, cc.AddHandler)
	apiHub.Handle(HubKeyEcho, cc.EchoHandler)
	apiHub.Handle(HubKeyFail, cc.FailHandler)
	return cc
}

type AddRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (cc *CalcController) AddHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	req, err := decode[AddRequest](payload)
	if err != nil {
		return err
	}
	reply(req.X + req.Y)
	return nil
}

func (cc *CalcController) EchoHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	req, err := decode[json.RawMessage](payload)
	if err != nil {
		return err
	}
	hub.LoggerFromContext(ctx).Debugf("echo %d bytes", len(req))
	reply(req)
	return nil
}

// FailHandler always errors, to show failed invocations in traces and sentry
func (cc *CalcController) FailHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	return terror.Error(errors.New("requested failure"), "Something went wrong")
}

type ChatMessage struct {
	Room   string `json:"room"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// ChatController keeps a short history per room and fans new messages out over the message bus
type ChatController struct {
	bus     *messagebus.MessageBus
	history map[string][]*ChatMessage
	sync.RWMutex
}

const historySize = 50

func NewChatController(apiHub *hub.Hub, bus *messagebus.MessageBus) *ChatController {
	cc := &ChatController{
		bus:     bus,
		history: map[string][]*ChatMessage{},
	}
	apiHub.Handle(HubKeyEnterRoom, cc.EnterRoomHandler)
	apiHub.Handle(HubKeyLeaveRoom, cc.LeaveRoomHandler)
	apiHub.Handle(HubKeyPostMessage, cc.PostMessageHandler)
	apiHub.Handle(HubKeyGetMessages, cc.GetMessagesHandler)
	return cc
}

func roomKey(room string) messagebus.BusKey {
	return messagebus.BusKey(fmt.Sprintf("room:%s", room))
}

type RoomRequest struct {
	Room string `json:"room"`
}

func (cc *ChatController) room(payload []byte) (string, error) {
	req, err := decode[RoomRequest](payload)
	if err != nil {
		return "", err
	}
	if req.Room == "" {
		return "", terror.Error(errors.New("missing room"), "Room is required")
	}
	return req.Room, nil
}

func (cc *ChatController) EnterRoomHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	room, err := cc.room(payload)
	if err != nil {
		return err
	}
	cc.bus.Sub(roomKey(room), hubc)
	reply(cc.bus.Subscribers(roomKey(room)))
	return nil
}

func (cc *ChatController) LeaveRoomHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	room, err := cc.room(payload)
	if err != nil {
		return err
	}
	cc.bus.Unsub(roomKey(room), hubc)
	reply(true)
	return nil
}

func (cc *ChatController) PostMessageHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	msg, err := decode[ChatMessage](payload)
	if err != nil {
		return err
	}
	if msg.Room == "" || msg.Text == "" {
		return terror.Error(errors.New("empty message"), "Room and text are required")
	}
	if msg.Author == "" {
		msg.Author = hubc.Identifier()
	}

	cc.Lock()
	h := append(cc.history[msg.Room], &msg)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	cc.history[msg.Room] = h
	cc.Unlock()

	n, err := cc.bus.Send(ctx, roomKey(msg.Room), &msg)
	if err != nil {
		return terror.Error(err, "Failed to deliver message")
	}
	reply(n)
	return nil
}

func (cc *ChatController) GetMessagesHandler(ctx context.Context, hubc *hub.Client, payload []byte, reply hub.ReplyFunc) error {
	room, err := cc.room(payload)
	if err != nil {
		return err
	}
	cc.RLock()
	msgs := append([]*ChatMessage{}, cc.history[room]...)
	cc.RUnlock()
	reply(msgs)
	return nil
}
