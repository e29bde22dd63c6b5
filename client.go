package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/gofrs/uuid"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second
)

type hubClientMessage struct {
	MsgType websocket.MessageType
	payload []byte
}

type SessionID string

// Client contains client session state
type Client struct {
	ident          atomic.String // set by the application once it knows who is connected
	hub            *Hub
	SessionID      SessionID
	ctx            context.Context
	close          context.CancelFunc
	Offline        atomic.Bool
	offlineOnce    sync.Once
	closeErr       atomic.Error // why the connection ended, nil on a clean close
	Request        *http.Request
	ResponseWriter http.ResponseWriter
	*websocket.Conn
}

// Identifier returns the users identifier, "" until SetIdentifier is called
func (hubc *Client) Identifier() string {
	return hubc.ident.Load()
}

// SetIdentifier sets a users identifier
func (hubc *Client) SetIdentifier(ident string) {
	hubc.ident.Store(ident)
}

// RemoteAddress returns the host the client connected to, or "" when the request is unknown
func (hubc *Client) RemoteAddress() string {
	if hubc.Request == nil {
		return ""
	}
	return hubc.Request.Host
}

// Context returns the connection context. It is cancelled once the client goes offline.
func (hubc *Client) Context() context.Context {
	return hubc.ctx
}

// NewHubClient returns a new hub client
// A hub client is a persistent websocket session
func NewHubClient(ctx context.Context, hub *Hub, c *websocket.Conn, r *http.Request, w http.ResponseWriter) *Client {
	ctx, cancel := context.WithCancel(ctx)

	hubc := &Client{
		hub:            hub,
		Request:        r,
		ResponseWriter: w,
		SessionID:      SessionID(uuid.Must(uuid.NewV4()).String()),
		ctx:            ctx,
		close:          cancel,
		Conn:           c,
	}

	return hubc
}

// write enforces a timeout on websocket writes
func write(msg *hubClientMessage, timeout time.Duration, c *websocket.Conn) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return c.Write(ctx, msg.MsgType, msg.payload)
}

// isClosing reports errors that are the normal end of a connection rather than a fault
func isClosing(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}

func (hubc *Client) send(payload []byte, msgType websocket.MessageType, callback func(err error)) {
	if hubc.Offline.Load() {
		return
	}

	err := write(&hubClientMessage{payload: payload, MsgType: msgType}, writeWait, hubc.Conn)
	if err == nil {
		return
	}
	// the cause must be in place before Close wakes the receive pump, which may reach Offline first
	if !isClosing(err) {
		hubc.closeErr.CompareAndSwap(nil, fmt.Errorf("write ws conn: %w", err))
		if hubc.hub.LoggingEnabled {
			hubc.hub.Log.Err(err).Warnf("error sending")
		}
	}
	if callback != nil {
		callback(err)
	}
	_ = hubc.Close(websocket.StatusInternalError, "failed to send")
	hubc.hub.Offline(hubc)
}

// Send will send a payload to the hub client
func (hubc *Client) Send(payload []byte) {
	hubc.send(payload, websocket.MessageText, nil)
}

// SendErrorCallback will send a payload to the hub client, calling callback when the write fails
func (hubc *Client) SendErrorCallback(payload []byte, callback func(err error)) {
	hubc.send(payload, websocket.MessageText, callback)
}

// SendBinaryErrCallback will send a binary payload to the hub client, calling callback when the write fails
func (hubc *Client) SendBinaryErrCallback(payload []byte, callback func(err error)) {
	hubc.send(payload, websocket.MessageBinary, callback)
}

// SendWithMessageType will send a payload to the hub client with given message type
func (hubc *Client) SendWithMessageType(payload []byte, msgType websocket.MessageType) {
	hubc.send(payload, msgType, nil)
}

// ListenAndSend listens for incoming messages and pumps them to the correct connected hub clients
func (hubc *Client) ListenAndSend() {
	go hubc.receivePump()

	if len(hubc.hub.encodedWelcomeMsg) != 0 {
		hubc.Send(hubc.hub.encodedWelcomeMsg)
	}
}

func (hubc *Client) receivePump() {
	for {
		select {
		case <-hubc.ctx.Done():
			return
		default:
			_, payload, err := hubc.Conn.Read(hubc.ctx)
			if err != nil {
				if !isClosing(err) {
					hubc.closeErr.CompareAndSwap(nil, fmt.Errorf("read ws conn: %w", err))
					if hubc.hub.LoggingEnabled {
						hubc.hub.Log.Err(err).Warnf("read ws conn")
					}
				}
				_ = hubc.Close(websocket.StatusInternalError, "failed to read from pump")
				hubc.hub.Offline(hubc)
				return
			}

			v, err := jason.NewObjectFromBytes(payload)
			if err != nil {
				if hubc.hub.LoggingEnabled {
					hubc.hub.Log.Err(err).Errorf("make object from bytes. Object: %s", string(payload))
				}
				continue
			}
			cmdKey, err := v.GetString("key")
			if err != nil {
				if hubc.hub.LoggingEnabled {
					hubc.hub.Log.Err(err).Errorf(`missing json key "key"`)
				}
				continue
			}

			if cmdKey == "" {
				if hubc.hub.LoggingEnabled {
					hubc.hub.Log.Err(fmt.Errorf("missing key value")).Errorf("missing key/command value")
				}
				continue
			}

			if hubc.hub.LoggingEnabled {
				hubc.hub.Log.Debugf("%s | received", cmdKey)
			}
			tid, err := v.GetString("transaction_id")
			if err != nil {
				if hubc.hub.LoggingEnabled {
					hubc.hub.Log.Err(err).Errorf("get transactionID string")
				}
				continue
			}

			go hubc.hub.do(&HubCommandRequest{
				Key:           HubCommandKey(cmdKey),
				TransactionID: tid,
				Payload:       payload,
				Client:        hubc,
			})
		}
	}
}
