package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/salvationdao/terror"
	"nhooyr.io/websocket"
)

// HubKeyErr is an error response key
const HubKeyErr = "HUB:ERROR"

// DefaultName is used when Config.Name is empty
const DefaultName = "Hub"

// HubCommandKey is used to route to the correct handlers
type HubCommandKey string

// HubCommandRequest contains everything a handler would expect
type HubCommandRequest struct {
	Key           HubCommandKey `json:"key"`
	TransactionID string        `json:"transaction_id"`
	Payload       []byte        `json:"payload"`
	Client        *Client
}

// ReplyFunc sets the synchronous response of a handler.
// The last value replied is the result of the invocation and is sent once the handler returns without error.
type ReplyFunc func(interface{})

// HubCommandFunc is a registered handler for the hub to route to
type HubCommandFunc func(ctx context.Context, hub *Client, payload []byte, reply ReplyFunc) error

// Hub is the hub
type Hub struct {
	Name                  string
	Log                   Logger
	LoggingEnabled        bool
	clientMap             *ClientsMap
	commands              map[HubCommandKey]HubCommandFunc
	Events                *HubEvents
	interceptor           Interceptor
	encodedWelcomeMsg     []byte
	acceptOptions         *websocket.AcceptOptions
	ClientCleanUpCallback ClientOfflineFn
	WebsocketReadLimit    int64
}

type Config struct {
	// Name identifies the hub in telemetry (rpc.service).
	// Default is DefaultName
	Name string
	// Log is a levelled error aware logger.
	// Default does nothing with the log messages
	Log            Logger
	LoggingEnabled bool
	// Interceptor wraps connect, command and disconnect dispatch.
	// Default calls straight through.
	Interceptor Interceptor
	// WelcomeMsg is sent immediately after a connection is established
	WelcomeMsg *WelcomeMsg
	// AcceptOptions configure the websocket listener
	AcceptOptions *websocket.AcceptOptions
	// ClientOfflineFn is a callback to clean up clients from outside the hub (ie, messagebus)
	ClientOfflineFn

	// Change the initial read limit of the websocket
	WebsocketReadLimit int64
}

// ClientOfflineFn is a callback to clean up clients from outside the hub (ie, messagebus)
type ClientOfflineFn func(cl *Client)

type WelcomeMsg struct {
	Key     HubCommandKey `json:"key"`
	Payload interface{}   `json:"payload"`
}

type ClientsMap struct {
	*sync.Map
}

func (cm *ClientsMap) Range(fn func(SessionID, *Client) bool) {
	cm.Map.Range(func(key, value interface{}) bool {
		c, _ := value.(*Client)
		s, _ := key.(SessionID)
		return fn(s, c)
	})
}

func (cm *ClientsMap) Load(sessionID SessionID) (*Client, bool) {
	c, ok := cm.Map.Load(sessionID)
	if !ok {
		return nil, false
	}
	cl, ok := c.(*Client)
	if !ok {
		return nil, false
	}
	return cl, ok
}

func (cm *ClientsMap) Store(sessionID SessionID, client *Client) {
	cm.Map.Store(sessionID, client)
}

func (cm *ClientsMap) Delete(sessionID SessionID) {
	cm.Map.Delete(sessionID)
}

// New creates the hub
func New(conf *Config) *Hub {
	if conf == nil {
		panic("config cannot be nil")
	}

	hub := &Hub{
		Name:                  DefaultName,
		LoggingEnabled:        conf.LoggingEnabled,
		ClientCleanUpCallback: conf.ClientOfflineFn,
		Log:                   &defaultLogger{},
		interceptor:           defaultInterceptor{},
		encodedWelcomeMsg:     []byte{},
		acceptOptions:         &websocket.AcceptOptions{},

		clientMap:          &ClientsMap{new(sync.Map)},
		Events:             newHubEvents(),
		commands:           make(map[HubCommandKey]HubCommandFunc),
		WebsocketReadLimit: conf.WebsocketReadLimit,
	}

	if conf.Name != "" {
		hub.Name = conf.Name
	}

	if conf.Log != nil {
		hub.Log = conf.Log
	}

	if conf.Interceptor != nil {
		hub.interceptor = conf.Interceptor
	}

	if conf.WelcomeMsg != nil {
		msg, err := json.Marshal(conf.WelcomeMsg)
		if err != nil {
			hub.Log.Err(err).Panicf("failed to marshal WelcomeMessage")
		}
		hub.encodedWelcomeMsg = msg
	}

	if conf.AcceptOptions != nil {
		opts := *conf.AcceptOptions
		hub.acceptOptions = &opts
	}

	hub.acceptOptions.CompressionMode = websocket.CompressionDisabled

	return hub
}

// Handle registers a command to the hub
func (hub *Hub) Handle(key HubCommandKey, fn HubCommandFunc) {
	if _, ok := hub.commands[key]; ok {
		hub.Log.Panicf("command has already been registered to hub: %s", key)
	}
	hub.commands[key] = fn
	hub.Log.Tracef("registered %s", key)
}

// HubClientsFunc isaccepts a function that loops over the clients map
type HubClientsFunc func(sessionID SessionID, client *Client) bool

// Client accepts a sessionID that retrieves a client
func (hub *Hub) Client(sessionID SessionID) (*Client, bool) {
	return hub.clientMap.Load(sessionID)
}

// Clients accepts a function that loops over the clients map
func (hub *Hub) Clients(fn HubClientsFunc, debug ...string) {
	if len(debug) > 0 && hub.LoggingEnabled {
		hub.Log.Debugf("start client map: %s", debug)
	}

	hub.clientMap.Range(fn)
}

// Send sends payloads to the given clients
func (hub *Hub) Send(ctx context.Context, key HubCommandKey, payload interface{}, clients ...*Client) {
	resp := struct {
		Key     HubCommandKey `json:"key"`
		Payload interface{}   `json:"payload"`
	}{
		Key:     key,
		Payload: payload,
	}

	b, err := json.Marshal(resp)
	if err != nil {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Errorf("send: issue marshalling resp")
		}
		return
	}

	//swallow errors because it doesn't matter
	for _, c := range clients {
		go c.Send(b)
	}
}

// online is the continuation of the connect pipeline: the client becomes visible and EventOnline handlers run.
func (hub *Hub) online(ctx context.Context, lt *Lifetime) error {
	hub.clientMap.Store(lt.Client.SessionID, lt.Client)
	return hub.Events.Trigger(ctx, EventOnline, lt.Client, func(err error) {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Warnf("online handler failed")
		}
	})
}

// offline is the continuation of the disconnect pipeline
func (hub *Hub) offline(ctx context.Context, lt *Lifetime, cause error) error {
	hub.clientMap.Delete(lt.Client.SessionID)
	if hub.ClientCleanUpCallback != nil {
		hub.ClientCleanUpCallback(lt.Client)
	}
	return hub.Events.Trigger(ctx, EventOffline, lt.Client, func(err error) {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Warnf("offline handler failed")
		}
	})
}

// Offline removes a disconnected client from the pool.
// It is safe to call from every failure path; the disconnect pipeline runs once per client.
func (hub *Hub) Offline(hubc *Client) {
	hubc.offlineOnce.Do(func() {
		hubc.Offline.Store(true)
		// the connection context may already be cancelled, but the disconnect still belongs to its trace
		ctx := context.WithoutCancel(hubc.ctx)
		lt := &Lifetime{Hub: hub.Name, Client: hubc}
		err := hub.interceptor.OnDisconnected(ctx, lt, hubc.closeErr.Load(), hub.offline)
		if err != nil && hub.LoggingEnabled {
			hub.Log.Err(err).Warnf("disconnect %s", hubc.SessionID)
		}
		hubc.close()
	})
}

// ErrSync is a synchronous error, and error with a sessionID
type ErrSync struct {
	Key           HubCommandKey `json:"key"`
	TransactionID string        `json:"transaction_id"`
	Message       string        `json:"message"`
}

func (hub *Hub) sendErr(cmd *HubCommandRequest, message string) {
	errmsg := &ErrSync{
		Key:           HubKeyErr,
		TransactionID: cmd.TransactionID,
		Message:       message,
	}
	b, err := json.Marshal(errmsg)
	if err != nil {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Errorf("marshalling error")
		}
		return
	}
	go cmd.Client.Send(b)
}

// do retrieve command function and run it on websocket request
func (hub *Hub) do(cmd *HubCommandRequest) {
	fn, ok := hub.commands[cmd.Key]
	if !ok {
		if hub.LoggingEnabled {
			hub.Log.Warnf("no command found for %s", cmd.Key)
		}
		hub.sendErr(cmd, "Command not found, try again or contact support.")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			hub.Log.Err(fmt.Errorf("%v", r)).Errorf("%s panicked", cmd.Key)
			hub.sendErr(cmd, "Internal error, try again or contact support.")
		}
	}()

	inv := &Invocation{
		Hub:           hub.Name,
		Method:        cmd.Key,
		TransactionID: cmd.TransactionID,
		Payload:       cmd.Payload,
		Client:        cmd.Client,
	}

	replied := false
	result, hubErr := hub.interceptor.InvokeMethod(cmd.Client.ctx, inv, func(ctx context.Context, inv *Invocation) (interface{}, error) {
		var result interface{}
		err := fn(ctx, inv.Client, inv.Payload, func(payload interface{}) {
			replied = true
			result = payload
		})
		return result, err
	})
	if hubErr != nil {
		if hub.LoggingEnabled {
			hub.Log.Err(hubErr).Warnf("%s returned with an error", cmd.Key)
		}

		message := hubErr.Error()
		var bErr *terror.TError
		if errors.As(hubErr, &bErr) {
			message = bErr.Message
		}
		hub.sendErr(cmd, message)
		return
	}

	if !replied {
		return
	}

	resp := struct {
		Key           HubCommandKey `json:"key"`
		TransactionID string        `json:"transaction_id"`
		Success       bool          `json:"success"`
		Payload       interface{}   `json:"payload"`
	}{
		Key:           cmd.Key,
		TransactionID: cmd.TransactionID,
		Success:       true,
		Payload:       result,
	}

	b, err := json.Marshal(resp)
	if err != nil {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Errorf("marshalling error")
		}
		return
	}

	go cmd.Client.Send(b)
}

// ServeHTTP connects websocket clients and upgrades them
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Upgrade connection to websocket
	c, err := websocket.Accept(w, r, hub.acceptOptions)
	if err != nil {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Errorf("websocket upgrade")
		}
		return
	}

	if hub.WebsocketReadLimit > 0 {
		c.SetReadLimit(hub.WebsocketReadLimit)
	}
	if hub.LoggingEnabled {
		hub.Log.Debugf("Opening connection")
	}
	hubc := NewHubClient(r.Context(), hub, c, r, w)

	// every attempted connect is paired with exactly one disconnect
	defer hub.Offline(hubc)

	err = hub.interceptor.OnConnected(hubc.ctx, &Lifetime{Hub: hub.Name, Client: hubc}, hub.online)
	if err != nil {
		if hub.LoggingEnabled {
			hub.Log.Err(err).Warnf("connect rejected %s", hubc.SessionID)
		}
		hubc.closeErr.Store(err)
		_ = hubc.Close(websocket.StatusPolicyViolation, "connect rejected")
		return
	}

	hubc.ListenAndSend()

	<-hubc.ctx.Done()
	if hub.LoggingEnabled {
		hub.Log.Debugf("hubc.ListenAndSend clean up finished")
	}
}
