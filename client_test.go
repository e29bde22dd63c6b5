package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type causeRecorder struct {
	defaultInterceptor
	causes chan error
}

func (r *causeRecorder) OnDisconnected(ctx context.Context, lt *Lifetime, cause error, next DisconnectFunc) error {
	r.causes <- cause
	return next(ctx, lt, cause)
}

// dialPeer returns a client connection to a peer that reads until the connection ends
func dialPeer(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := c.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return c
}

func TestSendFailureIsTheDisconnectCause(t *testing.T) {
	rec := &causeRecorder{causes: make(chan error, 1)}
	h := New(&Config{Interceptor: rec})

	conn := dialPeer(t)
	hubc := NewHubClient(context.Background(), h, conn, nil, nil)
	require.NoError(t, conn.Close(websocket.StatusPolicyViolation, "gone"))

	var writeErr, causeAtCallback error
	hubc.SendErrorCallback([]byte(`{"key":"PING"}`), func(err error) {
		writeErr = err
		causeAtCallback = hubc.closeErr.Load()
	})

	require.Error(t, writeErr)
	assert.ErrorIs(t, causeAtCallback, writeErr, "cause is stored before the connection is closed")

	select {
	case cause := <-rec.causes:
		assert.ErrorIs(t, cause, writeErr)
	case <-time.After(time.Second):
		t.Fatal("disconnect did not run")
	}
	assert.True(t, hubc.Offline.Load())
	assert.Error(t, hubc.Context().Err())
}
