package wsserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phnq-org/message/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RejectsUnlistedPath(t *testing.T) {
	srv := New(Config{Paths: []string{"/rpc"}})
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/other"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		defer ws.Close()
		_, _, readErr := ws.ReadMessage()
		require.Error(t, readErr)
		closeErr, ok := readErr.(*websocket.CloseError)
		require.True(t, ok)
		assert.Equal(t, 1008, closeErr.Code)
		return
	}
	require.NotNil(t, resp)
}

func TestServer_AcceptsListedPathAndDispatches(t *testing.T) {
	connected := make(chan string, 1)
	srv := New(Config{
		Paths: []string{"/rpc"},
		OnReceive: func(ctx context.Context, payload any) (any, error) {
			return map[string]any{"echo": payload}, nil
		},
		OnConnect: func(id string, conn *message.Connection) { connected <- id },
	})
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/rpc"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect never fired")
	}

	require.NoError(t, ws.WriteJSON(map[string]any{"t": "request", "c": 1, "s": "client", "p": "hi"}))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp map[string]any
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, "response", resp["t"])
}
