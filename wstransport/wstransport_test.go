package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phnq-org/message/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (url string, accepted chan *Conn) {
	t.Helper()
	accepted = make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- Wrap(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), accepted
}

func TestConn_SendAndReceiveRoundTrip(t *testing.T) {
	url, accepted := newTestServer(t)

	client := NewClient(ClientConfig{URL: url, MaxConnectAttempts: 1})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	server := <-accepted
	t.Cleanup(func() { _ = server.Close() })

	received := make(chan transport.Message, 1)
	server.OnReceive(func(msg transport.Message) { received <- msg })

	err := client.Send(context.Background(), transport.Message{T: transport.TypeRequest, C: 1, S: "a", P: "hi"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "hi", msg.P)
		assert.Equal(t, uint64(1), msg.C)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestClient_SendBeforeConnectFails(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://unused"})
	err := client.Send(context.Background(), transport.Message{T: transport.TypeRequest})
	require.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}
