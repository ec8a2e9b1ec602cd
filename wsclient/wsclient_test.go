package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go func() {
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				_ = ws.WriteMessage(websocket.TextMessage, data)
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGet_SharesConnectionAcrossCallers(t *testing.T) {
	url := newEchoServer(t)

	conn1, release1, err := Get(context.Background(), url, Options{MaxConnectAttempts: 1})
	require.NoError(t, err)
	defer release1()

	conn2, release2, err := Get(context.Background(), url, Options{MaxConnectAttempts: 1})
	require.NoError(t, err)
	defer release2()

	assert.Same(t, conn1, conn2)
}

func TestAddReceiveHandler_FansOutToMultipleHandlers(t *testing.T) {
	url := newEchoServer(t)

	_, release, err := Get(context.Background(), url, Options{MaxConnectAttempts: 1})
	require.NoError(t, err)
	defer release()

	seenA := make(chan any, 1)
	seenB := make(chan any, 1)
	AddReceiveHandler(url, func(ctx context.Context, payload any) (any, error) {
		seenA <- payload
		return nil, nil
	})
	AddReceiveHandler(url, func(ctx context.Context, payload any) (any, error) {
		seenB <- payload
		return nil, nil
	})

	registryMu.Lock()
	entry := registry[url]
	registryMu.Unlock()
	require.NotNil(t, entry)
	_, err = entry.dispatch(context.Background(), "ping")
	require.NoError(t, err)

	select {
	case v := <-seenA:
		assert.Equal(t, "ping", v)
	case <-time.After(time.Second):
		t.Fatal("handler A never saw the payload")
	}
	select {
	case v := <-seenB:
		assert.Equal(t, "ping", v)
	case <-time.After(time.Second):
		t.Fatal("handler B never saw the payload")
	}
}
