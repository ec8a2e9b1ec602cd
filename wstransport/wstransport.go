// Package wstransport implements transport.Transport over a gorilla
// websocket.Conn: an accepted server-side connection wrapper, and a
// client-side dialer that retries its connect, with its own connection
// state machine.
package wstransport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16 << 20 // 16MiB, generous for chunk-free single-frame payloads
)

// Conn wraps an already-established *websocket.Conn (accepted by a
// server or dialed by a client) as a transport.Transport. Writes are
// serialized with a mutex since gorilla/websocket forbids concurrent
// writers on the same connection; a background goroutine sends periodic
// pings, and each pong received extends the read deadline.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	handler transport.ReceiveHandler
	closed  bool

	stopPing chan struct{}
	wg       sync.WaitGroup
}

// Wrap adapts an established websocket connection, starting its read and
// keep-alive pump loops. Callers (wsserver on accept, wstransport's own
// client dialer on connect) own ws's lifecycle up to this point; Wrap
// takes over closing it.
func Wrap(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws, stopPing: make(chan struct{})}
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			_ = c.Close()
			return
		}

		msg, err := transport.Unmarshal(data)
		if err != nil {
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		case <-c.stopPing:
			return
		}
	}
}

// Send marshals msg and writes it as a single text frame. Concurrent
// Sends are serialized; gorilla/websocket panics on concurrent writers.
func (c *Conn) Send(_ context.Context, msg transport.Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &merrors.SocketClosedError{Reason: "websocket connection closed"}
	}

	data, err := transport.Marshal(msg)
	if err != nil {
		return merrors.Wrap(err, "wstransport.Conn", "Send", "marshal message")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return merrors.Wrap(err, "wstransport.Conn", "Send", "write frame")
	}
	return nil
}

// OnReceive installs the handler invoked for every inbound logical
// message.
func (c *Conn) OnReceive(handler transport.ReceiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Close closes the underlying socket and stops the keep-alive pump.
// Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopPing)
	return c.ws.Close()
}

var _ transport.Transport = (*Conn)(nil)
