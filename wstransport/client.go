package wstransport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phnq-org/message/internal/backoff"
	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/transport"
)

// State is the reconnecting client transport's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ClientConfig configures a reconnecting client transport.
type ClientConfig struct {
	URL                string
	MaxConnectAttempts int
	ConnectTimeWait    time.Duration

	// OnStateChange, if set, is called on every state transition.
	OnStateChange func(State)
}

// Client is a websocket.Conn-backed transport.Transport: it dials URL on
// Connect, retrying per the backoff schedule, and wires each new
// underlying Conn to the last installed receive handler. It does not
// redial by itself: once the underlying connection drops, Send fails with
// a SocketClosedError until Connect is called again.
type Client struct {
	cfg ClientConfig

	mu      sync.Mutex
	state   State
	current *Conn
	handler transport.ReceiveHandler
	closing bool
}

// NewClient constructs a Client in the disconnected state; call Connect
// to dial.
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg, state: StateDisconnected}
}

// Connect dials cfg.URL, retrying per the configured backoff schedule.
// It blocks until the connection opens, the attempt budget is exhausted,
// or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	sched := backoff.ConnectSchedule(c.cfg.MaxConnectAttempts, c.cfg.ConnectTimeWait)
	err := backoff.Do(ctx, sched, func(attempt int) error {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			return err
		}

		conn := Wrap(ws)
		c.mu.Lock()
		c.current = conn
		c.mu.Unlock()
		conn.OnReceive(c.dispatchToInstalledHandler)
		return nil
	})
	if err != nil {
		c.setState(StateDisconnected)
		return &merrors.ConnectError{Target: c.cfg.URL, Cause: err}
	}

	c.setState(StateOpen)
	return nil
}

// dispatchToInstalledHandler forwards a message to whatever handler is
// currently installed via OnReceive. Indirecting through this method
// (rather than closing over the handler directly) lets OnReceive swap
// handlers after Connect without needing to re-wrap the underlying Conn.
func (c *Client) dispatchToInstalledHandler(msg transport.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// Send forwards to the current underlying connection, failing if the
// client is not currently open.
func (c *Client) Send(ctx context.Context, msg transport.Message) error {
	c.mu.Lock()
	conn := c.current
	state := c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		return &merrors.SocketClosedError{Reason: fmt.Sprintf("client is %s, not open", state)}
	}
	return conn.Send(ctx, msg)
}

// OnReceive installs the handler messages are dispatched to, surviving
// across reconnects: each new underlying Conn is wired to forward into
// whatever handler is installed at delivery time.
func (c *Client) OnReceive(handler transport.ReceiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Close transitions to closing and closes the current underlying
// connection, if any. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.current
	c.mu.Unlock()

	c.setState(StateClosing)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State reports the client's current connection lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

var _ transport.Transport = (*Client)(nil)
