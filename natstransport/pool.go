package natstransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/phnq-org/message/internal/backoff"
)

// ConnectionStatus mirrors the connect/reconnect lifecycle every pub/sub
// consumer needs the same visibility into.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// sharedClient wraps one *nats.Conn refcounted across every Transport
// built from Configs that resolve to the same broker URL, so a process
// dials each distinct broker exactly once.
type sharedClient struct {
	mu     sync.Mutex
	conn   *nats.Conn
	status ConnectionStatus
	refs   int
}

var (
	poolMu sync.Mutex
	pool   = map[string]*sharedClient{}
)

// acquire returns the shared *nats.Conn for cfg's broker URL, dialing it
// (with reconnect backoff) if this is the first acquirer. release must be
// called exactly once when the caller is done with the connection.
func acquire(ctx context.Context, cfg Config) (conn *nats.Conn, release func(), err error) {
	poolMu.Lock()
	sc, ok := pool[cfg.key()]
	if !ok {
		sc = &sharedClient{status: StatusDisconnected}
		pool[cfg.key()] = sc
	}
	sc.refs++
	poolMu.Unlock()

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.conn == nil {
		sc.status = StatusConnecting
		sched := backoff.ConnectSchedule(cfg.MaxConnectAttempts, cfg.ConnectTimeWait)
		dialErr := backoff.Do(ctx, sched, func(attempt int) error {
			c, err := nats.Connect(cfg.URL,
				nats.DisconnectErrHandler(func(*nats.Conn, error) {
					sc.mu.Lock()
					sc.status = StatusDisconnected
					sc.mu.Unlock()
				}),
				nats.ReconnectHandler(func(*nats.Conn) {
					sc.mu.Lock()
					sc.status = StatusConnected
					sc.mu.Unlock()
				}),
			)
			if err != nil {
				return err
			}
			sc.conn = c
			return nil
		})
		if dialErr != nil {
			sc.status = StatusDisconnected
			release := makeRelease(cfg.key())
			return nil, release, fmt.Errorf("natstransport: connect to %s: %w", cfg.URL, dialErr)
		}
		sc.status = StatusConnected
	}

	return sc.conn, makeRelease(cfg.key()), nil
}

func makeRelease(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			poolMu.Lock()
			sc, ok := pool[key]
			if !ok {
				poolMu.Unlock()
				return
			}
			sc.refs--
			drain := sc.refs <= 0
			if drain {
				delete(pool, key)
			}
			poolMu.Unlock()

			if drain {
				sc.mu.Lock()
				if sc.conn != nil {
					sc.conn.Close()
				}
				sc.status = StatusClosed
				sc.mu.Unlock()
			}
		})
	}
}

// Status reports the connection status of the shared client behind cfg's
// broker URL, or StatusDisconnected if no Transport has acquired it yet.
func Status(cfg Config) ConnectionStatus {
	poolMu.Lock()
	sc, ok := pool[cfg.key()]
	poolMu.Unlock()
	if !ok {
		return StatusDisconnected
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.status
}

// IsHealthy reports whether cfg's shared broker connection is currently
// connected, mirroring natsclient.Client.IsHealthy.
func IsHealthy(cfg Config) bool {
	return Status(cfg) == StatusConnected
}
