// Package wsclient provides the process-wide WebSocket client registry:
// one message.Connection per distinct URL, shared by every caller that
// asks for it, with fan-out to multiple independently registered receive
// handlers.
package wsclient

import (
	"context"
	"sync"
	"time"

	"github.com/phnq-org/message/message"
	"github.com/phnq-org/message/wstransport"
)

// registryEntry pairs a shared connection with the handlers fanned out
// to it and a refcount of callers still holding it.
type registryEntry struct {
	mu       sync.Mutex
	conn     *message.Connection
	client   *wstransport.Client
	handlers []message.Handler
	refs     int
}

var (
	registryMu sync.Mutex
	registry   = map[string]*registryEntry{}
)

// Options configures Get.
type Options struct {
	MaxConnectAttempts int
	ConnectTimeWait    time.Duration
	ConnectionOptions  []message.Option
}

// Get returns the shared message.Connection for url, dialing it if this
// is the first caller for that URL. Release must be called exactly once
// per Get when the caller no longer needs the connection.
func Get(ctx context.Context, url string, opts Options) (conn *message.Connection, release func(), err error) {
	registryMu.Lock()
	entry, ok := registry[url]
	if !ok {
		entry = &registryEntry{}
		registry[url] = entry
	}
	entry.refs++
	registryMu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.conn == nil {
		client := wstransport.NewClient(wstransport.ClientConfig{
			URL:                url,
			MaxConnectAttempts: opts.MaxConnectAttempts,
			ConnectTimeWait:    opts.ConnectTimeWait,
		})
		if err := client.Connect(ctx); err != nil {
			registryMu.Lock()
			entry.refs--
			if entry.refs <= 0 {
				delete(registry, url)
			}
			registryMu.Unlock()
			return nil, func() {}, err
		}

		entry.client = client
		entry.conn = message.NewConnection(client, opts.ConnectionOptions...)
		entry.conn.OnReceive(entry.dispatch)
	}

	return entry.conn, releaseFunc(url), nil
}

func releaseFunc(url string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			registryMu.Lock()
			entry, ok := registry[url]
			if !ok {
				registryMu.Unlock()
				return
			}
			entry.refs--
			drop := entry.refs <= 0
			if drop {
				delete(registry, url)
			}
			registryMu.Unlock()

			if drop {
				entry.mu.Lock()
				if entry.conn != nil {
					_ = entry.conn.Close()
				}
				entry.mu.Unlock()
			}
		})
	}
}

// dispatch fans an inbound request out to every handler registered via
// AddReceiveHandler, in registration order, awaiting each in turn. No
// response is sent for fan-out delivery; use AddReceiveHandler only for
// side-effecting observers, not request/response handlers.
func (e *registryEntry) dispatch(ctx context.Context, payload any) (any, error) {
	e.mu.Lock()
	handlers := make([]message.Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		_, _ = h(ctx, payload)
	}
	return message.NoResponse, nil
}

// AddReceiveHandler registers h to be invoked, alongside every other
// registered handler, for each request arriving on url's shared
// connection. Handlers are awaited in registration order; none of their
// return values are sent back to the peer.
func AddReceiveHandler(url string, h message.Handler) {
	registryMu.Lock()
	entry, ok := registry[url]
	registryMu.Unlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.handlers = append(entry.handlers, h)
	entry.mu.Unlock()
}
