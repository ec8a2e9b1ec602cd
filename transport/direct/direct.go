// Package direct provides the trivial in-process pipe transport. It exists
// only as a conformance target against which transport.Transport
// implementations (and message.Connection itself) can be exercised in
// tests without a real broker or socket — it is not part of this module's
// deliverable surface.
package direct

import (
	"context"
	"sync"

	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/transport"
)

// Pipe is a pair of directly-connected transport.Transport endpoints: a
// Send on one side is delivered to the other side's receive handler.
type Pipe struct {
	mu      sync.Mutex
	peer    *Pipe
	handler transport.ReceiveHandler
	closed  bool
}

// New returns two ends of a connected in-process pipe.
func New() (a, b *Pipe) {
	a = &Pipe{}
	b = &Pipe{}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *Pipe) Send(_ context.Context, msg transport.Message) error {
	p.mu.Lock()
	closed := p.closed
	peer := p.peer
	p.mu.Unlock()
	if closed {
		return &merrors.SocketClosedError{Reason: "pipe closed"}
	}

	peer.mu.Lock()
	handler := peer.handler
	peer.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
	return nil
}

func (p *Pipe) OnReceive(handler transport.ReceiveHandler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

var _ transport.Transport = (*Pipe)(nil)
