package natstransport

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/transport"
)

// Transport rides transport.Message over a shared NATS connection,
// chunking any marshaled message that exceeds the broker's advertised
// maxPayload and reassembling chunked datagrams on ingress.
type Transport struct {
	cfg     Config
	conn    *nats.Conn
	release func()
	subs    []*nats.Subscription
	reasm   *reassembler

	mu       sync.Mutex
	handler  transport.ReceiveHandler
	replyTo  map[uint64]string
	closed   bool
}

// New dials (or reuses) the shared broker connection for cfg and
// subscribes to every subject cfg lists.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	conn, release, err := acquire(ctx, cfg)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		cfg:     cfg,
		conn:    conn,
		release: release,
		reasm:   newReassembler(cfg.ReassemblyTTL),
		replyTo: make(map[uint64]string),
	}

	for _, sub := range cfg.Subscriptions {
		natsSub, err := t.subscribe(sub)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.subs = append(t.subs, natsSub)
	}

	return t, nil
}

func (t *Transport) subscribe(sub Subscription) (*nats.Subscription, error) {
	handler := func(m *nats.Msg) { t.onDatagram(m.Data) }
	if sub.Queue != "" {
		return t.conn.QueueSubscribe(sub.Subject, sub.Queue, handler)
	}
	return t.conn.Subscribe(sub.Subject, handler)
}

// Send marshals msg, chunking it if it exceeds the broker's maxPayload,
// and publishes it on the subject resolved from cfg. Non-end messages
// cache their resolved subject by conversation so the matching end
// message is published on that same subject; the cache entry is removed
// once the end is sent.
func (t *Transport) Send(_ context.Context, msg transport.Message) error {
	t.mu.Lock()
	subject, cached := t.replyTo[msg.C]
	t.mu.Unlock()
	if msg.T != transport.TypeEnd || !cached {
		var err error
		subject, err = t.cfg.resolveSubject(msg)
		if err != nil {
			return merrors.Wrap(err, "natstransport.Transport", "Send", "resolve subject")
		}
	}

	t.mu.Lock()
	if msg.T == transport.TypeEnd {
		delete(t.replyTo, msg.C)
	} else {
		t.replyTo[msg.C] = subject
	}
	t.mu.Unlock()

	data, err := transport.Marshal(msg)
	if err != nil {
		return merrors.Wrap(err, "natstransport.Transport", "Send", "marshal message")
	}

	maxPayload := int(t.conn.MaxPayload())
	if maxPayload <= 0 {
		return merrors.Wrap(fmt.Errorf("broker did not advertise a maxPayload"), "natstransport.Transport", "Send", "discover maxPayload")
	}

	if len(data) <= maxPayload {
		return t.conn.Publish(subject, data)
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return merrors.Wrap(err, "natstransport.Transport", "Send", "generate chunk nonce")
	}
	chunks, err := buildChunks(nonce, data, maxPayload)
	if err != nil {
		return merrors.Wrap(err, "natstransport.Transport", "Send", "split into chunks")
	}
	for _, chunk := range chunks {
		if err := t.conn.Publish(subject, chunk); err != nil {
			return merrors.Wrap(err, "natstransport.Transport", "Send", "publish chunk")
		}
	}
	return nil
}

// OnReceive installs the single handler this transport delivers complete,
// reassembled logical messages to.
func (t *Transport) OnReceive(handler transport.ReceiveHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *Transport) onDatagram(datagram []byte) {
	data := datagram
	if isChunk(datagram) {
		frame, err := parseChunk(datagram)
		if err != nil {
			return
		}
		whole, complete := t.reasm.accept(frame, time.Now())
		if !complete {
			return
		}
		data = whole
	}

	msg, err := transport.Unmarshal(data)
	if err != nil {
		return
	}

	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// Close unsubscribes from every subject and releases this transport's
// reference on the shared broker connection, closing it once no other
// Transport still holds one.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.release()
	return nil
}

var _ transport.Transport = (*Transport)(nil)
