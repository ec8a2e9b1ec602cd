package message

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phnq-org/message/internal/idgen"
	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/queue"
	"github.com/phnq-org/message/sign"
	"github.com/phnq-org/message/transport"
)

// Connection multiplexes an arbitrary number of concurrent request/response
// and request/stream conversations over a single Transport, identifying
// itself on outgoing messages with a fixed source id. It is safe for
// concurrent use by multiple goroutines.
type Connection struct {
	transport transport.Transport
	config    Config
	signer    *sign.Signer
	metrics   *metrics
	logger    *slog.Logger

	mu            sync.Mutex
	conversations map[uint64]*conversation
	handler       Handler
	onConv        []func(Summary)
	data          map[string]any
	closed        bool
}

// NewConnection wraps t, installing this Connection as its sole receive
// handler. The returned Connection must not share t with any other
// Connection: Transport.OnReceive only ever keeps the most recently
// installed handler.
func NewConnection(t transport.Transport, opts ...Option) *Connection {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := &Connection{
		transport:     t,
		config:        cfg,
		signer:        sign.New(cfg.SignSalt),
		metrics:       newMetrics(cfg.Registerer),
		logger:        cfg.Logger,
		conversations: make(map[uint64]*conversation),
		data:          make(map[string]any),
	}
	t.OnReceive(conn.handleIncoming)
	return conn
}

// SourceID returns the id this Connection identifies itself as on
// outgoing messages.
func (conn *Connection) SourceID() string { return conn.config.SourceID }

// Data returns the mutable, connection-scoped key/value store an
// application handler can use to stash per-connection state (an
// authenticated principal, a tenant id) across calls. Callers holding
// the map must not assume exclusive access; use it for coarse,
// infrequently-written values only.
func (conn *Connection) Data() map[string]any {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.data
}

// OnReceive installs the handler invoked for every inbound request. Only
// one handler is active at a time; installing a new one replaces the
// previous.
func (conn *Connection) OnReceive(h Handler) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.handler = h
}

// OnConversation registers fn to be called once per completed
// conversation, on both the requester and responder side, with a summary
// of every message exchanged.
func (conn *Connection) OnConversation(fn func(Summary)) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.onConv = append(conn.onConv, fn)
}

// Send is fire-and-forget: it transmits payload as a request and returns
// as soon as the transport has accepted it, without waiting for or
// registering to receive any response. Any response a peer sends back is
// dropped, since no conversation is pinned for it.
func (conn *Connection) Send(ctx context.Context, payload any) error {
	msg := conn.newRequest(payload)
	return conn.sendSigned(ctx, msg)
}

// RequestOne sends payload and blocks until exactly one response message
// arrives (or the response timeout elapses). If the remote handler
// instead streamed a response, RequestOne drains and discards the
// remaining items, logging a warning, and returns the first item as the
// result.
func (conn *Connection) RequestOne(ctx context.Context, payload any) (any, error) {
	value, stream, err := conn.Request(ctx, payload)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return value, nil
	}

	first, done, err := stream.Next(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}
	discarded, drainErr := stream.Drain(ctx)
	if drainErr != nil {
		conn.logger.Warn("request-one: stream ended with error after first item", slog.String("error", drainErr.Error()))
	} else if discarded > 0 {
		conn.logger.Warn("request-one: handler streamed multiple items, discarding the rest",
			slog.Int("discarded", discarded))
	}
	return first, nil
}

// RequestMulti sends payload and returns a ResponseStream for the
// sequence of results the remote handler produces. If the handler instead
// returns a single response, the stream yields exactly that one value
// then ends.
func (conn *Connection) RequestMulti(ctx context.Context, payload any) (*ResponseStream, error) {
	value, stream, err := conn.Request(ctx, payload)
	if err != nil {
		return nil, err
	}
	if stream != nil {
		return stream, nil
	}
	return newSingleValueStream(value), nil
}

// Request is the low-level call both RequestOne and RequestMulti build
// on: it sends payload as a request, waits for the first message back,
// and reports whether the conversation resolved to a single value or is
// continuing as a stream. Exactly one of the two return values (other
// than err) is meaningful: stream is nil when the conversation already
// concluded with a single response.
func (conn *Connection) Request(ctx context.Context, payload any) (value any, stream *ResponseStream, err error) {
	msg := conn.newRequest(payload)
	conv := newConversation(msg.C, msg)

	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil, nil, &merrors.SocketClosedError{Reason: "connection closed"}
	}
	conn.conversations[msg.C] = conv
	conn.mu.Unlock()
	conn.metrics.conversationStarted()

	if err := conn.sendSigned(ctx, msg); err != nil {
		conn.dropConversation(msg.C)
		return nil, nil, err
	}

	first, err := conv.queue.Next(ctx, conn.config.ResponseTimeout)
	if err != nil {
		conn.dropConversation(msg.C)
		if err == queue.Closed {
			return nil, nil, &merrors.SocketClosedError{Reason: "connection closed"}
		}
		return nil, nil, &merrors.TimeoutError{Conversation: msg.C, Waited: conn.config.ResponseTimeout.String()}
	}

	conv.acceptFromSource(first.S)
	conv.record(first)

	switch first.T {
	case transport.TypeResponse:
		conn.dropConversation(msg.C)
		conn.fireConversationSummary(conv, PerspectiveRequester)
		return first.P, nil, nil
	case transport.TypeError:
		conn.dropConversation(msg.C)
		conn.fireConversationSummary(conv, PerspectiveRequester)
		return nil, nil, errorFromPayload(first.P)
	case transport.TypeAnomaly:
		conn.dropConversation(msg.C)
		conn.fireConversationSummary(conv, PerspectiveRequester)
		return nil, nil, anomalyFromPayload(first.P)
	case transport.TypeMulti:
		conv.streaming = true
		rs := &ResponseStream{
			conv:       conv,
			conn:       conn,
			timeout:    conn.config.ResponseTimeout,
			hasPending: true,
			pendingVal: first.P,
		}
		return first.P, rs, nil
	case transport.TypeEnd:
		conn.dropConversation(msg.C)
		conn.fireConversationSummary(conv, PerspectiveRequester)
		return nil, newEmptyStream(), nil
	default:
		conn.dropConversation(msg.C)
		return nil, nil, &merrors.UnknownMessageTypeError{Type: string(first.T)}
	}
}

// Close releases the underlying transport and flushes every in-flight
// conversation's queue so blocked Next calls return immediately instead
// of waiting out their deadline.
func (conn *Connection) Close() error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}
	conn.closed = true
	pending := make([]*conversation, 0, len(conn.conversations))
	for _, conv := range conn.conversations {
		pending = append(pending, conv)
	}
	conn.conversations = make(map[uint64]*conversation)
	conn.mu.Unlock()

	for _, conv := range pending {
		conv.queue.Flush()
	}
	return conn.transport.Close()
}

func (conn *Connection) newRequest(payload any) transport.Message {
	return transport.Message{
		T: transport.TypeRequest,
		C: idgen.Next(),
		S: conn.config.SourceID,
		P: payload,
	}
}

func (conn *Connection) sendSigned(ctx context.Context, msg transport.Message) error {
	if conn.signer.Enabled() {
		sig, err := conn.signer.Sign(sign.Fields{
			Type:         string(msg.T),
			Conversation: msg.C,
			Source:       msg.S,
			Payload:      msg.P,
		})
		if err != nil {
			return merrors.Wrap(err, "message.Connection", "sendSigned", "sign message")
		}
		msg.Z = sig
	}
	conn.metrics.recordSent(string(msg.T))
	if err := conn.transport.Send(ctx, msg); err != nil {
		return merrors.Wrap(err, "message.Connection", "sendSigned", "transport send")
	}
	return nil
}

// handleIncoming is installed as the transport's sole ReceiveHandler. It
// verifies the signature (if signing is enabled), then routes the
// message either to an in-flight conversation's queue (responder already
// replying to a request we sent) or to the installed Handler (a fresh
// request from a peer).
func (conn *Connection) handleIncoming(msg transport.Message) {
	conn.metrics.recordReceived(string(msg.T))

	if conn.signer.Enabled() {
		ok, err := conn.signer.Verify(sign.Fields{
			Type:         string(msg.T),
			Conversation: msg.C,
			Source:       msg.S,
			Payload:      msg.P,
		}, msg.Z)
		if err != nil || !ok {
			conn.metrics.recordDropped("verification")
			conn.logger.Warn("dropping message that failed signature verification",
				slog.Uint64("conversation", msg.C), slog.String("source", msg.S))
			return
		}
	}

	if msg.T == transport.TypeRequest {
		// Handlers run off the delivery goroutine: a slow or blocking
		// handler must never stall inbound delivery for other
		// conversations, and on synchronous transports (direct.Pipe) it
		// would otherwise deadlock against the sender's own call stack.
		go conn.handleRequest(msg)
		return
	}

	conn.mu.Lock()
	conv, ok := conn.conversations[msg.C]
	conn.mu.Unlock()
	if !ok {
		conn.metrics.recordDropped("unknown-conversation")
		conn.logger.Warn("dropping message with unknown conversation", slog.Uint64("conversation", msg.C))
		return
	}
	conv.queue.Enqueue(msg)
}

// handleRequest runs the installed Handler for an inbound request and
// relays its result back to the requester as one response, a multi/end
// stream, an error, an anomaly, or nothing at all (NoResponse).
func (conn *Connection) handleRequest(req transport.Message) {
	conn.mu.Lock()
	handler := conn.handler
	conn.mu.Unlock()

	conv := newConversation(req.C, req)

	if handler == nil {
		conn.replyError(conv, req, &merrors.NoHandlerError{})
		conn.fireConversationSummary(conv, PerspectiveResponder)
		return
	}

	result, err := conn.invokeHandler(handler, req)
	if err != nil {
		if a, ok := merrors.AsAnomaly(err); ok {
			conn.replyAnomaly(conv, req, a)
		} else {
			conn.replyError(conv, req, err)
		}
		conn.fireConversationSummary(conv, PerspectiveResponder)
		return
	}

	switch v := result.(type) {
	case *noResponse:
		conn.fireConversationSummary(conv, PerspectiveResponder)
		return
	case *Stream:
		conn.relayStream(conv, req, v)
		conn.fireConversationSummary(conv, PerspectiveResponder)
		return
	default:
		conn.replyResponse(conv, req, v)
		conn.fireConversationSummary(conv, PerspectiveResponder)
	}
}

func (conn *Connection) invokeHandler(handler Handler, req transport.Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	ctx := context.Background()
	return handler(ctx, req.P)
}

func (conn *Connection) relayStream(conv *conversation, req transport.Message, stream *Stream) {
	ctx := context.Background()
	for item := range stream.C {
		if item.Err != nil {
			if a, ok := merrors.AsAnomaly(item.Err); ok {
				conn.replyAnomaly(conv, req, a)
			} else {
				conn.replyError(conv, req, item.Err)
			}
			return
		}
		multi := transport.Message{T: transport.TypeMulti, C: req.C, S: conn.config.SourceID, P: item.Value}
		conv.record(multi)
		if err := conn.sendSigned(ctx, multi); err != nil {
			conn.logger.Warn("failed to send multi frame", slog.Uint64("conversation", req.C), slog.String("error", err.Error()))
			return
		}
	}
	end := transport.Message{T: transport.TypeEnd, C: req.C, S: conn.config.SourceID, P: transport.EndPayload}
	conv.record(end)
	if err := conn.sendSigned(ctx, end); err != nil {
		conn.logger.Warn("failed to send end frame", slog.Uint64("conversation", req.C), slog.String("error", err.Error()))
	}
}

func (conn *Connection) replyResponse(conv *conversation, req transport.Message, payload any) {
	resp := transport.Message{T: transport.TypeResponse, C: req.C, S: conn.config.SourceID, P: payload}
	conv.record(resp)
	if err := conn.sendSigned(context.Background(), resp); err != nil {
		conn.logger.Warn("failed to send response", slog.Uint64("conversation", req.C), slog.String("error", err.Error()))
	}
}

func (conn *Connection) replyError(conv *conversation, req transport.Message, err error) {
	payload := transport.ErrorPayload{Message: err.Error(), RequestPayload: req.P}
	msg := transport.Message{T: transport.TypeError, C: req.C, S: conn.config.SourceID, P: payload}
	conv.record(msg)
	if sendErr := conn.sendSigned(context.Background(), msg); sendErr != nil {
		conn.logger.Warn("failed to send error response", slog.Uint64("conversation", req.C), slog.String("error", sendErr.Error()))
	}
}

func (conn *Connection) replyAnomaly(conv *conversation, req transport.Message, a *merrors.Anomaly) {
	payload := transport.AnomalyPayload{Message: a.Message, Info: a.Info, RequestPayload: req.P}
	msg := transport.Message{T: transport.TypeAnomaly, C: req.C, S: conn.config.SourceID, P: payload}
	conv.record(msg)
	if err := conn.sendSigned(context.Background(), msg); err != nil {
		conn.logger.Warn("failed to send anomaly response", slog.Uint64("conversation", req.C), slog.String("error", err.Error()))
	}
}

func (conn *Connection) dropConversation(c uint64) {
	conn.mu.Lock()
	conv, ok := conn.conversations[c]
	if ok {
		delete(conn.conversations, c)
	}
	conn.mu.Unlock()
	if ok {
		conn.metrics.conversationEnded(conv.age().Seconds())
	}
}

func (conn *Connection) fireConversationSummary(conv *conversation, perspective Perspective) {
	conn.mu.Lock()
	hooks := make([]func(Summary), len(conn.onConv))
	copy(hooks, conn.onConv)
	conn.mu.Unlock()

	if len(hooks) == 0 {
		return
	}
	summary := conv.summary(perspective)
	for _, hook := range hooks {
		hook(summary)
	}
}
