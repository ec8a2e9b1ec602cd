package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/queue"
	"github.com/phnq-org/message/transport"
)

// ResponseStream is the lazy, single-pass sequence RequestMulti and the
// streaming branch of Request return. Next must be called repeatedly
// until it reports done (or an error); it is not safe for concurrent use
// by multiple goroutines.
type ResponseStream struct {
	conv    *conversation
	conn    *Connection
	timeout time.Duration
	done    bool

	// static, when true, makes this a pre-resolved stream (wrapping a
	// single already-received value, or an already-ended empty stream)
	// rather than one backed by a live conversation queue.
	static     bool
	staticVals []any
	staticIdx  int

	// hasPending/pendingVal carry the first multi payload Request already
	// dequeued off the conversation queue before it knew the conversation
	// was a stream. Next must yield this value before it ever touches the
	// queue, or the first streamed item would be lost.
	hasPending bool
	pendingVal any
}

// newSingleValueStream wraps an already-received single response as a
// one-element stream, for RequestMulti callers when the remote handler
// replied with a plain response instead of streaming.
func newSingleValueStream(value any) *ResponseStream {
	return &ResponseStream{static: true, staticVals: []any{value}}
}

// newEmptyStream returns a stream that is already done, for RequestMulti
// callers when the remote handler's reply was an immediate end with no
// items.
func newEmptyStream() *ResponseStream {
	return &ResponseStream{static: true, done: true}
}

// Next blocks for up to the connection's response timeout waiting for the
// next item. It returns (value, false, nil) for each multi payload, then
// (nil, true, nil) once the stream ends normally, or a non-nil error if
// the remote handler failed or the wait timed out.
func (rs *ResponseStream) Next(ctx context.Context) (any, bool, error) {
	if rs.done {
		return nil, true, nil
	}

	if rs.static {
		if rs.staticIdx >= len(rs.staticVals) {
			rs.done = true
			return nil, true, nil
		}
		v := rs.staticVals[rs.staticIdx]
		rs.staticIdx++
		if rs.staticIdx >= len(rs.staticVals) {
			rs.done = true
		}
		return v, false, nil
	}

	if rs.hasPending {
		v := rs.pendingVal
		rs.hasPending = false
		rs.pendingVal = nil
		return v, false, nil
	}

	for {
		msg, err := rs.conv.queue.Next(ctx, rs.timeout)
		if err != nil {
			rs.done = true
			rs.conn.dropConversation(rs.conv.c)
			if err == queue.Closed {
				return nil, true, nil
			}
			rs.conn.fireConversationSummary(rs.conv, PerspectiveRequester)
			return nil, true, &merrors.TimeoutError{Conversation: rs.conv.c, Waited: rs.timeout.String()}
		}

		if !rs.conv.acceptFromSource(msg.S) {
			rs.conn.logger.Warn("dropping response from unpinned source",
				slog.Uint64("conversation", rs.conv.c), slog.String("source", msg.S))
			continue
		}
		rs.conv.record(msg)

		switch msg.T {
		case transport.TypeMulti:
			return msg.P, false, nil
		case transport.TypeEnd:
			rs.done = true
			rs.conn.dropConversation(rs.conv.c)
			rs.conn.fireConversationSummary(rs.conv, PerspectiveRequester)
			return nil, true, nil
		case transport.TypeError:
			rs.done = true
			rs.conn.dropConversation(rs.conv.c)
			rs.conn.fireConversationSummary(rs.conv, PerspectiveRequester)
			return nil, true, errorFromPayload(msg.P)
		case transport.TypeAnomaly:
			rs.done = true
			rs.conn.dropConversation(rs.conv.c)
			rs.conn.fireConversationSummary(rs.conv, PerspectiveRequester)
			return nil, true, anomalyFromPayload(msg.P)
		default:
			rs.conn.logger.Warn("unexpected message type in stream", slog.String("type", string(msg.T)))
			continue
		}
	}
}

// Drain consumes the remainder of the stream, discarding values, and
// returns how many items were discarded and the first error encountered
// (if any). Used by RequestOne when a handler unexpectedly returned a
// stream for a single-result request.
func (rs *ResponseStream) Drain(ctx context.Context) (int, error) {
	discarded := 0
	for {
		_, done, err := rs.Next(ctx)
		if err != nil {
			return discarded, err
		}
		if done {
			return discarded, nil
		}
		discarded++
	}
}

// errorFromPayload reconstructs the error message.Connection sent in an
// "error" frame. The payload arrives as a transport.ErrorPayload on
// transports that never leave process memory (direct.Pipe) and as a
// generic map[string]any on any transport that round-trips through JSON.
func errorFromPayload(p any) error {
	switch v := p.(type) {
	case transport.ErrorPayload:
		return fmt.Errorf("%s", v.Message)
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return fmt.Errorf("%s", msg)
		}
	}
	return fmt.Errorf("remote handler failed")
}

// anomalyFromPayload is errorFromPayload's counterpart for "anomaly"
// frames, recovering the structured Info alongside the message.
func anomalyFromPayload(p any) error {
	switch v := p.(type) {
	case transport.AnomalyPayload:
		return merrors.NewAnomaly(v.Message, v.Info)
	case map[string]any:
		msg, _ := v["message"].(string)
		return merrors.NewAnomaly(msg, v["info"])
	default:
		return merrors.NewAnomaly("remote handler raised an anomaly", nil)
	}
}
