package message

import "context"

// Handler is the application-supplied receive hook invoked for every
// inbound request on a Connection. Returning NoResponse sends nothing back
// — the only way to suppress a reply — returning a *Stream sends zero or
// more multi frames followed by an end, and returning any other value
// (including nil) sends exactly one response. Returning a non-nil error
// that wraps a *merrors.Anomaly sends an anomaly; any other error sends an
// error frame.
type Handler func(ctx context.Context, payload any) (any, error)

type noResponse struct{}

// NoResponse is the sentinel a Handler returns to suppress any response
// message. Only this literal value suppresses a reply — nil, 0, "", and
// false are all valid response payloads and each sends a response frame.
var NoResponse any = &noResponse{}

// StreamItem is one element of a streamed response. A non-nil Err
// terminates the stream with an anomaly or error frame instead of an end;
// Value is ignored when Err is set.
type StreamItem struct {
	Value any
	Err   error
}

// Stream is returned by a Handler to produce a multi-message response.
// Items sent on C are published as "multi" frames in receive order; the
// stream terminates normally when C is closed (an "end" frame follows) or
// abnormally on the first StreamItem carrying a non-nil Err.
type Stream struct {
	C <-chan StreamItem
}

// NewStream wraps c as a Handler-returned Stream.
func NewStream(c <-chan StreamItem) *Stream {
	return &Stream{C: c}
}

// StreamFromSlice is a convenience constructor for a Stream that yields a
// fixed, known set of values with no possibility of a mid-stream error —
// the common case for handlers that already hold every result in memory.
func StreamFromSlice(values []any) *Stream {
	c := make(chan StreamItem, len(values))
	for _, v := range values {
		c <- StreamItem{Value: v}
	}
	close(c)
	return &Stream{C: c}
}
