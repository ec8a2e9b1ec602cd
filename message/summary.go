package message

import (
	"sync"
	"time"

	"github.com/phnq-org/message/queue"
	"github.com/phnq-org/message/transport"
)

// Perspective distinguishes which side of a conversation an OnConversation
// callback is reporting on.
type Perspective string

const (
	PerspectiveRequester Perspective = "requester"
	PerspectiveResponder Perspective = "responder"
)

// ResponseRecord is one response message observed during a conversation,
// annotated with how long it took to arrive after the previous message
// (or after the request, for the first response).
type ResponseRecord struct {
	Message transport.Message
	Elapsed time.Duration
}

// Summary is delivered to an OnConversation hook once a conversation
// completes, on both the requester and responder side.
type Summary struct {
	Request     transport.Message
	Responses   []ResponseRecord
	Perspective Perspective
}

// conversation holds the requester-side state for one in-flight
// conversation: its response queue, the pinned first-responder source,
// and the bookkeeping needed to build a Summary once it completes.
type conversation struct {
	c         uint64
	queue     *queue.Deadline[transport.Message]
	request   transport.Message
	createdAt time.Time

	mu          sync.Mutex
	firstSource string
	hasSource   bool
	streaming   bool
	lastEventAt time.Time
	responses   []ResponseRecord
}

func newConversation(c uint64, request transport.Message) *conversation {
	now := time.Now()
	return &conversation{
		c:           c,
		queue:       queue.New[transport.Message](),
		request:     request,
		createdAt:   now,
		lastEventAt: now,
	}
}

// age reports how long ago this conversation was created, for metrics.
func (conv *conversation) age() time.Duration {
	return time.Since(conv.createdAt)
}

// acceptFromSource pins the first observed source for this conversation
// and rejects any later message from a different source, per the
// source-pinning invariant: once a requester has observed the first
// response for a c, no response from a different s ever influences it.
func (conv *conversation) acceptFromSource(source string) bool {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if !conv.hasSource {
		conv.firstSource = source
		conv.hasSource = true
		return true
	}
	return conv.firstSource == source
}

func (conv *conversation) record(msg transport.Message) {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	now := time.Now()
	conv.responses = append(conv.responses, ResponseRecord{Message: msg, Elapsed: now.Sub(conv.lastEventAt)})
	conv.lastEventAt = now
}

func (conv *conversation) summary(perspective Perspective) Summary {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	responses := make([]ResponseRecord, len(conv.responses))
	copy(responses, conv.responses)
	return Summary{Request: conv.request, Responses: responses, Perspective: perspective}
}
