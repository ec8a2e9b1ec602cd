// Package natstransport implements transport.Transport over a NATS-style
// subject-addressed pub/sub fabric. It chunks payloads larger than the
// broker's advertised maximum datagram, resolves a reply subject per
// conversation, and shares one broker connection across every transport
// built from the same Config.
package natstransport

import (
	"fmt"
	"time"

	"github.com/phnq-org/message/transport"
)

// Subscription is one subject this transport listens on.
type Subscription struct {
	Subject string
	Queue   string // optional NATS queue group for load-balanced delivery
}

// PublishSubjectFunc resolves the subject an outbound message is
// published on. Most callers use a fixed subject; a function lets the
// caller route by payload shape or conversation id.
type PublishSubjectFunc func(msg transport.Message) (string, error)

// Config configures one natstransport.Transport.
type Config struct {
	// URL is the broker URL(s) passed to nats.Connect, comma-separated
	// per the nats.go convention.
	URL string

	// Subscriptions lists the subjects this transport listens on.
	Subscriptions []Subscription

	// PublishSubject resolves the subject outbound messages are
	// published on. Exactly one of FixedPublishSubject or
	// PublishSubject must be set.
	FixedPublishSubject string
	PublishSubject      PublishSubjectFunc

	// ReassemblyTTL bounds how long a partially-received chunked message
	// is kept before being discarded, defaulting to 30s.
	ReassemblyTTL time.Duration

	// MaxConnectAttempts and ConnectTimeWait configure the reconnect
	// backoff the shared client pool uses when dialing the broker; see
	// backoff.ConnectSchedule for their defaulting rules.
	MaxConnectAttempts int
	ConnectTimeWait    time.Duration
}

func (c Config) resolveSubject(msg transport.Message) (string, error) {
	if c.PublishSubject != nil {
		return c.PublishSubject(msg)
	}
	if c.FixedPublishSubject != "" {
		return c.FixedPublishSubject, nil
	}
	return "", fmt.Errorf("natstransport: no publish subject resolvable for conversation %d", msg.C)
}

// key identifies a Config for the purposes of pooling a broker
// connection: two Configs sharing a URL share a *nats.Conn.
func (c Config) key() string { return c.URL }
