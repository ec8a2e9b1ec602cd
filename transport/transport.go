package transport

import "context"

// ReceiveHandler is installed once per Transport via OnReceive and invoked
// for every inbound logical message (after chunk reassembly, where the
// substrate applies one).
type ReceiveHandler func(msg Message)

// Transport is the contract every substrate implements: send a message,
// install the single ingress handler, and close idempotently. Send must
// complete only once the message has been handed to the underlying
// substrate (accepted by the broker client, written to the socket), not
// once a peer has necessarily processed it.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	OnReceive(handler ReceiveHandler)
	Close() error
}
