// Package transport defines the wire Message and the Transport contract
// that every substrate (in-process pipe, pub/sub fabric, WebSocket) must
// satisfy. Transports move complete logical messages; they never interpret
// the Type, Conversation, Source, Payload, or Signature fields.
package transport

// Type enumerates the message type literals carried on the wire.
type Type string

const (
	TypeRequest  Type = "request"
	TypeResponse Type = "response"
	TypeMulti    Type = "multi"
	TypeEnd      Type = "end"
	TypeError    Type = "error"
	TypeAnomaly  Type = "anomaly"
)

// EndPayload is the literal payload carried by every "end" message. An
// exact literal rather than an empty object, since it needs to hash
// stably under signing.
const EndPayload = "END"

// Message is the single wire record every transport exchanges. Field names
// are the short wire keys from the spec so JSON encoding produces minimal
// payloads.
type Message struct {
	T Type   `json:"t"`
	C uint64 `json:"c"`
	S string `json:"s"`
	P any    `json:"p"`
	Z string `json:"z,omitempty"`
}

// IsTerminal reports whether t ends a conversation or stream: response,
// error, anomaly always terminate; end terminates a multi stream.
func (t Type) IsTerminal() bool {
	switch t {
	case TypeResponse, TypeError, TypeAnomaly, TypeEnd:
		return true
	default:
		return false
	}
}

// ErrorPayload is the payload shape of an "error" message.
type ErrorPayload struct {
	Message        string `json:"message"`
	RequestPayload any    `json:"requestPayload"`
}

// AnomalyPayload is the payload shape of an "anomaly" message.
type AnomalyPayload struct {
	Message        string `json:"message"`
	Info           any    `json:"info"`
	RequestPayload any    `json:"requestPayload"`
}
