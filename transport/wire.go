package transport

import (
	"encoding/json"
	"fmt"

	"github.com/phnq-org/message/codec"
)

// wireMessage is the JSON shape actually written to the wire: identical to
// Message except the payload passes through codec.Annotate/Deannotate so
// timestamps survive the round trip.
type wireMessage struct {
	T Type   `json:"t"`
	C uint64 `json:"c"`
	S string `json:"s"`
	P any    `json:"p"`
	Z string `json:"z,omitempty"`
}

// Marshal annotates msg's payload and encodes the whole message as UTF-8
// JSON bytes, per the "annotate → jsonEncode → UTF-8 bytes" marshaling
// rule every transport follows.
func Marshal(msg Message) ([]byte, error) {
	w := wireMessage{T: msg.T, C: msg.C, S: msg.S, P: codec.Annotate(msg.P), Z: msg.Z}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("transport.Marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes wire bytes back into a Message, deannotating the
// payload to recover any encoded timestamps.
func Unmarshal(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("transport.Unmarshal: %w", err)
	}
	return Message{T: w.T, C: w.C, S: w.S, P: codec.Deannotate(w.P), Z: w.Z}, nil
}
