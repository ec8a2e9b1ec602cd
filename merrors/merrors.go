// Package merrors provides the error taxonomy used across the message
// runtime: a structured Anomaly for expected/semantic failures versus plain
// errors for unexpected ones, plus the internal error types the runtime
// raises for signature, timeout, connect, and dispatch failures.
package merrors

import (
	"errors"
	"fmt"
)

// Anomaly is a structured, expected failure raised by an application
// handler. Unlike a generic error it survives the wire round trip with its
// Info preserved, so the requester can branch on it instead of treating it
// as a bug.
type Anomaly struct {
	Message string
	Info    any
}

// NewAnomaly constructs an Anomaly with optional structured info.
func NewAnomaly(message string, info any) *Anomaly {
	return &Anomaly{Message: message, Info: info}
}

func (a *Anomaly) Error() string {
	return a.Message
}

// AsAnomaly reports whether err is (or wraps) an *Anomaly, and returns it.
func AsAnomaly(err error) (*Anomaly, bool) {
	var a *Anomaly
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// VerificationError describes a message whose signature is missing or
// does not match its recomputed digest. message.Connection drops and logs
// such messages at ingress without constructing this error; it never
// crosses the wire.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string { return "message verification failed: " + e.Reason }

// TimeoutError is raised at the requester when a deadline queue read
// exceeds its configured wait time.
type TimeoutError struct {
	Conversation uint64
	Waited       string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("conversation %d: timed out waiting for response after %s", e.Conversation, e.Waited)
}

// ConnectError is raised when a transport exhausts its reconnect budget
// without reaching its peer.
type ConnectError struct {
	Target string
	Cause  error
}

func (e *ConnectError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("connect to %s failed", e.Target)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.Target, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// SocketClosedError is raised by pending operations on a socket transport
// that closed while the caller was waiting.
type SocketClosedError struct {
	Reason string
}

func (e *SocketClosedError) Error() string {
	if e.Reason == "" {
		return "socket closed"
	}
	return "socket closed: " + e.Reason
}

// NoHandlerError is raised locally when a request message arrives but no
// receive handler has been installed on the connection.
type NoHandlerError struct{}

func (e *NoHandlerError) Error() string { return "no handler registered for incoming request" }

// UnknownMessageTypeError is raised when an inbound message carries a
// message type this runtime does not recognize.
type UnknownMessageTypeError struct {
	Type string
}

func (e *UnknownMessageTypeError) Error() string { return "unknown message type: " + e.Type }

// Wrap creates a standardized error with context, following the
// "component.method: action failed: %w" convention used throughout this
// module's packages.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}
