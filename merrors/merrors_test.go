package merrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnomaly_CarriesInfo(t *testing.T) {
	a := NewAnomaly("nope", map[string]any{"code": 7})
	assert.Equal(t, "nope", a.Error())
	assert.Equal(t, map[string]any{"code": 7}, a.Info)
}

func TestAsAnomaly_UnwrapsWrapped(t *testing.T) {
	a := NewAnomaly("bad state", 42)
	wrapped := fmt.Errorf("handler failed: %w", a)

	got, ok := AsAnomaly(wrapped)
	require := assert.New(t)
	require.True(ok)
	require.Equal(a, got)
}

func TestAsAnomaly_FalseForPlainError(t *testing.T) {
	_, ok := AsAnomaly(errors.New("boom"))
	assert.False(t, ok)
}

func TestTimeoutError_Message(t *testing.T) {
	err := &TimeoutError{Conversation: 5, Waited: "50ms"}
	assert.Contains(t, err.Error(), "conversation 5")
	assert.Contains(t, err.Error(), "50ms")
}

func TestConnectError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &ConnectError{Target: "nats://localhost:4222", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "nats://localhost:4222")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&ConnectError{Target: "x"}))
	assert.True(t, IsTransient(&SocketClosedError{Reason: "eof"}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(&NoHandlerError{}))
	assert.False(t, IsTransient(nil))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&TimeoutError{Conversation: 1, Waited: "1s"}))
	assert.False(t, IsTimeout(errors.New("other")))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
}

func TestWrap_FormatsContext(t *testing.T) {
	err := Wrap(errors.New("boom"), "Connection", "send", "publish message")
	assert.EqualError(t, err, "Connection.send: publish message failed: boom")
}
