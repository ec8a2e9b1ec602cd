package message

import (
	"context"
	"testing"
	"time"

	"github.com/phnq-org/message/merrors"
	"github.com/phnq-org/message/transport/direct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectedPair(t *testing.T, opts ...Option) (*Connection, *Connection) {
	t.Helper()
	a, b := direct.New()
	connA := NewConnection(a, opts...)
	connB := NewConnection(b, opts...)
	t.Cleanup(func() {
		_ = connA.Close()
		_ = connB.Close()
	})
	return connA, connB
}

func TestRequestOne_SingleResponse(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(time.Second))

	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		req := payload.(map[string]any)
		return map[string]any{"echo": req["text"]}, nil
	})

	resp, err := requester.RequestOne(context.Background(), map[string]any{"text": "hello"})
	require.NoError(t, err)

	got := resp.(map[string]any)
	assert.Equal(t, "hello", got["echo"])
}

func TestRequestMulti_StreamedResponse(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(time.Second))

	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		return StreamFromSlice([]any{"a", "b", "c"}), nil
	})

	stream, err := requester.RequestMulti(context.Background(), "go")
	require.NoError(t, err)

	var got []any
	for {
		v, done, err := stream.Next(context.Background())
		require.NoError(t, err)
		if done {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []any{"a", "b", "c"}, got)
}

func TestRequestOne_ReturnsFirstStreamedItem(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(time.Second))

	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		return StreamFromSlice([]any{"a", "b", "c"}), nil
	})

	got, err := requester.RequestOne(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestRequestOne_AnomalyPropagates(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(time.Second))

	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		return nil, merrors.NewAnomaly("not found", map[string]any{"id": "42"})
	})

	_, err := requester.RequestOne(context.Background(), "lookup")
	require.Error(t, err)

	anomaly, ok := merrors.AsAnomaly(err)
	require.True(t, ok)
	assert.Equal(t, "not found", anomaly.Message)
}

func TestRequestOne_TimesOutWithNoHandlerResponse(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(50*time.Millisecond))

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		<-block
		return "too late", nil
	})

	_, err := requester.RequestOne(context.Background(), "ping")
	require.Error(t, err)

	var timeoutErr *merrors.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestSend_FireAndForgetIgnoresResponse(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(time.Second))

	received := make(chan any, 1)
	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		received <- payload
		return "reply nobody reads", nil
	})

	err := requester.Send(context.Background(), "fire and forget")
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "fire and forget", got)
	case <-time.After(time.Second):
		t.Fatal("responder never received the message")
	}
}

func TestOnReceive_NoResponseSentsNothing(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(100*time.Millisecond))

	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		return NoResponse, nil
	})

	_, err := requester.RequestOne(context.Background(), "ignored")
	require.Error(t, err)

	var timeoutErr *merrors.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestOnConversation_FiresOnBothSides(t *testing.T) {
	requester, responder := newConnectedPair(t, WithResponseTimeout(time.Second))

	var reqSummaries, respSummaries []Summary
	requester.OnConversation(func(s Summary) {
		reqSummaries = append(reqSummaries, s)
	})
	responder.OnConversation(func(s Summary) {
		respSummaries = append(respSummaries, s)
	})
	responder.OnReceive(func(ctx context.Context, payload any) (any, error) {
		return "ok", nil
	})

	_, err := requester.RequestOne(context.Background(), "ping")
	require.NoError(t, err)

	require.Len(t, reqSummaries, 1)
	require.Len(t, respSummaries, 1)
	assert.Equal(t, PerspectiveRequester, reqSummaries[0].Perspective)
	assert.Equal(t, PerspectiveResponder, respSummaries[0].Perspective)

	require.Len(t, respSummaries[0].Responses, 1)
	assert.Equal(t, "ok", respSummaries[0].Responses[0].Message.P)
}
