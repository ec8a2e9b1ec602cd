package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadline_FIFOOrder(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		got, err := q.Next(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDeadline_BlocksUntilEnqueue(t *testing.T) {
	q := New[string]()
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		q.Enqueue("late")
	}()

	got, err := q.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", got)
	wg.Wait()
}

func TestDeadline_TimesOut(t *testing.T) {
	q := New[int]()
	_, err := q.Next(context.Background(), 10*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDeadline_FlushEndsIteration(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Flush()

	got, err := q.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = q.Next(context.Background(), time.Second)
	assert.ErrorIs(t, err, Closed)
}

func TestDeadline_FlushBeforeAnyEnqueue(t *testing.T) {
	q := New[int]()
	q.Flush()

	_, err := q.Next(context.Background(), time.Second)
	assert.ErrorIs(t, err, Closed)
}

func TestDeadline_ContextCancellation(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Next(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeadline_Len(t *testing.T) {
	q := New[int]()
	assert.Equal(t, 0, q.Len())
	q.Enqueue(1)
	q.Enqueue(2)
	assert.Equal(t, 2, q.Len())
	_, _ = q.Next(context.Background(), time.Second)
	assert.Equal(t, 1, q.Len())
}
