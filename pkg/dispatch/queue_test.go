package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moverwatch/moverwatch/pkg/types"
)

func queued(title string, p types.Priority) types.QueuedMessage {
	return types.NewQueuedMessage(types.NewMessage(title, "", p, nil, nil), []string{"log"})
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queued("low", types.PriorityLow)))
	require.NoError(t, q.Enqueue(ctx, queued("urgent", types.PriorityUrgent)))
	require.NoError(t, q.Enqueue(ctx, queued("normal", types.PriorityNormal)))

	for _, want := range []string{"urgent", "normal", "low"} {
		msg, ok := q.Dequeue(ctx)
		require.True(t, ok)
		assert.Equal(t, want, msg.Message.Title)
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewQueue(8)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		require.NoError(t, q.Enqueue(ctx, queued(title, types.PriorityNormal)))
	}

	for _, want := range []string{"first", "second", "third"} {
		msg, ok := q.Dequeue(ctx)
		require.True(t, ok)
		assert.Equal(t, want, msg.Message.Title)
	}
}

func TestQueueBlockingEnqueue(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queued("a", types.PriorityNormal)))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Enqueue(ctx, queued("b", types.PriorityNormal))
	}()

	select {
	case <-unblocked:
		t.Fatal("enqueue into a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Dequeue(ctx)
	require.True(t, ok)

	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after dequeue")
	}
}

func TestQueueEnqueueContextCancel(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), queued("a", types.PriorityNormal)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, queued("b", types.PriorityNormal))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queued("pending", types.PriorityNormal)))
	q.Close()

	assert.ErrorIs(t, q.Enqueue(ctx, queued("late", types.PriorityNormal)), ErrQueueClosed)

	msg, ok := q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, "pending", msg.Message.Title)

	_, ok = q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestQueueDequeueWakesOnClose(t *testing.T) {
	q := NewQueue(8)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake on close")
	}
}
