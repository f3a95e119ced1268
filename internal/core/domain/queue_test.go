package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueued(id string, priority int, enqueuedAt time.Time) *QueuedRequest {
	return &QueuedRequest{
		ID:         id,
		Priority:   priority,
		EnqueuedAt: enqueuedAt,
		Ctx:        context.Background(),
		Ready:      make(chan struct{}),
	}
}

func TestRequestQueueDequeuesHighestPriorityFirst(t *testing.T) {
	q := NewRequestQueue(10)
	now := time.Now()

	require.True(t, q.Enqueue(newQueued("low", 0, now)))
	require.True(t, q.Enqueue(newQueued("high", 10, now.Add(time.Millisecond))))
	require.True(t, q.Enqueue(newQueued("mid", 5, now.Add(2*time.Millisecond))))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "high", first.ID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "mid", second.ID)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "low", third.ID)
}

func TestRequestQueueBreaksTiesByEnqueueOrder(t *testing.T) {
	q := NewRequestQueue(10)
	now := time.Now()

	require.True(t, q.Enqueue(newQueued("first", 5, now)))
	require.True(t, q.Enqueue(newQueued("second", 5, now.Add(time.Millisecond))))
	require.True(t, q.Enqueue(newQueued("third", 5, now.Add(2*time.Millisecond))))

	var order []string
	for {
		req, ok := q.Dequeue()
		if !ok {
			break
		}
		order = append(order, req.ID)
	}

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRequestQueueEnqueueRejectsAtMaxDepth(t *testing.T) {
	q := NewRequestQueue(2)
	now := time.Now()

	require.True(t, q.Enqueue(newQueued("a", 0, now)))
	require.True(t, q.Enqueue(newQueued("b", 0, now)))
	assert.False(t, q.Enqueue(newQueued("c", 0, now)))
	assert.Equal(t, 2, q.Len())
}

func TestRequestQueueRemoveDropsAWaitingRequest(t *testing.T) {
	q := NewRequestQueue(10)
	now := time.Now()

	q.Enqueue(newQueued("a", 0, now))
	q.Enqueue(newQueued("b", 1, now))

	require.True(t, q.Remove("b"))
	assert.False(t, q.Remove("b"), "removing twice should report false")

	remaining, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", remaining.ID)
}

func TestRequestQueueClearDrainsEveryWaiter(t *testing.T) {
	q := NewRequestQueue(10)
	now := time.Now()

	q.Enqueue(newQueued("a", 0, now))
	q.Enqueue(newQueued("b", 1, now))

	drained := q.Clear()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0.0, q.DepthRatio())
}

func TestRequestQueueDepthRatio(t *testing.T) {
	q := NewRequestQueue(4)
	now := time.Now()

	q.Enqueue(newQueued("a", 0, now))
	assert.Equal(t, 0.25, q.DepthRatio())
}
