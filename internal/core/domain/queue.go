package domain

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// QueuedRequest is a request waiting for a ModelSlot to free up capacity.
// Ready is closed by the dequeuing side once a slot has been reserved on
// the waiter's behalf; Err carries the queue-cleared outcome for callers
// selecting on Ready (a queue timeout is returned by Enqueue itself).
type QueuedRequest struct {
	ID          string
	Priority    int
	EnqueuedAt  time.Time
	Ctx         context.Context
	Ready       chan struct{}
	Err         error

	index int // heap bookkeeping
}

// requestHeap orders by priority descending, then enqueue time ascending,
// the same shape as a due-time scheduling heap but with priority as the
// primary key.
type requestHeap []*QueuedRequest

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}
func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *requestHeap) Push(x any) {
	item := x.(*QueuedRequest)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// RequestQueue is a bounded, priority-ordered FIFO-within-priority queue.
type RequestQueue struct {
	mu       sync.Mutex
	items    requestHeap
	byID     map[string]*QueuedRequest
	maxDepth int64
}

func NewRequestQueue(maxDepth int64) *RequestQueue {
	q := &RequestQueue{
		items:    make(requestHeap, 0),
		byID:     make(map[string]*QueuedRequest),
		maxDepth: maxDepth,
	}
	heap.Init(&q.items)
	return q
}

// Enqueue adds a request, returning false if the queue is at maxDepth.
func (q *RequestQueue) Enqueue(req *QueuedRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if int64(len(q.items)) >= q.maxDepth {
		return false
	}
	heap.Push(&q.items, req)
	q.byID[req.ID] = req
	return true
}

// Dequeue pops the highest-priority, oldest-enqueued request.
func (q *RequestQueue) Dequeue() (*QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	req := heap.Pop(&q.items).(*QueuedRequest)
	delete(q.byID, req.ID)
	return req, true
}

// Remove cancels a specific queued request, e.g. its context was
// cancelled while waiting. Returns false if it had already been dequeued.
func (q *RequestQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.items, req.index)
	delete(q.byID, id)
	return true
}

func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *RequestQueue) DepthRatio() float64 {
	q.mu.Lock()
	depth := len(q.items)
	max := q.maxDepth
	q.mu.Unlock()
	if max <= 0 {
		return 0
	}
	return float64(depth) / float64(max)
}

// Clear empties the queue, returning the requests it held so the caller
// can fail them with a clear-queue error.
func (q *RequestQueue) Clear() []*QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := make([]*QueuedRequest, 0, len(q.items))
	for _, r := range q.items {
		drained = append(drained, r)
	}
	q.items = q.items[:0]
	q.byID = make(map[string]*QueuedRequest)
	return drained
}
