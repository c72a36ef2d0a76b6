package dispatch

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("dispatch queue closed")

// item is one queued message plus the ordering fields the heap needs.
// seq breaks priority ties so equal-priority messages leave in FIFO order.
type item struct {
	msg types.QueuedMessage
	seq uint64
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].msg.Message.Priority != h[j].msg.Message.Priority {
		return h[i].msg.Message.Priority > h[j].msg.Message.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is a bounded priority queue. Higher-priority messages dequeue first;
// within a priority, arrival order is preserved. Enqueue blocks while the
// queue is full, Dequeue blocks while it is empty; both respect context
// cancellation. After Close, Enqueue fails and Dequeue drains the remainder.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    itemHeap
	capacity int
	seq      uint64
	closed   bool
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{capacity: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds msg, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, msg types.QueuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.closed {
		if err := q.wait(ctx, q.notFull); err != nil {
			return err
		}
	}
	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	heap.Push(&q.items, item{msg: msg, seq: q.seq})
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes the highest-priority message, blocking while the queue is
// empty. It returns false once the queue is closed and drained, or when ctx
// is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (types.QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return types.QueuedMessage{}, false
		}
		if err := q.wait(ctx, q.notEmpty); err != nil {
			return types.QueuedMessage{}, false
		}
	}

	it := heap.Pop(&q.items).(item)
	q.notFull.Signal()
	return it.msg, true
}

// Len returns the number of waiting messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues and wakes every waiter. Queued messages
// remain dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// wait blocks on cond until signalled or ctx expires. The caller holds
// q.mu; the watcher goroutine exists only to turn cancellation into a
// broadcast.
func (q *Queue) wait(ctx context.Context, cond *sync.Cond) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			cond.Broadcast()
			q.mu.Unlock()
		case <-stop:
		}
	}()
	cond.Wait()
	close(stop)
	return ctx.Err()
}
