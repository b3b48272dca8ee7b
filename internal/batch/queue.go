package batch

import (
	"context"
	"sync"
)

// DefaultQueueDepth bounds the batches waiting behind the one in flight.
const DefaultQueueDepth = 4

// Queue is the ordered work queue of one connection. Batches are handled one
// at a time in FIFO order. When full, the oldest waiting batch is dropped.
type Queue struct {
	mu     sync.Mutex
	items  []Batch
	depth  int
	notify chan struct{}
	closed bool
	onDrop func(Batch)
}

func NewQueue(depth int, onDrop func(Batch)) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{
		depth:  depth,
		notify: make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// Push enqueues b. It returns false if the queue is closed.
func (q *Queue) Push(b Batch) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	var dropped *Batch
	if len(q.items) >= q.depth {
		old := q.items[0]
		dropped = &old
		q.items = q.items[1:]
	}
	q.items = append(q.items, b)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	onDrop := q.onDrop
	q.mu.Unlock()

	if dropped != nil && onDrop != nil {
		onDrop(*dropped)
	}
	return true
}

// Len returns the number of waiting batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops Run after the batch in flight. Waiting batches are discarded.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	n := len(q.items)
	q.items = nil
	close(q.notify)
	return n
}

// Run handles batches sequentially until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handle func(context.Context, Batch)) {
	for {
		if b, ok := q.pop(); ok {
			handle(ctx, b)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case _, ok := <-q.notify:
			if !ok {
				return
			}
		}
	}
}

func (q *Queue) pop() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return Batch{}, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}
