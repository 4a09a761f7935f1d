package scan

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MaxQueueSize bounds the frame queue; scanning prefers fresh frames over
// complete coverage.
const MaxQueueSize = 2

// Queue is a bounded frame queue that drops its oldest frame when a new one
// arrives while full.
type Queue struct {
	mu      sync.Mutex
	items   []Frame
	size    int
	dropped int
	closed  bool

	ready chan struct{} // signalled when an item may be available
	done  chan struct{} // closed by Close
}

// NewQueue returns a queue holding at most size frames (1 or 2).
func NewQueue(size int) (*Queue, error) {
	if size < 1 || size > MaxQueueSize {
		return nil, fmt.Errorf("scan: queue size must be 1..%d, got %d", MaxQueueSize, size)
	}
	return &Queue{
		items: make([]Frame, 0, size),
		size:  size,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}, nil
}

// Push enqueues f, evicting the oldest frame if the queue is full. It reports
// whether a frame was evicted. Pushing to a closed queue is a no-op.
func (q *Queue) Push(f Frame) (evicted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.items) == q.size {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.dropped++
		evicted = true
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.signal()
	return evicted
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest frame, blocking until one is queued. It returns
// io.EOF once the queue is closed and drained, or ctx.Err().
func (q *Queue) Pop(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			copy(q.items, q.items[1:])
			q.items = q.items[:len(q.items)-1]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return f, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Frame{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close stops accepting frames; queued frames can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Dropped returns how many frames were evicted unseen.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
