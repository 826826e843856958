package syncx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Pop once the queue is closed and empty.
var ErrClosed = errors.New("queue closed")

// DropQueue is a bounded FIFO whose Push never blocks: when full, the
// oldest element is discarded to make room. Intended for one consumer.
type DropQueue[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	closed bool

	dropped atomic.Uint64
	notify  chan struct{}
	done    chan struct{}
}

// NewDropQueue creates a queue holding at most capacity elements.
func NewDropQueue[T any](capacity int) *DropQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &DropQueue[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends v. It reports whether an older element was dropped.
// Pushing to a closed queue discards v and counts it as dropped.
func (q *DropQueue[T]) Push(v T) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dropped.Add(1)
		return true
	}
	if q.size == len(q.buf) {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		dropped = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.mu.Unlock()

	if dropped {
		q.dropped.Add(1)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *DropQueue[T]) popLocked() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// Pop waits for the oldest element. Elements pushed before Close are still
// delivered; after that Pop returns ErrClosed.
func (q *DropQueue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		v, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()

		if ok {
			return v, nil
		}
		if closed {
			return v, ErrClosed
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Close stops accepting elements and wakes a waiting Pop. Idempotent.
func (q *DropQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Len returns the number of queued elements.
func (q *DropQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the total number of discarded elements. It never decreases.
func (q *DropQueue[T]) Dropped() uint64 { return q.dropped.Load() }
