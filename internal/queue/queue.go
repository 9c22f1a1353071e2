// Package queue provides an unbounded, goroutine-safe FIFO queue.
//
// Producers never block: Enqueue appends and signals any waiting consumer.
// Consumers either poll with TryDequeue/Drain or wait with Dequeue, which
// honours a timeout so callers can interleave queue reads with other checks.
package queue

import (
	"sync"
	"time"
)

// Queue is a generic FIFO queue that can hold any type. The zero value is
// not usable; create one with [New].
type Queue[T any] struct {
	mu    sync.Mutex
	items []T

	// notify holds at most one pending wake-up for a blocked Dequeue.
	notify chan struct{}
}

// New creates and returns a new Queue instance.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Enqueue adds an element to the end of the queue. It never blocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue removes and returns the front element without waiting. The
// boolean is false when the queue was empty.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Dequeue removes and returns the front element, waiting up to timeout for
// one to arrive. The boolean is false when the timeout elapsed or done was
// closed first. A nil done channel never fires.
func (q *Queue[T]) Dequeue(timeout time.Duration, done <-chan struct{}) (T, bool) {
	if item, ok := q.TryDequeue(); ok {
		return item, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if item, ok := q.TryDequeue(); ok {
				// Pass the wake-up on if more items remain.
				if q.Len() > 0 {
					select {
					case q.notify <- struct{}{}:
					default:
					}
				}
				return item, true
			}
		case <-timer.C:
			return q.TryDequeue()
		case <-done:
			var zero T
			return zero, false
		}
	}
}

// Drain removes and returns every queued element in FIFO order. It returns
// nil when the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Clear discards every queued element and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
