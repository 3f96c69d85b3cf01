// Package queue buffers outbound messages while no session is live.
package queue

import (
	"errors"
	"sync"
)

const DefaultCapacity = 100

// ErrFull is returned by Push when the queue already holds capacity entries.
// New entries are rejected; entries already accepted are never evicted.
var ErrFull = errors.New("outbound queue full")

// Queue is a bounded FIFO. A capacity of zero disables queueing: every Push
// fails with ErrFull.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{capacity: capacity}
}

func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return ErrFull
	}
	q.items = append(q.items, v)
	return nil
}

// Drain removes and returns every entry in push order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Requeue puts entries taken by Drain but never delivered back at the head
// of the queue. Those entries were accepted first, so when the combined
// length exceeds capacity the newest entries are discarded. It returns how
// many were discarded.
func (q *Queue[T]) Requeue(items []T) int {
	if len(items) == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)
	dropped := 0
	if len(merged) > q.capacity {
		dropped = len(merged) - q.capacity
		merged = merged[:q.capacity]
	}
	q.items = merged
	return dropped
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Cap() int {
	return q.capacity
}
