// Package memory provides the bounded in-process task queue used in async mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/task"
)

var (
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when the queue has no free slot.
	ErrFull = fmt.Errorf("queue full: %w", facility.ErrUnavailable)
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan task.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

var _ task.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan task.QueueItem, capacity),
	}
}

// Enqueue pushes a task into the queue without blocking. A full queue
// answers ErrFull.
func (q *Queue) Enqueue(ctx context.Context, item task.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (task.QueueItem, error) {
	select {
	case <-ctx.Done():
		return task.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return task.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Buffered tasks can still
// be dequeued; further enqueues fail with ErrClosed.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
