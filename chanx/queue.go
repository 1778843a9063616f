package chanx

import (
	"context"
	"errors"
	"sync"

	"code.hybscloud.com/iox"
)

// ErrCompleted is returned by [Queue.Push] and [Queue.TryPush] once the
// queue has been completed.
var ErrCompleted = errors.New("chanx: push on completed queue")

// ErrWouldBlock is returned by [Queue.TryPush] when the queue is full.
// It is an alias for [iox.ErrWouldBlock]; test it with [iox.IsWouldBlock].
var ErrWouldBlock = iox.ErrWouldBlock

// Queue is a bounded hand-off queue between concurrent producers and a
// single consumer.
//
// Push suspends the producer while the queue is full, which caps the memory
// held by fast producers in front of a slow consumer. Complete marks the end
// of the stream exactly once; items pushed before completion stay poppable.
//
// Unlike a bare channel, pushing after completion returns [ErrCompleted]
// instead of panicking, and completing twice is a no-op.
type Queue[T any] struct {
	ch   chan T
	once sync.Once
	done chan struct{} // closed by Complete

	// Push holds the read lock for the whole send so that Complete, which
	// takes the write lock before closing ch, never races a blocked send.
	mu        sync.RWMutex
	completed bool
}

// NewQueue creates a queue holding at most depth items.
// NewQueue panics if depth is not positive.
func NewQueue[T any](depth int) *Queue[T] {
	if depth <= 0 {
		panic("chanx: NewQueue requires depth > 0")
	}
	return &Queue[T]{
		ch:   make(chan T, depth),
		done: make(chan struct{}),
	}
}

// Push appends v, suspending while the queue is full. It returns
// [ErrCompleted] if the queue has been completed, or the context error if
// ctx is cancelled while waiting for space.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.completed {
		return ErrCompleted
	}

	select {
	case q.ch <- v:
		return nil
	default:
	}

	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush appends v without blocking. It returns [ErrWouldBlock] if the
// queue is full.
func (q *Queue[T]) TryPush(v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.completed {
		return ErrCompleted
	}

	select {
	case q.ch <- v:
		return nil
	default:
		return ErrWouldBlock
	}
}

// TryPop removes the oldest item without blocking. The boolean is false when
// nothing is queued.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v, ok := <-q.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Pop removes the oldest item, waiting until one is available. The boolean
// is false once the queue is completed and empty. Pop returns the context
// error if ctx is cancelled first.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool, error) {
	select {
	case v, ok := <-q.ch:
		return v, ok, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Complete marks the end of the stream. It waits for pushes already in
// progress, then rejects new ones. Only the first call has an effect; it
// reports whether this call completed the queue.
func (q *Queue[T]) Complete() bool {
	first := false
	q.once.Do(func() {
		q.mu.Lock()
		q.completed = true
		q.mu.Unlock()

		close(q.done)
		close(q.ch)
		first = true
	})
	return first
}

// Completed reports whether [Queue.Complete] has been called.
func (q *Queue[T]) Completed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed by [Queue.Complete].
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of queued items, including items still queued
// after completion.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue depth.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
