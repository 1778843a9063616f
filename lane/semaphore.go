package lane

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds how many units of a resource are in use at once. The
// digit pipeline holds one slot per batch between dispatch and hand-off to
// the accumulator, which caps both queued batches and the reorder window.
//
// Acquire is context-aware: it unblocks when the context is cancelled.
type Semaphore struct {
	ch       chan struct{}
	acquired atomic.Int64
	peak     atomic.Int64
}

// NewSemaphore creates a semaphore with n slots. Panics if n <= 0.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		panic("lane: NewSemaphore requires n > 0")
	}
	return &Semaphore{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
// Returns ctx.Err() on cancellation, nil on success.
func (s *Semaphore) Acquire(ctx context.Context) error {
	// Prefer cancellation when both are ready.
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.ch <- struct{}{}:
		s.track()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking and reports whether it did.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		s.track()
		return true
	default:
		return false
	}
}

// Release frees a slot. Panics if more slots are released than acquired.
func (s *Semaphore) Release() {
	if s.acquired.Add(-1) < 0 {
		s.acquired.Add(1)
		panic("lane: Semaphore.Release called without matching Acquire")
	}
	<-s.ch
}

func (s *Semaphore) track() {
	n := s.acquired.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// InUse returns the number of held slots. The value may be stale.
func (s *Semaphore) InUse() int { return len(s.ch) }

// Available returns the number of free slots. The value may be stale.
func (s *Semaphore) Available() int { return cap(s.ch) - len(s.ch) }

// Cap returns the total number of slots.
func (s *Semaphore) Cap() int { return cap(s.ch) }

// Peak returns the highest number of slots held at once.
func (s *Semaphore) Peak() int { return int(s.peak.Load()) }
