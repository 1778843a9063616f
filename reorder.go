package pidigits

import "fmt"

// ReorderBuffer turns batches arriving in any order into a gap-free
// ascending stream. Batches ahead of the next expected index wait in a
// pending map; the map only ever holds the out-of-order window.
//
// A ReorderBuffer is not safe for concurrent use; the pipeline drives it
// from a single reader.
type ReorderBuffer struct {
	next       uint64
	pending    map[uint64]Batch
	maxPending int
	forwarded  uint64
}

// NewReorderBuffer returns a buffer expecting batch 0 first.
func NewReorderBuffer() *ReorderBuffer {
	return &ReorderBuffer{pending: make(map[uint64]Batch)}
}

// Offer accepts b and forwards every batch that became contiguous, in
// index order, to emit. Ownership of each forwarded batch passes to emit.
//
// A batch whose index was already forwarded or is already pending is a
// protocol violation: Offer returns [ErrStaleBatch] or [ErrDuplicateBatch]
// and does not take ownership of b. If emit fails, Offer stops and returns
// that error; batches not yet forwarded stay pending.
func (r *ReorderBuffer) Offer(b Batch, emit func(Batch) error) error {
	switch {
	case b.Index < r.next:
		return fmt.Errorf("%w: %d (next expected %d)", ErrStaleBatch, b.Index, r.next)
	case b.Index > r.next:
		if _, dup := r.pending[b.Index]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateBatch, b.Index)
		}
		r.pending[b.Index] = b
		if n := len(r.pending); n > r.maxPending {
			r.maxPending = n
		}
		return nil
	}

	for {
		r.next++
		r.forwarded++
		if err := emit(b); err != nil {
			return err
		}
		nb, ok := r.pending[r.next]
		if !ok {
			return nil
		}
		delete(r.pending, r.next)
		b = nb
	}
}

// Next returns the index the buffer is waiting for.
func (r *ReorderBuffer) Next() uint64 { return r.next }

// Pending returns the number of batches held out of order.
func (r *ReorderBuffer) Pending() int { return len(r.pending) }

// MaxPending returns the largest pending count observed.
func (r *ReorderBuffer) MaxPending() int { return r.maxPending }

// Forwarded returns the number of batches handed to emit.
func (r *ReorderBuffer) Forwarded() uint64 { return r.forwarded }

// Drain removes and returns every pending batch, so the caller can release
// them when the stream ends early.
func (r *ReorderBuffer) Drain() []Batch {
	if len(r.pending) == 0 {
		return nil
	}
	out := make([]Batch, 0, len(r.pending))
	for idx, b := range r.pending {
		out = append(out, b)
		delete(r.pending, idx)
	}
	return out
}
