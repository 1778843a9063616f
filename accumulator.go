package pidigits

import (
	"fmt"
	"sync"
)

// DefaultReduceEvery is the default number of merged batches between two
// reductions of the running sum.
const DefaultReduceEvery = 10

// Accumulator sums batch contributions into an exact fraction. Addition
// is commutative, so batches may be merged in any order; the stream
// position of every byte comes from the batch's Base, never from arrival
// order.
//
// The running sum is reduced to lowest terms every reduceEvery merges.
// Between reductions the denominator grows with each addition.
// All methods are safe for concurrent use.
type Accumulator struct {
	mu          sync.Mutex
	sum         Rational
	reduceEvery int
	since       int
	batches     uint64
	bytes       uint64
	reductions  int
	maxDenBits  int
	frozen      bool
}

// NewAccumulator returns an empty accumulator that reduces every
// reduceEvery merges. NewAccumulator panics if reduceEvery < 1.
func NewAccumulator(reduceEvery int) *Accumulator {
	if reduceEvery < 1 {
		panic("pidigits: NewAccumulator requires reduceEvery >= 1")
	}
	return &Accumulator{sum: Zero(), reduceEvery: reduceEvery}
}

// Absorb adds the bytes of b at their stream positions. It does not
// release the batch.
func (a *Accumulator) Absorb(b Batch) error {
	part := b.sum
	if part == nil {
		s := BatchSum(b.Base, b.Bytes())
		part = &s
	}
	return a.Merge(*part, b.Len())
}

// Merge adds a precomputed partial sum covering n bytes. The lock is held
// for one addition and, when due, one reduction.
func (a *Accumulator) Merge(part Rational, n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return ErrFinalized
	}
	sum := a.sum.Add(part)
	if sum.Num.Cmp(sum.Den) >= 0 {
		return fmt.Errorf("%w: %s", ErrIntegerPartExceeded, sum.Reduce().Rat().FloatString(8))
	}
	a.sum = sum
	a.batches++
	a.bytes += uint64(n)
	if bits := a.sum.Den.BitLen(); bits > a.maxDenBits {
		a.maxDenBits = bits
	}

	a.since++
	if a.since >= a.reduceEvery {
		a.sum = a.sum.Reduce()
		a.since = 0
		a.reductions++
	}
	return nil
}

// Snapshot returns the reduced running sum without finalizing.
func (a *Accumulator) Snapshot() Rational {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sum.Reduce()
}

// Finalize reduces and freezes the running sum and returns it. Later
// merges fail with [ErrFinalized]; later Finalize calls return the same
// value.
func (a *Accumulator) Finalize() Rational {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.frozen {
		a.sum = a.sum.Reduce()
		a.frozen = true
	}
	return a.sum
}

// AccumulatorStats is a snapshot of accumulator activity.
type AccumulatorStats struct {
	Batches    uint64
	Bytes      uint64
	Reductions int
	MaxDenBits int // largest denominator bit length seen between reductions
}

// Stats returns a snapshot of accumulator activity.
func (a *Accumulator) Stats() AccumulatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AccumulatorStats{
		Batches:    a.batches,
		Bytes:      a.bytes,
		Reductions: a.reductions,
		MaxDenBits: a.maxDenBits,
	}
}
