package pidigits

import (
	"github.com/baxromumarov/pidigits/bufpool"
)

// MaxBatches is the ceiling on the batch index space of an unbounded run.
// A run without a batch or byte limit continues until cancelled or until
// this many batches have been dispatched.
const MaxBatches = 1 << 30

// Batch is a contiguous run of extracted bytes of π's fractional part.
// Batch i of size B covers stream positions [i*B, i*B+Len).
//
// A batch owns its buffer lease. Whoever holds the batch last releases it,
// exactly once, after its bytes have been consumed.
type Batch struct {
	Index uint64
	Base  uint64
	Buf   *bufpool.Buffer

	// sum is the batch's partial sum, set by generation units when
	// accumulation is parallel.
	sum *Rational
}

// Bytes returns the batch's bytes. Valid until the batch is released.
func (b Batch) Bytes() []byte { return b.Buf.Bytes() }

// Len returns the number of bytes in the batch.
func (b Batch) Len() int { return b.Buf.Len() }

// release gives the buffer back. A second release of the same batch
// panics.
func (b Batch) release() {
	if b.Buf != nil {
		b.Buf.Release()
	}
}
