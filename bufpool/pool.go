// Package bufpool provides reusable fixed-capacity byte buffers with explicit
// acquire and release.
//
// Acquire never blocks: when no idle buffer is available a fresh one is
// allocated. Release hands the backing memory back for reuse. Each
// [Buffer] is a lease: releasing the same lease twice, or touching its bytes
// after release, panics.
//
//	p := bufpool.New(4096, 64)
//	b := p.Acquire(1024)
//	fill(b.Bytes())
//	b.Release()
package bufpool

import (
	"fmt"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// Pool hands out leases on byte buffers of a fixed capacity.
// All methods are safe for concurrent use.
type Pool struct {
	size int
	free *lfq.MPMCSeq[*slot] // idle slots

	acquired  atomix.Int64
	released  atomix.Int64
	allocated atomix.Int64
	reused    atomix.Int64
	dropped   atomix.Int64
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Acquired    int64 // leases handed out
	Released    int64 // leases returned
	Allocated   int64 // buffers created because no idle buffer was available
	Reused      int64 // leases served from an idle buffer
	Dropped     int64 // released buffers not kept (oversized or free list full)
	Outstanding int64 // Acquired - Released
	BufferSize  int
	MaxIdle     int
}

// slot owns one backing array. gen is odd while the slot is leased; every
// acquire and release advances it, so a lease only matches its own epoch.
type slot struct {
	buf []byte
	gen atomix.Uint64
}

// New creates a pool of buffers with the given capacity that keeps at most
// maxIdle released buffers (rounded up to a power of two, at least 2) for
// reuse.
// New panics if size or maxIdle is not positive.
func New(size, maxIdle int) *Pool {
	if size <= 0 {
		panic("bufpool: New requires size > 0")
	}
	if maxIdle <= 0 {
		panic("bufpool: New requires maxIdle > 0")
	}
	return &Pool{
		size: size,
		free: lfq.NewMPMCSeq[*slot](max(maxIdle, 2)),
	}
}

// Acquire leases a buffer whose logical length is minCap. Requests larger
// than the pool's buffer size get a dedicated allocation that is dropped on
// release. Acquire panics if minCap is negative.
//
// The contents of a reused buffer are whatever the previous lease left
// behind; callers must overwrite before reading.
func (p *Pool) Acquire(minCap int) *Buffer {
	if minCap < 0 {
		panic("bufpool: Acquire requires minCap >= 0")
	}

	var s *slot
	if minCap <= p.size {
		var err error
		s, err = p.free.Dequeue()
		if err != nil && !iox.IsWouldBlock(err) {
			panic(fmt.Sprintf("bufpool: free list: %v", err))
		}
		if s != nil {
			p.reused.Add(1)
		}
	}
	if s == nil {
		c := p.size
		if minCap > c {
			c = minCap
		}
		s = &slot{buf: make([]byte, c)}
		p.allocated.Add(1)
	}

	gen := s.gen.AddAcqRel(1)
	if gen&1 == 0 {
		panic("bufpool: acquired a slot that is already leased")
	}
	p.acquired.Add(1)
	return &Buffer{pool: p, s: s, gen: gen, n: minCap}
}

// Release returns b to the pool. Releasing a lease twice panics.
func (p *Pool) Release(b *Buffer) {
	if b.pool != p {
		panic("bufpool: buffer released to a foreign pool")
	}
	if !b.s.gen.CompareAndSwapAcqRel(b.gen, b.gen+1) {
		panic("bufpool: buffer released twice")
	}
	p.released.Add(1)

	if cap(b.s.buf) != p.size {
		p.dropped.Add(1)
		return
	}
	if err := p.free.Enqueue(&b.s); err != nil {
		if !iox.IsWouldBlock(err) {
			panic(fmt.Sprintf("bufpool: free list: %v", err))
		}
		p.dropped.Add(1)
	}
}

// Size returns the capacity of pooled buffers.
func (p *Pool) Size() int { return p.size }

// Outstanding returns the number of leases not yet released.
func (p *Pool) Outstanding() int64 {
	return p.acquired.Load() - p.released.Load()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	acq, rel := p.acquired.Load(), p.released.Load()
	return Stats{
		Acquired:    acq,
		Released:    rel,
		Allocated:   p.allocated.Load(),
		Reused:      p.reused.Load(),
		Dropped:     p.dropped.Load(),
		Outstanding: acq - rel,
		BufferSize:  p.size,
		MaxIdle:     p.free.Cap(),
	}
}

// Buffer is a lease on pooled memory. It is owned by one goroutine at a
// time; ownership moves with the value.
type Buffer struct {
	pool *Pool
	s    *slot
	gen  uint64
	n    int
}

// Bytes returns the leased bytes, trimmed to the logical length.
// Bytes panics if the lease has been released.
func (b *Buffer) Bytes() []byte {
	b.check()
	return b.s.buf[:b.n]
}

// Len returns the logical length. Len panics if the lease has been released.
func (b *Buffer) Len() int {
	b.check()
	return b.n
}

// Cap returns the capacity of the backing memory. Cap panics if the lease
// has been released.
func (b *Buffer) Cap() int {
	b.check()
	return cap(b.s.buf)
}

// Trim shortens the logical length to n without copying.
// Trim panics if n is negative or larger than the current length.
func (b *Buffer) Trim(n int) {
	b.check()
	if n < 0 || n > b.n {
		panic(fmt.Sprintf("bufpool: Trim(%d) outside [0, %d]", n, b.n))
	}
	b.n = n
}

// Release returns the buffer to its pool. See [Pool.Release].
func (b *Buffer) Release() {
	b.pool.Release(b)
}

// Released reports whether this lease has been released.
func (b *Buffer) Released() bool {
	return b.s.gen.LoadAcquire() != b.gen
}

func (b *Buffer) check() {
	if b.Released() {
		panic("bufpool: buffer used after release")
	}
}
