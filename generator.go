package pidigits

import (
	"context"

	"github.com/baxromumarov/pidigits/bbp"
	"github.com/baxromumarov/pidigits/bufpool"
)

// generator computes batches of hex bytes into pooled buffers.
type generator struct {
	ext      bbp.Extractor
	bufs     *bufpool.Pool
	size     int
	parallel bool
}

// produce fills batch index with n bytes starting at stream position
// index*size. The buffer is released if ctx is cancelled part way.
func (g *generator) produce(ctx context.Context, index uint64, n int) (Batch, error) {
	buf := g.bufs.Acquire(g.size)
	if n < g.size {
		buf.Trim(n)
	}
	base := index * uint64(g.size)
	data := buf.Bytes()

	for off := 0; off < len(data); off += checkEvery {
		if err := ctx.Err(); err != nil {
			buf.Release()
			return Batch{}, err
		}
		end := min(off+checkEvery, len(data))
		g.ext.Fill(data[off:end], base+uint64(off))
	}

	b := Batch{Index: index, Base: base, Buf: buf}
	if g.parallel {
		s := BatchSum(base, data)
		b.sum = &s
	}
	return b, nil
}
