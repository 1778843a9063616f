package pidigits

import (
	"iter"
	"log/slog"
	"runtime"

	"github.com/baxromumarov/pidigits/bbp"
	"github.com/baxromumarov/pidigits/lane"
)

// Default tuning values.
const (
	DefaultBatchSize  = 64
	DefaultQueueDepth = 64
)

// checkEvery is how many byte extractions a generation unit performs
// between two cancellation checks.
const checkEvery = 16

// DigitSink receives the decimal expansion produced at the end of a run.
type DigitSink interface {
	WriteDigits(seq iter.Seq[byte]) error
}

// DigitSinkFunc adapts a function to [DigitSink].
type DigitSinkFunc func(seq iter.Seq[byte]) error

// WriteDigits calls f(seq).
func (f DigitSinkFunc) WriteDigits(seq iter.Seq[byte]) error { return f(seq) }

type config struct {
	batchSize       int
	batches         uint64
	bytes           uint64
	queueDepth      int
	reduceEvery     int
	maxConcurrency  int
	pool            *lane.Pool
	workers         int
	reversePriority bool
	parallel        bool
	decimalDigits   int
	sink            DigitSink
	extractor       bbp.Extractor
	logger          *slog.Logger
	runID           string
}

// Option configures a [Pipeline].
type Option func(*config)

func defaultConfig() config {
	return config{
		batchSize:       DefaultBatchSize,
		queueDepth:      DefaultQueueDepth,
		reduceEvery:     DefaultReduceEvery,
		workers:         runtime.NumCPU(),
		reversePriority: true,
		decimalDigits:   -1,
		extractor:       bbp.Default,
		logger:          slog.Default(),
	}
}

// plan returns the number of batches to dispatch and the length of the
// last one.
func (c *config) plan() (batches uint64, last int) {
	size := uint64(c.batchSize)
	switch {
	case c.bytes > 0:
		batches = (c.bytes + size - 1) / size
		last = int(c.bytes - (batches-1)*size)
	case c.batches > 0:
		batches, last = c.batches, c.batchSize
	default:
		batches, last = MaxBatches, c.batchSize
	}
	return batches, last
}

// WithBatchSize sets the number of bytes (two hex digits each) computed per
// unit of generation work. It panics if n < 1.
func WithBatchSize(n int) Option {
	if n < 1 {
		panic("pidigits: WithBatchSize requires n >= 1")
	}
	return func(c *config) {
		c.batchSize = n
	}
}

// WithBatches stops the run after n batches. Zero means no limit: the run
// continues until cancelled. It replaces any [WithBytes] limit.
func WithBatches(n uint64) Option {
	if n > MaxBatches {
		panic("pidigits: WithBatches exceeds MaxBatches")
	}
	return func(c *config) {
		c.batches = n
		c.bytes = 0
	}
}

// WithBytes stops the run after n bytes; the last batch is trimmed when n
// is not a multiple of the batch size. It replaces any [WithBatches] limit.
func WithBytes(n uint64) Option {
	return func(c *config) {
		c.bytes = n
		c.batches = 0
	}
}

// WithQueueDepth bounds the number of batches between dispatch and
// accumulation: queued, held out of order, or being computed.
// It panics if n < 1.
func WithQueueDepth(n int) Option {
	if n < 1 {
		panic("pidigits: WithQueueDepth requires n >= 1")
	}
	return func(c *config) {
		c.queueDepth = n
	}
}

// WithReduceEvery reduces the running sum to lowest terms after every n
// absorbed batches. It panics if n < 1.
func WithReduceEvery(n int) Option {
	if n < 1 {
		panic("pidigits: WithReduceEvery requires n >= 1")
	}
	return func(c *config) {
		c.reduceEvery = n
	}
}

// WithMaxConcurrency caps the number of pool workers the run may occupy.
// Zero means the pool's worker count. It panics if n < 0.
func WithMaxConcurrency(n int) Option {
	if n < 0 {
		panic("pidigits: WithMaxConcurrency requires n >= 0")
	}
	return func(c *config) {
		c.maxConcurrency = n
	}
}

// WithPool runs the pipeline on a caller-owned pool. The pool is not
// closed when the run ends. It panics if p is nil.
func WithPool(p *lane.Pool) Option {
	if p == nil {
		panic("pidigits: WithPool requires a non-nil pool")
	}
	return func(c *config) {
		c.pool = p
	}
}

// WithWorkers sets the size of the pool created for the run when no pool
// is supplied with [WithPool]. It panics if n < 1.
func WithWorkers(n int) Option {
	if n < 1 {
		panic("pidigits: WithWorkers requires n >= 1")
	}
	return func(c *config) {
		c.workers = n
	}
}

// WithReversePriority sets the lane order. With true (the default) the
// conversion and reorder lanes win over generation, so finished batches
// are drained before new ones start.
func WithReversePriority(reverse bool) Option {
	return func(c *config) {
		c.reversePriority = reverse
	}
}

// WithParallelAccumulation computes each batch's partial sum on the
// generation worker, leaving only the merge to the ordered stage.
func WithParallelAccumulation(on bool) Option {
	return func(c *config) {
		c.parallel = on
	}
}

// WithDecimalDigits sets how many decimal digits after the point the run
// converts. A negative n (the default) means [ReliableDigits] of the bytes
// absorbed.
func WithDecimalDigits(n int) Option {
	return func(c *config) {
		c.decimalDigits = n
	}
}

// WithDigitSink streams the converted decimal expansion to s when the run
// ends.
func WithDigitSink(s DigitSink) Option {
	return func(c *config) {
		c.sink = s
	}
}

// WithExtractor replaces the default BBP digit extractor.
func WithExtractor(e bbp.Extractor) Option {
	return func(c *config) {
		c.extractor = e
	}
}

// WithLogger sets the logger. It panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("pidigits: WithLogger requires a non-nil logger")
	}
	return func(c *config) {
		c.logger = l
	}
}

// WithRunID sets the run identifier used in logs and results. By default
// a random UUID is generated per run.
func WithRunID(id string) Option {
	return func(c *config) {
		c.runID = id
	}
}
