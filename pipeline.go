package pidigits

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/baxromumarov/pidigits/bufpool"
	"github.com/baxromumarov/pidigits/chanx"
	"github.com/baxromumarov/pidigits/lane"
)

// IntegerPart is the integer part of π. The pipeline computes only the
// fractional part and adds it back at the end.
const IntegerPart = 3

// Lane indices under the scheduler root.
const (
	laneGenerate = 0
	laneReorder  = 1
	laneConvert  = 2
)

// Progress is published after every batch the ordered stage absorbs.
type Progress struct {
	Batches uint64        // batches absorbed
	Bytes   uint64        // bytes absorbed
	Pending int           // batches held out of order
	Queued  int           // batches waiting in the generation queue
	Elapsed time.Duration // since the run started
}

// Result describes a finished or cancelled run.
type Result struct {
	RunID string

	// Value is IntegerPart plus Fraction, in lowest terms.
	Value Rational

	// Fraction is the accumulated fractional part of π.
	Fraction Rational

	Bytes          uint64 // bytes absorbed, a contiguous prefix of the stream
	Batches        uint64 // batches absorbed
	ReliableDigits int    // decimal digits after the point guaranteed by Bytes
	Decimal        string // converted expansion, e.g. "3.14159"
	MaxPending     int    // largest out-of-order window seen

	Accumulator AccumulatorStats
	Buffers     bufpool.Stats
	Lanes       lane.Stats
	Pool        lane.PoolStats // the worker pool, shared or per run

	// Cancelled is true when the run stopped because its context was
	// cancelled. Cancellation is not an error; Value covers the batches
	// absorbed before the stop.
	Cancelled bool
	Elapsed   time.Duration

	bytes []byte
}

// Hex returns the absorbed bytes as upper-case hexadecimal digits of π's
// fractional part.
func (r *Result) Hex() string {
	return strings.ToUpper(hex.EncodeToString(r.bytes))
}

// HexBytes returns a copy of the absorbed bytes.
func (r *Result) HexBytes() []byte {
	return append([]byte(nil), r.bytes...)
}

// Pipeline computes hexadecimal digits of π with the BBP formula in
// parallel, reassembles them in order, accumulates them into an exact
// fraction and converts that into decimal digits.
//
// A Pipeline runs once.
type Pipeline struct {
	cfg      config
	progress *chanx.Notifier[Progress]
	started  atomic.Bool
}

// New creates a pipeline. Options are validated when applied.
func New(opts ...Option) *Pipeline {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline{
		cfg:      cfg,
		progress: chanx.NewNotifier[Progress](),
	}
}

// Progress returns the pipeline's progress notifier. It is finished when
// the run ends.
func (p *Pipeline) Progress() *chanx.Notifier[Progress] { return p.progress }

// Run computes and converts digits of π with the given options.
func Run(ctx context.Context, opts ...Option) (*Result, error) {
	return New(opts...).Run(ctx)
}

// run holds the state of one pipeline execution.
type run struct {
	cfg    config
	log    *slog.Logger
	start  time.Time
	ctx    context.Context
	cancel context.CancelCauseFunc

	pool     *lane.Pool
	sched    *lane.Scheduler
	generate lane.Lane
	reorder  lane.Lane
	convert  lane.Lane
	stages   map[int]Stage

	gen      *generator
	queue    *chanx.Queue[Batch]
	slots    *lane.Semaphore
	acc      *Accumulator
	progress *chanx.Notifier[Progress]

	producers sync.WaitGroup

	// drainMu makes the ordered stage single-reader. rb and bytes are only
	// touched with it held.
	drainMu   sync.Mutex
	rb        *ReorderBuffer
	bytes     []byte
	drained   chan struct{}
	drainOnce sync.Once
	sealed    atomic.Bool

	errOnce sync.Once
	err     error
	failed  chan struct{}
}

// Run executes the pipeline. It returns when the configured number of
// batches has been converted, when ctx is cancelled, or when a stage fails.
// A cancelled run returns a Result with Cancelled set and a nil error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	defer p.progress.Finish()

	cfg := p.cfg
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	pool := cfg.pool
	if pool == nil {
		pool = lane.NewPool(context.Background(), cfg.workers)
		defer func() { _ = pool.Close() }()
	}

	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		cfg:    cfg,
		log:    cfg.logger.With("run_id", cfg.runID),
		start:  time.Now(),
		ctx:    rctx,
		cancel: cancel,
		pool:   pool,
		gen: &generator{
			ext:      cfg.extractor,
			bufs:     bufpool.New(cfg.batchSize, cfg.queueDepth),
			size:     cfg.batchSize,
			parallel: cfg.parallel,
		},
		queue:    chanx.NewQueue[Batch](cfg.queueDepth),
		slots:    lane.NewSemaphore(cfg.queueDepth),
		acc:      NewAccumulator(cfg.reduceEvery),
		progress: p.progress,
		rb:       NewReorderBuffer(),
		drained:  make(chan struct{}),
		failed:   make(chan struct{}),
	}
	r.sched = lane.NewScheduler(rctx, pool,
		lane.WithMaxConcurrency(cfg.maxConcurrency),
		lane.WithReversePriority(cfg.reversePriority),
		lane.WithLogger(r.log),
		lane.WithOnError(r.laneFailed),
	)
	root := r.sched.Root()
	r.generate = root.Child(laneGenerate)
	r.reorder = root.Child(laneReorder)
	r.convert = root.Child(laneConvert)
	r.stages = map[int]Stage{
		r.generate.Index(): StageGenerate,
		r.reorder.Index():  StageReorder,
		r.convert.Index():  StageConvert,
	}

	return r.execute()
}

func (r *run) execute() (*Result, error) {
	total, last := r.cfg.plan()
	r.log.Info("pidigits: run started",
		"batch_size", r.cfg.batchSize,
		"batches", total,
		"queue_depth", r.cfg.queueDepth,
		"concurrency", r.sched.Limit(),
		"parallel_accumulation", r.cfg.parallel,
	)

	dispatched := r.dispatch(total, last)
	r.awaitProducers()

	r.queue.Complete()
	if err := r.reorder.Enqueue(r.drainWork); err != nil {
		_ = r.drainWork(r.ctx)
	}
	select {
	case <-r.drained:
	case <-r.failed:
	}

	cancelled := r.firstErr() == nil && r.ctx.Err() != nil
	res := &Result{RunID: r.cfg.runID, Cancelled: cancelled}
	if r.firstErr() == nil {
		r.finish(res)
	}

	r.sched.Dispose()
	r.sched.Wait()
	r.releaseLeftovers()

	if err := r.firstErr(); err != nil {
		r.log.Debug("pidigits: run failed", "error", err, "dispatched", dispatched)
		return nil, err
	}

	res.Elapsed = time.Since(r.start)
	res.MaxPending = r.rb.MaxPending()
	res.Accumulator = r.acc.Stats()
	res.Buffers = r.gen.bufs.Stats()
	res.Lanes = r.sched.Stats()
	res.Pool = r.pool.Stats()
	if res.Buffers.Allocated > int64(r.cfg.queueDepth) {
		r.log.Warn("pidigits: buffer pool allocated past the queue depth",
			"allocated", res.Buffers.Allocated,
			"dropped", res.Buffers.Dropped,
			"queue_depth", r.cfg.queueDepth,
		)
	}

	attrs := []any{
		"bytes", res.Bytes,
		"batches", res.Batches,
		"reliable_digits", res.ReliableDigits,
		"max_pending", res.MaxPending,
		"elapsed", res.Elapsed,
	}
	if cancelled {
		r.log.Info("pidigits: run cancelled", append(attrs, "cause", context.Cause(r.ctx))...)
	} else {
		r.log.Info("pidigits: run finished", attrs...)
	}
	return res, nil
}

// dispatch schedules one generation unit per batch. Each unit holds a slot
// until its batch leaves the ordered stage, so queued, pending and running
// batches together never exceed the queue depth.
func (r *run) dispatch(total uint64, last int) uint64 {
	var i uint64
	for ; i < total; i++ {
		if err := r.slots.Acquire(r.ctx); err != nil {
			break
		}
		n := r.cfg.batchSize
		if i == total-1 {
			n = last
		}
		r.producers.Add(1)
		if err := r.generate.Enqueue(r.generateWork(i, n)); err != nil {
			r.producers.Done()
			r.slots.Release()
			r.fail(stageErr(StageGenerate, int64(i), err))
			break
		}
	}
	return i
}

// awaitProducers waits for every generation unit. If the run stops early,
// queued units are discarded so that they give back their slots.
func (r *run) awaitProducers() {
	done := make(chan struct{})
	go func() {
		r.producers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-r.ctx.Done():
	}
	r.generate.Dispose()
	<-done
}

func (r *run) generateWork(index uint64, n int) lane.Work {
	return func(ctx context.Context) error {
		defer r.producers.Done()

		b, err := r.gen.produce(ctx, index, n)
		if err != nil {
			r.slots.Release()
			if ctx.Err() != nil {
				return nil
			}
			return stageErr(StageGenerate, int64(index), err)
		}
		if err := r.queue.Push(ctx, b); err != nil {
			b.release()
			r.slots.Release()
			if ctx.Err() != nil {
				return nil
			}
			return stageErr(StageGenerate, int64(index), err)
		}
		// A disposed reorder lane means the run is tearing down and the
		// batch is released with the leftovers.
		_ = r.reorder.Enqueue(r.drainWork)
		return nil
	}
}

// drainWork moves every queued batch through the reorder buffer into the
// accumulator. Only one drain runs at a time; a drain that finds the stage
// busy returns at once, and the busy one re-checks the queue after
// unlocking so that no pushed batch is left behind.
func (r *run) drainWork(context.Context) error {
	for {
		if r.sealed.Load() || !r.drainMu.TryLock() {
			return nil
		}
		err := r.drainLocked()
		fin := err == nil && r.queue.Completed() && r.queue.Len() == 0
		if fin {
			r.drainOnce.Do(func() { close(r.drained) })
		}
		r.drainMu.Unlock()

		if err != nil || fin {
			return err
		}
		if r.queue.Len() == 0 && !r.queue.Completed() {
			return nil
		}
	}
}

func (r *run) drainLocked() error {
	for {
		b, ok := r.queue.TryPop()
		if !ok {
			return nil
		}
		if err := r.rb.Offer(b, r.forward); err != nil {
			if errors.Is(err, ErrDuplicateBatch) || errors.Is(err, ErrStaleBatch) {
				b.release()
				r.slots.Release()
				return stageErr(StageReorder, int64(b.Index), err)
			}
			return err
		}
		r.progress.Publish(Progress{
			Batches: r.rb.Forwarded(),
			Bytes:   uint64(len(r.bytes)),
			Pending: r.rb.Pending(),
			Queued:  r.queue.Len(),
			Elapsed: time.Since(r.start),
		})
	}
}

// forward hands one in-order batch to the accumulator and gives back its
// buffer and dispatch slot.
func (r *run) forward(b Batch) error {
	defer r.slots.Release()
	defer b.release()

	if err := r.acc.Absorb(b); err != nil {
		return stageErr(StageAccumulate, int64(b.Index), err)
	}
	r.bytes = append(r.bytes, b.Bytes()...)
	r.log.Debug("pidigits: batch absorbed", "batch", b.Index, "pending", r.rb.Pending())
	return nil
}

// finish seals the ordered stage and runs the conversion on the convert
// lane, filling res.
func (r *run) finish(res *Result) {
	r.sealed.Store(true)
	r.drainMu.Lock()
	res.bytes = r.bytes
	res.Bytes = uint64(len(r.bytes))
	res.Batches = r.rb.Forwarded()
	r.drainMu.Unlock()

	done := make(chan struct{})
	work := func(context.Context) error {
		defer close(done)
		return r.convertInto(res)
	}
	if err := r.convert.Enqueue(work); err != nil {
		if err := work(r.ctx); err != nil {
			r.fail(err)
		}
		return
	}
	select {
	case <-done:
	case <-r.failed:
	}
}

func (r *run) convertInto(res *Result) error {
	res.Fraction = r.acc.Finalize()
	res.Value = res.Fraction.AddInt(IntegerPart).Reduce()
	res.ReliableDigits = ReliableDigits(res.Bytes)

	digits := r.cfg.decimalDigits
	if digits < 0 {
		digits = res.ReliableDigits
	}
	res.Decimal = DecimalString(res.Value, digits)

	if r.cfg.sink != nil {
		if err := r.cfg.sink.WriteDigits(Digits(res.Value, digits)); err != nil {
			return stageErr(StageConvert, -1, err)
		}
	}
	return nil
}

// releaseLeftovers gives back every buffer still held by the queue or the
// reorder buffer. Workers have stopped when it runs.
func (r *run) releaseLeftovers() {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	n := 0
	for {
		b, ok := r.queue.TryPop()
		if !ok {
			break
		}
		b.release()
		n++
	}
	for _, b := range r.rb.Drain() {
		b.release()
		n++
	}
	if n > 0 {
		r.log.Debug("pidigits: released unabsorbed batches", "count", n)
	}
}

// laneFailed attributes a recovered panic to the stage owning its lane.
func (r *run) laneFailed(err error) {
	var pe *lane.PanicError
	if errors.As(err, &pe) && !IsStageError(err) {
		if st, ok := r.stages[pe.Lane]; ok {
			err = &StageError{Stage: st, Batch: -1, Err: err}
		}
	}
	r.fail(err)
}

// fail records the first error and cancels the run. Later errors are
// dropped.
func (r *run) fail(err error) {
	r.errOnce.Do(func() {
		r.err = err
		r.cancel(err)
		close(r.failed)
	})
}

func (r *run) firstErr() error {
	select {
	case <-r.failed:
		return r.err
	default:
		return nil
	}
}
