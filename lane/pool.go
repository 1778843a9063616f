package lane

import (
	"context"
	"errors"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
)

// ErrPoolClosed is returned by [Pool.Submit] once the pool is closing.
var ErrPoolClosed = errors.New("lane: pool is closed")

// Pool is the shared bounded set of worker goroutines that schedulers
// borrow from. Its worker count caps the concurrency of every [Scheduler]
// bound to it; several schedulers (several pipeline runs) may share one
// pool.
type Pool struct {
	tasks   chan func() error
	workers int
	wg      sync.WaitGroup

	// quit is closed first by Close to abort blocked submitters; sendMu
	// then waits for them before tasks is closed.
	quit   chan struct{}
	sendMu sync.RWMutex
	state  atomix.Uint64 // 0 open, 1 closing

	errMu sync.Mutex
	errs  []error

	submitted atomix.Int64
	completed atomix.Int64
	errored   atomix.Int64
	inFlight  atomix.Int64
}

// PoolStats is a point-in-time snapshot of pool activity.
type PoolStats struct {
	Submitted  int64 `json:"submitted"`   // borrowings accepted
	Completed  int64 `json:"completed"`   // borrowings returned
	Errored    int64 `json:"errored"`     // tasks that returned an error or panicked
	InFlight   int64 `json:"in_flight"`   // workers busy now
	QueueDepth int   `json:"queue_depth"` // tasks waiting for a worker
	Workers    int   `json:"workers"`
}

// PoolOption configures a [Pool].
type PoolOption func(*poolConfig)

type poolConfig struct {
	queueSize int
	interval  time.Duration
	onMetrics func(PoolStats)
}

// WithQueueSize sets how many borrowings may wait for a free worker.
// Zero makes every hand-off synchronous. The default is twice the worker
// count. It panics if size < 0.
func WithQueueSize(size int) PoolOption {
	if size < 0 {
		panic("lane: WithQueueSize requires size >= 0")
	}
	return func(c *poolConfig) {
		c.queueSize = size
	}
}

// WithPoolMetrics calls fn with a [PoolStats] snapshot every interval
// until the pool is closed. It panics if interval <= 0 or fn is nil.
func WithPoolMetrics(interval time.Duration, fn func(PoolStats)) PoolOption {
	if interval <= 0 {
		panic("lane: WithPoolMetrics requires interval > 0")
	}
	if fn == nil {
		panic("lane: WithPoolMetrics requires a non-nil callback")
	}
	return func(c *poolConfig) {
		c.interval = interval
		c.onMetrics = fn
	}
}

// NewPool starts n workers. They run until [Pool.Close]; ctx only bounds
// the metrics reporter. It panics if n <= 0.
func NewPool(ctx context.Context, n int, opts ...PoolOption) *Pool {
	if n <= 0 {
		panic("lane: NewPool requires n > 0")
	}
	cfg := poolConfig{queueSize: 2 * n}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		tasks:   make(chan func() error, cfg.queueSize),
		workers: n,
		quit:    make(chan struct{}),
	}
	p.wg.Add(n)
	for range n {
		go p.worker()
	}
	if cfg.onMetrics != nil {
		p.wg.Add(1)
		go p.report(ctx, cfg.interval, cfg.onMetrics)
	}
	return p
}

func (p *Pool) report(ctx context.Context, every time.Duration, fn func(PoolStats)) {
	defer p.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			fn(p.Stats())
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for fn := range p.tasks {
		p.inFlight.Add(1)
		if err := p.call(fn); err != nil {
			p.errored.Add(1)
			p.errMu.Lock()
			p.errs = append(p.errs, err)
			p.errMu.Unlock()
		}
		p.inFlight.Add(-1)
		p.completed.Add(1)
	}
}

func (p *Pool) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(-1, r)
		}
	}()
	return fn()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Closed reports whether [Pool.Close] has been called.
func (p *Pool) Closed() bool { return p.state.LoadAcquire() != 0 }

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Errored:    p.errored.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: len(p.tasks),
		Workers:    p.workers,
	}
}

// Submit hands fn to a worker, waiting while every worker is busy and the
// queue is full. It returns [ErrPoolClosed] once Close has started, or the
// context error if ctx ends first.
func (p *Pool) Submit(ctx context.Context, fn func() error) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.Closed() {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- fn:
		p.submitted.Add(1)
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit hands fn to a worker only if that is possible without
// waiting. It reports whether fn was accepted.
func (p *Pool) TrySubmit(fn func() error) bool {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.Closed() {
		return false
	}
	select {
	case p.tasks <- fn:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// Close stops accepting work, lets queued and running tasks finish, stops
// the metrics reporter, and returns the joined errors of failed tasks. Later calls return the same
// errors.
func (p *Pool) Close() error {
	if p.state.CompareAndSwapAcqRel(0, 1) {
		close(p.quit)
		p.sendMu.Lock()
		close(p.tasks)
		p.sendMu.Unlock()
	}
	p.wg.Wait()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}
