package lane

import (
	"context"
	"errors"
	"sync"

	"code.hybscloud.com/atomix"
)

// ErrDisposed is returned by [Lane.Enqueue] once the lane or one of its
// ancestors has been disposed.
var ErrDisposed = errors.New("lane: disposed")

// Work is a unit of work queued on a lane. The context is cancelled when the
// lane is disposed.
//
// Work still queued when its lane is disposed is not dropped silently: it
// is invoked exactly once with an already-cancelled context. Such a call
// must only release what the work holds (buffers, semaphore slots, wait
// group counts) and return; it must not start the work itself.
type Work func(ctx context.Context) error

// Scheduler is a tree of prioritized work lanes sharing one concurrency
// budget. Only the root lane borrows workers from the [Pool]; a child lane
// that receives work signals its parent, and every worker walks the tree
// from the root picking the highest-priority runnable item.
//
// All lane state lives in one arena guarded by a single mutex.
type Scheduler struct {
	pool    *Pool
	limit   int
	reverse bool
	cfg     config

	mu     sync.Mutex
	nodes  []*node
	active int
	first  error

	workers sync.WaitGroup

	// halted ends pending worker requests once the root is disposed.
	halted context.Context
	halt   context.CancelFunc

	executed  atomix.Int64
	discarded atomix.Int64
	failed    atomix.Int64
}

type node struct {
	id       int
	parent   int
	ctx      context.Context
	cancel   context.CancelFunc
	queue    []Work
	head     int
	children []int
	disposed bool
}

func (n *node) pending() int { return len(n.queue) - n.head }

func (n *node) pop() Work {
	w := n.queue[n.head]
	n.queue[n.head] = nil
	n.head++
	if n.head == len(n.queue) {
		n.queue = n.queue[:0]
		n.head = 0
	}
	return w
}

// Lane is a handle to one node of a [Scheduler]'s lane tree. The zero value
// is not usable; obtain lanes from [Scheduler.Root] and [Lane.Child].
type Lane struct {
	s  *Scheduler
	id int
}

// Stats is a point-in-time snapshot of scheduler activity.
type Stats struct {
	Lanes     int   // lanes created, root included
	Active    int   // pool workers currently held
	Limit     int   // effective concurrency cap
	Queued    int   // work items waiting across all lanes
	Executed  int64 // work items run to completion
	Discarded int64 // work items dropped by Dispose
	Failed    int64 // work items that returned an error or panicked
}

// NewScheduler creates a scheduler drawing workers from pool. The parent
// context is inherited by every lane context. Panics if pool is nil.
func NewScheduler(ctx context.Context, pool *Pool, opts ...Option) *Scheduler {
	if pool == nil {
		panic("lane: NewScheduler requires a non-nil pool")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	limit := pool.Workers()
	if cfg.maxConcurrency > 0 && cfg.maxConcurrency < limit {
		limit = cfg.maxConcurrency
	}

	s := &Scheduler{
		pool:    pool,
		limit:   limit,
		reverse: cfg.reversePriority,
		cfg:     cfg,
	}
	s.halted, s.halt = context.WithCancel(context.Background())
	rctx, cancel := context.WithCancel(ctx)
	s.nodes = append(s.nodes, &node{id: 0, parent: -1, ctx: rctx, cancel: cancel})
	return s
}

// Root returns the root lane.
func (s *Scheduler) Root() Lane { return Lane{s: s, id: 0} }

// Limit returns the effective concurrency cap.
func (s *Scheduler) Limit() int { return s.limit }

// Child returns child lane i, creating it and any lower-indexed siblings
// on first use. A child created under a disposed lane is itself disposed.
// Panics if i is negative.
func (l Lane) Child(i int) Lane {
	if i < 0 {
		panic("lane: Child requires i >= 0")
	}
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.nodes[l.id]
	for len(parent.children) <= i {
		parent.children = append(parent.children, -1)
	}
	if id := parent.children[i]; id >= 0 {
		return Lane{s: s, id: id}
	}

	ctx, cancel := context.WithCancel(parent.ctx)
	n := &node{
		id:       len(s.nodes),
		parent:   l.id,
		ctx:      ctx,
		cancel:   cancel,
		disposed: parent.disposed,
	}
	s.nodes = append(s.nodes, n)
	parent.children[i] = n.id
	return Lane{s: s, id: n.id}
}

// Index returns the lane's arena index. The root is 0.
func (l Lane) Index() int { return l.id }

// Context returns the lane's context, cancelled when the lane or an
// ancestor is disposed.
func (l Lane) Context() context.Context {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.nodes[l.id].ctx
}

// Len returns the number of items waiting on this lane, not counting
// children.
func (l Lane) Len() int {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.nodes[l.id].pending()
}

// Enqueue appends w to the lane's queue and makes sure a worker will pick
// it up. It never waits for the pool: when every pool worker is busy the
// request for one is handed to a background goroutine.
func (l Lane) Enqueue(w Work) error {
	if w == nil {
		panic("lane: Enqueue requires non-nil work")
	}
	s := l.s
	s.mu.Lock()
	n := s.nodes[l.id]
	if n.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	n.queue = append(n.queue, w)
	spawn := s.signal(n.id)
	s.mu.Unlock()

	if spawn {
		s.requestWorker()
	}
	return nil
}

// signal propagates a wake-up from lane id to the root. Only the root
// decides whether a new worker is needed. Caller holds s.mu.
func (s *Scheduler) signal(id int) bool {
	if p := s.nodes[id].parent; p >= 0 {
		return s.signal(p)
	}
	if s.active >= s.limit {
		return false
	}
	s.active++
	return true
}

func (s *Scheduler) requestWorker() {
	s.workers.Add(1)
	if s.pool.TrySubmit(s.drain) {
		return
	}
	go func() {
		err := s.pool.Submit(s.halted, s.drain)
		if err == nil {
			return
		}
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		s.workers.Done()
		if errors.Is(err, ErrPoolClosed) {
			s.record(0, err)
		}
	}()
}

// drain is the body of a borrowed pool worker. It keeps taking the
// highest-priority item until the tree has nothing runnable, then gives
// its slot back. The slot is released under the same lock that observed
// the empty tree, so a concurrent Enqueue either sees the slot free and
// spawns, or its item is seen here.
func (s *Scheduler) drain() error {
	defer s.workers.Done()
	for {
		s.mu.Lock()
		w, n, ok := s.next(0)
		if !ok {
			s.active--
			s.mu.Unlock()
			return nil
		}
		ctx := n.ctx
		s.mu.Unlock()

		s.run(ctx, n.id, w)
	}
}

// next returns the next item for lane id: its own queue first, then its
// children in priority order. Caller holds s.mu.
func (s *Scheduler) next(id int) (Work, *node, bool) {
	n := s.nodes[id]
	if n.disposed {
		return nil, nil, false
	}
	if n.pending() > 0 {
		return n.pop(), n, true
	}
	k := len(n.children)
	for i := range k {
		c := i
		if s.reverse {
			c = k - 1 - i
		}
		cid := n.children[c]
		if cid < 0 {
			continue
		}
		if w, cn, ok := s.next(cid); ok {
			return w, cn, true
		}
	}
	return nil, nil, false
}

func (s *Scheduler) run(ctx context.Context, id int, w Work) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = newPanicError(id, r)
			}
		}()
		return w(ctx)
	}()
	s.executed.Add(1)
	if err != nil {
		s.record(id, err)
	}
}

func (s *Scheduler) record(id int, err error) {
	s.failed.Add(1)
	s.mu.Lock()
	if s.first == nil {
		s.first = err
	}
	s.mu.Unlock()

	s.cfg.logger.Debug("lane: work failed", "lane", id, "error", err)
	if s.cfg.onError != nil {
		s.cfg.onError(err)
	}
}

// Err returns the first error recorded by any work item, or nil.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}

// Dispose disposes the lane and its whole subtree. Queued items are removed
// and each is invoked once, on the calling goroutine, with the lane's
// cancelled context (see [Work]). Items already running are not interrupted beyond the
// context cancellation. Later Enqueue calls return [ErrDisposed].
// Dispose is idempotent.
func (l Lane) Dispose() {
	s := l.s
	s.mu.Lock()
	var (
		dropped []Work
		owners  []*node
	)
	var walk func(id int)
	walk = func(id int) {
		n := s.nodes[id]
		n.disposed = true
		n.cancel()
		for n.pending() > 0 {
			dropped = append(dropped, n.pop())
			owners = append(owners, n)
		}
		for _, c := range n.children {
			if c >= 0 {
				walk(c)
			}
		}
	}
	walk(l.id)
	s.mu.Unlock()
	if l.id == 0 {
		s.halt()
	}

	if len(dropped) > 0 {
		s.cfg.logger.Debug("lane: disposed", "lane", l.id, "discarded", len(dropped))
	}
	for i, w := range dropped {
		s.discarded.Add(1)
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.cfg.logger.Warn("lane: discarded work panicked", "lane", owners[i].id, "panic", r)
				}
			}()
			_ = w(owners[i].ctx)
		}()
	}
}

// Dispose disposes the root lane and therefore every lane.
func (s *Scheduler) Dispose() { s.Root().Dispose() }

// Wait blocks until every worker borrowed from the pool has returned.
// It does not dispose anything; callers that want to stop early call
// Dispose first.
func (s *Scheduler) Wait() { s.workers.Wait() }

// Stats returns a snapshot of scheduler activity.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued := 0
	for _, n := range s.nodes {
		queued += n.pending()
	}
	st := Stats{
		Lanes:  len(s.nodes),
		Active: s.active,
		Limit:  s.limit,
		Queued: queued,
	}
	s.mu.Unlock()

	st.Executed = s.executed.Load()
	st.Discarded = s.discarded.Load()
	st.Failed = s.failed.Load()
	return st
}
