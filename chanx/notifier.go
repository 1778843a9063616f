package chanx

import (
	"sync"
	"sync/atomic"
)

// Notifier broadcasts values to any number of subscribers and signals
// completion exactly once.
//
// Each subscriber owns a buffered channel. Publish never blocks the
// publisher: a subscriber whose buffer is full misses that value, which is
// counted in [Notifier.Dropped]. Progress reporting must not stall the
// computation it reports on.
type Notifier[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool

	once sync.Once
	done chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
}

// NewNotifier creates a notifier with no subscribers.
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{
		subs: make(map[int]chan T),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber with a buffer of bufSize values. The
// returned channel is closed by [Notifier.Finish] or by calling the returned
// cancel function, whichever happens first. Subscribing after Finish returns
// an already closed channel.
//
// Subscribe panics if bufSize is not positive.
func (n *Notifier[T]) Subscribe(bufSize int) (<-chan T, func()) {
	if bufSize <= 0 {
		panic("chanx: Subscribe requires bufSize > 0")
	}

	ch := make(chan T, bufSize)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish offers v to every subscriber and returns how many received it.
// Publishing after Finish is a no-op.
func (n *Notifier[T]) Publish(v T) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return 0
	}

	n.published.Add(1)
	delivered := 0
	for _, ch := range n.subs {
		select {
		case ch <- v:
			delivered++
		default:
			n.dropped.Add(1)
		}
	}
	return delivered
}

// Finish closes every subscriber channel and the [Notifier.Done] channel.
// Only the first call has an effect.
func (n *Notifier[T]) Finish() {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		for id, ch := range n.subs {
			delete(n.subs, id)
			close(ch)
		}
		n.mu.Unlock()

		close(n.done)
	})
}

// Done returns a channel that is closed by [Notifier.Finish].
func (n *Notifier[T]) Done() <-chan struct{} {
	return n.done
}

// Subscribers returns the number of live subscribers.
func (n *Notifier[T]) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Published returns the number of values published before Finish.
func (n *Notifier[T]) Published() int64 { return n.published.Load() }

// Dropped returns the number of per-subscriber deliveries skipped because
// the subscriber's buffer was full.
func (n *Notifier[T]) Dropped() int64 { return n.dropped.Load() }
