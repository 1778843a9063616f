package lane

import "log/slog"

type config struct {
	maxConcurrency  int
	reversePriority bool
	logger          *slog.Logger
	onError         func(error)
}

// Option configures a [Scheduler].
type Option func(*config)

func defaultConfig() config {
	return config{
		logger: slog.Default(),
	}
}

// WithMaxConcurrency caps the number of pool workers the scheduler may hold
// at once. The effective cap is the lesser of n and the pool's worker
// count. Zero (the default) means the pool's worker count.
// WithMaxConcurrency panics if n is negative.
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("lane: WithMaxConcurrency requires n >= 0")
		}
		c.maxConcurrency = n
	}
}

// WithReversePriority makes higher-indexed child lanes win over lower ones.
// By default lane [0] is drained before lane [1].
func WithReversePriority(reverse bool) Option {
	return func(c *config) {
		c.reversePriority = reverse
	}
}

// WithLogger sets the logger used for lane lifecycle events.
// WithLogger panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("lane: WithLogger requires a non-nil logger")
	}
	return func(c *config) {
		c.logger = l
	}
}

// WithOnError registers a hook called with every error returned by, or
// panic recovered from, a unit of work. The hook runs on the worker that
// executed the work.
func WithOnError(fn func(error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}
