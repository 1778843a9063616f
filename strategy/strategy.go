// Package strategy puts the ways of approximating π behind one interface so
// that callers can select one by name.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/baxromumarov/pidigits"
	"github.com/baxromumarov/pidigits/config"
	"github.com/baxromumarov/pidigits/lane"
)

// ErrUnknownStrategy is returned by [New] for a name with no strategy.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// Report is a progress update from a running strategy.
type Report struct {
	Strategy string
	Step     uint64  // batches, samples, terms or doublings so far
	Total    uint64  // planned steps, 0 when open-ended
	Estimate float64 // current value, 0 when not available mid-run
	Digits   int     // decimal digits known correct so far
}

// Reporter receives progress updates. A nil Reporter is allowed.
type Reporter func(Report)

func (r Reporter) report(rep Report) {
	if r != nil {
		r(rep)
	}
}

// Approximation is the outcome of a strategy run.
type Approximation struct {
	Strategy  string
	Decimal   string  // decimal expansion, e.g. "3.14159"
	Estimate  float64 // nearest float64
	Digits    int     // decimal digits after the point believed correct
	Steps     uint64
	Cancelled bool
	Elapsed   time.Duration

	// BBP holds the pipeline result for the bbp strategy.
	BBP *pidigits.Result
}

// DigitSeq iterates over the characters of the decimal expansion.
func (a Approximation) DigitSeq() iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for i := 0; i < len(a.Decimal); i++ {
			if !yield(a.Decimal[i]) {
				return
			}
		}
	}
}

// Strategy approximates π. Cancelling ctx stops the run early; the
// approximation reached so far is returned with Cancelled set and a nil
// error.
type Strategy interface {
	Name() string
	Approximate(ctx context.Context, rep Reporter) (Approximation, error)
}

type options struct {
	logger *slog.Logger
	sink   pidigits.DigitSink
	runID  string
	pool   *lane.Pool
}

// Option configures a strategy built by [New].
type Option func(*options)

// WithLogger sets the logger. It panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("strategy: WithLogger requires a non-nil logger")
	}
	return func(o *options) {
		o.logger = l
	}
}

// WithDigitSink streams the final decimal expansion to s.
func WithDigitSink(s pidigits.DigitSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithPool runs pipeline-based strategies on a caller-owned worker pool
// instead of one created per run.
func WithPool(p *lane.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithRunID tags logs and results with id.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

type factory func(cfg *config.Config, o options) Strategy

var registry = map[string]factory{
	"archimedes": newArchimedes,
	"bbp":        newBBP,
	"chudnovsky": newChudnovsky,
	"montecarlo": newMonteCarlo,
}

// Names returns the registered strategy names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// New returns the strategy called name configured from cfg.
func New(name string, cfg *config.Config, opts ...Option) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, name, Names())
	}
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID != "" {
		o.logger = o.logger.With("run_id", o.runID)
	}
	return f(cfg, o), nil
}

// deliver writes the expansion to the sink, if any.
func deliver(o options, a Approximation) error {
	if o.sink == nil {
		return nil
	}
	if err := o.sink.WriteDigits(a.DigitSeq()); err != nil {
		return fmt.Errorf("strategy %s: write digits: %w", a.Strategy, err)
	}
	return nil
}
