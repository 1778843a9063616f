package strategy

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/pidigits/config"
)

// Compare runs the named strategies concurrently, at most limit at a time
// (no limit when limit < 1), and returns their approximations in the order
// of names. The first failure cancels the others and is returned. rep is
// called from several goroutines.
//
// Digit sinks set with [WithDigitSink] are ignored: the strategies would
// otherwise interleave their digits in one sink.
func Compare(ctx context.Context, names []string, cfg *config.Config, limit int, rep Reporter, opts ...Option) ([]Approximation, error) {
	opts = append(slices.Clone(opts), WithDigitSink(nil))
	strategies := make([]Strategy, len(names))
	for i, name := range names {
		s, err := New(name, cfg, opts...)
		if err != nil {
			return nil, err
		}
		strategies[i] = s
	}

	out := make([]Approximation, len(names))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, s := range strategies {
		g.Go(func() error {
			a, err := s.Approximate(ctx, rep)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", s.Name(), err)
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
