package strategy

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/baxromumarov/pidigits"
	"github.com/baxromumarov/pidigits/bbp"
	"github.com/baxromumarov/pidigits/config"
)

type bbpStrategy struct {
	cfg config.BBPConfig
	o   options
}

func newBBP(cfg *config.Config, o options) Strategy {
	return &bbpStrategy{cfg: cfg.BBP, o: o}
}

func (s *bbpStrategy) Name() string { return "bbp" }

func (s *bbpStrategy) Approximate(ctx context.Context, rep Reporter) (Approximation, error) {
	c := s.cfg
	opts := []pidigits.Option{
		pidigits.WithBatchSize(c.BatchSize),
		pidigits.WithBatches(c.Batches),
		pidigits.WithQueueDepth(c.QueueDepth),
		pidigits.WithReduceEvery(c.ReduceEvery),
		pidigits.WithMaxConcurrency(c.MaxConcurrency),
		pidigits.WithReversePriority(c.ReversePriority),
		pidigits.WithParallelAccumulation(c.ParallelAccumulation),
		pidigits.WithDecimalDigits(c.DecimalDigits),
		pidigits.WithExtractor(bbp.New(c.Epsilon, c.MaxTailTerms)),
		pidigits.WithLogger(s.o.logger),
	}
	switch {
	case s.o.pool != nil:
		opts = append(opts, pidigits.WithPool(s.o.pool))
	case c.Workers > 0:
		opts = append(opts, pidigits.WithWorkers(c.Workers))
	}
	if s.o.sink != nil {
		opts = append(opts, pidigits.WithDigitSink(s.o.sink))
	}
	if s.o.runID != "" {
		opts = append(opts, pidigits.WithRunID(s.o.runID))
	}

	p := pidigits.New(opts...)
	events, stop := p.Progress().Subscribe(16)
	defer stop()

	// The forwarder ends when the run finishes the notifier.
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		for ev := range events {
			rep.report(Report{
				Strategy: s.Name(),
				Step:     ev.Batches,
				Total:    c.Batches,
				Digits:   pidigits.ReliableDigits(ev.Bytes),
			})
		}
	})

	start := time.Now()
	res, err := p.Run(ctx)
	wg.Wait()
	if err != nil {
		return Approximation{}, err
	}

	return Approximation{
		Strategy:  s.Name(),
		Decimal:   res.Decimal,
		Estimate:  res.Value.Float64(),
		Digits:    res.ReliableDigits,
		Steps:     res.Batches,
		Cancelled: res.Cancelled,
		Elapsed:   time.Since(start),
		BBP:       res,
	}, nil
}
