package strategy

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/baxromumarov/pidigits/config"
)

// samplesPerCheck is how many samples run between cancellation checks.
const samplesPerCheck = 4096

type monteCarlo struct {
	cfg config.MonteCarloConfig
	o   options
}

func newMonteCarlo(cfg *config.Config, o options) Strategy {
	return &monteCarlo{cfg: cfg.MonteCarlo, o: o}
}

func (s *monteCarlo) Name() string { return "montecarlo" }

// Approximate draws points uniformly from the unit square and counts those
// inside the quarter circle: π ≈ 4·inside/total.
func (s *monteCarlo) Approximate(ctx context.Context, rep Reporter) (Approximation, error) {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	every := max(s.cfg.ReportEvery, 1)

	start := time.Now()
	s.o.logger.Info("strategy: montecarlo started", "samples", s.cfg.Samples, "seed", seed)

	var inside, total uint64
	cancelled := false
	for s.cfg.Samples == 0 || total < s.cfg.Samples {
		if total%samplesPerCheck == 0 && ctx.Err() != nil {
			cancelled = true
			break
		}
		x, y := rng.Float64(), rng.Float64()
		if x*x+y*y <= 1 {
			inside++
		}
		total++
		if total%every == 0 {
			rep.report(Report{
				Strategy: s.Name(),
				Step:     total,
				Total:    s.cfg.Samples,
				Estimate: estimate(inside, total),
				Digits:   samplingDigits(total),
			})
		}
	}

	est := estimate(inside, total)
	a := Approximation{
		Strategy:  s.Name(),
		Estimate:  est,
		Digits:    samplingDigits(total),
		Steps:     total,
		Cancelled: cancelled,
		Elapsed:   time.Since(start),
	}
	a.Decimal = strconv.FormatFloat(est, 'f', max(a.Digits, 1), 64)
	s.o.logger.Info("strategy: montecarlo finished", "samples", total, "estimate", est, "cancelled", cancelled)
	return a, deliver(s.o, a)
}

func estimate(inside, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 4 * float64(inside) / float64(total)
}

// samplingDigits is the number of decimal places above the sampling error,
// which shrinks as 1/sqrt(n).
func samplingDigits(n uint64) int {
	if n == 0 {
		return 0
	}
	return max(int(math.Floor(0.5*math.Log10(float64(n))))-1, 0)
}
