package strategy

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/baxromumarov/pidigits/config"
)

type archimedes struct {
	cfg config.ArchimedesConfig
	o   options
}

func newArchimedes(cfg *config.Config, o options) Strategy {
	return &archimedes{cfg: cfg.Archimedes, o: o}
}

func (s *archimedes) Name() string { return "archimedes" }

// Approximate doubles the sides of a polygon inscribed in the unit circle,
// starting from a hexagon of side 1. With s the side length, the doubled
// polygon's side satisfies s'² = s² / (2 + √(4 - s²)), and π ≈ n·s/2.
func (s *archimedes) Approximate(ctx context.Context, rep Reporter) (Approximation, error) {
	prec := s.cfg.Precision
	start := time.Now()
	s.o.logger.Info("strategy: archimedes started", "doublings", s.cfg.Doublings, "precision", prec)

	newF := func() *big.Float { return new(big.Float).SetPrec(prec) }
	four, two := newF().SetInt64(4), newF().SetInt64(2)

	s2 := newF().SetInt64(1) // side² of the hexagon
	n := newF().SetInt64(6)
	var (
		done      int
		cancelled bool
	)
	for done < s.cfg.Doublings {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		root := newF().Sub(four, s2)
		root.Sqrt(root)
		root.Add(root, two)
		s2.Quo(s2, root)
		n.Mul(n, two)
		done++

		rep.report(Report{
			Strategy: s.Name(),
			Step:     uint64(done),
			Total:    uint64(s.cfg.Doublings),
			Estimate: polygonPi(n, s2, prec),
			Digits:   polygonDigits(done, prec),
		})
	}

	pi := newF().Sqrt(s2)
	pi.Mul(pi, n).Quo(pi, two)
	digits := polygonDigits(done, prec)
	est, _ := pi.Float64()

	a := Approximation{
		Strategy:  s.Name(),
		Decimal:   pi.Text('f', digits),
		Estimate:  est,
		Digits:    digits,
		Steps:     uint64(done),
		Cancelled: cancelled,
		Elapsed:   time.Since(start),
	}
	s.o.logger.Info("strategy: archimedes finished", "doublings", done, "cancelled", cancelled)
	return a, deliver(s.o, a)
}

func polygonPi(n, s2 *big.Float, prec uint) float64 {
	v := new(big.Float).SetPrec(prec).Sqrt(s2)
	v.Mul(v, n).Quo(v, big.NewFloat(2))
	f, _ := v.Float64()
	return f
}

// polygonDigits bounds the correct decimal places after k doublings: the
// inscribed polygon's error is about π³/(6n²) with n = 6·2^k, and the
// mantissa precision caps the rest.
func polygonDigits(k int, prec uint) int {
	n := 6 * math.Pow(2, float64(k))
	geom := -math.Log10(math.Pow(math.Pi, 3) / (6 * n * n))
	bits := float64(prec)*math.Log10(2) - 2
	return max(int(math.Floor(min(geom, bits))), 0)
}
