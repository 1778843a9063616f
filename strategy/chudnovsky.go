package strategy

import (
	"context"
	"math/big"
	"time"

	"github.com/baxromumarov/pidigits/config"
)

// guardDigits are extra fixed-point digits absorbing truncation in the
// series terms.
const guardDigits = 10

// c3Over24 is 640320³ / 24.
var c3Over24 = big.NewInt(10939058860032000)

type chudnovsky struct {
	cfg config.ChudnovskyConfig
	o   options
}

func newChudnovsky(cfg *config.Config, o options) Strategy {
	return &chudnovsky{cfg: cfg.Chudnovsky, o: o}
}

func (s *chudnovsky) Name() string { return "chudnovsky" }

// Approximate sums the Chudnovsky series in fixed point, scaled by
// 10^(digits+guard). Each term adds about 14 digits; cancellation is
// checked before every term and the partial sum is still converted.
func (s *chudnovsky) Approximate(ctx context.Context, rep Reporter) (Approximation, error) {
	digits := s.cfg.Digits
	start := time.Now()
	s.o.logger.Info("strategy: chudnovsky started", "digits", digits)

	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits+guardDigits)), nil)
	ak := new(big.Int).Set(one)
	aSum := new(big.Int).Set(one)
	bSum := new(big.Int)
	total := uint64(digits/14 + 1)

	var (
		k         int64 = 1
		cancelled bool
		t, kb     big.Int
	)
	for ak.Sign() != 0 {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		// a_k = a_{k-1} · -(6k-5)(2k-1)(6k-1) / (k³ · 640320³/24)
		t.SetInt64(-(6*k - 5) * (2*k - 1) * (6*k - 1))
		ak.Mul(ak, &t)
		kb.SetInt64(k * k * k)
		kb.Mul(&kb, c3Over24)
		ak.Quo(ak, &kb)

		aSum.Add(aSum, ak)
		t.SetInt64(k)
		bSum.Add(bSum, t.Mul(&t, ak))

		rep.report(Report{
			Strategy: s.Name(),
			Step:     uint64(k),
			Total:    total,
			Digits:   min(int(14*k), digits),
		})
		k++
	}

	// π = 426880·√10005 / (13591409·Σa + 545140134·Σb)
	sum := new(big.Int).Mul(big.NewInt(13591409), aSum)
	sum.Add(sum, new(big.Int).Mul(big.NewInt(545140134), bSum))

	sqrt := new(big.Int).Mul(big.NewInt(10005), one)
	sqrt.Mul(sqrt, one).Sqrt(sqrt)

	pi := new(big.Int).Mul(big.NewInt(426880), sqrt)
	pi.Mul(pi, one).Quo(pi, sum)

	known := digits
	if cancelled {
		known = min(int(14*(k-1)), digits)
	}
	a := Approximation{
		Strategy:  s.Name(),
		Decimal:   fixedToDecimal(pi, digits+guardDigits, known),
		Digits:    known,
		Steps:     uint64(k - 1),
		Cancelled: cancelled,
		Elapsed:   time.Since(start),
	}
	a.Estimate, _ = new(big.Rat).SetFrac(pi, one).Float64()
	s.o.logger.Info("strategy: chudnovsky finished", "terms", a.Steps, "cancelled", cancelled)
	return a, deliver(s.o, a)
}

// fixedToDecimal renders v / 10^scale with keep fractional digits,
// truncated. v must be non-negative and below 10·10^scale.
func fixedToDecimal(v *big.Int, scale, keep int) string {
	s := v.String()
	for len(s) <= scale {
		s = "0" + s
	}
	intLen := len(s) - scale
	if keep == 0 {
		return s[:intLen]
	}
	return s[:intLen] + "." + s[intLen:intLen+keep]
}
