package pidigits

import (
	"math/big"
)

// Rational is an exact fraction Num/Den with Den > 0. Values returned by
// this package are never mutated afterwards; arithmetic allocates.
//
// Unlike [big.Rat], addition does not normalize, so the cost of reduction
// can be paid on a schedule of the caller's choosing.
type Rational struct {
	Num *big.Int
	Den *big.Int
}

// NewRational returns num/den. It panics if den is zero.
func NewRational(num, den int64) Rational {
	if den == 0 {
		panic("pidigits: NewRational requires den != 0")
	}
	r := Rational{Num: big.NewInt(num), Den: big.NewInt(den)}
	if den < 0 {
		r.Num.Neg(r.Num)
		r.Den.Neg(r.Den)
	}
	return r
}

// Zero returns 0/1.
func Zero() Rational { return Rational{Num: new(big.Int), Den: big.NewInt(1)} }

// BatchSum returns the exact value contributed by data placed at stream
// position base: byte i splits into nibbles worth d1/16^(2p+1) and
// d2/16^(2p+2) with p = base+i. Together the bytes of one batch read as a
// big-endian integer over 256^(base+len(data)).
func BatchSum(base uint64, data []byte) Rational {
	num := new(big.Int).SetBytes(data)
	den := new(big.Int).Lsh(big.NewInt(1), uint(8*(base+uint64(len(data)))))
	return Rational{Num: num, Den: den}
}

func (r Rational) valid() bool { return r.Num != nil && r.Den != nil }

// Add returns r + o without reducing.
func (r Rational) Add(o Rational) Rational {
	if r.Den.Cmp(o.Den) == 0 {
		return Rational{Num: new(big.Int).Add(r.Num, o.Num), Den: new(big.Int).Set(r.Den)}
	}
	a := new(big.Int).Mul(r.Num, o.Den)
	b := new(big.Int).Mul(o.Num, r.Den)
	return Rational{Num: a.Add(a, b), Den: new(big.Int).Mul(r.Den, o.Den)}
}

// AddInt returns r + n.
func (r Rational) AddInt(n int64) Rational {
	num := new(big.Int).Mul(big.NewInt(n), r.Den)
	return Rational{Num: num.Add(num, r.Num), Den: new(big.Int).Set(r.Den)}
}

// Reduce returns r in lowest terms.
func (r Rational) Reduce() Rational {
	if r.Num.Sign() == 0 {
		return Zero()
	}
	g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(r.Num), r.Den)
	if g.Cmp(big.NewInt(1)) == 0 {
		return Rational{Num: new(big.Int).Set(r.Num), Den: new(big.Int).Set(r.Den)}
	}
	return Rational{Num: new(big.Int).Quo(r.Num, g), Den: new(big.Int).Quo(r.Den, g)}
}

// IsReduced reports whether Num and Den are coprime.
func (r Rational) IsReduced() bool {
	// GCD(0, d) is d, so zero is reduced only as 0/1.
	g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(r.Num), r.Den)
	return g.Cmp(big.NewInt(1)) == 0
}

// Cmp compares r and o and returns -1, 0 or +1.
func (r Rational) Cmp(o Rational) int {
	a := new(big.Int).Mul(r.Num, o.Den)
	b := new(big.Int).Mul(o.Num, r.Den)
	return a.Cmp(b)
}

// Sign returns -1, 0 or +1.
func (r Rational) Sign() int { return r.Num.Sign() }

// IntPart returns the integer part of r, truncated toward zero.
func (r Rational) IntPart() *big.Int {
	return new(big.Int).Quo(r.Num, r.Den)
}

// Rat converts r to a [big.Rat].
func (r Rational) Rat() *big.Rat {
	return new(big.Rat).SetFrac(r.Num, r.Den)
}

// Float64 returns the nearest float64 value.
func (r Rational) Float64() float64 {
	f, _ := r.Rat().Float64()
	return f
}

// String renders r as "num/den".
func (r Rational) String() string {
	if !r.valid() {
		return "<nil>"
	}
	return r.Num.String() + "/" + r.Den.String()
}
