// Package bbp extracts hexadecimal digits of π with the Bailey–Borwein–Plouffe
// formula. The n-th digit is computed directly, without computing the digits
// before it, so digits can be produced in any order from any goroutine.
//
//	d := bbp.HexDigit(0) // 0x2
//	b := bbp.HexByte(0)  // 0x24
package bbp

import (
	"math"
	"math/bits"
)

const (
	// DefaultEpsilon is the magnitude below which a tail term is dropped.
	DefaultEpsilon = 1e-17

	// DefaultMaxTailTerms caps the number of tail terms summed for k >= n.
	DefaultMaxTailTerms = 100
)

// Extractor computes hexadecimal digits of π's fractional part.
//
// The zero value is not usable; use [Default] or [New]. An Extractor holds
// no mutable state and is safe for concurrent use.
type Extractor struct {
	epsilon  float64
	maxTerms int
}

// Default is the extractor used by the package-level functions.
var Default = New(DefaultEpsilon, DefaultMaxTailTerms)

// New returns an extractor with the given tail cutoff and tail term cap.
// New panics if epsilon is not positive or maxTailTerms < 1.
func New(epsilon float64, maxTailTerms int) Extractor {
	if !(epsilon > 0) {
		panic("bbp: New requires epsilon > 0")
	}
	if maxTailTerms < 1 {
		panic("bbp: New requires maxTailTerms >= 1")
	}
	return Extractor{epsilon: epsilon, maxTerms: maxTailTerms}
}

// Epsilon returns the tail cutoff.
func (e Extractor) Epsilon() float64 { return e.epsilon }

// MaxTailTerms returns the tail term cap.
func (e Extractor) MaxTailTerms() int { return e.maxTerms }

// HexDigit returns the hexadecimal digit of π at zero-based position n after
// the point, in [0, 16).
func (e Extractor) HexDigit(n uint64) byte {
	x := 4*e.series(1, n) - 2*e.series(4, n) - e.series(5, n) - e.series(6, n)
	x -= math.Floor(x)
	d := int(x * 16)
	// x*16 can round up to exactly 16 when x is within an ulp of 1.
	if d > 15 {
		d = 15
	}
	return byte(d)
}

// HexByte packs the digits at positions 2n (high nibble) and 2n+1 (low nibble).
func (e Extractor) HexByte(n uint64) byte {
	return e.HexDigit(2*n)<<4 | e.HexDigit(2*n+1)
}

// Fill writes HexByte(base+i) into buf[i] for every i.
func (e Extractor) Fill(buf []byte, base uint64) {
	for i := range buf {
		buf[i] = e.HexByte(base + uint64(i))
	}
}

// series returns the fractional part of sum_k 16^(n-k) / (8k+m).
func (e Extractor) series(m, n uint64) float64 {
	var s float64
	for k := uint64(0); k < n; k++ {
		d := 8*k + m
		s += float64(powMod(16, n-k, d)) / float64(d)
		s -= math.Floor(s)
	}

	p := 1.0 // 16^(n-k) for k = n
	for k, i := n, 0; i < e.maxTerms; k, i = k+1, i+1 {
		t := p / float64(8*k+m)
		if t < e.epsilon {
			break
		}
		s += t
		s -= math.Floor(s)
		p /= 16
	}
	return s
}

// powMod returns b^exp mod m by binary exponentiation. Products are taken in
// 128 bits so any 64-bit modulus is safe.
func powMod(b, exp, m uint64) uint64 {
	if m == 1 {
		return 0
	}
	result := uint64(1)
	b %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, b, m)
		}
		b = mulMod(b, b, m)
		exp >>= 1
	}
	return result
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

// HexDigit returns [Extractor.HexDigit] of the default extractor.
func HexDigit(n uint64) byte { return Default.HexDigit(n) }

// HexByte returns [Extractor.HexByte] of the default extractor.
func HexByte(n uint64) byte { return Default.HexByte(n) }
