package pidigits

import (
	"iter"
	"math"
	"math/big"
	"strings"
)

var ten = big.NewInt(10)

// Emitter produces the decimal expansion of a [Rational] one character at a
// time: an optional '-', the integer part, then '.' and the requested
// number of fractional digits. The separator and fraction are omitted when
// the fractional part is zero or no fractional digits were requested.
//
// Fractional digits come from an exact spigot on the remainder:
// rem *= 10; digit = floor(rem); rem -= digit. No floating point is
// involved, so every emitted digit is exact for the given value.
//
// An Emitter is not safe for concurrent use.
type Emitter struct {
	intDigits string
	pos       int
	sepDone   bool

	rem       *big.Int // fractional remainder numerator, 0 <= rem < den
	den       *big.Int
	remaining int
	emitted   int
	q         big.Int
}

// NewEmitter returns an emitter for v producing digits fractional digits.
// NewEmitter panics if digits is negative.
func NewEmitter(v Rational, digits int) *Emitter {
	if digits < 0 {
		panic("pidigits: NewEmitter requires digits >= 0")
	}
	v = v.Reduce()
	ip, rem := new(big.Int).QuoRem(v.Num, v.Den, new(big.Int))

	var sb strings.Builder
	if v.Num.Sign() < 0 {
		sb.WriteByte('-')
		ip.Neg(ip)
		rem.Neg(rem)
	}
	sb.WriteString(ip.String())

	return &Emitter{
		intDigits: sb.String(),
		rem:       rem,
		den:       new(big.Int).Set(v.Den),
		remaining: digits,
	}
}

// Next returns the next character of the expansion. The boolean is false
// once the requested digits have all been produced.
func (e *Emitter) Next() (byte, bool) {
	if e.pos < len(e.intDigits) {
		c := e.intDigits[e.pos]
		e.pos++
		return c, true
	}
	if e.remaining == 0 || !e.sepDone && e.rem.Sign() == 0 {
		return 0, false
	}
	if !e.sepDone {
		e.sepDone = true
		return '.', true
	}

	e.rem.Mul(e.rem, ten)
	e.q.QuoRem(e.rem, e.den, e.rem)
	e.remaining--
	e.emitted++
	return byte('0' + e.q.Int64()), true
}

// All returns an iterator over the characters not yet produced.
func (e *Emitter) All() iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for {
			c, ok := e.Next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}

// Extend allows n more fractional digits to be produced. The spigot
// continues from the current remainder, so nothing is recomputed.
func (e *Emitter) Extend(n int) {
	if n < 0 {
		panic("pidigits: Extend requires n >= 0")
	}
	e.remaining += n
}

// Emitted returns the number of fractional digits produced so far.
func (e *Emitter) Emitted() int { return e.emitted }

// Remainder returns the fractional part not yet expanded, scaled so that
// its first decimal digit is the next digit this emitter would produce.
// A new emitter built from it continues the expansion: its integer part is
// "0" and its fractional digits match this emitter's future digits.
func (e *Emitter) Remainder() Rational {
	return Rational{Num: new(big.Int).Set(e.rem), Den: new(big.Int).Set(e.den)}
}

// Digits returns a restartable sequence of the decimal expansion of v with
// the given number of fractional digits. Each iteration starts from v.
func Digits(v Rational, digits int) iter.Seq[byte] {
	if digits < 0 {
		panic("pidigits: Digits requires digits >= 0")
	}
	return func(yield func(byte) bool) {
		NewEmitter(v, digits).All()(yield)
	}
}

// DecimalString renders v with the given number of fractional digits.
func DecimalString(v Rational, digits int) string {
	var sb strings.Builder
	sb.Grow(digits + 8)
	for c := range Digits(v, digits) {
		sb.WriteByte(c)
	}
	return sb.String()
}

// ReliableDigits returns how many decimal digits after the point are
// guaranteed correct when π is truncated after n hexadecimal bytes. The
// truncation error is below 16^(-2n), which fixes floor(2n*log10(16))
// digits; one is held back for a possible carry.
func ReliableDigits(n uint64) int {
	if n == 0 {
		return 0
	}
	d := int(math.Floor(float64(2*n)*math.Log10(16))) - 1
	return max(d, 0)
}
