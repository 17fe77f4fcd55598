// Package ratio implements exact reduced fractions for conversion rates.
package ratio

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a product does not fit in an int64.
var ErrOverflow = errors.New("ratio overflow")

// Ratio is a positive fraction Num/Den in lowest terms: output units produced
// per Den input units consumed.
type Ratio struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// One is the identity for Mul.
var One = Ratio{Num: 1, Den: 1}

// New returns num/den reduced to lowest terms. Both values must be positive.
func New(num, den int64) (Ratio, error) {
	if num <= 0 || den <= 0 {
		return Ratio{}, fmt.Errorf("ratio %d/%d: terms must be positive", num, den)
	}
	g := GCD(num, den)
	return Ratio{Num: num / g, Den: den / g}, nil
}

// GCD is the greatest common divisor of two non-negative integers.
func GCD(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// mul multiplies two positive int64 values.
func mul(a, b int64) (int64, bool) {
	if a > 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// Mul returns r*o in lowest terms. Cross terms are reduced before multiplying
// so that long chains stay small.
func (r Ratio) Mul(o Ratio) (Ratio, error) {
	g1 := GCD(r.Num, o.Den)
	g2 := GCD(o.Num, r.Den)
	num, ok1 := mul(r.Num/g1, o.Num/g2)
	den, ok2 := mul(r.Den/g2, o.Den/g1)
	if !ok1 || !ok2 {
		return Ratio{}, fmt.Errorf("%w: %s * %s", ErrOverflow, r, o)
	}
	return Ratio{Num: num, Den: den}, nil
}

// Inverse returns Den/Num.
func (r Ratio) Inverse() Ratio { return Ratio{Num: r.Den, Den: r.Num} }

func (r Ratio) IsZero() bool { return r.Num == 0 || r.Den == 0 }

// Compose multiplies ratios in order.
func Compose(rs ...Ratio) (Ratio, error) {
	out := One
	for _, r := range rs {
		var err error
		if out, err = out.Mul(r); err != nil {
			return Ratio{}, err
		}
	}
	return out, nil
}

// Units returns the largest multiple of Den that does not exceed n, or 0.
func (r Ratio) Units(n int64) int64 {
	if n <= 0 || r.Den <= 0 {
		return 0
	}
	return n - n%r.Den
}

// Produce returns the output quantity for units input units. units must be a
// multiple of Den.
func (r Ratio) Produce(units int64) int64 {
	return units / r.Den * r.Num
}

// ProduceWithin is Produce bounded by limit. It reports false when the output
// would exceed limit, without overflowing.
func (r Ratio) ProduceWithin(units, limit int64) (int64, bool) {
	if r.Den <= 0 || r.Num <= 0 {
		return 0, false
	}
	times := units / r.Den
	if times > limit/r.Num {
		return 0, false
	}
	return times * r.Num, true
}

func (r Ratio) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }
