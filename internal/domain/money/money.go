// Package money represents currency amounts as integer minor units (cents).
//
// All arithmetic stays in int64; shopspring/decimal is only used at the edges
// to convert from and to storage (NUMERIC columns) and display strings.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const centsPerUnit = 100

var hundred = decimal.NewFromInt(centsPerUnit)

// Money is an amount of the single shop currency in cents.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

// FromCents returns the amount for the given number of cents.
func FromCents(cents int64) Money {
	return Money(cents)
}

// FromUnits returns the amount for a whole number of currency units.
func FromUnits(units int64) Money {
	return Money(units * centsPerUnit)
}

// FromDecimal converts a decimal amount to cents, rounding half up.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(hundred).Round(0).IntPart())
}

// Parse parses a decimal string such as "25.50".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, errors.Wrapf(err, "parse amount %q", s)
	}
	return FromDecimal(d), nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 {
	return int64(m)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return m + o
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return m - o
}

// Mul multiplies the amount by an integer quantity.
func (m Money) Mul(qty int) Money {
	return m * Money(qty)
}

// ApplyRate returns the share of m given by rate, rounded half up to the
// nearest cent. Negative amounts round half away from zero so that
// ApplyRate(-x) == -ApplyRate(x).
func (m Money) ApplyRate(rate Rate) Money {
	product := int64(m) * int64(rate)
	if product < 0 {
		return -Money((-product + basisPointsHalf) / basisPoints)
	}
	return Money((product + basisPointsHalf) / basisPoints)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m == 0
}

// GreaterThan reports whether m > o.
func (m Money) GreaterThan(o Money) bool {
	return m > o
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount with exactly two decimal places.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return errors.Wrap(err, "decode amount")
	}
	*m = FromDecimal(d)
	return nil
}
