package money

import "github.com/shopspring/decimal"

const (
	basisPoints     = 10_000
	basisPointsHalf = basisPoints / 2
)

// Rate is a proportion expressed in basis points (1/100 of a percent).
type Rate int64

// Percent returns a rate of n percent.
func Percent(n int64) Rate {
	return Rate(n * 100)
}

// Decimal returns the rate as a fraction, e.g. 0.21 for 21%.
func (r Rate) Decimal() decimal.Decimal {
	return decimal.New(int64(r), -4)
}

// String formats the rate as a percentage, e.g. "21%".
func (r Rate) String() string {
	return decimal.New(int64(r), -2).String() + "%"
}
