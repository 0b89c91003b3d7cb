// Package money provides fixed-point monetary arithmetic in integer minor
// units (cents). Amounts are never represented as binary floating point;
// scaled multiplication and division go through shopspring/decimal with
// explicit rounding, so fractional cents cannot leak into stored values.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a signed amount in minor currency units (cents).
type Money int64

var hundred = decimal.NewFromInt(100)

// FromCents wraps a raw cent count.
func FromCents(c int64) Money {
	return Money(c)
}

// Cents returns the raw cent count.
func (m Money) Cents() int64 {
	return int64(m)
}

// Parse converts a decimal string in major units (e.g. "10.01") to Money.
// Sub-cent input is rounded half away from zero to 2 places.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// FromDecimal converts a major-unit decimal to Money, rounding half away
// from zero to 2 places.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

// Decimal returns the amount in major units as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Shift(-2)
}

// String formats the amount in major units, e.g. "12.34" or "-0.05".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return -m
}

// ShareCeil returns ceil(m * sh / total) in cents. total must be positive.
func (m Money) ShareCeil(sh, total int64) Money {
	d := decimal.NewFromInt(int64(m)).
		Mul(decimal.NewFromInt(sh)).
		Div(decimal.NewFromInt(total))
	return Money(d.Ceil().IntPart())
}

// PercentCeil returns ceil(m * pct / 100) in cents.
func (m Money) PercentCeil(pct decimal.Decimal) Money {
	d := decimal.NewFromInt(int64(m)).Mul(pct).Div(hundred)
	return Money(d.Ceil().IntPart())
}

// Sum adds up a set of amounts.
func Sum(amounts map[string]Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}
