// Package numeric fixes the decimal arithmetic rules shared by the whole
// matching core: prices and quantities carry at most 8 fractional digits,
// subtraction truncates toward zero at that scale, and equality is always
// by numeric value so trailing zeros never change an outcome.
package numeric

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every price and
// quantity in the system.
const Scale = 8

// Normalize truncates d toward zero at the system scale.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

// Sub returns a-b truncated toward zero at the system scale. The result
// may be negative; callers use the sign to classify a fill.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Truncate(Scale)
}

// Parse reads a decimal string and normalizes it to the system scale.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d.Truncate(Scale), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Equal compares by numeric value, not representation.
func Equal(a, b decimal.Decimal) bool {
	return a.Cmp(b) == 0
}
