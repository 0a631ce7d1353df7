// Package amount holds the fixed-point money helpers shared by the loan engine.
// Domain values are shopspring decimals carried at two places and rounded
// half-up; storage backends that keep integer minor units go through the
// currency-aware codec below.
package amount

import (
	"fmt"
	"strings"

	"github.com/govalues/money"
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for money values.
const Places int32 = 2

// Zero is the zero money value.
var Zero = decimal.Zero

// Round rounds d to Places using round-half-up (ties move away from zero).
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(Places) }

// Parse reads a decimal string and rounds it to money precision.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Round(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders d with exactly Places digits.
func String(d decimal.Decimal) string { return d.StringFixed(Places) }

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := money.ParseCurr(strings.ToUpper(strings.TrimSpace(code)))
	return err == nil
}

// ToMinor converts d into integer minor units of curr.
func ToMinor(curr string, d decimal.Decimal) (int64, error) {
	a, err := money.ParseAmount(strings.ToUpper(curr), String(d))
	if err != nil {
		return 0, fmt.Errorf("amount %s %s: %w", curr, String(d), err)
	}
	units, ok := a.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("amount %s %s overflows minor units", curr, String(d))
	}
	return units, nil
}

// FromMinor converts integer minor units of curr back into a decimal.
func FromMinor(curr string, units int64) (decimal.Decimal, error) {
	a, err := money.NewAmountFromMinorUnits(strings.ToUpper(curr), units)
	if err != nil {
		return decimal.Zero, fmt.Errorf("minor units %s %d: %w", curr, units, err)
	}
	return decimal.NewFromString(a.Decimal().String())
}
