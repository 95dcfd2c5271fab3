// Package core holds the domain types of the ledger: amounts in fixed-point
// minor units, accounts, transactions and the summary bucket shapes.
//
// This file contains the amount codec. All ledger arithmetic happens on
// Amount (an int64 counting hundredths of the smallest display unit);
// floating point exists only at the UI boundary.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a currency value in minor units (1/100 of the display unit).
type Amount int64

// ToMinor converts a decimal currency value to minor units, rounding
// half away from zero. Only for UI-boundary input; never use the result
// of float arithmetic as a ledger amount.
func ToMinor(v float64) Amount {
	// Same codec as ParseAmount. NewFromFloat recovers the shortest decimal
	// representation, so 1.005 becomes the decimal 1.005 and not the binary
	// float just below it.
	return Amount(decimal.NewFromFloat(v).Shift(2).Round(0).IntPart())
}

// ToDecimal converts minor units back to a decimal value for display.
func ToDecimal(a Amount) float64 {
	return float64(a) / 100.0
}

// ParseAmount converts a decimal string to minor units. It accepts both dot
// (12.34) and comma (12,34) decimal separators and rounds the third decimal
// place half away from zero. Signs are allowed; transaction-level validation
// decides whether a negative amount is acceptable.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234, nil
//	ParseAmount("12,345") -> 1235, nil
//	ParseAmount("-0.005") -> -1, nil
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(2).Round(0)
	if !minor.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	return Amount(minor.IntPart()), nil
}

// Format renders an amount with exactly two fraction digits using the
// grouping and decimal conventions of the given locale. Locale "id" groups
// with dots and separates decimals with a comma; anything else uses the
// English convention.
func Format(a Amount, locale string) string {
	group, dec := ",", "."
	if locale == "id" {
		group, dec = ".", ","
	}

	neg := a < 0
	if neg {
		a = -a
	}
	units := int64(a) / 100
	frac := int64(a) % 100

	digits := strconv.FormatInt(units, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
		if len(digits) > lead {
			b.WriteString(group)
		}
	}
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			b.WriteString(group)
		}
	}
	b.WriteString(dec)
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

// Validate checks that the amount is usable as a transaction amount.
func (a Amount) Validate() error {
	if a <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
