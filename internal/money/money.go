// Package money parses and formats ledger amounts. Amounts are fixed-point
// decimals with two fractional digits; binary floating point never reaches the
// account store.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an amount may carry.
const Scale = 2

var (
	// Max bounds any single amount or balance.
	Max = decimal.New(1, 12)

	ErrInvalid     = errors.New("amount is not a valid number")
	ErrPrecision   = fmt.Errorf("amount has more than %d fractional digits", Scale)
	ErrRange       = errors.New("amount is out of range")
	ErrNotPositive = errors.New("amount must be positive")
)

// Parse converts a wire value (string, integer or float) into a decimal.
// NaN, infinities, excess precision and magnitudes above Max are rejected.
func Parse(v any) (decimal.Decimal, error) {
	var d decimal.Decimal

	switch value := v.(type) {
	case decimal.Decimal:
		d = value
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return decimal.Zero, ErrInvalid
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, ErrInvalid
		}
		d = parsed
	case int64:
		d = decimal.NewFromInt(value)
	case int:
		d = decimal.NewFromInt(int64(value))
	case uint64:
		if value > math.MaxInt64 {
			return decimal.Zero, ErrRange
		}
		d = decimal.NewFromInt(int64(value))
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return decimal.Zero, ErrInvalid
		}
		d = decimal.NewFromFloat(value)
	case float32:
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, ErrInvalid
		}
		d = decimal.NewFromFloat32(value)
	default:
		return decimal.Zero, ErrInvalid
	}

	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, ErrPrecision
	}
	if d.Abs().GreaterThan(Max) {
		return decimal.Zero, ErrRange
	}
	return d, nil
}

// ParsePositive is Parse plus a strictly-positive check, the rule every
// transfer amount must satisfy.
func ParsePositive(v any) (decimal.Decimal, error) {
	d, err := Parse(v)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}
	return d, nil
}

// Format renders d with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
