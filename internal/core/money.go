// Package core holds the ledger's data model and the pure functions over it:
// amount parsing, currency formatting and the balance aggregations.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	rupee    = "₹"
	zeroText = rupee + "0"

	// maxIntegerDigits keeps amounts inside what a float64 holds exactly.
	maxIntegerDigits = 15
	// maxScale bounds how far below the cent exponent notation may reach.
	maxScale = 20
)

// ParseAmount converts user input into a non-negative amount rounded half-up
// to two decimals. Empty, non-numeric, NaN and negative input is rejected, as
// is anything with more than 15 integer digits.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	// Bound the shape before Round, which rescales the coefficient.
	if d.Exponent() < -maxScale || d.NumDigits()+int(d.Exponent()) > maxIntegerDigits {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// Format renders any numeric value as an Indian rupee amount with
// South-Asian digit grouping and exactly two decimals. Anything that is not a
// number, including NaN and infinities, renders as "₹0".
//
//	Format(1234567.5) -> "₹12,34,567.50"
//	Format("abc")     -> "₹0"
func Format(v any) string {
	switch n := v.(type) {
	case decimal.Decimal:
		return FormatDecimal(n)
	case *decimal.Decimal:
		if n == nil {
			return zeroText
		}
		return FormatDecimal(*n)
	case float64:
		return formatFloat(n)
	case float32:
		return formatFloat(float64(n))
	case int:
		return FormatDecimal(decimal.NewFromInt(int64(n)))
	case int8:
		return FormatDecimal(decimal.NewFromInt(int64(n)))
	case int16:
		return FormatDecimal(decimal.NewFromInt(int64(n)))
	case int32:
		return FormatDecimal(decimal.NewFromInt(int64(n)))
	case int64:
		return FormatDecimal(decimal.NewFromInt(n))
	case uint:
		return FormatDecimal(decimal.NewFromUint64(uint64(n)))
	case uint8:
		return FormatDecimal(decimal.NewFromUint64(uint64(n)))
	case uint16:
		return FormatDecimal(decimal.NewFromUint64(uint64(n)))
	case uint32:
		return FormatDecimal(decimal.NewFromUint64(uint64(n)))
	case uint64:
		return FormatDecimal(decimal.NewFromUint64(n))
	default:
		return zeroText
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return zeroText
	}
	return FormatDecimal(decimal.NewFromFloat(f))
}

// FormatDecimal is the typed form of Format.
func FormatDecimal(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	// -0.001 rounds to "-0.00"
	if fixed == "0.00" {
		sign = ""
	}
	intPart, frac, _ := strings.Cut(fixed, ".")
	return rupee + sign + groupIndian(intPart) + "." + frac
}

// groupIndian inserts separators after the last three digits and then every
// two digits: 1234567 -> 12,34,567.
func groupIndian(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	head := n - 3
	var b strings.Builder
	b.Grow(n + n/2)
	// the leading group is one digit when head is odd
	first := 2 - head%2
	b.WriteString(digits[:first])
	for i := first; i < head; i += 2 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(digits[head:])
	return b.String()
}
