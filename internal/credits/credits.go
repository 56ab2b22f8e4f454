// Package credits provides shared parsing and formatting for credit amounts.
//
// Credits use 4 decimal places. All amounts are stored as big.Int in the
// smallest unit (1 credit = 10,000 units), so the billing path never touches
// floating point.
package credits

import (
	"math/big"
	"strings"
)

const Decimals = 4

// Parse converts a non-negative decimal string (e.g. "1.5") to its
// smallest-unit big.Int representation (15000). Returns (nil, false) on
// invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 4 decimal places
func Parse(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "-") {
		return nil, false
	}
	return ParseSigned(s)
}

// ParseSigned is Parse without the non-negative restriction. Ledger entries
// carry signed amounts (negative debits, positive credits).
func ParseSigned(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 || parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return nil, false
	}
	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim to 4 decimals
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, false
	}
	if neg {
		result.Neg(result)
	}
	return result, true
}

// Format converts a smallest-unit big.Int to a decimal string with exactly
// 4 decimal places (e.g. "1.5000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.0000"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	point := len(s) - Decimals
	out := s[:point] + "." + s[point:]
	if neg {
		out = "-" + out
	}
	return out
}

// DivRoundHalfUp divides num by den and rounds half-up to the nearest unit.
// den must be positive; num may be any sign. Rounding is away from zero on
// exact halves, matching how per-token costs are quoted to customers.
func DivRoundHalfUp(num, den *big.Int) *big.Int {
	if den.Sign() <= 0 {
		return big.NewInt(0)
	}
	neg := num.Sign() < 0
	absNum := new(big.Int).Abs(num)

	q, r := new(big.Int).QuoRem(absNum, den, new(big.Int))
	// 2*r >= den -> round up
	if new(big.Int).Lsh(r, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if neg {
		q.Neg(q)
	}
	return q
}

// IsPositive reports whether s parses as a strictly positive credit amount.
func IsPositive(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}
