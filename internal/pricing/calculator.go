package pricing

import (
	"errors"
	"math/big"

	"github.com/meterline/meterline/internal/credits"
)

// ErrInvalidTokenCount is returned for negative token counts.
var ErrInvalidTokenCount = errors.New("pricing: token count must not be negative")

// multiplierScale is 10^credits.Decimals, the fixed-point scale multipliers
// are parsed into.
var multiplierScale = big.NewInt(10000)

var oneThousand = big.NewInt(1000)

// Calculate returns the credit cost of an action as a decimal string:
//
//	credits = (tokenCount / 1000) * costPerThousandTokens
//	        * actionMultipliers[actionKind] * personaMultipliers[persona]
//
// Missing multiplier entries default to 1.0 rather than erroring, and the
// result is rounded half-up to 4 decimal places. Pure function, safe for
// concurrent use.
func Calculate(rules *Rules, actionKind string, tokenCount int64, persona string) (string, error) {
	if rules == nil {
		return "", ErrRulesNotFound
	}
	if tokenCount < 0 {
		return "", ErrInvalidTokenCount
	}

	base, ok := credits.Parse(rules.CostPerThousandTokens)
	if !ok {
		return "", ErrInvalidRules
	}
	actionMult := lookupMultiplier(rules.ActionMultipliers, actionKind)
	personaMult := lookupMultiplier(rules.PersonaMultipliers, persona)

	// All factors are integers scaled by 10^4; multiply through and divide
	// out the extra scales plus the per-1000-token divisor in one rounded
	// division so no intermediate precision is lost.
	num := new(big.Int).SetInt64(tokenCount)
	num.Mul(num, base)
	num.Mul(num, actionMult)
	num.Mul(num, personaMult)

	den := new(big.Int).Mul(oneThousand, multiplierScale)
	den.Mul(den, multiplierScale)

	return credits.Format(credits.DivRoundHalfUp(num, den)), nil
}

// lookupMultiplier returns the fixed-point multiplier for key, defaulting to
// 1.0 for absent, empty, or unparseable entries. Leniency here is deliberate:
// an unknown action kind bills at the base rate instead of failing.
func lookupMultiplier(table map[string]string, key string) *big.Int {
	if key == "" || table == nil {
		return multiplierScale
	}
	raw, ok := table[key]
	if !ok {
		return multiplierScale
	}
	v, ok := credits.Parse(raw)
	if !ok || v.Sign() <= 0 {
		return multiplierScale
	}
	return v
}
