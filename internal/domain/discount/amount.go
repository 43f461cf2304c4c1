package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateAmount computes the monetary value of one discount against the
// given base amount. The result is never negative and never exceeds the
// base. Intermediate arithmetic keeps full precision; rounding to the
// currency's minor unit happens only when producing user-facing output.
// A negative base is a caller bug and is rejected with ErrNegativeBase.
func CalculateAmount(d *Discount, base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Zero, ErrNegativeBase
	}

	var amount decimal.Decimal
	switch d.Kind {
	case KindFixedAmount:
		amount = decimal.Min(d.Amount, base)
	case KindPercentage:
		amount = base.Mul(d.Percentage).Div(hundred)
	case KindFixedWithCode:
		// Fixed and percentage components are additive.
		amount = d.Amount.Add(base.Mul(d.Percentage).Div(hundred))
	case KindTiered:
		amount = base.Mul(tierPercentage(d.TierRules, base)).Div(hundred)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount kind: %q", d.Kind)
	}

	return clampToBase(amount, base), nil
}

// tierPercentage selects the percentage of the tier rule with the largest
// threshold not exceeding the base. When no rule qualifies the discount
// contributes zero.
func tierPercentage(rules []TierRule, base decimal.Decimal) decimal.Decimal {
	selected := decimal.Zero
	bestThreshold := decimal.Decimal{}
	found := false
	for _, r := range rules {
		if r.Threshold.GreaterThan(base) {
			continue
		}
		if !found || r.Threshold.GreaterThanOrEqual(bestThreshold) {
			bestThreshold = r.Threshold
			selected = r.Percentage
			found = true
		}
	}
	return selected
}

// clampToBase bounds amount to the interval [0, base].
func clampToBase(amount, base decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, base)
}
