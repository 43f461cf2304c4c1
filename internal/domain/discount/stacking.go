package discount

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AppliedDiscount is one accepted (possibly clamped) stacking entry.
type AppliedDiscount struct {
	Discount *Discount
	// Amount is the monetary contribution after any cap clamping.
	Amount decimal.Decimal
	// Percent is the percentage-equivalent of Amount against the base.
	Percent decimal.Decimal
}

// StackingResult is the outcome of resolving a set of competing discounts
// against a single base amount.
type StackingResult struct {
	TotalDiscount decimal.Decimal
	FinalAmount   decimal.Decimal
	Applied       []AppliedDiscount
}

// ResolveStacking decides application order and cumulative limits for a set
// of discounts that have already individually passed eligibility validation
// for the same base amount.
//
// Fixed-amount kinds are applied before percentage kinds, stable within
// each group, so presentation order of the input does not matter but kind
// does: fixed amounts get first claim on the cap. The effective cumulative
// cap is overrideCap when supplied, else the minimum of the candidates'
// MaxStackPercent values (absent values count as 100). A candidate that
// would push the running percentage-equivalent past the cap is clamped to
// exactly reach it rather than rejected. Non-stackable discounts are
// skipped once anything has been accepted, and once a non-stackable
// discount is accepted nothing further is.
func ResolveStacking(candidates []*Discount, base decimal.Decimal, overrideCap *decimal.Decimal) (*StackingResult, error) {
	if base.IsNegative() {
		return nil, ErrNegativeBase
	}

	result := &StackingResult{
		TotalDiscount: decimal.Zero,
		FinalAmount:   base,
	}
	if len(candidates) == 0 || base.IsZero() {
		return result, nil
	}

	sorted := make([]*Discount, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return stackRank(sorted[i].Kind) < stackRank(sorted[j].Kind)
	})

	limit := effectiveCap(sorted, overrideCap)

	totalPercent := decimal.Zero
	totalAmount := decimal.Zero

	for _, d := range sorted {
		if !d.Stackable && len(result.Applied) > 0 {
			continue
		}
		if totalPercent.GreaterThanOrEqual(limit) {
			break
		}

		amount, err := CalculateAmount(d, base)
		if err != nil {
			// Malformed kinds contribute zero instead of failing the set.
			continue
		}
		if amount.IsZero() {
			continue
		}

		percent := d.Percentage
		if d.Kind != KindPercentage {
			percent = amount.Div(base).Mul(hundred)
		}

		if remaining := limit.Sub(totalPercent); percent.GreaterThan(remaining) {
			percent = remaining
			amount = base.Mul(percent).Div(hundred)
		}

		result.Applied = append(result.Applied, AppliedDiscount{
			Discount: d,
			Amount:   amount,
			Percent:  percent,
		})
		totalPercent = totalPercent.Add(percent)
		totalAmount = totalAmount.Add(amount)

		if !d.Stackable {
			break
		}
	}

	result.TotalDiscount = totalAmount
	result.FinalAmount = decimal.Max(decimal.Zero, base.Sub(totalAmount))
	return result, nil
}

// stackRank orders fixed-amount kinds ahead of percentage kinds.
func stackRank(k Kind) int {
	switch k {
	case KindFixedAmount, KindFixedWithCode:
		return 0
	default:
		return 1
	}
}

// effectiveCap returns the override cap when supplied, else the minimum of
// the candidates' individual stacking caps.
func effectiveCap(candidates []*Discount, overrideCap *decimal.Decimal) decimal.Decimal {
	if overrideCap != nil {
		return *overrideCap
	}
	limit := hundred
	for _, d := range candidates {
		if d.MaxStackPercent != nil && d.MaxStackPercent.LessThan(limit) {
			limit = *d.MaxStackPercent
		}
	}
	return limit
}
