package discount

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidateEligibility decides whether a single discount may apply to the
// given subtotal and category set. Checks short-circuit on the first
// failure, each yielding a distinct human-readable reason. Subtotal is the
// cart total or the item total depending on the discount's scope.
func ValidateEligibility(d *Discount, subtotal decimal.Decimal, categories []string, now time.Time) ValidationResult {
	switch d.Status {
	case StatusActive:
	case StatusUpcoming:
		return invalid("discount is not active yet")
	case StatusExpired:
		return invalid("discount has expired")
	case StatusDisabled:
		return invalid("discount is disabled")
	default:
		return invalid(fmt.Sprintf("discount has unknown status %q", d.Status))
	}

	// Double-check the date window in case the stored status is stale.
	if d.EndDate != nil && now.After(*d.EndDate) {
		return invalid("discount has expired")
	}
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return invalid("discount is not active yet")
	}

	if subtotal.LessThan(d.MinimumPurchase) {
		return invalid(fmt.Sprintf("minimum purchase of %s not met", d.MinimumPurchase))
	}

	if len(d.Categories) > 0 && !categoriesMatch(d.Categories, categories) {
		return invalid("discount does not apply to any item category")
	}

	if d.RemainingUses != UnlimitedUses && d.RemainingUses <= 0 {
		return invalid("discount has no remaining uses")
	}

	return ValidationResult{Valid: true}
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}

// categoriesMatch reports whether any cart category case-insensitively
// matches an applicable category.
func categoriesMatch(applicable, present []string) bool {
	for _, a := range applicable {
		for _, p := range present {
			if strings.EqualFold(a, p) {
				return true
			}
		}
	}
	return false
}
