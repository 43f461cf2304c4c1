package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestValidateEligibility(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name       string
		d          *Discount
		subtotal   decimal.Decimal
		categories []string
		wantValid  bool
		wantReason string
	}{
		{
			name:      "active discount with no constraints",
			d:         &Discount{Status: StatusActive, RemainingUses: UnlimitedUses},
			subtotal:  d("100"),
			wantValid: true,
		},
		{
			name:       "upcoming discount is not yet usable",
			d:          &Discount{Status: StatusUpcoming, RemainingUses: UnlimitedUses},
			subtotal:   d("100"),
			wantReason: "discount is not active yet",
		},
		{
			name:       "expired status fails",
			d:          &Discount{Status: StatusExpired, RemainingUses: UnlimitedUses},
			subtotal:   d("100"),
			wantReason: "discount has expired",
		},
		{
			name:       "disabled status fails",
			d:          &Discount{Status: StatusDisabled, RemainingUses: UnlimitedUses},
			subtotal:   d("100"),
			wantReason: "discount is disabled",
		},
		{
			name: "stale active status caught by end date double-check",
			d: &Discount{
				Status:        StatusActive,
				EndDate:       &past,
				RemainingUses: UnlimitedUses,
			},
			subtotal:   d("100"),
			wantReason: "discount has expired",
		},
		{
			name: "stale active status caught by start date double-check",
			d: &Discount{
				Status:        StatusActive,
				StartDate:     &future,
				RemainingUses: UnlimitedUses,
			},
			subtotal:   d("100"),
			wantReason: "discount is not active yet",
		},
		{
			name: "subtotal below minimum purchase fails",
			d: &Discount{
				Status:          StatusActive,
				MinimumPurchase: d("250"),
				RemainingUses:   UnlimitedUses,
			},
			subtotal:   d("200"),
			wantReason: "minimum purchase of 250 not met",
		},
		{
			name: "subtotal equal to minimum purchase passes",
			d: &Discount{
				Status:          StatusActive,
				MinimumPurchase: d("250"),
				RemainingUses:   UnlimitedUses,
			},
			subtotal:  d("250"),
			wantValid: true,
		},
		{
			name: "category match is case-insensitive",
			d: &Discount{
				Status:        StatusActive,
				Categories:    []string{"Beverages"},
				RemainingUses: UnlimitedUses,
			},
			subtotal:   d("50"),
			categories: []string{"beverages", "snacks"},
			wantValid:  true,
		},
		{
			name: "no category overlap fails",
			d: &Discount{
				Status:        StatusActive,
				Categories:    []string{"electronics"},
				RemainingUses: UnlimitedUses,
			},
			subtotal:   d("50"),
			categories: []string{"beverages"},
			wantReason: "discount does not apply to any item category",
		},
		{
			name: "empty applicable categories applies to all",
			d: &Discount{
				Status:        StatusActive,
				RemainingUses: UnlimitedUses,
			},
			subtotal:   d("50"),
			categories: []string{"anything"},
			wantValid:  true,
		},
		{
			name: "exhausted uses fail",
			d: &Discount{
				Status:        StatusActive,
				RemainingUses: 0,
			},
			subtotal:   d("50"),
			wantReason: "discount has no remaining uses",
		},
		{
			name: "positive remaining uses pass",
			d: &Discount{
				Status:        StatusActive,
				RemainingUses: 3,
			},
			subtotal:  d("50"),
			wantValid: true,
		},
		{
			name: "status check runs before minimum purchase check",
			d: &Discount{
				Status:          StatusDisabled,
				MinimumPurchase: d("1000"),
				RemainingUses:   UnlimitedUses,
			},
			subtotal:   d("10"),
			wantReason: "discount is disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateEligibility(tt.d, tt.subtotal, tt.categories, now)

			if tt.wantValid {
				require.True(t, got.Valid, "unexpected failure: %s", got.Reason)
				assert.Empty(t, got.Reason)
				return
			}
			require.False(t, got.Valid)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}
