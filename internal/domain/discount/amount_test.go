package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateAmount(t *testing.T) {
	tests := []struct {
		name        string
		d           *Discount
		base        decimal.Decimal
		want        decimal.Decimal
		wantErr     error
		wantErrText string
	}{
		{
			name: "fixed amount below base",
			d:    &Discount{Kind: KindFixedAmount, Amount: d("15")},
			base: d("100"),
			want: d("15"),
		},
		{
			name: "fixed amount capped at base",
			d:    &Discount{Kind: KindFixedAmount, Amount: d("150")},
			base: d("100"),
			want: d("100"),
		},
		{
			name: "percentage 30 percent of 1000",
			d:    &Discount{Kind: KindPercentage, Percentage: d("30")},
			base: d("1000"),
			want: d("300"),
		},
		{
			name: "percentage 100 percent equals base",
			d:    &Discount{Kind: KindPercentage, Percentage: d("100")},
			base: d("40"),
			want: d("40"),
		},
		{
			name: "percentage of zero base is zero",
			d:    &Discount{Kind: KindPercentage, Percentage: d("50")},
			base: d("0"),
			want: d("0"),
		},
		{
			name: "fixed with code adds components",
			d:    &Discount{Kind: KindFixedWithCode, Amount: d("10"), Percentage: d("5")},
			base: d("200"),
			// 10 + 200*5% = 20
			want: d("20"),
		},
		{
			name: "fixed with code capped at base",
			d:    &Discount{Kind: KindFixedWithCode, Amount: d("90"), Percentage: d("20")},
			base: d("100"),
			want: d("100"),
		},
		{
			name: "tiered selects largest threshold not exceeding base",
			d: &Discount{Kind: KindTiered, TierRules: []TierRule{
				{Threshold: d("100"), Percentage: d("5")},
				{Threshold: d("200"), Percentage: d("10")},
			}},
			base: d("150"),
			// 150 * 5% = 7.50
			want: d("7.5"),
		},
		{
			name: "tiered picks highest qualifying tier",
			d: &Discount{Kind: KindTiered, TierRules: []TierRule{
				{Threshold: d("100"), Percentage: d("5")},
				{Threshold: d("200"), Percentage: d("10")},
			}},
			base: d("250"),
			want: d("25"),
		},
		{
			name: "tiered below lowest threshold contributes zero",
			d: &Discount{Kind: KindTiered, TierRules: []TierRule{
				{Threshold: d("100"), Percentage: d("5")},
			}},
			base: d("50"),
			want: d("0"),
		},
		{
			name: "tiered with unordered rules still picks correct tier",
			d: &Discount{Kind: KindTiered, TierRules: []TierRule{
				{Threshold: d("500"), Percentage: d("20")},
				{Threshold: d("50"), Percentage: d("2")},
				{Threshold: d("200"), Percentage: d("10")},
			}},
			base: d("300"),
			want: d("30"),
		},
		{
			name: "tiered with no rules contributes zero",
			d:    &Discount{Kind: KindTiered},
			base: d("300"),
			want: d("0"),
		},
		{
			name:    "negative base is rejected",
			d:       &Discount{Kind: KindPercentage, Percentage: d("10")},
			base:    d("-1"),
			wantErr: ErrNegativeBase,
		},
		{
			name:        "unsupported kind is rejected",
			d:           &Discount{Kind: Kind("bogus")},
			base:        d("100"),
			wantErrText: "unsupported discount kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateAmount(tt.d, tt.base)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.wantErrText != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrText)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got),
				"expected amount %s, got %s", tt.want, got)

			// Amounts stay within [0, base].
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(tt.base))
		})
	}
}

func TestTierLookupMonotonic(t *testing.T) {
	rules := []TierRule{
		{Threshold: d("100"), Percentage: d("5")},
		{Threshold: d("200"), Percentage: d("10")},
		{Threshold: d("500"), Percentage: d("15")},
	}

	prev := decimal.Zero
	for _, base := range []decimal.Decimal{d("50"), d("100"), d("150"), d("200"), d("499"), d("500"), d("1000")} {
		got := tierPercentage(rules, base)
		assert.True(t, got.GreaterThanOrEqual(prev),
			"tier percentage decreased at base %s: %s < %s", base, got, prev)
		prev = got
	}
}
