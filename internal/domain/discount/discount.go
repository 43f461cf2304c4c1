// Package discount implements the discount resolution engine: lifecycle
// status derivation, eligibility validation, amount calculation, and
// stacking resolution. Every function is pure: callers supply the clock
// and already-fetched discount records, and persistence of derived state
// is the caller's concern.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind discriminates how a discount's magnitude is computed.
type Kind string

const (
	// KindFixedAmount subtracts a flat monetary value, capped at the base.
	KindFixedAmount Kind = "fixed_amount"
	// KindPercentage subtracts a percentage of the base amount.
	KindPercentage Kind = "percentage"
	// KindFixedWithCode combines a flat value with a percentage component.
	KindFixedWithCode Kind = "fixed_with_code"
	// KindTiered selects a percentage from a threshold table keyed on the base.
	KindTiered Kind = "tiered"
)

// Status is the lifecycle state of a discount.
type Status string

const (
	StatusActive   Status = "active"
	StatusUpcoming Status = "upcoming"
	StatusExpired  Status = "expired"
	// StatusDisabled is a manual override and is never auto-corrected.
	StatusDisabled Status = "disabled"
)

// Source identifies which pricing path produced a discount detail.
type Source string

const (
	SourceAutomatic Source = "Automatic"
	SourceCode      Source = "Code"
	SourceCoupon    Source = "Coupon"
)

// UnlimitedUses marks a discount with no usage ceiling.
const UnlimitedUses = -1

var (
	// ErrNotFound is returned by repositories when no discount matches.
	ErrNotFound = errors.New("discount not found")
	// ErrNegativeBase is returned when a caller passes a negative base amount.
	ErrNegativeBase = errors.New("base amount must not be negative")
)

// TierRule maps a spend threshold to the percentage granted once the base
// amount reaches it. Rules are evaluated by largest threshold not exceeding
// the base; at most one rule applies per evaluation.
type TierRule struct {
	Threshold  decimal.Decimal
	Percentage decimal.Decimal
}

// Discount is a single price reduction definition. Both product-bound
// coupons and code-redeemable discounts share this shape; Code, ProductID,
// ProductName, and Automatic determine the scope.
type Discount struct {
	ID          int64
	Description string

	// Code is the redeemable promo code value; empty for product coupons.
	Code string
	// ProductID binds a coupon to a specific product. ProductName is the
	// lookup fallback when no product identifier is recorded.
	ProductID   string
	ProductName string
	// Automatic discounts apply without a code being presented.
	Automatic bool

	Kind       Kind
	Amount     decimal.Decimal
	Percentage decimal.Decimal
	TierRules  []TierRule

	MinimumPurchase decimal.Decimal
	// Categories restricts applicability; empty means all categories.
	Categories []string

	StartDate *time.Time
	EndDate   *time.Time
	Status    Status

	// Stackable discounts may combine with others up to the cumulative cap.
	Stackable bool
	// MaxStackPercent caps the cumulative percentage-equivalent discount
	// this discount tolerates being combined with. Nil means no opinion
	// (treated as 100).
	MaxStackPercent *decimal.Decimal

	// RemainingUses of UnlimitedUses means no ceiling; zero blocks
	// application. The engine never decrements it.
	RemainingUses int
}

// ValidationResult reports whether a discount may apply. Reason is set only
// on failure. Validation failures are normal control flow, never errors.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// DiscountDetail describes one applied discount in application order.
type DiscountDetail struct {
	Source      Source
	Description string
	Amount      decimal.Decimal
	Percent     decimal.Decimal
}

// Repository provides lookup of candidate discount records and persistence
// of derived status. Implementations own all I/O; the engine itself never
// touches storage.
type Repository interface {
	// ListAutomatic returns all automatic discounts.
	ListAutomatic(ctx context.Context) ([]*Discount, error)
	// FindByCode looks up a code-redeemable discount.
	// Returns ErrNotFound when the code is unknown.
	FindByCode(ctx context.Context, code string) (*Discount, error)
	// FindCouponForProduct looks up a product-bound coupon by product
	// identifier, falling back to product name.
	// Returns ErrNotFound when no coupon matches.
	FindCouponForProduct(ctx context.Context, productID, name string) (*Discount, error)
	// UpdateStatus persists a status derived by ResolveStatus.
	UpdateStatus(ctx context.Context, id int64, status Status) error
}
