// Package cart implements the cart discount orchestrator: the top-level
// entry point that gathers automatic discounts, an optional promo code, and
// per-item product coupons, and aggregates their contributions into a final
// priced result.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-discount-engine/internal/domain/discount"
)

// Sentinel errors for cart preconditions.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrNegativePrice   = errors.New("item price must not be negative")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Item is one cart line item.
type Item struct {
	ProductID  string
	Name       string
	Categories []string
	Price      decimal.Decimal
	Quantity   int
}

// Subtotal returns unit price times quantity.
func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// PriceRequest holds the input for pricing a cart.
type PriceRequest struct {
	Items      []Item
	CouponCode string
}

// Result is the end-to-end pricing outcome for a cart. Monetary fields are
// rounded to the currency's minor unit; AppliedDiscounts always sum to
// DiscountAmount.
type Result struct {
	OriginalTotal    decimal.Decimal
	DiscountAmount   decimal.Decimal
	FinalTotal       decimal.Decimal
	AppliedCode      string
	AppliedDiscounts []discount.DiscountDetail
}
