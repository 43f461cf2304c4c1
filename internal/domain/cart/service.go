package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/oolio-discount-engine/internal/domain/discount"
)

// Config holds orchestrator tunables.
type Config struct {
	// DefaultCapPercent is the system-wide ceiling on the combined discount
	// as a percentage of the cart total. A promo code declaring a lower
	// stacking cap tightens it further.
	DefaultCapPercent decimal.Decimal
}

// Service prices carts by combining automatic discounts, an optional promo
// code, and per-item product coupons. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	discounts discount.Repository
	cfg       Config
	now       func() time.Time

	tracer  trace.Tracer
	applied metric.Int64Counter
}

// NewService creates a cart pricing Service.
func NewService(discounts discount.Repository, cfg Config) *Service {
	meter := otel.Meter("cart")
	applied, _ := meter.Int64Counter("cart.discounts.applied",
		metric.WithDescription("Number of discounts applied to priced carts"),
	)

	return &Service{
		discounts: discounts,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		tracer:    otel.Tracer("cart"),
		applied:   applied,
	}
}

// PriceCart produces the end-to-end discount result for a cart. A bad or
// unknown promo code never fails the cart: it is excluded and pricing
// proceeds with the remaining discounts. Precondition violations (empty
// cart, negative prices, non-positive quantities) are errors.
func (s *Service) PriceCart(ctx context.Context, req PriceRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "cart.PriceCart")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	total := decimal.Zero
	var categories []string
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %q", it.Name)
		}
		if it.Price.IsNegative() {
			return nil, errors.Wrapf(ErrNegativePrice, "product %q", it.Name)
		}
		total = total.Add(it.Subtotal())
		categories = append(categories, it.Categories...)
	}

	now := s.now()
	var details []discount.DiscountDetail

	autoTotal, autoDetails, err := s.applyAutomatic(ctx, total, categories, now)
	if err != nil {
		return nil, err
	}
	details = append(details, autoDetails...)

	// Promo codes apply after automatic discounts reduce the base.
	codeBase := total.Sub(autoTotal)
	appliedCode, codeCap, codeDetail := s.applyCode(ctx, req.CouponCode, codeBase, categories, now)
	if codeDetail != nil {
		details = append(details, *codeDetail)
	}

	details = append(details, s.applyCoupons(ctx, req.Items, now)...)

	details = capDetails(details, s.ceiling(total, codeCap))

	result := &Result{
		OriginalTotal: total.RoundBank(2),
		AppliedCode:   appliedCode,
	}
	discountTotal := decimal.Zero
	for i := range details {
		details[i].Amount = details[i].Amount.RoundBank(2)
		discountTotal = discountTotal.Add(details[i].Amount)
	}
	result.AppliedDiscounts = details
	result.DiscountAmount = discountTotal
	result.FinalTotal = decimal.Max(decimal.Zero, result.OriginalTotal.Sub(discountTotal))

	s.applied.Add(ctx, int64(len(details)))
	return result, nil
}

// applyAutomatic gathers eligible automatic discounts and stacks them
// against the full cart total.
func (s *Service) applyAutomatic(ctx context.Context, total decimal.Decimal, categories []string, now time.Time) (decimal.Decimal, []discount.DiscountDetail, error) {
	candidates, err := s.discounts.ListAutomatic(ctx)
	if err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "list automatic discounts")
	}

	eligible := make([]*discount.Discount, 0, len(candidates))
	for _, d := range candidates {
		s.syncStatus(ctx, d, now)
		if res := discount.ValidateEligibility(d, total, categories, now); res.Valid {
			eligible = append(eligible, d)
		}
	}

	stacked, err := discount.ResolveStacking(eligible, total, nil)
	if err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "stack automatic discounts")
	}

	details := make([]discount.DiscountDetail, 0, len(stacked.Applied))
	for _, a := range stacked.Applied {
		details = append(details, discount.DiscountDetail{
			Source:      discount.SourceAutomatic,
			Description: a.Discount.Description,
			Amount:      a.Amount,
			Percent:     a.Percent,
		})
	}
	return stacked.TotalDiscount, details, nil
}

// applyCode resolves an optional promo code against the automatic-reduced
// base. Unknown or ineligible codes are excluded silently so checkout is
// never blocked by a bad code; repository failures are logged and treated
// the same way.
func (s *Service) applyCode(ctx context.Context, code string, base decimal.Decimal, categories []string, now time.Time) (string, *decimal.Decimal, *discount.DiscountDetail) {
	if code == "" {
		return "", nil, nil
	}
	lg := zctx.From(ctx)

	d, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, discount.ErrNotFound) {
			lg.Warn("promo code lookup failed", zap.String("code", code), zap.Error(err))
		}
		return "", nil, nil
	}

	s.syncStatus(ctx, d, now)
	if res := discount.ValidateEligibility(d, base, categories, now); !res.Valid {
		lg.Info("promo code rejected", zap.String("code", code), zap.String("reason", res.Reason))
		return "", nil, nil
	}

	amount, err := discount.CalculateAmount(d, base)
	if err != nil || amount.IsZero() {
		return "", nil, nil
	}

	percent := d.Percentage
	if d.Kind != discount.KindPercentage && base.IsPositive() {
		percent = amount.Div(base).Mul(decimal.NewFromInt(100))
	}

	return code, d.MaxStackPercent, &discount.DiscountDetail{
		Source:      discount.SourceCode,
		Description: d.Description,
		Amount:      amount,
		Percent:     percent,
	}
}

// applyCoupons resolves product-bound coupons per line item against the
// item subtotal and item categories. Lookup is by product identifier first,
// falling back to product name.
func (s *Service) applyCoupons(ctx context.Context, items []Item, now time.Time) []discount.DiscountDetail {
	lg := zctx.From(ctx)

	var details []discount.DiscountDetail
	for _, it := range items {
		d, err := s.discounts.FindCouponForProduct(ctx, it.ProductID, it.Name)
		if err != nil {
			if !errors.Is(err, discount.ErrNotFound) {
				lg.Warn("coupon lookup failed", zap.String("product", it.Name), zap.Error(err))
			}
			continue
		}

		subtotal := it.Subtotal()
		s.syncStatus(ctx, d, now)
		if res := discount.ValidateEligibility(d, subtotal, it.Categories, now); !res.Valid {
			continue
		}

		amount, err := discount.CalculateAmount(d, subtotal)
		if err != nil || amount.IsZero() {
			continue
		}

		percent := d.Percentage
		if d.Kind != discount.KindPercentage && subtotal.IsPositive() {
			percent = amount.Div(subtotal).Mul(decimal.NewFromInt(100))
		}

		details = append(details, discount.DiscountDetail{
			Source:      discount.SourceCoupon,
			Description: d.Description,
			Amount:      amount,
			Percent:     percent,
		})
	}
	return details
}

// ceiling computes the system-wide cap on the combined discount amount:
// the configured default percentage of the cart total, tightened by a promo
// code's declared stacking cap, and never more than the cart total itself.
func (s *Service) ceiling(total decimal.Decimal, codeCap *decimal.Decimal) decimal.Decimal {
	percent := s.cfg.DefaultCapPercent
	if codeCap != nil && codeCap.LessThan(percent) {
		percent = *codeCap
	}
	return decimal.Min(total, total.Mul(percent).Div(decimal.NewFromInt(100)))
}

// capDetails clamps the combined discount to the ceiling by reducing
// contributions from the tail, so the detail list always sums to the final
// discount amount. Details reduced to zero are dropped.
func capDetails(details []discount.DiscountDetail, ceiling decimal.Decimal) []discount.DiscountDetail {
	sum := decimal.Zero
	for _, d := range details {
		sum = sum.Add(d.Amount)
	}
	if sum.LessThanOrEqual(ceiling) {
		return details
	}

	excess := sum.Sub(ceiling)
	for i := len(details) - 1; i >= 0 && excess.IsPositive(); i-- {
		cut := decimal.Min(details[i].Amount, excess)
		details[i].Amount = details[i].Amount.Sub(cut)
		excess = excess.Sub(cut)
	}

	kept := details[:0]
	for _, d := range details {
		if d.Amount.IsPositive() {
			kept = append(kept, d)
		}
	}
	return kept
}

// syncStatus derives the discount's current lifecycle status and persists
// it through the repository when it changed. Persistence is best-effort:
// a write failure never blocks pricing.
func (s *Service) syncStatus(ctx context.Context, d *discount.Discount, now time.Time) {
	derived := discount.ResolveStatus(d, now)
	if derived == d.Status {
		return
	}
	d.Status = derived
	if err := s.discounts.UpdateStatus(ctx, d.ID, derived); err != nil {
		zctx.From(ctx).Warn("persist discount status",
			zap.Int64("discount_id", d.ID),
			zap.String("status", string(derived)),
			zap.Error(err),
		)
	}
}
