package postgres

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-discount-engine/internal/domain/discount"
)

var _ discount.Repository = (*DiscountRepository)(nil)

const discountColumns = `id, description, code, product_id, product_name, automatic,
	kind, amount, percentage, tier_rules, minimum_purchase, categories,
	start_date, end_date, status, stackable, max_stack_percent, remaining_uses`

// DiscountRepository implements discount.Repository backed by PostgreSQL.
// An optional in-process bloom filter prescreens promo code lookups so that
// carts carrying unknown codes skip the database round-trip entirely.
type DiscountRepository struct {
	pool  *pgxpool.Pool
	codes atomic.Pointer[bloom.BloomFilter]
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// WarmCodeFilter loads all known promo codes into a bloom filter. Until it
// is called (or when it fails) every code lookup goes to the database.
func (r *DiscountRepository) WarmCodeFilter(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, `SELECT code FROM discounts WHERE code <> ''`)
	if err != nil {
		return errors.Wrap(err, "query codes")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return errors.Wrap(err, "scan code")
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate codes")
	}

	filter := bloom.NewWithEstimates(uint(max(len(codes), 1024)), 0.001)
	for _, code := range codes {
		filter.AddString(strings.ToUpper(code))
	}
	r.codes.Store(filter)
	return nil
}

// ListAutomatic returns all automatic discounts.
func (r *DiscountRepository) ListAutomatic(ctx context.Context) ([]*discount.Discount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE automatic ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query automatic discounts")
	}
	defer rows.Close()

	var discounts []*discount.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate automatic discounts")
	}
	return discounts, nil
}

// FindByCode looks up a code-redeemable discount, case-insensitively.
// Returns discount.ErrNotFound when the code is unknown.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	if filter := r.codes.Load(); filter != nil && !filter.TestString(strings.ToUpper(code)) {
		return nil, discount.ErrNotFound
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE upper(code) = upper($1) LIMIT 1`, code)

	d, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find discount by code %q", code)
	}
	return d, nil
}

// FindCouponForProduct looks up a product-bound coupon, preferring a match
// on product identifier over a match on product name.
// Returns discount.ErrNotFound when no coupon matches.
func (r *DiscountRepository) FindCouponForProduct(ctx context.Context, productID, name string) (*discount.Discount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts
		 WHERE code = '' AND NOT automatic
		   AND (($1 <> '' AND product_id = $1)
		     OR (product_name <> '' AND lower(product_name) = lower($2)))
		 ORDER BY (product_id = $1) DESC, id
		 LIMIT 1`, productID, name)

	d, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon for product %q", name)
	}
	return d, nil
}

// UpdateStatus persists a derived lifecycle status.
func (r *DiscountRepository) UpdateStatus(ctx context.Context, id int64, status discount.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE discounts SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "update status of discount %d", id)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// scanDiscount maps one row onto a domain Discount. Tier rules are decoded
// once here; the engine never re-parses them.
func scanDiscount(row pgx.Row) (*discount.Discount, error) {
	var (
		d            discount.Discount
		tierRules    []byte
		maxStack     decimal.NullDecimal
		statusString string
	)
	err := row.Scan(
		&d.ID, &d.Description, &d.Code, &d.ProductID, &d.ProductName, &d.Automatic,
		(*string)(&d.Kind), &d.Amount, &d.Percentage, &tierRules, &d.MinimumPurchase, &d.Categories,
		&d.StartDate, &d.EndDate, &statusString, &d.Stackable, &maxStack, &d.RemainingUses,
	)
	if err != nil {
		return nil, err
	}

	d.Status = discount.Status(statusString)
	if maxStack.Valid {
		d.MaxStackPercent = &maxStack.Decimal
	}
	// Malformed tier data yields no rules: such a discount contributes
	// zero instead of failing the whole cart evaluation.
	d.TierRules, _ = decodeTierRules(tierRules)
	return &d, nil
}

// decodeTierRules parses the JSONB tier table into structured rules.
func decodeTierRules(data []byte) ([]discount.TierRule, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var rules []discount.TierRule
	dec := jx.DecodeBytes(data)
	if err := dec.Arr(func(dec *jx.Decoder) error {
		var rule discount.TierRule
		if err := dec.Obj(func(dec *jx.Decoder, key string) error {
			switch key {
			case "threshold":
				return decodeDecimal(dec, &rule.Threshold)
			case "percentage":
				return decodeDecimal(dec, &rule.Percentage)
			default:
				return dec.Skip()
			}
		}); err != nil {
			return err
		}
		rules = append(rules, rule)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode tier rules")
	}
	return rules, nil
}

// decodeDecimal accepts both JSON numbers and number strings, preserving
// full precision.
func decodeDecimal(dec *jx.Decoder, out *decimal.Decimal) error {
	var raw string
	switch dec.Next() {
	case jx.String:
		s, err := dec.Str()
		if err != nil {
			return err
		}
		raw = s
	default:
		num, err := dec.Num()
		if err != nil {
			return err
		}
		raw = string(num)
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	*out = v
	return nil
}
