// Command seed-db creates the schema and inserts a set of sample discounts
// for local development.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-discount-engine/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedDiscounts(ctx, pool)
}

type seedDiscount struct {
	description     string
	code            string
	productName     string
	automatic       bool
	kind            string
	amount          string
	percentage      string
	tierRules       string
	minimumPurchase string
	categories      []string
	stackable       bool
	maxStackPercent string
	endDate         *time.Time
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	nextMonth := time.Now().UTC().AddDate(0, 1, 0)

	discounts := []seedDiscount{
		{
			description: "Happy Hours: 18% off entire order",
			code:        "HAPPYHRS",
			kind:        "percentage",
			percentage:  "18",
			stackable:   true,
			endDate:     &nextMonth,
		},
		{
			description:     "$9 off orders over $50",
			code:            "OVER9000",
			kind:            "fixed_amount",
			amount:          "9",
			minimumPurchase: "50",
			stackable:       true,
		},
		{
			description:     "$5 plus 5% off with code",
			code:            "COMBO5",
			kind:            "fixed_with_code",
			amount:          "5",
			percentage:      "5",
			stackable:       true,
			maxStackPercent: "20",
		},
		{
			description: "Seasonal: spend more save more",
			automatic:   true,
			kind:        "tiered",
			tierRules:   `[{"threshold":100,"percentage":5},{"threshold":200,"percentage":10},{"threshold":500,"percentage":15}]`,
			stackable:   true,
		},
		{
			description: "Beverages: 10% off",
			automatic:   true,
			kind:        "percentage",
			percentage:  "10",
			categories:  []string{"beverages"},
			stackable:   true,
		},
		{
			description: "$3 off espresso",
			productName: "espresso",
			kind:        "fixed_amount",
			amount:      "3",
			stackable:   false,
		},
	}

	slog.Info("upserting discounts", slog.Int("count", len(discounts)))

	for _, d := range discounts {
		if err := upsertDiscount(ctx, pool, d); err != nil {
			return errors.Wrapf(err, "upsert discount %q", d.description)
		}
		slog.Info("upserted discount", slog.String("description", d.description))
	}

	return nil
}

// upsertDiscount replaces any previously seeded row with the same
// description, so reseeding stays idempotent for codeless discounts too.
func upsertDiscount(ctx context.Context, pool *pgxpool.Pool, d seedDiscount) error {
	if _, err := pool.Exec(ctx,
		`DELETE FROM discounts WHERE description = $1`, d.description); err != nil {
		return err
	}

	categories := d.categories
	if categories == nil {
		categories = []string{}
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO discounts (
			description, code, product_name, automatic, kind,
			amount, percentage, tier_rules, minimum_purchase, categories,
			stackable, max_stack_percent, end_date, status
		) VALUES (
			$1, $2, $3, $4, $5,
			COALESCE(NULLIF($6, '')::numeric, 0), COALESCE(NULLIF($7, '')::numeric, 0),
			NULLIF($8, '')::jsonb, COALESCE(NULLIF($9, '')::numeric, 0), $10,
			$11, NULLIF($12, '')::numeric, $13, 'active'
		)`,
		d.description, d.code, d.productName, d.automatic, d.kind,
		d.amount, d.percentage, d.tierRules, d.minimumPurchase, categories,
		d.stackable, d.maxStackPercent, d.endDate,
	)
	return err
}
