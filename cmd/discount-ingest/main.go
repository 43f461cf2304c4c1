// Command discount-ingest bulk-loads promo codes from gzipped code-list
// files. A code is accepted when it appears in at least two of the input
// files; accepted codes are upserted as code-redeemable discounts with a
// default rule unless a named rule overrides it.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-discount-engine/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	minCodeLen    = 6
	maxCodeLen    = 12
)

// codeRule is the discount definition assigned to an accepted code.
type codeRule struct {
	kind        string
	amount      string
	percentage  string
	description string
	stackable   bool
}

var namedRules = map[string]codeRule{
	"HAPPYHRS": {kind: "percentage", percentage: "18", description: "Happy Hours: 18% off", stackable: true},
	"FIFTYOFF": {kind: "percentage", percentage: "50", description: "50% off entire order"},
	"OVER9000": {kind: "fixed_amount", amount: "9", description: "$9 off your order", stackable: true},
	"COMBO5":   {kind: "fixed_with_code", amount: "5", percentage: "5", description: "$5 plus 5% off", stackable: true},
}

var defaultRule = codeRule{
	kind:        "percentage",
	percentage:  "10",
	description: "Valid promo code: 10% off",
	stackable:   true,
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing .gz code list files")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("discount ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) < 2 {
		return errors.Errorf("need at least 2 code files in %s, found %d", dataDir, len(files))
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes present in 2+ files")

	codes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeDiscounts(ctx, pool, codes)
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			if err := streamGzFile(ctx, path, func(code string) {
				filter.AddString(code)
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findValidCodes re-streams each file and checks codes against the other
// files' filters. A code is accepted when it appears in 2 or more files.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)

			if err := streamGzFile(ctx, path, func(code string) {
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						candidates[code] |= fileBit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for candidates", path)
			}

			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range results {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

// streamGzFile calls fn for each well-formed code line in a gzipped file.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := scanner.Text()
		if len(code) >= minCodeLen && len(code) <= maxCodeLen {
			fn(code)
		}
	}

	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

// writeDiscounts upserts all accepted codes as discounts.
func writeDiscounts(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("writing discounts to database", slog.Int("count", len(codes)))

	for i, code := range codes {
		rule, ok := namedRules[code]
		if !ok {
			rule = defaultRule
		}

		amount, percentage := decimal.Zero, decimal.Zero
		var err error
		if rule.amount != "" {
			if amount, err = decimal.NewFromString(rule.amount); err != nil {
				return errors.Wrapf(err, "parse amount for code %s", code)
			}
		}
		if rule.percentage != "" {
			if percentage, err = decimal.NewFromString(rule.percentage); err != nil {
				return errors.Wrapf(err, "parse percentage for code %s", code)
			}
		}

		if _, err := pool.Exec(ctx, `
			INSERT INTO discounts (description, code, kind, amount, percentage, stackable, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'active')
			ON CONFLICT (upper(code)) WHERE code <> '' DO UPDATE SET
				description = EXCLUDED.description,
				kind = EXCLUDED.kind,
				amount = EXCLUDED.amount,
				percentage = EXCLUDED.percentage,
				stackable = EXCLUDED.stackable,
				status = 'active'`,
			rule.description, code, rule.kind, amount, percentage, rule.stackable,
		); err != nil {
			return errors.Wrapf(err, "upsert discount for code %s", code)
		}

		if (i+1)%1000 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}
