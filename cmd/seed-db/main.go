// Command seed-db loads a demo menu, loyalty members and promotion catalog.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
	"github.com/xenking/cafe-promotions/internal/storage/postgres"
)

type seedFile struct {
	Products   []productJSON          `json:"products"`
	Customers  []customerJSON         `json:"customers"`
	Promotions []promotion.Definition `json:"promotions"`
}

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

type customerJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	LoyaltyPoints int    `json:"loyaltyPoints"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/cafe.json", "path to seed JSON file")
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

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

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

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCustomers(ctx, postgres.NewCustomerRepository(pool), seed.Customers); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedPromotions(ctx, postgres.NewPromotionRepository(pool), seed.Promotions); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	return nil
}

// readSeed parses the seed file and rejects promotions that would not load
// into the catalog, so a bad seed fails before anything is written.
func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}

	now := time.Now()
	for _, def := range seed.Promotions {
		if _, err := promotion.Compile(def, now); err != nil {
			return nil, errors.Wrap(err, "validate seed promotion")
		}
	}
	for _, c := range seed.Customers {
		if _, err := customer.ParseTier(c.Tier); err != nil {
			return nil, errors.Wrapf(err, "customer %s", c.ID)
		}
	}

	return &seed, nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, cart.Product{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCustomers(ctx context.Context, repo *postgres.CustomerRepository, customers []customerJSON) error {
	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		tier, err := customer.ParseTier(c.Tier)
		if err != nil {
			return errors.Wrapf(err, "customer %s", c.ID)
		}
		if err := repo.Upsert(ctx, customer.Customer{
			ID:            c.ID,
			Name:          c.Name,
			Tier:          tier,
			LoyaltyPoints: c.LoyaltyPoints,
		}); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}

		slog.Info("upserted customer", slog.String("id", c.ID), slog.String("tier", string(tier)))
	}

	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.PromotionRepository, defs []promotion.Definition) error {
	slog.Info("upserting promotions", slog.Int("count", len(defs)))

	for _, def := range defs {
		if err := repo.Upsert(ctx, def); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", def.Code)
		}

		slog.Info("upserted promotion", slog.String("code", def.Code), slog.String("kind", def.Kind))
	}

	return nil
}
