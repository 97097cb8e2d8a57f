// Command seed-db migrates the database, loads the product catalog from a
// seed file and provisions the default API key.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/seed"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
	workers      int
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally .gz compressed")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent product upserts")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if opts.databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if opts.apiKey == "" {
			return errors.New("API key is required: set --api-key or KART_SEED_API_KEY")
		}
		if err := run(ctx, lg, opts); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed")
		return nil
	})
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	b := postgres.NewBackend(pool)
	if err := seedProducts(ctx, lg, b.Catalog, opts); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedAPIKey(ctx, lg, b.APIKeys, opts); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.CatalogRepository, opts options) error {
	lg.Info("Reading products file", zap.String("path", opts.productsFile))
	products, err := seed.ReadProductsFile(opts.productsFile)
	if err != nil {
		return errors.Wrapf(err, "read %s", opts.productsFile)
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.workers, 1))
	for _, p := range products {
		g.Go(func() error {
			if err := repo.Upsert(gctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			lg.Debug("Upserted product",
				zap.String("id", p.ID),
				zap.String("name", p.Name),
				zap.Int("available", p.AvailableQuantity),
			)
			return nil
		})
	}
	return g.Wait()
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo *postgres.APIKeyRepository, opts options) error {
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(opts.apiKey, []byte(opts.apiKeyPepper)),
		Name:    "Default key",
		Scopes:  []string{auth.ScopeCreateOrder},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	lg.Info("Upserted API key", zap.String("id", info.ID), zap.Strings("scopes", info.Scopes))
	return nil
}
