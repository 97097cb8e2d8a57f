package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/seed"
	"github.com/xenking/kart-checkout/internal/storage/memory"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/internal/storage/redis"
	"github.com/xenking/kart-checkout/pkg/health"
)

type catalogStore interface {
	catalog.Gateway
	catalog.Lister
}

// backend is the storage the services run on.
type backend struct {
	catalog catalogStore
	carts   cart.Repository
	orders  order.Repository
	apikeys auth.Repository
	uow     checkout.UnitOfWork
	idem    handler.Idempotency

	// readiness checks to register, by dependency name.
	readiness map[string]health.CheckFunc
	closers   []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	b := &backend{readiness: make(map[string]health.CheckFunc)}

	var err error
	switch cfg.Storage {
	case StorageMemory:
		err = b.openMemory(ctx, lg, cfg)
	default:
		err = b.openPostgres(ctx, lg, cfg)
	}
	if err != nil {
		b.Close()
		return nil, err
	}

	if err := b.openIdempotency(ctx, lg, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) openPostgres(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	b.closers = append(b.closers, pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	lg.Info("PostgreSQL storage ready")

	pg := postgres.NewBackend(pool)
	b.catalog = pg.Catalog
	b.carts = pg.Carts
	b.orders = pg.Orders
	b.apikeys = pg.APIKeys
	b.uow = pg.UoW
	b.readiness["postgres"] = health.PingCheck(pool)
	return nil
}

func (b *backend) openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	var (
		products []catalog.Product
		err      error
	)
	if cfg.SeedFile != "" {
		products, err = seed.ReadProductsFile(cfg.SeedFile)
	} else {
		products, err = seed.DefaultProducts(db.Products)
	}
	if err != nil {
		return errors.Wrap(err, "load catalog seed")
	}

	mem := memory.NewBackend()
	for _, p := range products {
		if err := mem.Catalog.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "seed product %s", p.ID)
		}
	}

	if cfg.APIKey != "" {
		if err := mem.APIKeys.Upsert(ctx, auth.APIKeyInfo{
			ID:      "default",
			KeyHash: auth.HashKey(cfg.APIKey, []byte(cfg.APIKeyPepper)),
			Name:    "Default key",
			Scopes:  []string{auth.ScopeCreateOrder},
		}); err != nil {
			return errors.Wrap(err, "register api key")
		}
	} else {
		lg.Warn("No API key configured, checkout requests will be rejected")
	}

	lg.Warn("Using in-memory storage, state is lost on restart",
		zap.Int("products", len(products)),
	)
	b.catalog = mem.Catalog
	b.carts = mem.Carts
	b.orders = mem.Orders
	b.apikeys = mem.APIKeys
	b.uow = mem.UoW
	return nil
}

func (b *backend) openIdempotency(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	if cfg.RedisAddr == "" {
		b.idem = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
		return nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	b.closers = append(b.closers, func() { _ = client.Close() })

	store := redis.NewIdempotencyStore(client, cfg.IdempotencyTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	lg.Info("Redis idempotency store ready", zap.String("addr", cfg.RedisAddr))

	b.idem = store
	b.readiness["redis"] = health.PingCheck(store)
	return nil
}
