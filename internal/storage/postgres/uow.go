package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

var _ checkout.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs checkout writes in a single database transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork on pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do begins a transaction, hands fn repositories bound to it and commits
// when fn succeeds. Any error rolls the transaction back.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s checkout.Stores) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		fnErr = fn(ctx, checkout.Stores{
			Stock:  NewCatalogRepository(tx),
			Orders: NewOrderRepository(tx),
			Carts:  NewCartRepository(tx),

			Transactional: true,
		})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return apperr.Storage("commit checkout", err)
}

// Backend bundles the PostgreSQL repositories sharing one pool.
type Backend struct {
	Catalog *CatalogRepository
	Carts   *CartRepository
	Orders  *OrderRepository
	APIKeys *APIKeyRepository
	UoW     *UnitOfWork
}

// NewBackend returns repositories on pool.
func NewBackend(pool *pgxpool.Pool) *Backend {
	return &Backend{
		Catalog: NewCatalogRepository(pool),
		Carts:   NewCartRepository(pool),
		Orders:  NewOrderRepository(pool),
		APIKeys: NewAPIKeyRepository(pool),
		UoW:     NewUnitOfWork(pool),
	}
}
