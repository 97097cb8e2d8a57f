package memory

import (
	"context"
	"sync"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

var _ checkout.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork serializes checkouts in process. It cannot discard writes, so
// callers compensate on failure.
type UnitOfWork struct {
	mu     sync.Mutex
	stores checkout.Stores
}

// NewUnitOfWork returns a UnitOfWork over the given stores.
func NewUnitOfWork(stores checkout.Stores) *UnitOfWork {
	return &UnitOfWork{stores: stores}
}

// Do runs fn while holding the unit of work lock.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s checkout.Stores) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx, u.stores)
}

// Backend bundles the in-memory stores.
type Backend struct {
	Catalog *Catalog
	Carts   *CartRepository
	Orders  *OrderRepository
	APIKeys *APIKeyRepository
	UoW     *UnitOfWork
}

// NewBackend returns an empty in-memory backend.
func NewBackend() *Backend {
	b := &Backend{
		Catalog: NewCatalog(),
		Carts:   NewCartRepository(),
		Orders:  NewOrderRepository(),
		APIKeys: NewAPIKeyRepository(),
	}
	b.UoW = NewUnitOfWork(checkout.Stores{Stock: b.Catalog, Orders: b.Orders, Carts: b.Carts})
	return b
}
