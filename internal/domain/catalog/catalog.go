package catalog

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// ErrInsufficientStock is returned by DecrementStock when the product has
// fewer units available than requested. Nothing is decremented in that case.
var ErrInsufficientStock = errors.New("insufficient stock")

// Product is a catalog item as seen by the checkout engine.
type Product struct {
	ID                string
	Name              string
	Price             money.Money
	Category          string
	AvailableQuantity int
}

// Gateway is the catalog contract consumed by the cart and checkout services.
// DecrementStock and RestoreStock must be atomic conditional updates, never
// read-then-write.
type Gateway interface {
	// GetProduct returns the product and true, or false when it does not exist.
	GetProduct(ctx context.Context, id string) (Product, bool, error)
	// DecrementStock removes qty units, failing with ErrInsufficientStock
	// when fewer are available.
	DecrementStock(ctx context.Context, id string, qty int) error
	// RestoreStock adds qty units back. It compensates a prior decrement.
	RestoreStock(ctx context.Context, id string, qty int) error
}

// Lister lists the catalog for browsing.
type Lister interface {
	List(ctx context.Context) ([]Product, error)
}
