// Package memory implements the storage contracts in process memory. Every
// conditional update runs under a mutex, so it offers the same atomicity as
// the Postgres backend within a single process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/kart-checkout/internal/domain/catalog"
)

var (
	_ catalog.Gateway = (*Catalog)(nil)
	_ catalog.Lister  = (*Catalog)(nil)
)

// Catalog is an in-memory product catalog.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
}

// NewCatalog returns a Catalog holding products.
func NewCatalog(products ...catalog.Product) *Catalog {
	c := &Catalog{products: make(map[string]catalog.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Upsert inserts or replaces a product.
func (c *Catalog) Upsert(_ context.Context, p catalog.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
	return nil
}

// List returns all products ordered by ID.
func (c *Catalog) List(_ context.Context) ([]catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]catalog.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetProduct returns a product by id.
func (c *Catalog) GetProduct(_ context.Context, id string) (catalog.Product, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok, nil
}

// DecrementStock removes qty units if at least qty are available.
func (c *Catalog) DecrementStock(_ context.Context, id string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok || p.AvailableQuantity < qty {
		return catalog.ErrInsufficientStock
	}
	p.AvailableQuantity -= qty
	c.products[id] = p
	return nil
}

// RestoreStock adds qty units back to a product.
func (c *Catalog) RestoreStock(_ context.Context, id string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return &productMissingError{id: id}
	}
	p.AvailableQuantity += qty
	c.products[id] = p
	return nil
}

type productMissingError struct {
	id string
}

func (e *productMissingError) Error() string {
	return "product " + e.id + " disappeared from catalog"
}
