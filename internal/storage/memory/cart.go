package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository is an in-memory cart.Repository.
type CartRepository struct {
	mu    sync.Mutex
	now   func() time.Time
	carts map[string]*cart.Cart
	// active maps a user id to the id of the user's open or finalizing cart.
	active map[string]string
}

// NewCartRepository returns an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		now:    time.Now,
		carts:  make(map[string]*cart.Cart),
		active: make(map[string]string),
	}
}

// SetClock overrides time.Now.
func (r *CartRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Lines = slices.Clone(c.Lines)
	return &cp
}

// FindActive returns a copy of the user's active cart.
func (r *CartRepository) FindActive(_ context.Context, userID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[userID]
	if !ok {
		return nil, cart.ErrNoActiveCart
	}
	return cloneCart(r.carts[id]), nil
}

// CreateOpen creates an open cart unless the user already has an active one.
func (r *CartRepository) CreateOpen(_ context.Context, userID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.active[userID]; ok {
		return cloneCart(r.carts[id]), nil
	}
	now := r.now()
	c := &cart.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     cart.StateOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.carts[c.ID] = c
	r.active[userID] = c.ID
	return cloneCart(c), nil
}

// openCart returns the cart for mutation. Callers hold r.mu.
func (r *CartRepository) openCart(cartID string) (*cart.Cart, error) {
	c, ok := r.carts[cartID]
	if !ok || c.State != cart.StateOpen {
		return nil, apperr.ErrCartNotModifiable
	}
	return c, nil
}

// AddLine merges qty into the product's line, appending a new line if needed.
func (r *CartRepository) AddLine(_ context.Context, cartID, productID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.openCart(cartID)
	if err != nil {
		return err
	}
	now := r.now()
	c.UpdatedAt = now
	if i := lineIndex(c, productID); i >= 0 {
		c.Lines[i].Quantity += qty
		return nil
	}
	c.Lines = append(c.Lines, cart.Line{ProductID: productID, Quantity: qty, AddedAt: now})
	return nil
}

// SetLineQuantity replaces the quantity of an existing line.
func (r *CartRepository) SetLineQuantity(_ context.Context, cartID, productID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.openCart(cartID)
	if err != nil {
		return err
	}
	i := lineIndex(c, productID)
	if i < 0 {
		return apperr.ErrItemNotInCart
	}
	c.Lines[i].Quantity = qty
	c.UpdatedAt = r.now()
	return nil
}

// RemoveLine deletes an existing line.
func (r *CartRepository) RemoveLine(_ context.Context, cartID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.openCart(cartID)
	if err != nil {
		return err
	}
	i := lineIndex(c, productID)
	if i < 0 {
		return apperr.ErrItemNotInCart
	}
	c.Lines = slices.Delete(c.Lines, i, i+1)
	c.UpdatedAt = r.now()
	return nil
}

// Cancel clears an open cart and marks it cancelled.
func (r *CartRepository) Cancel(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.openCart(cartID)
	if err != nil {
		return err
	}
	c.Lines = nil
	c.State = cart.StateCancelled
	c.UpdatedAt = r.now()
	delete(r.active, c.UserID)
	return nil
}

// Transition moves a cart between states if it is currently in from.
func (r *CartRepository) Transition(_ context.Context, cartID string, from, to cart.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok || c.State != from || !from.CanTransitionTo(to) {
		return cart.ErrStateConflict
	}
	c.State = to
	c.UpdatedAt = r.now()
	if to.IsTerminal() {
		delete(r.active, c.UserID)
	}
	return nil
}

// ReopenStale reopens carts finalizing since before the given time.
func (r *CartRepository) ReopenStale(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.carts {
		if c.State == cart.StateFinalizing && c.UpdatedAt.Before(before) {
			c.State = cart.StateOpen
			c.UpdatedAt = r.now()
			n++
		}
	}
	return n, nil
}

// Get returns any cart by id, including terminal ones.
func (r *CartRepository) Get(_ context.Context, cartID string) (*cart.Cart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok {
		return nil, false
	}
	return cloneCart(c), true
}

func lineIndex(c *cart.Cart, productID string) int {
	return slices.IndexFunc(c.Lines, func(l cart.Line) bool { return l.ProductID == productID })
}
