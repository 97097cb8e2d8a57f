package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
)

// Service implements the cart operations exposed to the transport layer.
//
// Adding items validates stock but never decrements it: stock is committed
// only at checkout.
type Service struct {
	carts   Repository
	catalog catalog.Gateway
}

// NewService creates a cart Service.
func NewService(carts Repository, catalog catalog.Gateway) *Service {
	return &Service{
		carts:   carts,
		catalog: catalog,
	}
}

// Get returns the user's active cart. Users without one get an empty open
// cart that is not persisted.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.FindActive(ctx, userID)
	if errors.Is(err, ErrNoActiveCart) {
		return &Cart{UserID: userID, State: StateOpen}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find active cart")
	}
	return c, nil
}

// GetOrCreateOpenCart returns the user's active cart, persisting a new empty
// open cart when none exists. The returned cart is finalizing while a
// checkout for the user is running.
func (s *Service) GetOrCreateOpenCart(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.FindActive(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNoActiveCart) {
		return nil, errors.Wrap(err, "find active cart")
	}

	c, err = s.carts.CreateOpen(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	zctx.From(ctx).Debug("Cart created",
		zap.String("user_id", userID),
		zap.String("cart_id", c.ID),
	)
	return c, nil
}

// AddItem adds quantity units of a product to the user's cart, merging with
// an existing line for the same product.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return apperr.ErrInvalidQuantity
	}

	p, err := s.product(ctx, productID)
	if err != nil {
		return err
	}
	if p.AvailableQuantity == 0 {
		return apperr.ErrOutOfStock
	}

	c, err := s.openCart(ctx, userID)
	if err != nil {
		return err
	}

	existing, _ := c.Line(productID)
	if p.AvailableQuantity < existing.Quantity+quantity {
		return &apperr.InsufficientStockError{ProductID: productID, Available: p.AvailableQuantity}
	}

	if err := s.carts.AddLine(ctx, c.ID, productID, quantity); err != nil {
		return errors.Wrap(err, "add line")
	}
	return nil
}

// RemoveItem removes a product line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	c, err := s.activeCart(ctx, userID)
	if err != nil {
		return err
	}
	if c.State != StateOpen {
		return apperr.ErrCartNotModifiable
	}
	if _, ok := c.Line(productID); !ok {
		return apperr.ErrItemNotInCart
	}

	if err := s.carts.RemoveLine(ctx, c.ID, productID); err != nil {
		return errors.Wrap(err, "remove line")
	}
	return nil
}

// UpdateQuantity sets the quantity of a line. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, newQuantity int) error {
	if newQuantity < 0 {
		return apperr.ErrInvalidQuantity
	}
	if newQuantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	c, err := s.activeCart(ctx, userID)
	if err != nil {
		return err
	}
	if c.State != StateOpen {
		return apperr.ErrCartNotModifiable
	}
	if _, ok := c.Line(productID); !ok {
		return apperr.ErrItemNotInCart
	}

	p, err := s.product(ctx, productID)
	if err != nil {
		return err
	}
	if p.AvailableQuantity == 0 {
		return apperr.ErrOutOfStock
	}
	if p.AvailableQuantity < newQuantity {
		return &apperr.InsufficientStockError{ProductID: productID, Available: p.AvailableQuantity}
	}

	if err := s.carts.SetLineQuantity(ctx, c.ID, productID, newQuantity); err != nil {
		return errors.Wrap(err, "set line quantity")
	}
	return nil
}

// Cancel empties the user's cart, marks it cancelled and opens a fresh cart
// so the user can keep shopping.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	c, err := s.carts.FindActive(ctx, userID)
	switch {
	case errors.Is(err, ErrNoActiveCart):
	case err != nil:
		return errors.Wrap(err, "find active cart")
	case c.State != StateOpen:
		return apperr.ErrCartNotModifiable
	default:
		if err := s.carts.Cancel(ctx, c.ID); err != nil {
			return errors.Wrap(err, "cancel cart")
		}
		zctx.From(ctx).Info("Cart cancelled",
			zap.String("user_id", userID),
			zap.String("cart_id", c.ID),
			zap.Int("lines", len(c.Lines)),
		)
	}

	if _, err := s.carts.CreateOpen(ctx, userID); err != nil {
		return errors.Wrap(err, "open new cart")
	}
	return nil
}

func (s *Service) product(ctx context.Context, productID string) (catalog.Product, error) {
	p, ok, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return catalog.Product{}, errors.Wrapf(err, "get product %s", productID)
	}
	if !ok {
		return catalog.Product{}, &apperr.ProductNotFoundError{ProductID: productID}
	}
	return p, nil
}

// openCart returns the user's cart for mutation, creating it lazily.
func (s *Service) openCart(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.GetOrCreateOpenCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.State != StateOpen {
		return nil, apperr.ErrCartNotModifiable
	}
	return c, nil
}

// activeCart returns the user's existing cart; a user without one has
// nothing to remove or update.
func (s *Service) activeCart(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.FindActive(ctx, userID)
	if errors.Is(err, ErrNoActiveCart) {
		return nil, apperr.ErrItemNotInCart
	}
	if err != nil {
		return nil, errors.Wrap(err, "find active cart")
	}
	return c, nil
}
