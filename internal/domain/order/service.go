package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
)

// Service exposes read access to a user's orders.
type Service struct {
	orders Repository
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// ListOrders returns the user's order summaries, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Summary, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "user id is required")
	}
	summaries, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return summaries, nil
}

// GetOrder returns one of the user's orders. Orders owned by another user are
// reported as not found.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "user id is required")
	}
	if orderID == "" {
		return nil, apperr.ErrOrderNotFound
	}
	o, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	return o, nil
}
