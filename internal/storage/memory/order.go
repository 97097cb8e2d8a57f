package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is an in-memory order.Repository.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
	byUser map[string][]string
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*order.Order),
		byUser: make(map[string][]string),
	}
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	return &cp
}

// Create stores the order.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
	r.byUser[o.UserID] = append(r.byUser[o.UserID], o.ID)
	return nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byUser[userID]
	out := make([]order.Summary, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.orders[id].Summary())
	}
	slices.SortStableFunc(out, func(a, b order.Summary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Get returns the order if it belongs to userID.
func (r *OrderRepository) Get(_ context.Context, userID, orderID string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, apperr.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// Count returns the number of stored orders.
func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
