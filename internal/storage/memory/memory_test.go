package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

func TestCatalog_DecrementNeverNegative(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(catalog.Product{ID: "p1", Price: money.FromUnits(1), AvailableQuantity: 10})

	var ok atomic.Int64
	var g errgroup.Group
	for range 50 {
		g.Go(func() error {
			if err := c.DecrementStock(ctx, "p1", 1); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	p, found, err := c.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, p.AvailableQuantity)
	assert.Equal(t, int64(10), ok.Load())
}

func TestCatalog_RestoreStock(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(catalog.Product{ID: "p1", AvailableQuantity: 2})

	require.NoError(t, c.DecrementStock(ctx, "p1", 2))
	require.ErrorIs(t, c.DecrementStock(ctx, "p1", 1), catalog.ErrInsufficientStock)
	require.NoError(t, c.RestoreStock(ctx, "p1", 2))

	p, _, err := c.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.AvailableQuantity)

	require.Error(t, c.RestoreStock(ctx, "missing", 1))
}

func TestCatalog_ListSorted(t *testing.T) {
	c := NewCatalog(catalog.Product{ID: "b"}, catalog.Product{ID: "a"})
	require.NoError(t, c.Upsert(context.Background(), catalog.Product{ID: "c"}))

	products, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "a", products[0].ID)
	assert.Equal(t, "c", products[2].ID)
}

func TestCartRepository_SingleActiveCart(t *testing.T) {
	ctx := context.Background()
	r := NewCartRepository()

	first, err := r.CreateOpen(ctx, "u1")
	require.NoError(t, err)
	second, err := r.CreateOpen(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, r.Transition(ctx, first.ID, cart.StateOpen, cart.StateFinalizing))
	require.NoError(t, r.Transition(ctx, first.ID, cart.StateFinalizing, cart.StateFinalized))

	_, err = r.FindActive(ctx, "u1")
	require.ErrorIs(t, err, cart.ErrNoActiveCart)

	third, err := r.CreateOpen(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestCartRepository_LinesRequireOpenCart(t *testing.T) {
	ctx := context.Background()
	r := NewCartRepository()

	c, err := r.CreateOpen(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, r.AddLine(ctx, c.ID, "p1", 1))
	require.NoError(t, r.AddLine(ctx, c.ID, "p1", 2))
	require.NoError(t, r.AddLine(ctx, c.ID, "p2", 1))

	got, err := r.FindActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "p1", got.Lines[0].ProductID)
	assert.Equal(t, 3, got.Lines[0].Quantity)

	require.NoError(t, r.Transition(ctx, c.ID, cart.StateOpen, cart.StateFinalizing))
	require.ErrorIs(t, r.AddLine(ctx, c.ID, "p3", 1), apperr.ErrCartNotModifiable)
	require.ErrorIs(t, r.RemoveLine(ctx, c.ID, "p1"), apperr.ErrCartNotModifiable)
	require.ErrorIs(t, r.Transition(ctx, c.ID, cart.StateOpen, cart.StateFinalizing), cart.ErrStateConflict)

	// Returned carts are copies.
	got.Lines[0].Quantity = 99
	again, err := r.FindActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, again.Lines[0].Quantity)
}

func TestCartRepository_ConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	r := NewCartRepository()
	c, err := r.CreateOpen(ctx, "u1")
	require.NoError(t, err)

	var won atomic.Int64
	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			if err := r.Transition(ctx, c.ID, cart.StateOpen, cart.StateFinalizing); err == nil {
				won.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), won.Load())
}

func TestCartRepository_ReopenStale(t *testing.T) {
	ctx := context.Background()
	r := NewCartRepository()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	stale, err := r.CreateOpen(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, r.Transition(ctx, stale.ID, cart.StateOpen, cart.StateFinalizing))

	now = now.Add(10 * time.Minute)
	fresh, err := r.CreateOpen(ctx, "u2")
	require.NoError(t, err)
	require.NoError(t, r.Transition(ctx, fresh.ID, cart.StateOpen, cart.StateFinalizing))

	n, err := r.ReopenStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, ok := r.Get(ctx, stale.ID)
	require.True(t, ok)
	assert.Equal(t, cart.StateOpen, got.State)
	got, ok = r.Get(ctx, fresh.ID)
	require.True(t, ok)
	assert.Equal(t, cart.StateFinalizing, got.State)
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepository()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, r.Create(ctx, &order.Order{
			ID:        id,
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Lines:     []order.Line{{ProductID: "p1", Quantity: 1}},
		}))
	}
	require.NoError(t, r.Create(ctx, &order.Order{ID: "x", UserID: "u2", CreatedAt: base}))

	summaries, err := r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "o3", summaries[0].ID)
	assert.Equal(t, "o1", summaries[2].ID)
	assert.Equal(t, 1, summaries[0].LineCount)

	_, err = r.Get(ctx, "u1", "x")
	require.ErrorIs(t, err, apperr.ErrOrderNotFound)
	o, err := r.Get(ctx, "u2", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", o.ID)
	assert.Equal(t, 4, r.Count())
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, reserved, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, reserved)

	orderID, reserved, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Empty(t, orderID)

	require.NoError(t, s.Complete(ctx, "k", "o1"))
	orderID, _, err = s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "o1", orderID)

	now = now.Add(2 * time.Minute)
	_, reserved, err = s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, reserved, "expired keys can be reused")

	require.NoError(t, s.Release(ctx, "k"))
	_, reserved, err = s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	r := NewAPIKeyRepository()

	require.NoError(t, r.Upsert(ctx, auth.APIKeyInfo{ID: "default", KeyHash: "h1", Scopes: []string{auth.ScopeCreateOrder}}))
	info, err := r.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, info.HasScope(auth.ScopeCreateOrder))

	// Rotating the key drops the old hash.
	require.NoError(t, r.Upsert(ctx, auth.APIKeyInfo{ID: "default", KeyHash: "h2"}))
	_, err = r.FindByHash(ctx, "h1")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
	info, err = r.FindByHash(ctx, "h2")
	require.NoError(t, err)
	assert.False(t, info.HasScope(auth.ScopeCreateOrder))
}
