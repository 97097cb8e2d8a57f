package cart

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

// --- Mock implementations ---

type mockCatalog struct {
	products map[string]catalog.Product
	getErr   error
}

func (m *mockCatalog) GetProduct(_ context.Context, id string) (catalog.Product, bool, error) {
	if m.getErr != nil {
		return catalog.Product{}, false, m.getErr
	}
	p, ok := m.products[id]
	return p, ok, nil
}

func (m *mockCatalog) DecrementStock(context.Context, string, int) error {
	return errors.New("not used by cart service")
}

func (m *mockCatalog) RestoreStock(context.Context, string, int) error {
	return errors.New("not used by cart service")
}

type mockCartRepo struct {
	mu     sync.Mutex
	seq    int
	carts  map[string]*Cart
	addErr error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*Cart)}
}

func (m *mockCartRepo) FindActive(_ context.Context, userID string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == userID && c.State.IsActive() {
			cp := *c
			cp.Lines = append([]Line(nil), c.Lines...)
			return &cp, nil
		}
	}
	return nil, ErrNoActiveCart
}

func (m *mockCartRepo) CreateOpen(ctx context.Context, userID string) (*Cart, error) {
	if c, err := m.FindActive(ctx, userID); err == nil {
		return c, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c := &Cart{ID: "cart-" + strconv.Itoa(m.seq), UserID: userID, State: StateOpen}
	m.carts[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *mockCartRepo) AddLine(_ context.Context, cartID, productID string, qty int) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	if c.State != StateOpen {
		return apperr.ErrCartNotModifiable
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity += qty
			return nil
		}
	}
	c.Lines = append(c.Lines, Line{ProductID: productID, Quantity: qty, AddedAt: time.Now()})
	return nil
}

func (m *mockCartRepo) SetLineQuantity(_ context.Context, cartID, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = qty
			return nil
		}
	}
	return apperr.ErrItemNotInCart
}

func (m *mockCartRepo) RemoveLine(_ context.Context, cartID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return apperr.ErrItemNotInCart
}

func (m *mockCartRepo) Cancel(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	c.Lines = nil
	c.State = StateCancelled
	return nil
}

func (m *mockCartRepo) Transition(_ context.Context, cartID string, from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	if c.State != from {
		return ErrStateConflict
	}
	c.State = to
	return nil
}

func (m *mockCartRepo) ReopenStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *mockCartRepo) all(userID string) []*Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Cart
	for _, c := range m.carts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// --- Helpers ---

func newTestCatalog(products ...catalog.Product) *mockCatalog {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalog{products: byID}
}

func newTestProduct(id string, available int) catalog.Product {
	return catalog.Product{
		ID:                id,
		Name:              "Product " + id,
		Price:             money.MustParse("10.00"),
		Category:          "Accesorios",
		AvailableQuantity: available,
	}
}

// --- Tests ---

func TestAddItem_MergesLines(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog(newTestProduct("p1", 10)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 3))
	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p1", c.Lines[0].ProductID)
	assert.Equal(t, 5, c.Lines[0].Quantity)
}

func TestAddItem_Validation(t *testing.T) {
	tests := []struct {
		name     string
		products []catalog.Product
		existing int
		product  string
		quantity int
		wantErr  error
	}{
		{name: "zero quantity", products: []catalog.Product{newTestProduct("p1", 5)}, product: "p1", quantity: 0, wantErr: apperr.ErrInvalidQuantity},
		{name: "negative quantity", products: []catalog.Product{newTestProduct("p1", 5)}, product: "p1", quantity: -1, wantErr: apperr.ErrInvalidQuantity},
		{name: "unknown product", product: "missing", quantity: 1, wantErr: apperr.ErrProductNotFound},
		{name: "out of stock", products: []catalog.Product{newTestProduct("p1", 0)}, product: "p1", quantity: 1, wantErr: apperr.ErrOutOfStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockCartRepo(), newTestCatalog(tt.products...))

			err := svc.AddItem(context.Background(), "u1", tt.product, tt.quantity)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAddItem_InsufficientStockCountsExistingLine(t *testing.T) {
	svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 4)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 3))

	err := svc.AddItem(ctx, "u1", "p1", 2)
	var isErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p1", isErr.ProductID)
	assert.Equal(t, 4, isErr.Available)

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.TotalQuantity())
}

func TestAddItem_DoesNotCreateCartOnValidationFailure(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog())

	err := svc.AddItem(context.Background(), "u1", "missing", 1)
	require.Error(t, err)
	assert.Empty(t, repo.all("u1"))
}

func TestAddItem_FinalizingCart(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog(newTestProduct("p1", 10)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, repo.Transition(ctx, c.ID, StateOpen, StateFinalizing))

	err = svc.AddItem(ctx, "u1", "p1", 1)
	require.ErrorIs(t, err, apperr.ErrCartNotModifiable)
	assert.Len(t, repo.all("u1"), 1, "no second cart may be opened while finalizing")
}

func TestAddItem_CatalogError(t *testing.T) {
	cat := newTestCatalog()
	cat.getErr = errors.New("catalog down")
	svc := NewService(newMockCartRepo(), cat)

	err := svc.AddItem(context.Background(), "u1", "p1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get product p1")
}

func TestRemoveItem_SecondCallReportsItemNotInCart(t *testing.T) {
	svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 10)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.RemoveItem(ctx, "u1", "p1"))

	err := svc.RemoveItem(ctx, "u1", "p1")
	require.ErrorIs(t, err, apperr.ErrItemNotInCart)

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestRemoveItem_NoCart(t *testing.T) {
	svc := NewService(newMockCartRepo(), newTestCatalog())

	err := svc.RemoveItem(context.Background(), "nobody", "p1")
	require.ErrorIs(t, err, apperr.ErrItemNotInCart)
}

func TestRemoveItem_FinalizingCart(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog(newTestProduct("p1", 10)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, repo.Transition(ctx, c.ID, StateOpen, StateFinalizing))

	require.ErrorIs(t, svc.RemoveItem(ctx, "u1", "p1"), apperr.ErrCartNotModifiable)
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("sets absolute quantity", func(t *testing.T) {
		svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 10)))
		require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))

		require.NoError(t, svc.UpdateQuantity(ctx, "u1", "p1", 7))

		c, err := svc.Get(ctx, "u1")
		require.NoError(t, err)
		line, ok := c.Line("p1")
		require.True(t, ok)
		assert.Equal(t, 7, line.Quantity)
	})

	t.Run("zero removes the line", func(t *testing.T) {
		svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 10)))
		require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))

		require.NoError(t, svc.UpdateQuantity(ctx, "u1", "p1", 0))

		c, err := svc.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())
	})

	t.Run("revalidates stock", func(t *testing.T) {
		svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 5)))
		require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))

		err := svc.UpdateQuantity(ctx, "u1", "p1", 6)
		var isErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &isErr)
		assert.Equal(t, 5, isErr.Available)
	})

	t.Run("negative quantity", func(t *testing.T) {
		svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 5)))
		require.ErrorIs(t, svc.UpdateQuantity(ctx, "u1", "p1", -2), apperr.ErrInvalidQuantity)
	})

	t.Run("missing line", func(t *testing.T) {
		svc := NewService(newMockCartRepo(), newTestCatalog(newTestProduct("p1", 5), newTestProduct("p2", 5)))
		require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
		require.ErrorIs(t, svc.UpdateQuantity(ctx, "u1", "p2", 1), apperr.ErrItemNotInCart)
	})
}

func TestCancel_OpensFreshCart(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog(newTestProduct("p1", 10)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	before, err := svc.Get(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, "u1"))

	after, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, StateOpen, after.State)
	assert.True(t, after.IsEmpty())

	carts := repo.all("u1")
	require.Len(t, carts, 2)
	for _, c := range carts {
		if c.ID == before.ID {
			assert.Equal(t, StateCancelled, c.State)
			assert.Empty(t, c.Lines)
		}
	}
}

func TestCancel_FinalizingCart(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog(newTestProduct("p1", 10)))
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, repo.Transition(ctx, c.ID, StateOpen, StateFinalizing))

	require.ErrorIs(t, svc.Cancel(ctx, "u1"), apperr.ErrCartNotModifiable)
}

func TestGet_NoCartIsNotPersisted(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog())

	c, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, c.State)
	assert.Empty(t, c.ID)
	assert.Empty(t, repo.all("u1"))
}

func TestGetOrCreateOpenCart_Idempotent(t *testing.T) {
	repo := newMockCartRepo()
	svc := NewService(repo, newTestCatalog())
	ctx := context.Background()

	first, err := svc.GetOrCreateOpenCart(ctx, "u1")
	require.NoError(t, err)
	second, err := svc.GetOrCreateOpenCart(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.all("u1"), 1)
}

func TestState_CanTransitionTo(t *testing.T) {
	assert.True(t, StateOpen.CanTransitionTo(StateFinalizing))
	assert.True(t, StateFinalizing.CanTransitionTo(StateFinalized))
	assert.True(t, StateFinalizing.CanTransitionTo(StateOpen))
	assert.False(t, StateFinalized.CanTransitionTo(StateOpen))
	assert.False(t, StateCancelled.CanTransitionTo(StateOpen))
	assert.False(t, StateOpen.CanTransitionTo(StateFinalized))
}
