package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

const (
	listProductsSQL = `SELECT id, name, price, category, available_quantity
		FROM products ORDER BY id`

	getProductSQL = `SELECT id, name, price, category, available_quantity
		FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products
		SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE id = $1 AND available_quantity >= $2`

	restoreStockSQL = `UPDATE products
		SET available_quantity = available_quantity + $2, updated_at = now()
		WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, category, available_quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			available_quantity = EXCLUDED.available_quantity,
			updated_at = now()`
)

var (
	_ catalog.Gateway = (*CatalogRepository)(nil)
	_ catalog.Lister  = (*CatalogRepository)(nil)
)

// CatalogRepository implements catalog.Gateway backed by the products table.
type CatalogRepository struct {
	db Querier
}

// NewCatalogRepository returns a CatalogRepository that uses db.
func NewCatalogRepository(db Querier) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns all products ordered by ID.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, apperr.Storage("list products", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, apperr.Storage("list products", err)
	}
	return products, nil
}

// GetProduct returns a product and whether it exists.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (catalog.Product, bool, error) {
	rows, err := r.db.Query(ctx, getProductSQL, id)
	if err != nil {
		return catalog.Product{}, false, apperr.Storage("get product", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, false, nil
		}
		return catalog.Product{}, false, apperr.Storage("get product", err)
	}
	return p, true, nil
}

// DecrementStock removes qty units with a conditional update. No rows
// affected means the product is missing or short.
func (r *CatalogRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	var affected int64
	if err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, decrementStockSQL, id, qty)
		affected = tag.RowsAffected()
		return err
	}); err != nil {
		return apperr.Storage("decrement stock", err)
	}
	if affected == 0 {
		return catalog.ErrInsufficientStock
	}
	return nil
}

// RestoreStock adds qty units back to a product.
func (r *CatalogRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	var affected int64
	if err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, restoreStockSQL, id, qty)
		affected = tag.RowsAffected()
		return err
	}); err != nil {
		return apperr.Storage("restore stock", err)
	}
	if affected == 0 {
		return errors.Errorf("restore stock: product %s not found", id)
	}
	return nil
}

// Upsert inserts or replaces a product, including its stock level.
func (r *CatalogRepository) Upsert(ctx context.Context, p catalog.Product) error {
	if _, err := r.db.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price.Decimal(), p.Category, p.AvailableQuantity,
	); err != nil {
		return apperr.Storage("upsert product", errors.Wrapf(err, "product %s", p.ID))
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Category, &p.AvailableQuantity)
	p.Price = money.FromDecimal(price)
	return p, err
}
