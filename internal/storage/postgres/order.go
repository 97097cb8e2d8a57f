package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, created_at, shipping_address, payment_token,
		subtotal, tax_total, shipping_fee, grand_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listOrdersByUserSQL = `SELECT o.id, o.created_at, o.grand_total, count(l.position)
		FROM orders o
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE o.user_id = $1
		GROUP BY o.id
		ORDER BY o.created_at DESC, o.id`

	getOrderSQL = `SELECT id, user_id, created_at, shipping_address, payment_token,
		subtotal, tax_total, shipping_fee, grand_total
		FROM orders WHERE id = $1 AND user_id = $2`

	listOrderLinesSQL = `SELECT product_id, product_name, category, unit_price, quantity, line_subtotal, line_tax
		FROM order_lines WHERE order_id = $1 ORDER BY position`
)

var orderLineColumns = []string{
	"order_id", "position", "product_id", "product_name", "category",
	"unit_price", "quantity", "line_subtotal", "line_tax",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db Querier
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db Querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create writes the order header and copies its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return errors.Wrapf(err, "parse order id %q", o.ID)
	}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createOrderSQL,
			id, o.UserID, o.CreatedAt, o.ShippingAddress, o.PaymentToken,
			o.Subtotal.Decimal(), o.TaxTotal.Decimal(), o.ShippingFee.Decimal(), o.GrandTotal.Decimal(),
		); err != nil {
			return errors.Wrap(err, "insert order")
		}

		_, err := tx.CopyFrom(ctx, pgx.Identifier{"order_lines"}, orderLineColumns,
			pgx.CopyFromSlice(len(o.Lines), func(i int) ([]any, error) {
				l := o.Lines[i]
				return []any{
					id, i, l.ProductID, l.ProductName, l.Category,
					l.UnitPrice.Decimal(), l.Quantity, l.LineSubtotal.Decimal(), l.LineTax.Decimal(),
				}, nil
			}),
		)
		return errors.Wrap(err, "copy order lines")
	})
	return apperr.Storage("create order", err)
}

// ListByUser returns the user's order summaries, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Summary, error) {
	rows, err := r.db.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, apperr.Storage("list orders", err)
	}
	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Summary, error) {
		var (
			s     order.Summary
			total decimal.Decimal
		)
		err := row.Scan(&s.ID, &s.CreatedAt, &total, &s.LineCount)
		s.GrandTotal = money.FromDecimal(total)
		return s, err
	})
	if err != nil {
		return nil, apperr.Storage("list orders", err)
	}
	return summaries, nil
}

// Get returns the order with its lines when it belongs to userID.
func (r *OrderRepository) Get(ctx context.Context, userID, orderID string) (*order.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.ErrOrderNotFound
	}

	rows, err := r.db.Query(ctx, getOrderSQL, orderID, userID)
	if err != nil {
		return nil, apperr.Storage("get order", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, apperr.Storage("get order", err)
	}

	rows, err = r.db.Query(ctx, listOrderLinesSQL, orderID)
	if err != nil {
		return nil, apperr.Storage("list order lines", err)
	}
	o.Lines, err = pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, apperr.Storage("list order lines", err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                                   order.Order
		subtotal, tax, shipping, grandTotal decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CreatedAt, &o.ShippingAddress, &o.PaymentToken,
		&subtotal, &tax, &shipping, &grandTotal,
	)
	o.Subtotal = money.FromDecimal(subtotal)
	o.TaxTotal = money.FromDecimal(tax)
	o.ShippingFee = money.FromDecimal(shipping)
	o.GrandTotal = money.FromDecimal(grandTotal)
	return &o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l                   order.Line
		unit, subtotal, tax decimal.Decimal
	)
	err := row.Scan(&l.ProductID, &l.ProductName, &l.Category, &unit, &l.Quantity, &subtotal, &tax)
	l.UnitPrice = money.FromDecimal(unit)
	l.LineSubtotal = money.FromDecimal(subtotal)
	l.LineTax = money.FromDecimal(tax)
	return l, err
}
