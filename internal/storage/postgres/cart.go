package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const (
	findActiveCartSQL = `SELECT id, user_id, state, created_at, updated_at
		FROM carts WHERE user_id = $1 AND state IN ('open', 'finalizing')`

	listCartLinesSQL = `SELECT product_id, quantity, added_at
		FROM cart_lines WHERE cart_id = $1 ORDER BY added_at, product_id`

	createOpenCartSQL = `INSERT INTO carts (id, user_id, state) VALUES ($1, $2, 'open')
		ON CONFLICT (user_id) WHERE state IN ('open', 'finalizing') DO NOTHING`

	// Line mutations hold a share lock on the cart row, so they serialize
	// with a concurrent state transition.
	lockCartSQL = `SELECT state FROM carts WHERE id = $1 FOR SHARE`

	addLineSQL = `INSERT INTO cart_lines (cart_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`

	setLineQuantitySQL = `UPDATE cart_lines SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`

	removeLineSQL = `DELETE FROM cart_lines WHERE cart_id = $1 AND product_id = $2`

	clearLinesSQL = `DELETE FROM cart_lines WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`

	transitionCartSQL = `UPDATE carts SET state = $3, updated_at = now() WHERE id = $1 AND state = $2`

	reopenStaleSQL = `UPDATE carts SET state = 'open', updated_at = now()
		WHERE state = 'finalizing' AND updated_at < $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db Querier
}

// NewCartRepository returns a CartRepository that uses db.
func NewCartRepository(db Querier) *CartRepository {
	return &CartRepository{db: db}
}

// FindActive returns the user's open or finalizing cart with its lines.
func (r *CartRepository) FindActive(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.db.Query(ctx, findActiveCartSQL, userID)
	if err != nil {
		return nil, apperr.Storage("find active cart", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNoActiveCart
		}
		return nil, apperr.Storage("find active cart", err)
	}

	rows, err = r.db.Query(ctx, listCartLinesSQL, c.ID)
	if err != nil {
		return nil, apperr.Storage("list cart lines", err)
	}
	c.Lines, err = pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, apperr.Storage("list cart lines", err)
	}
	return c, nil
}

// CreateOpen inserts an open cart unless one is already active, then returns
// the active cart.
func (r *CartRepository) CreateOpen(ctx context.Context, userID string) (*cart.Cart, error) {
	if _, err := r.db.Exec(ctx, createOpenCartSQL, uuid.NewString(), userID); err != nil {
		return nil, apperr.Storage("create cart", err)
	}
	return r.FindActive(ctx, userID)
}

// withOpenCart runs fn in a transaction holding a share lock on an open cart.
func (r *CartRepository) withOpenCart(ctx context.Context, cartID string, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var state cart.State
		if err := tx.QueryRow(ctx, lockCartSQL, cartID).Scan(&state); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.ErrCartNotModifiable
			}
			return apperr.Storage("lock cart", err)
		}
		if state != cart.StateOpen {
			return apperr.ErrCartNotModifiable
		}
		if err := fn(tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, touchCartSQL, cartID); err != nil {
			return apperr.Storage("touch cart", err)
		}
		return nil
	})
}

// AddLine merges qty into the product's line.
func (r *CartRepository) AddLine(ctx context.Context, cartID, productID string, qty int) error {
	err := r.withOpenCart(ctx, cartID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, addLineSQL, cartID, productID, qty); err != nil {
			return apperr.Storage("add line", err)
		}
		return nil
	})
	return apperr.Storage("add line", err)
}

// SetLineQuantity replaces the quantity of an existing line.
func (r *CartRepository) SetLineQuantity(ctx context.Context, cartID, productID string, qty int) error {
	err := r.withOpenCart(ctx, cartID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, setLineQuantitySQL, cartID, productID, qty)
		if err != nil {
			return apperr.Storage("set line quantity", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrItemNotInCart
		}
		return nil
	})
	return apperr.Storage("set line quantity", err)
}

// RemoveLine deletes an existing line.
func (r *CartRepository) RemoveLine(ctx context.Context, cartID, productID string) error {
	err := r.withOpenCart(ctx, cartID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, removeLineSQL, cartID, productID)
		if err != nil {
			return apperr.Storage("remove line", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrItemNotInCart
		}
		return nil
	})
	return apperr.Storage("remove line", err)
}

// Cancel clears the lines of an open cart and marks it cancelled.
func (r *CartRepository) Cancel(ctx context.Context, cartID string) error {
	err := r.withOpenCart(ctx, cartID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearLinesSQL, cartID); err != nil {
			return apperr.Storage("clear lines", err)
		}
		tag, err := tx.Exec(ctx, transitionCartSQL, cartID, cart.StateOpen, cart.StateCancelled)
		if err != nil {
			return apperr.Storage("cancel cart", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrCartNotModifiable
		}
		return nil
	})
	return apperr.Storage("cancel cart", err)
}

// Transition moves the cart from one state to another with a conditional
// update.
func (r *CartRepository) Transition(ctx context.Context, cartID string, from, to cart.State) error {
	if !from.CanTransitionTo(to) {
		return cart.ErrStateConflict
	}
	var affected int64
	if err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, transitionCartSQL, cartID, from, to)
		affected = tag.RowsAffected()
		return err
	}); err != nil {
		return apperr.Storage("transition cart", err)
	}
	if affected == 0 {
		return cart.ErrStateConflict
	}
	return nil
}

// ReopenStale reopens carts that have been finalizing since before the given
// time.
func (r *CartRepository) ReopenStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, reopenStaleSQL, before)
	if err != nil {
		return 0, apperr.Storage("reopen stale carts", err)
	}
	return tag.RowsAffected(), nil
}

func scanCart(row pgx.CollectableRow) (*cart.Cart, error) {
	var c cart.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.State, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ProductID, &l.Quantity, &l.AddedAt)
	return l, err
}
