package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// State is the lifecycle state of a cart.
type State string

const (
	// StateOpen carts accept line mutations.
	StateOpen State = "open"
	// StateFinalizing marks a cart whose checkout is running. It guards
	// against a concurrent second checkout for the same user.
	StateFinalizing State = "finalizing"
	// StateFinalized carts have been converted into an order.
	StateFinalized State = "finalized"
	// StateCancelled carts were emptied and abandoned by the user.
	StateCancelled State = "cancelled"
)

// IsActive reports whether the state counts towards the single active cart
// per user.
func (s State) IsActive() bool {
	return s == StateOpen || s == StateFinalizing
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateFinalized || s == StateCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateOpen:
		return next == StateFinalizing || next == StateCancelled
	case StateFinalizing:
		return next == StateFinalized || next == StateOpen
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

var (
	// ErrNoActiveCart is returned by Repository.FindActive when the user has
	// neither an open nor a finalizing cart.
	ErrNoActiveCart = errors.New("no active cart")
	// ErrStateConflict is returned by Repository.Transition when the cart is
	// not in the expected source state.
	ErrStateConflict = errors.New("cart state conflict")
)

// Line is a product and quantity held in a cart.
type Line struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart holds the lines a user intends to buy.
type Cart struct {
	ID        string
	UserID    string
	State     State
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line returns the line for productID and whether it exists.
func (c *Cart) Line(productID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// TotalQuantity returns the number of units across all lines.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// Repository persists carts and their lines. Line mutations and transitions
// are conditional on the cart state at the storage level.
type Repository interface {
	// FindActive returns the user's open or finalizing cart with its lines
	// in insertion order, or ErrNoActiveCart.
	FindActive(ctx context.Context, userID string) (*Cart, error)
	// CreateOpen inserts an empty open cart. When the user already has an
	// active cart, that cart is returned instead.
	CreateOpen(ctx context.Context, userID string) (*Cart, error)
	// AddLine adds qty units of a product, merging with an existing line.
	AddLine(ctx context.Context, cartID, productID string, qty int) error
	// SetLineQuantity replaces the quantity of an existing line.
	SetLineQuantity(ctx context.Context, cartID, productID string, qty int) error
	// RemoveLine deletes a line.
	RemoveLine(ctx context.Context, cartID, productID string) error
	// Cancel removes every line and moves an open cart to cancelled.
	Cancel(ctx context.Context, cartID string) error
	// Transition moves the cart from one state to another, failing with
	// ErrStateConflict when it is not currently in from.
	Transition(ctx context.Context, cartID string, from, to State) error
	// ReopenStale moves carts that have been finalizing since before the
	// given time back to open and returns how many were reopened.
	ReopenStale(ctx context.Context, before time.Time) (int64, error)
}
