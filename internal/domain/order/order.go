package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Line is an immutable snapshot of a purchased product at checkout time.
type Line struct {
	ProductID    string      `json:"productId"`
	ProductName  string      `json:"productName"`
	Category     string      `json:"category"`
	UnitPrice    money.Money `json:"unitPrice"`
	Quantity     int         `json:"quantity"`
	LineSubtotal money.Money `json:"lineSubtotal"`
	LineTax      money.Money `json:"lineTax"`
}

// Order represents a completed checkout. Orders are never modified after
// creation.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	CreatedAt       time.Time   `json:"createdAt"`
	ShippingAddress string      `json:"shippingAddress"`
	PaymentToken    string      `json:"paymentToken"`
	Subtotal        money.Money `json:"subtotal"`
	TaxTotal        money.Money `json:"taxTotal"`
	ShippingFee     money.Money `json:"shippingFee"`
	GrandTotal      money.Money `json:"grandTotal"`
	Lines           []Line      `json:"lines"`
}

// Summary is the list view of an order.
type Summary struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"createdAt"`
	GrandTotal money.Money `json:"grandTotal"`
	LineCount  int         `json:"lineCount"`
}

// Params holds the caller supplied parts of a new order.
type Params struct {
	UserID          string
	ShippingAddress string
	PaymentToken    string
	CreatedAt       time.Time
}

// New snapshots a priced cart into an order. The raw payment token is masked
// before it is stored on the order and the grand total is computed here from
// the priced parts.
func New(p Params, priced *pricing.PricedCart) (*Order, error) {
	if priced == nil || len(priced.Lines) == 0 {
		return nil, errors.New("order must have at least one line")
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		CreatedAt:       createdAt,
		ShippingAddress: p.ShippingAddress,
		PaymentToken:    MaskPaymentToken(p.PaymentToken),
		ShippingFee:     priced.ShippingFee,
		Lines:           make([]Line, 0, len(priced.Lines)),
	}
	for _, pl := range priced.Lines {
		o.Lines = append(o.Lines, Line{
			ProductID:    pl.ProductID,
			ProductName:  pl.ProductName,
			Category:     pl.Category,
			UnitPrice:    pl.UnitPrice,
			Quantity:     pl.Quantity,
			LineSubtotal: pl.LineSubtotal,
			LineTax:      pl.LineTax,
		})
		o.Subtotal = o.Subtotal.Add(pl.LineSubtotal)
		o.TaxTotal = o.TaxTotal.Add(pl.LineTax)
	}
	o.GrandTotal = o.Subtotal.Add(o.TaxTotal).Add(o.ShippingFee)
	return o, nil
}

// Summary returns the list view of o.
func (o *Order) Summary() Summary {
	return Summary{
		ID:         o.ID,
		CreatedAt:  o.CreatedAt,
		GrandTotal: o.GrandTotal,
		LineCount:  len(o.Lines),
	}
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create writes the order and all its lines atomically.
	Create(ctx context.Context, order *Order) error
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Summary, error)
	// Get returns the order if it exists and belongs to userID, otherwise
	// apperr.ErrOrderNotFound.
	Get(ctx context.Context, userID, orderID string) (*Order, error)
}
