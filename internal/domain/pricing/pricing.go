// Package pricing computes subtotal, tax, shipping and grand total for a cart.
//
// The cart view and checkout both go through Price, so the totals shown to a
// user always match the order that gets persisted.
package pricing

import (
	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

var (
	// FreeShippingThreshold is the subtotal that must be exceeded for free
	// shipping.
	FreeShippingThreshold = money.FromUnits(1000)
	// FlatShippingFee is charged for non-empty carts at or below the threshold.
	FlatShippingFee = money.FromUnits(50)
)

// Lookup resolves a product by id from an already fetched snapshot.
type Lookup func(productID string) (catalog.Product, bool)

// MapLookup returns a Lookup backed by products keyed by id.
func MapLookup(products map[string]catalog.Product) Lookup {
	return func(productID string) (catalog.Product, bool) {
		p, ok := products[productID]
		return p, ok
	}
}

// PricedLine is a cart line priced against the catalog.
type PricedLine struct {
	ProductID    string      `json:"productId"`
	ProductName  string      `json:"productName"`
	Category     string      `json:"category"`
	UnitPrice    money.Money `json:"unitPrice"`
	Quantity     int         `json:"quantity"`
	TaxRate      money.Rate  `json:"-"`
	LineSubtotal money.Money `json:"lineSubtotal"`
	LineTax      money.Money `json:"lineTax"`
}

// PricedCart is the result of pricing a cart.
type PricedCart struct {
	CartID      string       `json:"cartId,omitempty"`
	State       cart.State   `json:"state"`
	Lines       []PricedLine `json:"lines"`
	Subtotal    money.Money  `json:"subtotal"`
	TaxTotal    money.Money  `json:"taxTotal"`
	ShippingFee money.Money  `json:"shippingFee"`
	GrandTotal  money.Money  `json:"grandTotal"`
}

// Price prices every line of c using products returned by lookup. Tax is
// rounded per line and summed; the grand total is derived once from the
// rounded parts.
func Price(c *cart.Cart, lookup Lookup) (*PricedCart, error) {
	pc := &PricedCart{
		CartID: c.ID,
		State:  c.State,
		Lines:  make([]PricedLine, 0, len(c.Lines)),
	}

	for _, l := range c.Lines {
		p, ok := lookup(l.ProductID)
		if !ok {
			return nil, &apperr.ProductNotFoundError{ProductID: l.ProductID}
		}

		rate := TaxRate(p.Category)
		subtotal := p.Price.Mul(l.Quantity)
		tax := subtotal.ApplyRate(rate)

		pc.Lines = append(pc.Lines, PricedLine{
			ProductID:    p.ID,
			ProductName:  p.Name,
			Category:     p.Category,
			UnitPrice:    p.Price,
			Quantity:     l.Quantity,
			TaxRate:      rate,
			LineSubtotal: subtotal,
			LineTax:      tax,
		})
		pc.Subtotal = pc.Subtotal.Add(subtotal)
		pc.TaxTotal = pc.TaxTotal.Add(tax)
	}

	pc.ShippingFee = ShippingFee(pc.Subtotal, len(pc.Lines))
	pc.GrandTotal = pc.Subtotal.Add(pc.TaxTotal).Add(pc.ShippingFee)
	return pc, nil
}

// ShippingFee returns the fee for a cart with the given subtotal and number
// of lines. Empty carts ship for free.
func ShippingFee(subtotal money.Money, lines int) money.Money {
	if lines == 0 || subtotal.GreaterThan(FreeShippingThreshold) {
		return money.Zero
	}
	return FlatShippingFee
}
