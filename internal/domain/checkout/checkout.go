// Package checkout converts a user's cart into an order.
//
// Finalize moves the cart to finalizing, re-validates stock, prices the cart,
// then decrements stock, persists the order and finalizes the cart inside a
// single UnitOfWork. Any partial stock decrement is restored before an error
// is returned, and the cart goes back to open so the user can retry.
package checkout

import (
	"context"
	"strings"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Stage is a step of a running checkout.
type Stage int

const (
	// StageIdle is a checkout that has not locked the cart yet.
	StageIdle Stage = iota
	// StageReserving re-validates stock for every line.
	StageReserving
	// StagePricing prices the cart snapshot.
	StagePricing
	// StagePersisting decrements stock and writes the order.
	StagePersisting
	// StageDone is a committed checkout.
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageReserving:
		return "reserving"
	case StagePricing:
		return "pricing"
	case StagePersisting:
		return "persisting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Stores are the repositories a UnitOfWork hands to its callback. Inside a
// transactional UnitOfWork they all share the same transaction.
type Stores struct {
	Stock  catalog.Gateway
	Orders order.Repository
	Carts  cart.Repository
	// Transactional is set when the UnitOfWork discards every write made
	// through these stores once fn returns an error.
	Transactional bool
}

// UnitOfWork runs fn atomically. When fn returns an error every write made
// through the given Stores is discarded if Stores.Transactional is set;
// otherwise fn compensates its own writes.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// FinalizeRequest holds the checkout input.
type FinalizeRequest struct {
	UserID          string
	ShippingAddress string
	PaymentToken    string
}

// Validate checks that every field is present.
func (r FinalizeRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return apperr.New(apperr.CodeInvalidRequest, "user id is required")
	case strings.TrimSpace(r.ShippingAddress) == "":
		return apperr.New(apperr.CodeInvalidRequest, "shipping address is required")
	case strings.TrimSpace(r.PaymentToken) == "":
		return apperr.New(apperr.CodeInvalidRequest, "payment token is required")
	}
	return nil
}
