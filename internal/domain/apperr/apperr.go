// Package apperr defines the error taxonomy shared by the cart, checkout and
// order packages. Every error kind carries a stable machine-readable Code
// that transports map to their own status codes.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeInvalidQuantity    Code = "invalid_quantity"
	CodeProductNotFound    Code = "product_not_found"
	CodeOutOfStock         Code = "out_of_stock"
	CodeInsufficientStock  Code = "insufficient_stock"
	CodeItemNotInCart      Code = "item_not_in_cart"
	CodeCartNotModifiable  Code = "cart_not_modifiable"
	CodeEmptyCart          Code = "empty_cart"
	CodeCheckoutInProgress Code = "checkout_in_progress"
	CodeOrderNotFound      Code = "order_not_found"
	CodeInvalidRequest     Code = "invalid_request"
	CodeDuplicateRequest   Code = "duplicate_request"
	CodeStorageFailure     Code = "storage_failure"
	CodeRollbackFailure    Code = "rollback_failure"
	CodeInternal           Code = "internal"
)

// Error is a domain error with a stable code and a human readable message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so wrapped sentinels and ad hoc
// errors built with New compare equal by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New returns an *Error with a custom message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidQuantity    = &Error{Code: CodeInvalidQuantity, Message: "quantity must be greater than 0"}
	ErrProductNotFound    = &Error{Code: CodeProductNotFound, Message: "product not found"}
	ErrOutOfStock         = &Error{Code: CodeOutOfStock, Message: "product is out of stock"}
	ErrItemNotInCart      = &Error{Code: CodeItemNotInCart, Message: "item is not in the cart"}
	ErrCartNotModifiable  = &Error{Code: CodeCartNotModifiable, Message: "cart can not be modified while checkout is in progress"}
	ErrEmptyCart          = &Error{Code: CodeEmptyCart, Message: "cart is empty"}
	ErrCheckoutInProgress = &Error{Code: CodeCheckoutInProgress, Message: "checkout already in progress"}
	ErrOrderNotFound      = &Error{Code: CodeOrderNotFound, Message: "order not found"}
	ErrInvalidRequest     = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrDuplicateRequest   = &Error{Code: CodeDuplicateRequest, Message: "duplicate request"}
)

// InsufficientStockError reports that a product has fewer units available
// than requested.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available", e.ProductID, e.Available)
}

// ProductNotFoundError reports a missing catalog product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Is lets errors.Is(err, ErrProductNotFound) match.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// StorageError wraps an underlying I/O failure. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

// Storage wraps err as a *StorageError. It returns nil for a nil err and
// leaves errors that already carry a domain code untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != CodeInternal {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable reports that the operation may be retried by the caller.
func (e *StorageError) Retryable() bool {
	return true
}

// StockAdjustment identifies a stock decrement that could not be undone.
type StockAdjustment struct {
	ProductID string
	Quantity  int
}

// RollbackFailureError reports that compensating stock restoration failed
// after a partial decrement. Inventory needs manual reconciliation.
type RollbackFailureError struct {
	// Cause is the failure that triggered the rollback.
	Cause error
	// Err is the restoration failure.
	Err error
	// Unrestored lists the decrements that are still applied.
	Unrestored []StockAdjustment
}

func (e *RollbackFailureError) Error() string {
	return fmt.Sprintf("rollback failure: %d stock adjustments not restored after %v: %v",
		len(e.Unrestored), e.Cause, e.Err)
}

func (e *RollbackFailureError) Unwrap() []error {
	return []error{e.Err, e.Cause}
}

// CodeOf returns the stable code for err, or CodeInternal for unknown errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var rbErr *RollbackFailureError
	if errors.As(err, &rbErr) {
		return CodeRollbackFailure
	}
	var isErr *InsufficientStockError
	if errors.As(err, &isErr) {
		return CodeInsufficientStock
	}
	var pnfErr *ProductNotFoundError
	if errors.As(err, &pnfErr) {
		return CodeProductNotFound
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	var stErr *StorageError
	if errors.As(err, &stErr) {
		return CodeStorageFailure
	}
	return CodeInternal
}
