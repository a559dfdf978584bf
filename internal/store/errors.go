package store

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")

	// ErrProductReferenced blocks hard deletion of a product that existing
	// order items still point at.
	ErrProductReferenced = errors.New("product is referenced by existing order items")

	// ErrStatusConflict means the order's status changed between the caller's
	// read and the guarded write; the transition must be re-evaluated against
	// the current status.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// InsufficientStockError names the offending product when a checkout line
// fails stock re-validation. An inactive product reports zero availability.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}
