package service

import (
	"errors"
	"fmt"

	"agrimarket/internal/models"
)

var (
	// -- Validation & Input --
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrMissingDeliveryAddress = errors.New("delivery address is required")
	ErrInvalidCategory        = errors.New("unknown product category")
	ErrInvalidPrice           = errors.New("price must be greater than zero")
	ErrUnknownStatus          = errors.New("unknown order status")

	// -- Resource State --
	ErrOutOfStock       = errors.New("requested quantity exceeds available stock")
	ErrCartItemNotFound = errors.New("product is not in the cart")
	ErrEmptyCart        = errors.New("cart is empty")

	// -- Authorization --
	ErrForbidden = errors.New("not permitted for this account")
)

// InvalidStatusTransitionError rejects a workflow move the transition table
// does not permit (including any move out of a terminal state).
type InvalidStatusTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
