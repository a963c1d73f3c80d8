package domain

import "storefront/pkg/errors"

// Domain-specific errors
var (
	ErrUserIDRequired       = errors.NewValidation("user_id is required", nil)
	ErrNoOrderItems         = errors.NewValidation("order must contain at least one item", nil)
	ErrInvalidQuantity      = errors.NewValidation("item quantity must be greater than 0", nil)
	ErrInvalidUnitPrice     = errors.NewValidation("item unit price cannot be negative", nil)
	ErrIncompleteAddress    = errors.NewValidation("shipping address is incomplete", nil)
	ErrNegativeTotal        = errors.NewValidation("total price cannot be negative", nil)
	ErrInvalidPaymentMethod = errors.NewValidation("payment method must be one of card, paypal, upi, cod", nil)
	ErrInvalidRefundAmount  = errors.NewValidation("refund amount must be greater than 0", nil)
	ErrRefundExceedsTotal   = errors.NewValidation("refund amount cannot exceed the order total", nil)
)

// NewOrderNotFound creates a not found error with the order ID
func NewOrderNotFound(id interface{}) error {
	return errors.NewNotFound("order", id)
}

// NewInvalidTransition creates an invalid transition error for a status pair
func NewInvalidTransition(from, to Status) error {
	return errors.NewInvalidTransition(string(from), string(to))
}
