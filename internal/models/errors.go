package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for fatal checkout and lifecycle failures. Validate never
// returns these; it folds the same conditions into ValidationResult instead.
var (
	ErrNotFound          = errors.New("not found")
	ErrOwnershipMismatch = errors.New("resource does not belong to acting identity")
	ErrCartExpired       = errors.New("cart has expired")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrStoreUnavailable  = errors.New("store is not accepting orders")
	ErrOutOfZone         = errors.New("delivery address is outside the delivery zone")
	ErrPriceNotFound     = errors.New("no price configured for variant")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// TransitionError names the offending from/to pair of a rejected status
// change. It unwraps to ErrInvalidTransition.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from '%s' to '%s'", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
