package orders

import (
	"sokoni/internal/models"
)

// transitions is the complete status graph. Cancelled and refunded admit
// nothing; completed admits only refunded.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:        {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:      {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:      {models.StatusReadyForPickup, models.StatusCancelled},
	models.StatusReadyForPickup: {models.StatusOutForDelivery, models.StatusDelivered, models.StatusCancelled},
	models.StatusOutForDelivery: {models.StatusDelivered, models.StatusCancelled},
	models.StatusDelivered:      {models.StatusCompleted, models.StatusRefunded},
	models.StatusCompleted:      {models.StatusRefunded},
}

// customerCancellable is the subset of states a customer may cancel from.
// Once food is being packed for handover, cancellation needs staff.
var customerCancellable = map[models.OrderStatus]bool{
	models.StatusPending:   true,
	models.StatusConfirmed: true,
	models.StatusPreparing: true,
}

// CanTransition reports whether from -> to is in the status graph.
func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// validateTransition returns a TransitionError naming the offending pair.
func validateTransition(from, to models.OrderStatus) error {
	if !CanTransition(from, to) {
		return &models.TransitionError{From: from, To: to}
	}
	return nil
}

// fulfillmentStatusFor returns the fulfillment status an order carries once
// it enters the given state. Delivered and completed mark the handover done.
func fulfillmentStatusFor(to models.OrderStatus, current models.FulfillmentStatus) models.FulfillmentStatus {
	if to == models.StatusDelivered || to == models.StatusCompleted {
		return models.FulfillmentFulfilled
	}
	return current
}
