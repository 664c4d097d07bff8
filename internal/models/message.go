package models

import (
	"fmt"
	"time"
)

// VendorOrderMessage is sent to the vendor's queue when an order is placed.
type VendorOrderMessage struct {
	OrderID     int64       `json:"order_id"`
	DisplayID   int64       `json:"display_id"`
	VendorID    int64       `json:"vendor_id"`
	CustomerID  int64       `json:"customer_id"`
	Items       []OrderItem `json:"items"`
	Total       int64       `json:"total"`
	DeliveryFee int64       `json:"delivery_fee"`
	Currency    string      `json:"currency"`
	PlacedAt    time.Time   `json:"placed_at"`
}

// RiderDispatchMessage is sent to the rider dispatch queue when an order
// leaves ready_for_pickup.
type RiderDispatchMessage struct {
	OrderID    int64     `json:"order_id"`
	DisplayID  int64     `json:"display_id"`
	RiderID    int64     `json:"rider_id"`
	VendorID   int64     `json:"vendor_id"`
	AddressID  *int64    `json:"address_id,omitempty"`
	DispatchAt time.Time `json:"dispatch_at"`
}

// StatusUpdateMessage is fanned out to customer-facing subscribers on every
// successful status transition.
type StatusUpdateMessage struct {
	OrderID    int64       `json:"order_id"`
	DisplayID  int64       `json:"display_id"`
	CustomerID int64       `json:"customer_id"`
	OldStatus  OrderStatus `json:"old_status"`
	NewStatus  OrderStatus `json:"new_status"`
	ChangedBy  string      `json:"changed_by"`
	RiderName  *string     `json:"rider_name,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewStatusUpdateMessage creates a StatusUpdateMessage for an order transition
func NewStatusUpdateMessage(o *Order, oldStatus OrderStatus, changedBy string) *StatusUpdateMessage {
	return &StatusUpdateMessage{
		OrderID:    o.ID,
		DisplayID:  o.DisplayID,
		CustomerID: o.CustomerID,
		OldStatus:  oldStatus,
		NewStatus:  o.Status,
		ChangedBy:  changedBy,
		RiderName:  o.RiderName,
		Timestamp:  time.Now().UTC(),
	}
}

// VendorRoutingKey generates the routing key for vendor order messages
func VendorRoutingKey(vendorID int64) string {
	return fmt.Sprintf("vendor.new_order.%d", vendorID)
}

// RiderRoutingKey generates the routing key for rider dispatch messages
func RiderRoutingKey(riderID int64) string {
	return fmt.Sprintf("rider.dispatch.%d", riderID)
}
