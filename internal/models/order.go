package models

import (
	"time"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusReadyForPickup OrderStatus = "ready_for_pickup"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRefunded       OrderStatus = "refunded"
)

// FulfillmentType represents how an order reaches the customer
type FulfillmentType string

const (
	FulfillmentDelivery     FulfillmentType = "delivery"
	FulfillmentPickup       FulfillmentType = "pickup"
	FulfillmentSelfDelivery FulfillmentType = "self_delivery"
)

// PaymentStatus represents the payment state of an order
type PaymentStatus string

const (
	PaymentAwaiting PaymentStatus = "awaiting"
	PaymentCaptured PaymentStatus = "captured"
	PaymentRefunded PaymentStatus = "refunded"
)

// FulfillmentStatus tracks whether the order has been handed over
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
)

const (
	// DefaultCurrency is used when a cart carries no explicit currency.
	DefaultCurrency = "UGX"

	// DefaultZoneRadiusKm applies when a vendor has no zone record.
	DefaultZoneRadiusKm = 15.0
)

// Order represents a placed order. Monetary fields are integer minor
// currency units. Orders are never deleted; terminal states are retained.
type Order struct {
	ID                int64             `json:"id"`
	DisplayID         int64             `json:"display_id"`
	Status            OrderStatus       `json:"status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	FulfillmentType   FulfillmentType   `json:"fulfillment_type"`
	CustomerID        int64             `json:"customer_id"`
	VendorID          int64             `json:"vendor_id"`
	AddressID         *int64            `json:"address_id,omitempty"`
	Currency          string            `json:"currency"`
	Total             int64             `json:"total"`
	Tax               int64             `json:"tax"`
	Discount          int64             `json:"discount"`
	DeliveryFee       int64             `json:"delivery_fee"`
	PaymentRef        *string           `json:"payment_ref,omitempty"`
	RiderID           *int64            `json:"rider_id,omitempty"`
	RiderName         *string           `json:"rider_name,omitempty"`
	RiderPhone        *string           `json:"rider_phone,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// OrderItem is an immutable snapshot captured at order-creation time,
// deliberately decoupled from the live catalog.
type OrderItem struct {
	ID        int64  `json:"id,omitempty"`
	OrderID   int64  `json:"order_id,omitempty"`
	VariantID int64  `json:"variant_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

// OrderEvent is an append-only audit record. The event log is the sole
// source of an order's timeline.
type OrderEvent struct {
	ID          int64        `json:"id,omitempty"`
	OrderID     int64        `json:"order_id,omitempty"`
	Actor       string       `json:"actor"`
	EventType   string       `json:"event_type"`
	FromStatus  *OrderStatus `json:"from_status,omitempty"`
	ToStatus    *OrderStatus `json:"to_status,omitempty"`
	Reason      *string      `json:"reason,omitempty"`
	Total       int64        `json:"total"`
	Tax         int64        `json:"tax"`
	Discount    int64        `json:"discount"`
	DeliveryFee int64        `json:"delivery_fee"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Vendor is the seller side of the marketplace. Coordinates are optional;
// zone validation is skipped when either side has none.
type Vendor struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	IsBusy       bool     `json:"is_busy"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
	ZoneRadiusKm *float64 `json:"zone_radius_km,omitempty"`
}

// Address is a customer delivery address.
type Address struct {
	ID         int64    `json:"id"`
	CustomerID int64    `json:"customer_id"`
	Label      string   `json:"label"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// IsTerminal reports whether a status admits no further transitions, apart
// from the permitted completed -> refunded move.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
