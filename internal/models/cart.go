package models

import (
	"time"
)

// Cart is owned by the customer session. It is read-only to the fulfillment
// core and deleted atomically at successful checkout. A cart past its
// expiry is treated as not found.
type Cart struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	VendorID   int64     `json:"vendor_id"`
	Currency   string    `json:"currency"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the cart is past its expiry timestamp.
func (c *Cart) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CartLine references a catalog variant with a requested quantity.
type CartLine struct {
	ID        int64 `json:"id"`
	CartID    int64 `json:"cart_id"`
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

// Variant is the purchasable catalog unit.
type Variant struct {
	ID          int64  `json:"id"`
	VendorID    int64  `json:"vendor_id"`
	Title       string `json:"title"`
	Available   bool   `json:"available"`
	WeightGrams int64  `json:"weight_grams"`
}

// PriceTier belongs to a variant. MinQuantity defaults to 1 and MaxQuantity
// to unbounded when absent; SaleAmount only applies when below Amount.
type PriceTier struct {
	ID          int64  `json:"id"`
	VariantID   int64  `json:"variant_id"`
	Amount      int64  `json:"amount"`
	SaleAmount  *int64 `json:"sale_amount,omitempty"`
	MinQuantity *int   `json:"min_quantity,omitempty"`
	MaxQuantity *int   `json:"max_quantity,omitempty"`
}

// PromotionStatus represents the lifecycle state of a promotion
type PromotionStatus string

const (
	PromotionDraft    PromotionStatus = "draft"
	PromotionActive   PromotionStatus = "active"
	PromotionInactive PromotionStatus = "inactive"
	PromotionExpired  PromotionStatus = "expired"
)

// ApplicationMethodType is how a promotion discount is computed
type ApplicationMethodType string

const (
	MethodFixed      ApplicationMethodType = "fixed"
	MethodPercentage ApplicationMethodType = "percentage"
)

// Promotion is a discount code with optional validity window and usage caps.
type Promotion struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Status           PromotionStatus `json:"status"`
	StartsAt         *time.Time      `json:"starts_at,omitempty"`
	EndsAt           *time.Time      `json:"ends_at,omitempty"`
	UsageLimit       *int            `json:"usage_limit,omitempty"`
	UsageCount       int             `json:"usage_count"`
	PerCustomerLimit *int            `json:"per_customer_limit,omitempty"`
}

// ApplicationMethod belongs to a promotion.
type ApplicationMethod struct {
	ID          int64                 `json:"id"`
	PromotionID int64                 `json:"promotion_id"`
	Type        ApplicationMethodType `json:"type"`
	Value       int64                 `json:"value"`
}
