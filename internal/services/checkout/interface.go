package checkout

import (
	"context"

	"sokoni/internal/models"
	"sokoni/internal/pricing"
)

// Repository is the storage surface the checkout engine depends on. The
// read methods return models.ErrNotFound (wrapped) for missing rows.
type Repository interface {
	pricing.CatalogStore

	GetCart(ctx context.Context, id int64) (*models.Cart, error)
	ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	GetVendor(ctx context.Context, id int64) (*models.Vendor, error)
	GetAddress(ctx context.Context, id int64) (*models.Address, error)
	GetVariant(ctx context.Context, id int64) (*models.Variant, error)

	// CreateOrder persists the draft as one atomic unit: display id
	// allocation, order, item snapshots, created event, promotion usage,
	// vendor-customer upsert and cart deletion all commit or roll back
	// together.
	CreateOrder(ctx context.Context, draft *OrderDraft) (*models.Order, error)
}

// Publisher dispatches best-effort notifications.
type Publisher interface {
	PublishOrder(ctx context.Context, msg interface{}, routingKey string, priority uint8) error
}

// OrderDraft carries everything CreateOrder writes.
type OrderDraft struct {
	Cart            *models.Cart
	CustomerID      int64
	VendorID        int64
	AddressID       *int64
	FulfillmentType models.FulfillmentType
	Currency        string
	Items           []models.OrderItem
	Subtotal        int64
	Tax             int64
	Discount        int64
	DeliveryFee     int64
	Total           int64
	PaymentRef      *string
	Promotion       *models.Promotion
}
