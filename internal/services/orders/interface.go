package orders

import (
	"context"
	"time"

	"sokoni/internal/models"
)

// Repository is the storage surface the lifecycle depends on. Read methods
// return models.ErrNotFound (wrapped) for missing rows.
type Repository interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]models.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrderEvents(ctx context.Context, orderID int64) ([]models.OrderEvent, error)
	GetRider(ctx context.Context, id int64) (*models.Rider, error)

	// ApplyTransition patches the order's status and fulfillment status and
	// appends the event in one transaction.
	ApplyTransition(ctx context.Context, order *models.Order, event *models.OrderEvent) error

	// AssignRider records the rider on the order, patches the status and
	// appends the event in one transaction.
	AssignRider(ctx context.Context, order *models.Order, rider *models.Rider, event *models.OrderEvent) error

	// CreateCartFromOrder builds a fresh cart holding the order's item
	// snapshot and returns the new cart id.
	CreateCartFromOrder(ctx context.Context, order *models.Order, items []models.OrderItem, expiresAt time.Time) (int64, error)
}

// Publisher dispatches best-effort notifications for lifecycle changes.
type Publisher interface {
	PublishOrder(ctx context.Context, msg interface{}, routingKey string, priority uint8) error
	PublishNotification(ctx context.Context, msg interface{}) error
}

// OrderDetails is an order with its item snapshot.
type OrderDetails struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}
