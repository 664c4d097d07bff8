package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sokoni/internal/database"
	"sokoni/internal/models"
)

// PostgresRepository implements Repository on the shared connection pool.
type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return scanOrder(r.db.QueryRow(ctx, database.GetOrderSQL, id))
}

func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, database.ListOrdersByCustomerSQL, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r *PostgresRepository) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := r.db.Query(ctx, database.ListOrderItemsSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var i models.OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.VariantID, &i.Title, &i.Quantity, &i.UnitPrice, &i.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) ListOrderEvents(ctx context.Context, orderID int64) ([]models.OrderEvent, error) {
	rows, err := r.db.Query(ctx, database.ListOrderEventsSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.OrderEvent
	for rows.Next() {
		var e models.OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Actor, &e.EventType, &e.FromStatus, &e.ToStatus,
			&e.Reason, &e.Total, &e.Tax, &e.Discount, &e.DeliveryFee, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) GetRider(ctx context.Context, id int64) (*models.Rider, error) {
	var rd models.Rider
	err := r.db.QueryRow(ctx, database.GetRiderSQL, id).
		Scan(&rd.ID, &rd.Name, &rd.Phone, &rd.Status, &rd.OrdersDelivered, &rd.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &rd, nil
}

func (r *PostgresRepository) ApplyTransition(ctx context.Context, order *models.Order, event *models.OrderEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The update is guarded on the status the transition was validated
	// against, so a concurrent writer loses instead of being overwritten.
	tag, err := tx.Exec(ctx, database.UpdateOrderStatusSQL, order.Status, order.FulfillmentStatus, order.ID, *event.FromStatus)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &models.TransitionError{From: *event.FromStatus, To: order.Status}
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) AssignRider(ctx context.Context, order *models.Order, rider *models.Rider, event *models.OrderEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, database.AssignOrderRiderSQL, rider.ID, rider.Name, rider.Phone, order.ID); err != nil {
		return fmt.Errorf("record rider: %w", err)
	}
	tag, err := tx.Exec(ctx, database.UpdateOrderStatusSQL, order.Status, order.FulfillmentStatus, order.ID, *event.FromStatus)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &models.TransitionError{From: *event.FromStatus, To: order.Status}
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) CreateCartFromOrder(ctx context.Context, order *models.Order, items []models.OrderItem, expiresAt time.Time) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var cartID int64
	err = tx.QueryRow(ctx, database.InsertCartSQL,
		order.CustomerID, order.VendorID, order.Currency, expiresAt).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("insert cart: %w", err)
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, database.InsertCartLineSQL, cartID, item.VariantID, item.Quantity); err != nil {
			return 0, fmt.Errorf("insert cart line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return cartID, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e *models.OrderEvent) error {
	_, err := tx.Exec(ctx, database.InsertOrderEventSQL,
		e.OrderID, e.Actor, e.EventType, e.FromStatus, e.ToStatus, e.Reason,
		e.Total, e.Tax, e.Discount, e.DeliveryFee)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.DisplayID, &o.Status, &o.FulfillmentStatus, &o.PaymentStatus,
		&o.FulfillmentType, &o.CustomerID, &o.VendorID, &o.AddressID, &o.Currency,
		&o.Total, &o.Tax, &o.Discount, &o.DeliveryFee, &o.PaymentRef,
		&o.RiderID, &o.RiderName, &o.RiderPhone, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}
