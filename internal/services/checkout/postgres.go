package checkout

import (
	"context"
	"errors"
	"fmt"

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

func (r *PostgresRepository) GetCart(ctx context.Context, cartID int64) (*models.Cart, error) {
	var c models.Cart
	err := r.db.QueryRow(ctx, database.GetCartSQL, cartID).
		Scan(&c.ID, &c.CustomerID, &c.VendorID, &c.Currency, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	rows, err := r.db.Query(ctx, database.ListCartLinesSQL, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.VariantID, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *PostgresRepository) GetVendor(ctx context.Context, vendorID int64) (*models.Vendor, error) {
	var v models.Vendor
	err := r.db.QueryRow(ctx, database.GetVendorSQL, vendorID).
		Scan(&v.ID, &v.Name, &v.IsBusy, &v.Lat, &v.Lng, &v.ZoneRadiusKm)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &v, nil
}

func (r *PostgresRepository) GetAddress(ctx context.Context, addressID int64) (*models.Address, error) {
	var a models.Address
	err := r.db.QueryRow(ctx, database.GetAddressSQL, addressID).
		Scan(&a.ID, &a.CustomerID, &a.Label, &a.Lat, &a.Lng)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

func (r *PostgresRepository) GetVariant(ctx context.Context, variantID int64) (*models.Variant, error) {
	var v models.Variant
	err := r.db.QueryRow(ctx, database.GetVariantSQL, variantID).
		Scan(&v.ID, &v.VendorID, &v.Title, &v.Available, &v.WeightGrams)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &v, nil
}

func (r *PostgresRepository) ListPriceTiers(ctx context.Context, variantID int64) ([]models.PriceTier, error) {
	rows, err := r.db.Query(ctx, database.ListPriceTiersSQL, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.PriceTier
	for rows.Next() {
		var t models.PriceTier
		if err := rows.Scan(&t.ID, &t.VariantID, &t.Amount, &t.SaleAmount, &t.MinQuantity, &t.MaxQuantity); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *PostgresRepository) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, *models.ApplicationMethod, error) {
	var p models.Promotion
	var methodID *int64
	var methodType *string
	var methodValue *int64
	err := r.db.QueryRow(ctx, database.GetPromotionByCodeSQL, code).
		Scan(&p.ID, &p.Code, &p.Status, &p.StartsAt, &p.EndsAt,
			&p.UsageLimit, &p.UsageCount, &p.PerCustomerLimit,
			&methodID, &methodType, &methodValue)
	if err != nil {
		return nil, nil, mapNoRows(err)
	}

	if methodID == nil {
		return &p, nil, nil
	}
	return &p, &models.ApplicationMethod{
		ID:          *methodID,
		PromotionID: p.ID,
		Type:        models.ApplicationMethodType(*methodType),
		Value:       *methodValue,
	}, nil
}

func (r *PostgresRepository) CountPromotionUsageByCustomer(ctx context.Context, promotionID, customerID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, database.CountPromotionUsageByCustomerSQL, promotionID, customerID).Scan(&count)
	return count, err
}

// CreateOrder persists the whole checkout in one transaction: promotion
// claim, display id allocation, order with items and the initial event,
// vendor-customer stats, and cart teardown. Any failure rolls back
// everything.
func (r *PostgresRepository) CreateOrder(ctx context.Context, draft *OrderDraft) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Claim the promotion first: a concurrent order may have consumed the
	// last slot, in which case the discount is silently dropped.
	promotionClaimed := false
	if draft.Promotion != nil && draft.Discount > 0 {
		tag, err := tx.Exec(ctx, database.IncrementPromotionUsageSQL, draft.Promotion.ID)
		if err != nil {
			return nil, fmt.Errorf("claim promotion: %w", err)
		}
		if tag.RowsAffected() == 0 {
			draft.Total += draft.Discount
			draft.Discount = 0
		} else {
			promotionClaimed = true
		}
	}

	var displayID int64
	if err := tx.QueryRow(ctx, database.NextDisplayIDSQL, "orders").Scan(&displayID); err != nil {
		return nil, fmt.Errorf("allocate display id: %w", err)
	}

	paymentStatus := models.PaymentAwaiting
	if draft.PaymentRef != nil && *draft.PaymentRef != "" {
		paymentStatus = models.PaymentCaptured
	}

	order := &models.Order{
		DisplayID:         displayID,
		Status:            models.StatusPending,
		FulfillmentStatus: models.FulfillmentUnfulfilled,
		PaymentStatus:     paymentStatus,
		FulfillmentType:   draft.FulfillmentType,
		CustomerID:        draft.CustomerID,
		VendorID:          draft.VendorID,
		AddressID:         draft.AddressID,
		Currency:          draft.Currency,
		Total:             draft.Total,
		Tax:               draft.Tax,
		Discount:          draft.Discount,
		DeliveryFee:       draft.DeliveryFee,
		PaymentRef:        draft.PaymentRef,
	}

	err = tx.QueryRow(ctx, database.InsertOrderSQL,
		order.DisplayID, order.Status, order.FulfillmentStatus, order.PaymentStatus,
		order.FulfillmentType, order.CustomerID, order.VendorID, order.AddressID,
		order.Currency, order.Total, order.Tax, order.Discount, order.DeliveryFee,
		order.PaymentRef).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	order.UpdatedAt = order.CreatedAt

	for _, item := range draft.Items {
		_, err := tx.Exec(ctx, database.InsertOrderItemSQL,
			order.ID, item.VariantID, item.Title, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	created := models.StatusPending
	_, err = tx.Exec(ctx, database.InsertOrderEventSQL,
		order.ID, "customer", "created", nil, &created, nil,
		order.Total, order.Tax, order.Discount, order.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("insert order event: %w", err)
	}

	if promotionClaimed {
		_, err := tx.Exec(ctx, database.InsertPromotionUsageSQL,
			draft.Promotion.ID, order.CustomerID, order.ID, order.Discount)
		if err != nil {
			return nil, fmt.Errorf("record promotion usage: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, database.UpsertVendorCustomerSQL, order.VendorID, order.CustomerID); err != nil {
		return nil, fmt.Errorf("update vendor customer stats: %w", err)
	}

	if _, err := tx.Exec(ctx, database.DeleteCartLinesSQL, draft.Cart.ID); err != nil {
		return nil, fmt.Errorf("delete cart lines: %w", err)
	}
	if _, err := tx.Exec(ctx, database.DeleteCartSQL, draft.Cart.ID); err != nil {
		return nil, fmt.Errorf("delete cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}
