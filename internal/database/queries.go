package database

// Cart queries
const (
	GetCartSQL = `
		SELECT id, customer_id, vendor_id, currency, expires_at, created_at
		FROM carts WHERE id = $1`

	ListCartLinesSQL = `
		SELECT id, cart_id, variant_id, quantity
		FROM cart_lines WHERE cart_id = $1
		ORDER BY id ASC`

	DeleteCartLinesSQL = `DELETE FROM cart_lines WHERE cart_id = $1`

	DeleteCartSQL = `DELETE FROM carts WHERE id = $1`

	InsertCartSQL = `
		INSERT INTO carts (customer_id, vendor_id, currency, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	InsertCartLineSQL = `
		INSERT INTO cart_lines (cart_id, variant_id, quantity)
		VALUES ($1, $2, $3)`
)

// Catalog queries
const (
	GetVariantSQL = `
		SELECT id, vendor_id, title, available, weight_grams
		FROM variants WHERE id = $1`

	ListPriceTiersSQL = `
		SELECT id, variant_id, amount, sale_amount, min_quantity, max_quantity
		FROM price_tiers WHERE variant_id = $1
		ORDER BY min_quantity ASC NULLS FIRST, amount ASC, id ASC`

	GetVendorSQL = `
		SELECT id, name, is_busy, lat, lng, zone_radius_km
		FROM vendors WHERE id = $1`

	GetAddressSQL = `
		SELECT id, customer_id, label, lat, lng
		FROM addresses WHERE id = $1`
)

// Promotion queries
const (
	GetPromotionByCodeSQL = `
		SELECT p.id, p.code, p.status, p.starts_at, p.ends_at,
			   p.usage_limit, p.usage_count, p.per_customer_limit,
			   m.id, m.type, m.value
		FROM promotions p
		LEFT JOIN application_methods m ON m.promotion_id = p.id
		WHERE p.code = $1`

	CountPromotionUsageByCustomerSQL = `
		SELECT COUNT(*) FROM promotion_usages
		WHERE promotion_id = $1 AND customer_id = $2`

	// Conditional increment: zero rows affected means the limit was hit by
	// a concurrent order.
	IncrementPromotionUsageSQL = `
		UPDATE promotions SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`

	InsertPromotionUsageSQL = `
		INSERT INTO promotion_usages (promotion_id, customer_id, order_id, amount)
		VALUES ($1, $2, $3, $4)`
)

// Order queries
const (
	// Single atomic read-modify-write so concurrent checkouts never see
	// duplicate display ids.
	NextDisplayIDSQL = `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`

	InsertOrderSQL = `
		INSERT INTO orders (display_id, status, fulfillment_status, payment_status,
			fulfillment_type, customer_id, vendor_id, address_id, currency,
			total, tax, discount, delivery_fee, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, variant_id, title, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)`

	InsertOrderEventSQL = `
		INSERT INTO order_events (order_id, actor, event_type, from_status, to_status,
			reason, total, tax, discount, delivery_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	GetOrderSQL = `
		SELECT id, display_id, status, fulfillment_status, payment_status,
			   fulfillment_type, customer_id, vendor_id, address_id, currency,
			   total, tax, discount, delivery_fee, payment_ref,
			   rider_id, rider_name, rider_phone, created_at, updated_at
		FROM orders WHERE id = $1`

	ListOrdersByCustomerSQL = `
		SELECT id, display_id, status, fulfillment_status, payment_status,
			   fulfillment_type, customer_id, vendor_id, address_id, currency,
			   total, tax, discount, delivery_fee, payment_ref,
			   rider_id, rider_name, rider_phone, created_at, updated_at
		FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	ListOrderItemsSQL = `
		SELECT id, order_id, variant_id, title, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = $1
		ORDER BY id ASC`

	ListOrderEventsSQL = `
		SELECT id, order_id, actor, event_type, from_status, to_status,
			   reason, total, tax, discount, delivery_fee, created_at
		FROM order_events WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $1, fulfillment_status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	AssignOrderRiderSQL = `
		UPDATE orders SET rider_id = $1, rider_name = $2, rider_phone = $3, updated_at = NOW()
		WHERE id = $4`

	UpsertVendorCustomerSQL = `
		INSERT INTO vendor_customers (vendor_id, customer_id, orders_placed, last_order_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (vendor_id, customer_id) DO UPDATE SET
			orders_placed = vendor_customers.orders_placed + 1,
			last_order_at = NOW()`
)

// Rider queries
const (
	UpsertRiderSQL = `
		INSERT INTO riders (name, phone, status)
		VALUES ($1, $2, 'online')
		ON CONFLICT (name) DO UPDATE SET
			status = 'online',
			phone = EXCLUDED.phone,
			last_seen = NOW()
		RETURNING id`

	UpdateRiderStatusSQL = `
		UPDATE riders SET status = $1, last_seen = NOW()
		WHERE id = $2`

	IncrementRiderDeliveredSQL = `
		UPDATE riders SET orders_delivered = orders_delivered + 1, last_seen = NOW()
		WHERE id = $1`

	GetRiderSQL = `
		SELECT id, name, phone, status, orders_delivered, last_seen
		FROM riders WHERE id = $1`

	GetStageSQL = `
		SELECT id, name, lat, lng FROM stages WHERE id = $1`

	// A rider has at most one active primary stage membership.
	UpsertRiderStageSQL = `
		INSERT INTO rider_stage_memberships (rider_id, stage_id, is_primary)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (rider_id) WHERE is_primary DO UPDATE SET
			stage_id = EXCLUDED.stage_id,
			joined_at = NOW()`
)
