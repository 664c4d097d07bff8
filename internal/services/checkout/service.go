package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sokoni/internal/fare"
	"sokoni/internal/geo"
	"sokoni/internal/geoindex"
	"sokoni/internal/logger"
	"sokoni/internal/models"
	"sokoni/internal/pricing"
	"sokoni/internal/ratelimit"
)

const rateLimitBucket = "checkout"

// Request is a checkout attempt against one cart.
type Request struct {
	CartID          int64                  `json:"cart_id"`
	CustomerID      int64                  `json:"-"`
	AddressID       *int64                 `json:"address_id,omitempty"`
	FulfillmentType models.FulfillmentType `json:"fulfillment_type"`
	IsExpress       bool                   `json:"is_express,omitempty"`
	PromoCode       string                 `json:"promo_code,omitempty"`
	PaymentRef      *string                `json:"payment_ref,omitempty"`
}

// Summary is the priced preview of a checkout.
type Summary struct {
	Currency    string             `json:"currency"`
	Items       []models.OrderItem `json:"items"`
	Subtotal    int64              `json:"subtotal"`
	Tax         int64              `json:"tax"`
	Discount    int64              `json:"discount"`
	DeliveryFee int64              `json:"delivery_fee"`
	Total       int64              `json:"total"`
	Fare        fare.Breakdown     `json:"fare"`
	Estimate    *fare.Estimate     `json:"estimate,omitempty"`
	DistanceKm  float64            `json:"distance_km"`
	PromoCode   string             `json:"promo_code,omitempty"`
}

// ValidationResult aggregates every problem found so the caller can render
// them all at once. Warnings are advisory; errors make the cart
// uncheckoutable.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Summary  *Summary `json:"summary,omitempty"`
}

// CompleteResult is the outcome of a successful checkout.
type CompleteResult struct {
	OrderID       int64                `json:"order_id"`
	DisplayID     int64                `json:"display_id"`
	Total         int64                `json:"total"`
	Currency      string               `json:"currency"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// Service is the checkout engine: it turns carts into priced, validated
// orders. It holds no state between calls.
type Service struct {
	repo      Repository
	pricer    *pricing.Resolver
	fares     *fare.Calculator
	limiter   ratelimit.Limiter
	publisher Publisher
	geoIndex  geoindex.Index
	logger    *logger.Logger
}

// NewService creates a checkout service
func NewService(repo Repository, fares *fare.Calculator, limiter ratelimit.Limiter,
	publisher Publisher, geoIndex geoindex.Index, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		pricer:    pricing.NewResolver(repo),
		fares:     fares,
		limiter:   limiter,
		publisher: publisher,
		geoIndex:  geoIndex,
		logger:    log,
	}
}

// plan is the fully evaluated checkout, shared between Validate and
// Complete so both price identically.
type plan struct {
	cart        *models.Cart
	vendor      *models.Vendor
	address     *models.Address
	items       []models.OrderItem
	subtotal    int64
	weightGrams int64
	distanceKm  float64
	fare        fare.Breakdown
	estimate    *fare.Estimate
	discount    pricing.DiscountResult
	tax         int64
	total       int64
	currency    string
}

// Validate prices the cart without mutating any state. Business-rule
// violations land in the result; only infrastructure failures return an
// error.
func (s *Service) Validate(ctx context.Context, req *Request, requestID string) (*ValidationResult, error) {
	p, fatals, warnings, err := s.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:    len(fatals) == 0,
		Errors:   make([]string, 0, len(fatals)),
		Warnings: warnings,
	}
	for _, f := range fatals {
		result.Errors = append(result.Errors, f.Error())
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	if p != nil && len(fatals) == 0 {
		result.Summary = p.summary(req)
	}

	s.logger.Debug("checkout_validated", "Checkout validated", requestID, map[string]interface{}{
		"cart_id":  req.CartID,
		"valid":    result.Valid,
		"errors":   len(result.Errors),
		"warnings": len(result.Warnings),
	})

	return result, nil
}

// Complete is the sole mutating entry point. It re-validates, persists the
// order atomically and dispatches the vendor notification best-effort.
func (s *Service) Complete(ctx context.Context, req *Request, requestID string) (*CompleteResult, error) {
	ok, err := s.limiter.Limit(ctx, rateLimitBucket, strconv.FormatInt(req.CustomerID, 10))
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !ok {
		return nil, models.ErrRateLimited
	}

	p, fatals, warnings, err := s.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(fatals) > 0 {
		return nil, fatals[0]
	}
	for _, w := range warnings {
		s.logger.Debug("checkout_warning", w, requestID, map[string]interface{}{"cart_id": req.CartID})
	}

	draft := &OrderDraft{
		Cart:            p.cart,
		CustomerID:      req.CustomerID,
		VendorID:        p.cart.VendorID,
		FulfillmentType: req.FulfillmentType,
		Currency:        p.currency,
		Items:           p.items,
		Subtotal:        p.subtotal,
		Tax:             p.tax,
		Discount:        p.discount.Amount,
		DeliveryFee:     p.fare.Total,
		Total:           p.total,
		PaymentRef:      req.PaymentRef,
		Promotion:       p.discount.Promotion,
	}
	if req.FulfillmentType == models.FulfillmentDelivery {
		draft.AddressID = req.AddressID
	}

	order, err := s.repo.CreateOrder(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order_created", fmt.Sprintf("Order #%d created", order.DisplayID), requestID, map[string]interface{}{
		"order_id":   order.ID,
		"display_id": order.DisplayID,
		"vendor_id":  order.VendorID,
		"total":      order.Total,
	})

	// Vendor notification and index refresh are decoupled from the
	// transaction; a failing broker never rolls back a placed order.
	go s.afterComplete(order, p)

	return &CompleteResult{
		OrderID:       order.ID,
		DisplayID:     order.DisplayID,
		Total:         order.Total,
		Currency:      order.Currency,
		PaymentStatus: order.PaymentStatus,
	}, nil
}

func (s *Service) afterComplete(order *models.Order, p *plan) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg := &models.VendorOrderMessage{
		OrderID:     order.ID,
		DisplayID:   order.DisplayID,
		VendorID:    order.VendorID,
		CustomerID:  order.CustomerID,
		Items:       p.items,
		Total:       order.Total,
		DeliveryFee: order.DeliveryFee,
		Currency:    order.Currency,
		PlacedAt:    order.CreatedAt,
	}
	if err := s.publisher.PublishOrder(ctx, msg, models.VendorRoutingKey(order.VendorID), 0); err != nil {
		s.logger.Error("notification_publish_failed", "Failed to publish new order notification", "", err, map[string]interface{}{
			"order_id": order.ID,
		})
	}

	if p.vendor != nil && p.vendor.Lat != nil && p.vendor.Lng != nil {
		id := strconv.FormatInt(p.vendor.ID, 10)
		if err := s.geoIndex.Upsert(ctx, "vendors", id, *p.vendor.Lat, *p.vendor.Lng); err != nil {
			s.logger.Error("geo_index_failed", "Failed to refresh vendor position", "", err, map[string]interface{}{
				"vendor_id": p.vendor.ID,
			})
		}
	}
}

// evaluate runs every checkout check without mutating state. Fatal
// problems are collected as typed errors, advisory ones as warnings; a
// non-nil error means the evaluation itself failed.
func (s *Service) evaluate(ctx context.Context, req *Request) (*plan, []error, []string, error) {
	var fatals []error
	var warnings []string

	switch req.FulfillmentType {
	case models.FulfillmentDelivery, models.FulfillmentPickup, models.FulfillmentSelfDelivery:
	default:
		fatals = append(fatals, fmt.Errorf("fulfillment_type must be one of: delivery, pickup, self_delivery"))
		return nil, fatals, warnings, nil
	}

	cart, err := s.repo.GetCart(ctx, req.CartID)
	if err != nil {
		if isNotFound(err) {
			return nil, append(fatals, fmt.Errorf("cart %d: %w", req.CartID, models.ErrNotFound)), warnings, nil
		}
		return nil, nil, nil, fmt.Errorf("get cart: %w", err)
	}
	if cart.CustomerID != req.CustomerID {
		return nil, append(fatals, fmt.Errorf("cart %d: %w", cart.ID, models.ErrOwnershipMismatch)), warnings, nil
	}
	if cart.Expired(time.Now().UTC()) {
		// An expired cart is treated as not found for checkout.
		return nil, append(fatals, fmt.Errorf("cart %d: %w", cart.ID, models.ErrCartExpired)), warnings, nil
	}

	p := &plan{cart: cart, currency: cart.Currency}
	if p.currency == "" {
		p.currency = models.DefaultCurrency
	}

	lines, err := s.repo.ListCartLines(ctx, cart.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		fatals = append(fatals, models.ErrEmptyCart)
	}

	vendor, err := s.repo.GetVendor(ctx, cart.VendorID)
	switch {
	case err != nil && isNotFound(err):
		fatals = append(fatals, fmt.Errorf("store %d: %w", cart.VendorID, models.ErrNotFound))
	case err != nil:
		return nil, nil, nil, fmt.Errorf("get vendor: %w", err)
	default:
		p.vendor = vendor
		if vendor.IsBusy {
			fatals = append(fatals, fmt.Errorf("store '%s': %w", vendor.Name, models.ErrStoreUnavailable))
		}
	}

	if req.FulfillmentType == models.FulfillmentDelivery {
		deliveryFatals, deliveryWarnings, err := s.checkDeliveryZone(ctx, req, p)
		if err != nil {
			return nil, nil, nil, err
		}
		fatals = append(fatals, deliveryFatals...)
		warnings = append(warnings, deliveryWarnings...)
	}

	for _, line := range lines {
		if err := s.priceLine(ctx, cart, line, p, &fatals); err != nil {
			return nil, nil, nil, err
		}
	}

	if len(fatals) > 0 {
		return p, fatals, warnings, nil
	}

	// The fare uses the final subtotal so the free-delivery threshold sees
	// the real order value.
	if req.FulfillmentType == models.FulfillmentDelivery {
		hour := time.Now().UTC().Hour()
		p.fare = s.fares.Quote(fare.Input{
			DistanceKm:  p.distanceKm,
			Subtotal:    p.subtotal,
			Hour:        &hour,
			IsExpress:   req.IsExpress,
			WeightGrams: p.weightGrams,
		})
		est := fare.EstimateDeliveryTime(p.distanceKm, req.IsExpress)
		p.estimate = &est
	}

	if req.PromoCode != "" {
		p.discount = s.pricer.ResolveDiscount(ctx, req.PromoCode, p.subtotal, req.CustomerID)
		if p.discount.Warning != "" {
			warnings = append(warnings, p.discount.Warning)
		}
	}

	p.tax = 0
	p.total = p.subtotal + p.tax - p.discount.Amount + p.fare.Total
	if p.total < 0 {
		p.total = 0
	}

	return p, fatals, warnings, nil
}

// checkDeliveryZone validates the address and the vendor's delivery radius.
func (s *Service) checkDeliveryZone(ctx context.Context, req *Request, p *plan) ([]error, []string, error) {
	var fatals []error
	var warnings []string

	if req.AddressID == nil {
		return append(fatals, fmt.Errorf("delivery orders require an address: %w", models.ErrNotFound)), warnings, nil
	}

	address, err := s.repo.GetAddress(ctx, *req.AddressID)
	if err != nil {
		if isNotFound(err) {
			return append(fatals, fmt.Errorf("address %d: %w", *req.AddressID, models.ErrNotFound)), warnings, nil
		}
		return nil, nil, fmt.Errorf("get address: %w", err)
	}
	if address.CustomerID != req.CustomerID {
		return append(fatals, fmt.Errorf("address %d: %w", address.ID, models.ErrOwnershipMismatch)), warnings, nil
	}
	p.address = address

	vendor := p.vendor
	if vendor == nil {
		return fatals, warnings, nil
	}
	if vendor.Lat == nil || vendor.Lng == nil {
		return fatals, append(warnings, fmt.Sprintf("store '%s' has no location; delivery zone not verified", vendor.Name)), nil
	}
	if address.Lat == nil || address.Lng == nil {
		return fatals, append(warnings, "address has no coordinates; delivery zone not verified"), nil
	}

	p.distanceKm = geo.Haversine(*vendor.Lat, *vendor.Lng, *address.Lat, *address.Lng)

	radius := models.DefaultZoneRadiusKm
	if vendor.ZoneRadiusKm != nil {
		radius = *vendor.ZoneRadiusKm
	}
	if p.distanceKm > radius {
		fatals = append(fatals, fmt.Errorf("address is %.1f km away (max %.1f km): %w", p.distanceKm, radius, models.ErrOutOfZone))
	}

	return fatals, warnings, nil
}

// priceLine resolves one cart line into an order item snapshot.
func (s *Service) priceLine(ctx context.Context, cart *models.Cart, line models.CartLine, p *plan, fatals *[]error) error {
	variant, err := s.repo.GetVariant(ctx, line.VariantID)
	if err != nil {
		if isNotFound(err) {
			*fatals = append(*fatals, fmt.Errorf("variant %d: %w", line.VariantID, models.ErrNotFound))
			return nil
		}
		return fmt.Errorf("get variant: %w", err)
	}
	if variant.VendorID != cart.VendorID {
		*fatals = append(*fatals, fmt.Errorf("variant %d belongs to another store: %w", variant.ID, models.ErrOwnershipMismatch))
		return nil
	}
	if !variant.Available {
		*fatals = append(*fatals, fmt.Errorf("'%s' is unavailable: %w", variant.Title, models.ErrStoreUnavailable))
		return nil
	}

	unitPrice, err := s.pricer.ResolveUnitPrice(ctx, line.VariantID, line.Quantity)
	if err != nil {
		if isNotFound(err) || isPriceNotFound(err) {
			*fatals = append(*fatals, err)
			return nil
		}
		return err
	}

	subtotal := unitPrice * int64(line.Quantity)
	p.items = append(p.items, models.OrderItem{
		VariantID: variant.ID,
		Title:     variant.Title,
		Quantity:  line.Quantity,
		UnitPrice: unitPrice,
		Subtotal:  subtotal,
	})
	p.subtotal += subtotal
	p.weightGrams += variant.WeightGrams * int64(line.Quantity)
	return nil
}

func (p *plan) summary(req *Request) *Summary {
	items := p.items
	if items == nil {
		items = []models.OrderItem{}
	}
	return &Summary{
		Currency:    p.currency,
		Items:       items,
		Subtotal:    p.subtotal,
		Tax:         p.tax,
		Discount:    p.discount.Amount,
		DeliveryFee: p.fare.Total,
		Total:       p.total,
		Fare:        p.fare,
		Estimate:    p.estimate,
		DistanceKm:  p.distanceKm,
		PromoCode:   req.PromoCode,
	}
}

// Quote returns a delivery fare preview between a vendor and an address
// without requiring a cart.
func (s *Service) Quote(ctx context.Context, vendorID, addressID, customerID, subtotal int64, isExpress bool) (*Summary, error) {
	vendor, err := s.repo.GetVendor(ctx, vendorID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("store %d: %w", vendorID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	address, err := s.repo.GetAddress(ctx, addressID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("address %d: %w", addressID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	if address.CustomerID != customerID {
		return nil, fmt.Errorf("address %d: %w", address.ID, models.ErrOwnershipMismatch)
	}

	var distanceKm float64
	if vendor.Lat != nil && vendor.Lng != nil && address.Lat != nil && address.Lng != nil {
		distanceKm = geo.Haversine(*vendor.Lat, *vendor.Lng, *address.Lat, *address.Lng)
	}

	radius := models.DefaultZoneRadiusKm
	if vendor.ZoneRadiusKm != nil {
		radius = *vendor.ZoneRadiusKm
	}
	if distanceKm > radius {
		return nil, fmt.Errorf("address is %.1f km away (max %.1f km): %w", distanceKm, radius, models.ErrOutOfZone)
	}

	hour := time.Now().UTC().Hour()
	quote := s.fares.Quote(fare.Input{
		DistanceKm: distanceKm,
		Subtotal:   subtotal,
		Hour:       &hour,
		IsExpress:  isExpress,
	})
	est := fare.EstimateDeliveryTime(distanceKm, isExpress)

	return &Summary{
		Currency:    models.DefaultCurrency,
		Items:       []models.OrderItem{},
		Subtotal:    subtotal,
		DeliveryFee: quote.Total,
		Total:       subtotal + quote.Total,
		Fare:        quote,
		Estimate:    &est,
		DistanceKm:  distanceKm,
	}, nil
}

func isNotFound(err error) bool      { return errors.Is(err, models.ErrNotFound) }
func isPriceNotFound(err error) bool { return errors.Is(err, models.ErrPriceNotFound) }

// NearbyVendors returns vendors within radiusKm of a point, nearest first.
func (s *Service) NearbyVendors(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]geoindex.Entry, error) {
	if radiusKm <= 0 {
		radiusKm = models.DefaultZoneRadiusKm
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.geoIndex.Nearby(ctx, "vendors", lat, lng, radiusKm, limit)
}
