package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"sokoni/internal/config"
	"sokoni/internal/fare"
	"sokoni/internal/geoindex"
	"sokoni/internal/logger"
	"sokoni/internal/models"
)

type fakeRepo struct {
	carts      map[int64]*models.Cart
	lines      map[int64][]models.CartLine
	vendors    map[int64]*models.Vendor
	addresses  map[int64]*models.Address
	variants   map[int64]*models.Variant
	tiers      map[int64][]models.PriceTier
	promotions map[string]*models.Promotion
	methods    map[string]*models.ApplicationMethod
	usage      map[int64]int

	created *OrderDraft
}

func (f *fakeRepo) GetCart(_ context.Context, id int64) (*models.Cart, error) {
	c, ok := f.carts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListCartLines(_ context.Context, cartID int64) ([]models.CartLine, error) {
	return f.lines[cartID], nil
}

func (f *fakeRepo) GetVendor(_ context.Context, id int64) (*models.Vendor, error) {
	v, ok := f.vendors[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return v, nil
}

func (f *fakeRepo) GetAddress(_ context.Context, id int64) (*models.Address, error) {
	a, ok := f.addresses[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) GetVariant(_ context.Context, id int64) (*models.Variant, error) {
	v, ok := f.variants[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return v, nil
}

func (f *fakeRepo) ListPriceTiers(_ context.Context, variantID int64) ([]models.PriceTier, error) {
	return f.tiers[variantID], nil
}

func (f *fakeRepo) GetPromotionByCode(_ context.Context, code string) (*models.Promotion, *models.ApplicationMethod, error) {
	p, ok := f.promotions[code]
	if !ok {
		return nil, nil, models.ErrNotFound
	}
	return p, f.methods[code], nil
}

func (f *fakeRepo) CountPromotionUsageByCustomer(_ context.Context, promotionID, _ int64) (int, error) {
	return f.usage[promotionID], nil
}

func (f *fakeRepo) CreateOrder(_ context.Context, draft *OrderDraft) (*models.Order, error) {
	f.created = draft
	paymentStatus := models.PaymentAwaiting
	if draft.PaymentRef != nil && *draft.PaymentRef != "" {
		paymentStatus = models.PaymentCaptured
	}
	return &models.Order{
		ID:            101,
		DisplayID:     1,
		Status:        models.StatusPending,
		PaymentStatus: paymentStatus,
		CustomerID:    draft.CustomerID,
		VendorID:      draft.VendorID,
		Currency:      draft.Currency,
		Total:         draft.Total,
		Discount:      draft.Discount,
		DeliveryFee:   draft.DeliveryFee,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

type fakePublisher struct {
	published chan string
}

func (f *fakePublisher) PublishOrder(_ context.Context, _ interface{}, routingKey string, _ uint8) error {
	select {
	case f.published <- routingKey:
	default:
	}
	return nil
}

type fakeLimiter struct{ allow bool }

func (f *fakeLimiter) Limit(_ context.Context, _, _ string) (bool, error) {
	return f.allow, nil
}

type fakeGeoIndex struct{}

func (f *fakeGeoIndex) Upsert(_ context.Context, _, _ string, _, _ float64) error { return nil }
func (f *fakeGeoIndex) Remove(_ context.Context, _, _ string) error               { return nil }
func (f *fakeGeoIndex) Nearby(_ context.Context, _ string, _, _, _ float64, _ int) ([]geoindex.Entry, error) {
	return nil, nil
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }
func ptrS(v string) *string   { return &v }

func testFareConfig() config.FareConfig {
	return config.FareConfig{
		BaseFare:              2000,
		PerKmRate:             500,
		MinimumFare:           3000,
		MaximumFare:           25000,
		SurgeMultiplier:       1.0,
		FreeDeliveryThreshold: 100000,
		SmallOrderThreshold:   15000,
		SmallOrderFee:         1000,
	}
}

// newTestRepo builds a cart ready to check out: one vendor in Kampala, one
// customer address ~3.2 km away, two variants priced at 5000 and 12000.
func newTestRepo() *fakeRepo {
	return &fakeRepo{
		carts: map[int64]*models.Cart{
			1: {ID: 1, CustomerID: 7, VendorID: 2, Currency: "UGX", ExpiresAt: time.Now().Add(time.Hour)},
		},
		lines: map[int64][]models.CartLine{
			1: {
				{ID: 1, CartID: 1, VariantID: 10, Quantity: 2},
				{ID: 2, CartID: 1, VariantID: 11, Quantity: 1},
			},
		},
		vendors: map[int64]*models.Vendor{
			2: {ID: 2, Name: "Mama Mbire", Lat: ptrF(0.3476), Lng: ptrF(32.5825)},
		},
		addresses: map[int64]*models.Address{
			3: {ID: 3, CustomerID: 7, Label: "home", Lat: ptrF(0.3310), Lng: ptrF(32.6060)},
		},
		variants: map[int64]*models.Variant{
			10: {ID: 10, VendorID: 2, Title: "Rolex", Available: true, WeightGrams: 350},
			11: {ID: 11, VendorID: 2, Title: "Passion Juice", Available: true, WeightGrams: 500},
		},
		tiers: map[int64][]models.PriceTier{
			10: {{ID: 1, VariantID: 10, Amount: 5000}},
			11: {{ID: 2, VariantID: 11, Amount: 12000}},
		},
		promotions: map[string]*models.Promotion{},
		methods:    map[string]*models.ApplicationMethod{},
		usage:      map[int64]int{},
	}
}

func newTestService(repo *fakeRepo, limiter *fakeLimiter, pub *fakePublisher) *Service {
	return NewService(repo,
		fare.NewCalculator(testFareConfig()),
		limiter,
		pub,
		&fakeGeoIndex{},
		logger.New("checkout-test"))
}

func deliveryRequest() *Request {
	addressID := int64(3)
	return &Request{
		CartID:          1,
		CustomerID:      7,
		AddressID:       &addressID,
		FulfillmentType: models.FulfillmentDelivery,
	}
}

func TestValidateHappyPath(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result, got errors: %v", result.Errors)
	}
	if result.Summary == nil {
		t.Fatal("expected summary for valid cart")
	}
	if result.Summary.Subtotal != 22000 {
		t.Errorf("subtotal = %d, want 22000", result.Summary.Subtotal)
	}
	if result.Summary.DeliveryFee <= 0 {
		t.Errorf("delivery fee = %d, want > 0", result.Summary.DeliveryFee)
	}
	if result.Summary.Total != result.Summary.Subtotal+result.Summary.DeliveryFee {
		t.Errorf("total = %d, want subtotal + delivery fee", result.Summary.Total)
	}
	if result.Summary.Estimate == nil {
		t.Error("expected a delivery time estimate")
	}
	if result.Summary.DistanceKm <= 0 || result.Summary.DistanceKm > 5 {
		t.Errorf("distance = %.2f km, want within (0, 5]", result.Summary.DistanceKm)
	}
}

func TestValidatePickupSkipsDelivery(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), &Request{
		CartID:          1,
		CustomerID:      7,
		FulfillmentType: models.FulfillmentPickup,
	}, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result, got errors: %v", result.Errors)
	}
	if result.Summary.DeliveryFee != 0 {
		t.Errorf("pickup delivery fee = %d, want 0", result.Summary.DeliveryFee)
	}
	if result.Summary.Estimate != nil {
		t.Error("pickup should have no delivery estimate")
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	repo := newTestRepo()
	repo.vendors[2].IsBusy = true
	repo.variants[10].Available = false

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) < 2 {
		t.Fatalf("expected at least 2 errors, got %v", result.Errors)
	}
}

func TestValidateOwnershipMismatch(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	req := deliveryRequest()
	req.CustomerID = 99

	result, err := svc.Validate(context.Background(), req, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for foreign cart")
	}
}

func TestValidateExpiredCart(t *testing.T) {
	repo := newTestRepo()
	repo.carts[1].ExpiresAt = time.Now().Add(-time.Minute)

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for expired cart")
	}
}

func TestValidateEmptyCart(t *testing.T) {
	repo := newTestRepo()
	repo.lines[1] = nil

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for empty cart")
	}
}

func TestValidateOutOfZone(t *testing.T) {
	repo := newTestRepo()
	// Gulu is roughly 250 km from Kampala.
	repo.addresses[3].Lat = ptrF(2.7724)
	repo.addresses[3].Lng = ptrF(32.2881)

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for out-of-zone address")
	}
}

func TestValidateZoneRadiusOverride(t *testing.T) {
	repo := newTestRepo()
	repo.vendors[2].ZoneRadiusKm = ptrF(1.0)

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected ~3 km address to fail a 1 km zone")
	}
}

func TestValidateMissingCoordinatesWarns(t *testing.T) {
	repo := newTestRepo()
	repo.addresses[3].Lat = nil
	repo.addresses[3].Lng = nil

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Validate(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("missing coordinates must not block checkout, got errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a zone warning when coordinates are missing")
	}
}

func TestValidatePromoWarningIsAdvisory(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	req := deliveryRequest()
	req.PromoCode = "NOPE"

	result, err := svc.Validate(context.Background(), req, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("unknown promo must not block checkout, got errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a promo warning")
	}
	if result.Summary.Discount != 0 {
		t.Errorf("discount = %d, want 0", result.Summary.Discount)
	}
}

func TestValidateDiscountNeverExceedsSubtotal(t *testing.T) {
	repo := newTestRepo()
	repo.promotions["BIG"] = &models.Promotion{ID: 1, Code: "BIG", Status: models.PromotionActive}
	repo.methods["BIG"] = &models.ApplicationMethod{ID: 1, PromotionID: 1, Type: models.MethodFixed, Value: 500000}

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	req := deliveryRequest()
	req.PromoCode = "BIG"

	result, err := svc.Validate(context.Background(), req, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.Discount != result.Summary.Subtotal {
		t.Errorf("discount = %d, want clamped to subtotal %d", result.Summary.Discount, result.Summary.Subtotal)
	}
	if result.Summary.Total < 0 {
		t.Errorf("total = %d, must never be negative", result.Summary.Total)
	}
	if result.Summary.Total != result.Summary.DeliveryFee {
		t.Errorf("total = %d, want delivery fee only after full discount", result.Summary.Total)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: false}, &fakePublisher{published: make(chan string, 1)})

	_, err := svc.Complete(context.Background(), deliveryRequest(), "req-1")
	if err == nil || !strings.Contains(err.Error(), models.ErrRateLimited.Error()) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("rate-limited checkout must not create an order")
	}
}

func TestCompleteFailsFastOnInvalidCart(t *testing.T) {
	repo := newTestRepo()
	repo.vendors[2].IsBusy = true

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	_, err := svc.Complete(context.Background(), deliveryRequest(), "req-1")
	if err == nil {
		t.Fatal("expected error for busy store")
	}
	if repo.created != nil {
		t.Fatal("invalid checkout must not create an order")
	}
}

func TestCompleteCreatesOrderAndNotifiesVendor(t *testing.T) {
	repo := newTestRepo()
	pub := &fakePublisher{published: make(chan string, 1)}
	svc := newTestService(repo, &fakeLimiter{allow: true}, pub)

	req := deliveryRequest()
	req.PaymentRef = ptrS("MM-12345")

	result, err := svc.Complete(context.Background(), req, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrderID != 101 || result.DisplayID != 1 {
		t.Errorf("unexpected ids: %+v", result)
	}
	if result.PaymentStatus != models.PaymentCaptured {
		t.Errorf("payment status = %s, want captured with payment_ref", result.PaymentStatus)
	}
	if repo.created == nil {
		t.Fatal("expected CreateOrder to be called")
	}
	if repo.created.Subtotal != 22000 {
		t.Errorf("draft subtotal = %d, want 22000", repo.created.Subtotal)
	}
	if len(repo.created.Items) != 2 {
		t.Errorf("draft items = %d, want 2", len(repo.created.Items))
	}

	select {
	case key := <-pub.published:
		if key != models.VendorRoutingKey(2) {
			t.Errorf("routing key = %s, want %s", key, models.VendorRoutingKey(2))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a vendor notification")
	}
}

func TestCompleteWithoutPaymentRefAwaitsPayment(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	result, err := svc.Complete(context.Background(), deliveryRequest(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PaymentStatus != models.PaymentAwaiting {
		t.Errorf("payment status = %s, want awaiting", result.PaymentStatus)
	}
}

func TestQuoteOutOfZone(t *testing.T) {
	repo := newTestRepo()
	repo.addresses[3].Lat = ptrF(2.7724)
	repo.addresses[3].Lng = ptrF(32.2881)

	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	_, err := svc.Quote(context.Background(), 2, 3, 7, 20000, false)
	if err == nil || !strings.Contains(err.Error(), models.ErrOutOfZone.Error()) {
		t.Fatalf("expected out-of-zone error, got %v", err)
	}
}

func TestQuoteHappyPath(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &fakeLimiter{allow: true}, &fakePublisher{published: make(chan string, 1)})

	quote, err := svc.Quote(context.Background(), 2, 3, 7, 20000, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.DeliveryFee <= 0 {
		t.Errorf("delivery fee = %d, want > 0", quote.DeliveryFee)
	}
	if quote.Total != 20000+quote.DeliveryFee {
		t.Errorf("total = %d, want subtotal + fee", quote.Total)
	}
	if quote.Estimate == nil {
		t.Fatal("expected a delivery estimate")
	}
	if quote.Estimate.MinMinutes >= quote.Estimate.MaxMinutes {
		t.Errorf("estimate %d..%d not ordered", quote.Estimate.MinMinutes, quote.Estimate.MaxMinutes)
	}
}
