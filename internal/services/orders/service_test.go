package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"sokoni/internal/logger"
	"sokoni/internal/models"
)

type fakeRepo struct {
	orders map[int64]*models.Order
	items  map[int64][]models.OrderItem
	events map[int64][]models.OrderEvent
	riders map[int64]*models.Rider

	nextCartID int64
	cartLines  int

	// afterGet runs after GetOrder returns its copy, letting tests slip a
	// competing write between the read and the guarded update.
	afterGet func()
}

func (f *fakeRepo) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *o
	if f.afterGet != nil {
		f.afterGet()
	}
	return &cp, nil
}

func (f *fakeRepo) ListOrdersByCustomer(_ context.Context, customerID int64, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeRepo) ListOrderEvents(_ context.Context, orderID int64) ([]models.OrderEvent, error) {
	return f.events[orderID], nil
}

func (f *fakeRepo) GetRider(_ context.Context, id int64) (*models.Rider, error) {
	r, ok := f.riders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) ApplyTransition(_ context.Context, order *models.Order, event *models.OrderEvent) error {
	stored := f.orders[order.ID]
	if stored.Status != *event.FromStatus {
		return &models.TransitionError{From: *event.FromStatus, To: order.Status}
	}
	stored.Status = order.Status
	stored.FulfillmentStatus = order.FulfillmentStatus
	f.events[order.ID] = append(f.events[order.ID], *event)
	return nil
}

func (f *fakeRepo) AssignRider(_ context.Context, order *models.Order, rider *models.Rider, event *models.OrderEvent) error {
	stored := f.orders[order.ID]
	if stored.Status != *event.FromStatus {
		return &models.TransitionError{From: *event.FromStatus, To: order.Status}
	}
	stored.Status = order.Status
	stored.RiderID = &rider.ID
	stored.RiderName = &rider.Name
	stored.RiderPhone = &rider.Phone
	f.events[order.ID] = append(f.events[order.ID], *event)
	return nil
}

func (f *fakeRepo) CreateCartFromOrder(_ context.Context, _ *models.Order, items []models.OrderItem, _ time.Time) (int64, error) {
	f.nextCartID++
	f.cartLines = len(items)
	return f.nextCartID, nil
}

type fakePublisher struct {
	notifications chan interface{}
	dispatches    chan string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		notifications: make(chan interface{}, 8),
		dispatches:    make(chan string, 8),
	}
}

func (f *fakePublisher) PublishOrder(_ context.Context, _ interface{}, routingKey string, _ uint8) error {
	select {
	case f.dispatches <- routingKey:
	default:
	}
	return nil
}

func (f *fakePublisher) PublishNotification(_ context.Context, msg interface{}) error {
	select {
	case f.notifications <- msg:
	default:
	}
	return nil
}

func newTestRepo(status models.OrderStatus) *fakeRepo {
	return &fakeRepo{
		orders: map[int64]*models.Order{
			1: {
				ID:                1,
				DisplayID:         42,
				Status:            status,
				FulfillmentStatus: models.FulfillmentUnfulfilled,
				FulfillmentType:   models.FulfillmentDelivery,
				CustomerID:        7,
				VendorID:          2,
				Currency:          "UGX",
				Total:             27000,
				DeliveryFee:       5000,
			},
		},
		items: map[int64][]models.OrderItem{
			1: {{ID: 1, OrderID: 1, VariantID: 10, Title: "Rolex", Quantity: 2, UnitPrice: 5000, Subtotal: 10000}},
		},
		events: map[int64][]models.OrderEvent{},
		riders: map[int64]*models.Rider{
			5: {ID: 5, Name: "Okello", Phone: "+256700000001", Status: models.RiderOnline},
		},
	}
}

func newTestService(repo *fakeRepo, pub *fakePublisher) *Service {
	return NewService(repo, pub, logger.New("orders-test"))
}

func TestTransitionAppendsEventAndNotifies(t *testing.T) {
	repo := newTestRepo(models.StatusPending)
	pub := newFakePublisher()
	svc := newTestService(repo, pub)

	order, err := svc.Confirm(context.Background(), 1, "vendor", "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", order.Status)
	}
	if repo.orders[1].Status != models.StatusConfirmed {
		t.Errorf("stored status = %s, want confirmed", repo.orders[1].Status)
	}

	events := repo.events[1]
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if *e.FromStatus != models.StatusPending || *e.ToStatus != models.StatusConfirmed {
		t.Errorf("event records %s -> %s, want pending -> confirmed", *e.FromStatus, *e.ToStatus)
	}
	if e.Total != 27000 || e.DeliveryFee != 5000 {
		t.Errorf("event must snapshot totals, got total=%d fee=%d", e.Total, e.DeliveryFee)
	}

	select {
	case msg := <-pub.notifications:
		update, ok := msg.(*models.StatusUpdateMessage)
		if !ok {
			t.Fatalf("expected StatusUpdateMessage, got %T", msg)
		}
		if update.NewStatus != models.StatusConfirmed {
			t.Errorf("notification status = %s, want confirmed", update.NewStatus)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a status notification")
	}
}

func TestInvalidTransitionLeavesOrderUnchanged(t *testing.T) {
	repo := newTestRepo(models.StatusPending)
	svc := newTestService(repo, newFakePublisher())

	_, err := svc.Transition(context.Background(), 1, models.StatusDelivered, "vendor", nil, "req-1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if repo.orders[1].Status != models.StatusPending {
		t.Errorf("rejected transition must not change stored status, got %s", repo.orders[1].Status)
	}
	if len(repo.events[1]) != 0 {
		t.Errorf("rejected transition must not append events, got %d", len(repo.events[1]))
	}
}

func TestTransitionRejectsConcurrentStatusChange(t *testing.T) {
	repo := newTestRepo(models.StatusPending)
	svc := newTestService(repo, newFakePublisher())

	// A competing cancel lands between our read and our write.
	repo.afterGet = func() {
		repo.afterGet = nil
		repo.orders[1].Status = models.StatusCancelled
	}

	_, err := svc.Confirm(context.Background(), 1, "vendor", "req-1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var te *models.TransitionError
	if !errors.As(err, &te) || te.From != models.StatusPending || te.To != models.StatusConfirmed {
		t.Errorf("error must name the stale pair, got %v", err)
	}
	if repo.orders[1].Status != models.StatusCancelled {
		t.Errorf("losing transition must not overwrite the winner, got %s", repo.orders[1].Status)
	}
	if len(repo.events[1]) != 0 {
		t.Errorf("losing transition must not append events, got %d", len(repo.events[1]))
	}
}

func TestAssignRiderRejectsConcurrentStatusChange(t *testing.T) {
	repo := newTestRepo(models.StatusReadyForPickup)
	pub := newFakePublisher()
	svc := newTestService(repo, pub)

	repo.afterGet = func() {
		repo.afterGet = nil
		repo.orders[1].Status = models.StatusCancelled
	}

	_, err := svc.AssignRiderAndDispatch(context.Background(), 1, 5, "dispatcher", "req-1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if repo.orders[1].RiderID != nil {
		t.Error("losing dispatch must not record a rider")
	}
	select {
	case key := <-pub.dispatches:
		t.Errorf("losing dispatch must not notify the rider, got %s", key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeliveredMarksFulfilled(t *testing.T) {
	repo := newTestRepo(models.StatusOutForDelivery)
	svc := newTestService(repo, newFakePublisher())

	order, err := svc.MarkDelivered(context.Background(), 1, "rider", "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.FulfillmentStatus != models.FulfillmentFulfilled {
		t.Errorf("fulfillment status = %s, want fulfilled", order.FulfillmentStatus)
	}
}

func TestAssignRiderAndDispatch(t *testing.T) {
	repo := newTestRepo(models.StatusReadyForPickup)
	pub := newFakePublisher()
	svc := newTestService(repo, pub)

	order, err := svc.AssignRiderAndDispatch(context.Background(), 1, 5, "dispatcher", "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != models.StatusOutForDelivery {
		t.Errorf("status = %s, want out_for_delivery", order.Status)
	}
	if order.RiderID == nil || *order.RiderID != 5 {
		t.Error("rider id must be recorded on the order")
	}
	if order.RiderName == nil || *order.RiderName != "Okello" {
		t.Error("rider name must be recorded on the order")
	}

	select {
	case key := <-pub.dispatches:
		if key != models.RiderRoutingKey(5) {
			t.Errorf("routing key = %s, want %s", key, models.RiderRoutingKey(5))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a rider dispatch message")
	}
}

func TestAssignRiderRequiresReadyOrder(t *testing.T) {
	repo := newTestRepo(models.StatusPreparing)
	svc := newTestService(repo, newFakePublisher())

	_, err := svc.AssignRiderAndDispatch(context.Background(), 1, 5, "dispatcher", "req-1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCustomerCancelWindow(t *testing.T) {
	tests := []struct {
		status  models.OrderStatus
		allowed bool
	}{
		{models.StatusPending, true},
		{models.StatusConfirmed, true},
		{models.StatusPreparing, true},
		{models.StatusReadyForPickup, false},
		{models.StatusOutForDelivery, false},
		{models.StatusDelivered, false},
	}

	for _, tt := range tests {
		repo := newTestRepo(tt.status)
		svc := newTestService(repo, newFakePublisher())

		_, err := svc.Cancel(context.Background(), 1, 7, nil, "req-1")
		if tt.allowed && err != nil {
			t.Errorf("cancel from %s: unexpected error %v", tt.status, err)
		}
		if !tt.allowed && !errors.Is(err, models.ErrInvalidTransition) {
			t.Errorf("cancel from %s: expected ErrInvalidTransition, got %v", tt.status, err)
		}
	}
}

func TestCustomerCancelAssertsOwnership(t *testing.T) {
	repo := newTestRepo(models.StatusPending)
	svc := newTestService(repo, newFakePublisher())

	_, err := svc.Cancel(context.Background(), 1, 99, nil, "req-1")
	if !errors.Is(err, models.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
	}
	if repo.orders[1].Status != models.StatusPending {
		t.Error("foreign cancel must not change the order")
	}
}

func TestGetForCustomerAssertsOwnership(t *testing.T) {
	repo := newTestRepo(models.StatusPending)
	svc := newTestService(repo, newFakePublisher())

	if _, err := svc.GetForCustomer(context.Background(), 1, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetForCustomer(context.Background(), 1, 99); !errors.Is(err, models.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
	}
}

func TestReorderCopiesItemsIntoNewCart(t *testing.T) {
	repo := newTestRepo(models.StatusCompleted)
	svc := newTestService(repo, newFakePublisher())

	cartID, err := svc.Reorder(context.Background(), 1, 7, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cartID == 0 {
		t.Fatal("expected a new cart id")
	}
	if repo.cartLines != 1 {
		t.Errorf("cart lines = %d, want 1", repo.cartLines)
	}
}

func TestReorderAssertsOwnership(t *testing.T) {
	repo := newTestRepo(models.StatusCompleted)
	svc := newTestService(repo, newFakePublisher())

	if _, err := svc.Reorder(context.Background(), 1, 99, "req-1"); !errors.Is(err, models.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
	}
}

func TestTransitionMissingOrder(t *testing.T) {
	repo := newTestRepo(models.StatusPending)
	svc := newTestService(repo, newFakePublisher())

	_, err := svc.Transition(context.Background(), 999, models.StatusConfirmed, "vendor", nil, "req-1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
