package orders

import (
	"context"
	"fmt"
	"time"

	"sokoni/internal/logger"
	"sokoni/internal/models"
)

// Service advances orders through the status lifecycle. Every successful
// transition appends an audit event and fans out a customer notification.
type Service struct {
	repo      Repository
	publisher Publisher
	logger    *logger.Logger
}

// NewService creates an order lifecycle service
func NewService(repo Repository, publisher Publisher, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    log,
	}
}

// Get returns an order with its item snapshot.
func (s *Service) Get(ctx context.Context, orderID int64) (*OrderDetails, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &OrderDetails{Order: order, Items: items}, nil
}

// GetForCustomer is Get with an ownership assertion for customer callers.
func (s *Service) GetForCustomer(ctx context.Context, orderID, customerID int64) (*OrderDetails, error) {
	details, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if details.Order.CustomerID != customerID {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrOwnershipMismatch)
	}
	return details, nil
}

// List returns a customer's orders, newest first.
func (s *Service) List(ctx context.Context, customerID int64, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListOrdersByCustomer(ctx, customerID, limit)
}

// History returns the order's append-only event log.
func (s *Service) History(ctx context.Context, orderID int64) ([]models.OrderEvent, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	events, err := s.repo.ListOrderEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	return events, nil
}

// Transition moves an order to a new status. The move is validated against
// the status graph; on success the order is patched, an event is appended
// and a status notification goes out best-effort.
func (s *Service) Transition(ctx context.Context, orderID int64, to models.OrderStatus, actor string, reason *string, requestID string) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return s.transition(ctx, order, to, actor, reason, requestID)
}

func (s *Service) transition(ctx context.Context, order *models.Order, to models.OrderStatus, actor string, reason *string, requestID string) (*models.Order, error) {
	if err := validateTransition(order.Status, to); err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = to
	order.FulfillmentStatus = fulfillmentStatusFor(to, order.FulfillmentStatus)

	event := &models.OrderEvent{
		OrderID:     order.ID,
		Actor:       actor,
		EventType:   "status_changed",
		FromStatus:  &from,
		ToStatus:    &to,
		Reason:      reason,
		Total:       order.Total,
		Tax:         order.Tax,
		Discount:    order.Discount,
		DeliveryFee: order.DeliveryFee,
	}

	if err := s.repo.ApplyTransition(ctx, order, event); err != nil {
		order.Status = from
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	s.logger.Info("order_status_changed",
		fmt.Sprintf("Order #%d moved from %s to %s", order.DisplayID, from, to),
		requestID, map[string]interface{}{
			"order_id": order.ID,
			"from":     from,
			"to":       to,
			"actor":    actor,
		})

	s.notifyStatusChange(order, from, actor)
	return order, nil
}

// Confirm moves a pending order to confirmed (vendor accepted it).
func (s *Service) Confirm(ctx context.Context, orderID int64, actor, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusConfirmed, actor, nil, requestID)
}

// StartPreparing moves a confirmed order to preparing.
func (s *Service) StartPreparing(ctx context.Context, orderID int64, actor, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusPreparing, actor, nil, requestID)
}

// MarkReady moves a preparing order to ready_for_pickup.
func (s *Service) MarkReady(ctx context.Context, orderID int64, actor, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusReadyForPickup, actor, nil, requestID)
}

// MarkDelivered records the handover.
func (s *Service) MarkDelivered(ctx context.Context, orderID int64, actor, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusDelivered, actor, nil, requestID)
}

// Complete closes a delivered order.
func (s *Service) Complete(ctx context.Context, orderID int64, actor, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusCompleted, actor, nil, requestID)
}

// AssignRiderAndDispatch records the rider on a ready order, moves it to
// out_for_delivery and notifies the rider.
func (s *Service) AssignRiderAndDispatch(ctx context.Context, orderID, riderID int64, actor, requestID string) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	if err := validateTransition(order.Status, models.StatusOutForDelivery); err != nil {
		return nil, err
	}

	rider, err := s.repo.GetRider(ctx, riderID)
	if err != nil {
		return nil, fmt.Errorf("get rider %d: %w", riderID, err)
	}

	from := order.Status
	order.Status = models.StatusOutForDelivery
	order.RiderID = &rider.ID
	order.RiderName = &rider.Name
	order.RiderPhone = &rider.Phone

	to := models.StatusOutForDelivery
	event := &models.OrderEvent{
		OrderID:     order.ID,
		Actor:       actor,
		EventType:   "rider_assigned",
		FromStatus:  &from,
		ToStatus:    &to,
		Total:       order.Total,
		Tax:         order.Tax,
		Discount:    order.Discount,
		DeliveryFee: order.DeliveryFee,
	}

	if err := s.repo.AssignRider(ctx, order, rider, event); err != nil {
		order.Status = from
		return nil, fmt.Errorf("assign rider: %w", err)
	}

	s.logger.Info("rider_assigned",
		fmt.Sprintf("Rider %s assigned to order #%d", rider.Name, order.DisplayID),
		requestID, map[string]interface{}{
			"order_id": order.ID,
			"rider_id": rider.ID,
		})

	s.notifyStatusChange(order, from, actor)
	go s.dispatchRider(order, rider)

	return order, nil
}

// Cancel is the customer-facing cancellation. It asserts ownership and
// only succeeds while the vendor has not finished preparing.
func (s *Service) Cancel(ctx context.Context, orderID, customerID int64, reason *string, requestID string) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	if order.CustomerID != customerID {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrOwnershipMismatch)
	}
	if !customerCancellable[order.Status] {
		return nil, &models.TransitionError{From: order.Status, To: models.StatusCancelled}
	}
	return s.transition(ctx, order, models.StatusCancelled, "customer", reason, requestID)
}

// CancelByStaff cancels on behalf of the vendor or support staff; unlike
// customer cancellation it is allowed up to the handover.
func (s *Service) CancelByStaff(ctx context.Context, orderID int64, actor string, reason *string, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusCancelled, actor, reason, requestID)
}

// Refund moves a delivered or completed order to refunded.
func (s *Service) Refund(ctx context.Context, orderID int64, actor string, reason *string, requestID string) (*models.Order, error) {
	return s.Transition(ctx, orderID, models.StatusRefunded, actor, reason, requestID)
}

// Reorder builds a fresh cart from a past order's item snapshot. Prices are
// resolved again at checkout; only variants and quantities carry over.
func (s *Service) Reorder(ctx context.Context, orderID, customerID int64, requestID string) (int64, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("get order %d: %w", orderID, err)
	}
	if order.CustomerID != customerID {
		return 0, fmt.Errorf("order %d: %w", orderID, models.ErrOwnershipMismatch)
	}
	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("list order items: %w", err)
	}
	if len(items) == 0 {
		return 0, models.ErrEmptyCart
	}

	cartID, err := s.repo.CreateCartFromOrder(ctx, order, items, time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("create cart from order: %w", err)
	}

	s.logger.Info("order_reordered", fmt.Sprintf("Order #%d copied into cart %d", order.DisplayID, cartID),
		requestID, map[string]interface{}{
			"order_id": order.ID,
			"cart_id":  cartID,
		})
	return cartID, nil
}

// notifyStatusChange fans out the customer notification. Failures are
// logged and never surfaced; a slow broker must not fail a transition.
func (s *Service) notifyStatusChange(order *models.Order, from models.OrderStatus, changedBy string) {
	msg := models.NewStatusUpdateMessage(order, from, changedBy)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.publisher.PublishNotification(ctx, msg); err != nil {
			s.logger.Error("notification_publish_failed", "Failed to publish status update", "", err, map[string]interface{}{
				"order_id": order.ID,
				"status":   order.Status,
			})
		}
	}()
}

func (s *Service) dispatchRider(order *models.Order, rider *models.Rider) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg := &models.RiderDispatchMessage{
		OrderID:    order.ID,
		DisplayID:  order.DisplayID,
		RiderID:    rider.ID,
		VendorID:   order.VendorID,
		AddressID:  order.AddressID,
		DispatchAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishOrder(ctx, msg, models.RiderRoutingKey(rider.ID), 0); err != nil {
		s.logger.Error("dispatch_publish_failed", "Failed to publish rider dispatch", "", err, map[string]interface{}{
			"order_id": order.ID,
			"rider_id": rider.ID,
		})
	}
}
