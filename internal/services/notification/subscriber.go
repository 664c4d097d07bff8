package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sokoni/internal/logger"
	"sokoni/internal/messaging"
	"sokoni/internal/models"
)

// Subscriber handles notification messages
type Subscriber struct {
	consumer *messaging.Consumer
	logger   *logger.Logger

	// Graceful shutdown
	shutdown chan os.Signal
	done     chan bool
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(consumer *messaging.Consumer, logger *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   logger,
		shutdown: make(chan os.Signal, 1),
		done:     make(chan bool, 1),
	}
}

// Start starts the notification subscriber
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	// Set up graceful shutdown
	signal.Notify(s.shutdown, syscall.SIGINT, syscall.SIGTERM)

	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	// Start message consumption
	go func() {
		if err := s.consumer.StartConsuming(ctx, s.handleNotification); err != nil {
			s.logger.Error("consumer_failed", "Notification consumer failed", requestID, err, nil)
		}
		s.done <- true
	}()

	// Wait for shutdown signal or consumer to finish
	select {
	case <-s.shutdown:
		s.logger.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		return s.gracefulShutdown(ctx, requestID)
	case <-s.done:
		return nil
	}
}

// handleNotification processes incoming status update notifications
func (s *Subscriber) handleNotification(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	// Parse status update message
	var statusUpdate models.StatusUpdateMessage
	if err := json.Unmarshal(body, &statusUpdate); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse notification message", requestID, err, nil)
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	s.logger.Debug("notification_received", "Received status update notification", requestID, map[string]interface{}{
		"order_id":   statusUpdate.OrderID,
		"display_id": statusUpdate.DisplayID,
		"new_status": statusUpdate.NewStatus,
		"changed_by": statusUpdate.ChangedBy,
	})

	// Display human-readable notification
	s.displayNotification(&statusUpdate)

	return nil
}

// displayNotification displays a human-readable notification to console
func (s *Subscriber) displayNotification(statusUpdate *models.StatusUpdateMessage) {
	notification := s.formatNotification(statusUpdate)

	// Print to console (stdout)
	fmt.Println(notification)

	// Also log as structured data
	s.logger.Info("notification_displayed", "Notification displayed to user", "", map[string]interface{}{
		"order_id":   statusUpdate.OrderID,
		"display_id": statusUpdate.DisplayID,
		"old_status": statusUpdate.OldStatus,
		"new_status": statusUpdate.NewStatus,
		"changed_by": statusUpdate.ChangedBy,
		"timestamp":  statusUpdate.Timestamp.Format("2006-01-02 15:04:05"),
	})
}

// formatNotification creates a human-readable notification message
func (s *Subscriber) formatNotification(statusUpdate *models.StatusUpdateMessage) string {
	timestamp := statusUpdate.Timestamp.Format("2006-01-02 15:04:05")

	var message string
	switch statusUpdate.NewStatus {
	case models.StatusConfirmed:
		message = fmt.Sprintf(
			"👍 [%s] Order #%d has been accepted by the store.",
			timestamp,
			statusUpdate.DisplayID,
		)
	case models.StatusPreparing:
		message = fmt.Sprintf(
			"🍳 [%s] Order #%d is now being prepared.",
			timestamp,
			statusUpdate.DisplayID,
		)
	case models.StatusReadyForPickup:
		message = fmt.Sprintf(
			"📦 [%s] Order #%d is packed and ready for pickup!",
			timestamp,
			statusUpdate.DisplayID,
		)
	case models.StatusOutForDelivery:
		if statusUpdate.RiderName != nil {
			message = fmt.Sprintf(
				"🛵 [%s] Order #%d is on its way! Your rider is %s.",
				timestamp,
				statusUpdate.DisplayID,
				*statusUpdate.RiderName,
			)
		} else {
			message = fmt.Sprintf(
				"🛵 [%s] Order #%d is on its way!",
				timestamp,
				statusUpdate.DisplayID,
			)
		}
	case models.StatusDelivered:
		message = fmt.Sprintf(
			"🎉 [%s] Order #%d has been delivered. Enjoy!",
			timestamp,
			statusUpdate.DisplayID,
		)
	case models.StatusCancelled:
		message = fmt.Sprintf(
			"❌ [%s] Order #%d has been cancelled.",
			timestamp,
			statusUpdate.DisplayID,
		)
	case models.StatusRefunded:
		message = fmt.Sprintf(
			"💸 [%s] Order #%d has been refunded.",
			timestamp,
			statusUpdate.DisplayID,
		)
	default:
		message = fmt.Sprintf(
			"📋 [%s] Order #%d status changed from '%s' to '%s' by %s.",
			timestamp,
			statusUpdate.DisplayID,
			statusUpdate.OldStatus,
			statusUpdate.NewStatus,
			statusUpdate.ChangedBy,
		)
	}

	return message
}

// gracefulShutdown handles graceful shutdown of the subscriber
func (s *Subscriber) gracefulShutdown(ctx context.Context, requestID string) error {
	s.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)

	// Close consumer
	if s.consumer != nil {
		s.consumer.Close()
	}

	s.logger.Info("graceful_shutdown", "Graceful shutdown completed", requestID, nil)
	return nil
}
