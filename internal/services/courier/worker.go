package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"sokoni/internal/database"
	"sokoni/internal/geoindex"
	"sokoni/internal/logger"
	"sokoni/internal/messaging"
	"sokoni/internal/models"
	"sokoni/internal/services/orders"
)

// travelTime is the simulated ride between vendor and customer.
const travelTime = 5 * time.Second

// Worker is a courier process for one rider. It registers the rider,
// reports to a stage, heartbeats, and works dispatch messages: each
// accepted dispatch is ridden out and marked delivered.
type Worker struct {
	name              string
	phone             string
	stageID           int64
	heartbeatInterval time.Duration

	riderID int64

	db        *database.DB
	consumer  Consumer
	lifecycle *orders.Service
	geoIndex  geoindex.Index
	logger    *logger.Logger

	shutdown chan os.Signal
	done     chan bool
}

// Consumer is the queue subscription the worker reads dispatches from.
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// NewWorker creates a courier worker
func NewWorker(name, phone string, stageID int64, heartbeatInterval time.Duration,
	db *database.DB, consumer Consumer, lifecycle *orders.Service, geoIndex geoindex.Index, log *logger.Logger) *Worker {

	return &Worker{
		name:              name,
		phone:             phone,
		stageID:           stageID,
		heartbeatInterval: heartbeatInterval,
		db:                db,
		consumer:          consumer,
		lifecycle:         lifecycle,
		geoIndex:          geoIndex,
		logger:            log,
		shutdown:          make(chan os.Signal, 1),
		done:              make(chan bool, 1),
	}
}

// Start registers the rider and blocks until shutdown or consumer failure.
func (w *Worker) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	if err := w.registerRider(ctx, requestID); err != nil {
		return fmt.Errorf("failed to register rider: %w", err)
	}

	signal.Notify(w.shutdown, syscall.SIGINT, syscall.SIGTERM)

	go w.heartbeatLoop(ctx)

	go func() {
		if err := w.consumer.StartConsuming(ctx, w.handleMessage); err != nil {
			w.logger.Error("consumer_failed", "Dispatch consumer failed", requestID, err, nil)
		}
		w.done <- true
	}()

	w.logger.Info("rider_started", fmt.Sprintf("Courier worker %s started", w.name), requestID, map[string]interface{}{
		"rider_id":           w.riderID,
		"rider_name":         w.name,
		"stage_id":           w.stageID,
		"heartbeat_interval": w.heartbeatInterval.Seconds(),
	})

	select {
	case <-w.shutdown:
		w.logger.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		return w.gracefulShutdown(ctx, requestID)
	case <-w.done:
		return nil
	}
}

// registerRider upserts the rider, joins the stage and seeds the rider's
// position in the geospatial index from the stage coordinates.
func (w *Worker) registerRider(ctx context.Context, requestID string) error {
	err := w.db.QueryRow(ctx, database.UpsertRiderSQL, w.name, w.phone).Scan(&w.riderID)
	if err != nil {
		return fmt.Errorf("failed to upsert rider: %w", err)
	}

	if w.stageID > 0 {
		var stage models.Stage
		err := w.db.QueryRow(ctx, database.GetStageSQL, w.stageID).
			Scan(&stage.ID, &stage.Name, &stage.Lat, &stage.Lng)
		if err != nil {
			return fmt.Errorf("failed to load stage %d: %w", w.stageID, err)
		}

		if err := w.db.Exec(ctx, database.UpsertRiderStageSQL, w.riderID, stage.ID); err != nil {
			return fmt.Errorf("failed to join stage: %w", err)
		}

		riderKey := strconv.FormatInt(w.riderID, 10)
		if err := w.geoIndex.Upsert(ctx, "riders", riderKey, stage.Lat, stage.Lng); err != nil {
			w.logger.Error("geo_index_failed", "Failed to seed rider position", requestID, err, map[string]interface{}{
				"rider_id": w.riderID,
				"stage_id": stage.ID,
			})
		}

		w.logger.Info("stage_joined", fmt.Sprintf("Rider %s reporting to stage %s", w.name, stage.Name), requestID, map[string]interface{}{
			"rider_id": w.riderID,
			"stage_id": stage.ID,
		})
	}

	w.logger.Info("rider_registered", fmt.Sprintf("Rider %s registered successfully", w.name), requestID, map[string]interface{}{
		"rider_id":   w.riderID,
		"rider_name": w.name,
	})

	return nil
}

// handleMessage processes one dispatch message.
func (w *Worker) handleMessage(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var dispatch models.RiderDispatchMessage
	if err := json.Unmarshal(body, &dispatch); err != nil {
		w.logger.Error("message_parsing_failed", "Failed to parse dispatch message", requestID, err, nil)
		return fmt.Errorf("failed to parse message: %w", err)
	}

	// The dispatch queue carries every rider's messages; requeue the ones
	// addressed to someone else.
	if dispatch.RiderID != w.riderID {
		return fmt.Errorf("dispatch for rider %d, this worker is rider %d", dispatch.RiderID, w.riderID)
	}

	w.logger.Debug("dispatch_accepted", fmt.Sprintf("Riding out order #%d", dispatch.DisplayID), requestID, map[string]interface{}{
		"order_id":  dispatch.OrderID,
		"vendor_id": dispatch.VendorID,
	})

	time.Sleep(travelTime)

	if _, err := w.lifecycle.MarkDelivered(ctx, dispatch.OrderID, w.name, requestID); err != nil {
		return fmt.Errorf("failed to mark order %d delivered: %w", dispatch.OrderID, err)
	}

	if err := w.db.Exec(ctx, database.IncrementRiderDeliveredSQL, w.riderID); err != nil {
		w.logger.Error("rider_stats_failed", "Failed to increment deliveries", requestID, err, map[string]interface{}{
			"rider_id": w.riderID,
		})
	}

	w.logger.Info("delivery_completed", fmt.Sprintf("Order #%d delivered", dispatch.DisplayID), requestID, map[string]interface{}{
		"order_id": dispatch.OrderID,
		"rider_id": w.riderID,
	})

	return nil
}

// heartbeatLoop refreshes last_seen until shutdown.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-ticker.C:
			if err := w.sendHeartbeat(ctx); err != nil {
				w.logger.Error("heartbeat_failed", "Failed to send heartbeat", "", err, nil)
			} else {
				w.logger.Debug("heartbeat_sent", "Heartbeat sent successfully", "", nil)
			}
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) error {
	return w.db.Exec(ctx, database.UpdateRiderStatusSQL, models.RiderOnline, w.riderID)
}

// gracefulShutdown takes the rider offline and drops it from the index.
func (w *Worker) gracefulShutdown(ctx context.Context, requestID string) error {
	w.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)

	if err := w.db.Exec(ctx, database.UpdateRiderStatusSQL, models.RiderOffline, w.riderID); err != nil {
		w.logger.Error("shutdown_failed", "Failed to take rider offline", requestID, err, nil)
	}

	riderKey := strconv.FormatInt(w.riderID, 10)
	if err := w.geoIndex.Remove(ctx, "riders", riderKey); err != nil {
		w.logger.Error("geo_index_failed", "Failed to remove rider from index", requestID, err, nil)
	}

	if w.consumer != nil {
		w.consumer.Close()
	}

	w.logger.Info("graceful_shutdown", "Graceful shutdown completed", requestID, nil)
	return nil
}
