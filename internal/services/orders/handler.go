package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sokoni/internal/logger"
	"sokoni/internal/models"
)

// Handler handles HTTP requests for the order lifecycle service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new orders handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Register sets up the order routes on the shared mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/orders", h.withLogging(h.ListOrders))
	mux.HandleFunc("/orders/", h.withLogging(h.routeOrderRequests))
}

// routeOrderRequests dispatches /orders/{id}[/action] requests.
func (h *Handler) routeOrderRequests(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, action, ok := parseOrderPath(r.URL.Path)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", requestID)
		return
	}

	switch action {
	case "":
		h.getOrder(w, r, orderID, requestID)
	case "history":
		h.getHistory(w, r, orderID, requestID)
	case "status":
		h.updateStatus(w, r, orderID, requestID)
	case "confirm":
		h.staffTransition(w, r, orderID, requestID, "vendor", h.service.Confirm)
	case "start-preparing":
		h.staffTransition(w, r, orderID, requestID, "vendor", h.service.StartPreparing)
	case "mark-ready":
		h.staffTransition(w, r, orderID, requestID, "vendor", h.service.MarkReady)
	case "mark-delivered":
		h.staffTransition(w, r, orderID, requestID, "rider", h.service.MarkDelivered)
	case "complete":
		h.staffTransition(w, r, orderID, requestID, "system", h.service.Complete)
	case "dispatch":
		h.dispatch(w, r, orderID, requestID)
	case "cancel":
		h.cancel(w, r, orderID, requestID)
	case "refund":
		h.refund(w, r, orderID, requestID)
	case "reorder":
		h.reorder(w, r, orderID, requestID)
	default:
		h.writeErrorResponse(w, http.StatusNotFound, "Endpoint not found", requestID)
	}
}

// ListOrders handles GET /orders requests for the calling customer
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	customerID, ok := h.customerID(w, r, requestID)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.List(r.Context(), customerID, limit)
	if err != nil {
		h.logger.Error("db_query_failed", "Failed to list orders", requestID, err, map[string]interface{}{
			"customer_id": customerID,
		})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}
	if list == nil {
		list = []models.Order{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": list}, requestID)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	customerID, ok := h.customerID(w, r, requestID)
	if !ok {
		return
	}

	details, err := h.service.GetForCustomer(r.Context(), orderID, customerID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, details, requestID)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	events, err := h.service.History(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}
	if events == nil {
		events = []models.OrderEvent{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events}, requestID)
}

// updateStatus handles the generic POST /orders/{id}/status endpoint.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	var body struct {
		Status models.OrderStatus `json:"status"`
		Reason *string            `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "status is required", requestID)
		return
	}

	order, err := h.service.Transition(r.Context(), orderID, body.Status, h.actor(r, "staff"), body.Reason, requestID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

type transitionFunc func(ctx context.Context, orderID int64, actor, requestID string) (*models.Order, error)

func (h *Handler) staffTransition(w http.ResponseWriter, r *http.Request, orderID int64, requestID, defaultActor string, fn transitionFunc) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	order, err := fn(r.Context(), orderID, h.actor(r, defaultActor), requestID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	var body struct {
		RiderID int64 `json:"rider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RiderID <= 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "rider_id is required", requestID)
		return
	}

	order, err := h.service.AssignRiderAndDispatch(r.Context(), orderID, body.RiderID, h.actor(r, "dispatcher"), requestID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	customerID, ok := h.customerID(w, r, requestID)
	if !ok {
		return
	}

	var body struct {
		Reason *string `json:"reason,omitempty"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	order, err := h.service.Cancel(r.Context(), orderID, customerID, body.Reason, requestID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	var body struct {
		Reason *string `json:"reason,omitempty"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	order, err := h.service.Refund(r.Context(), orderID, h.actor(r, "support"), body.Reason, requestID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request, orderID int64, requestID string) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	customerID, ok := h.customerID(w, r, requestID)
	if !ok {
		return
	}

	cartID, err := h.service.Reorder(r.Context(), orderID, customerID, requestID)
	if err != nil {
		h.handleServiceError(w, err, orderID, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"cart_id": cartID}, requestID)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, orderID int64, requestID string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "Order not found", requestID)
	case errors.Is(err, models.ErrOwnershipMismatch):
		h.writeErrorResponse(w, http.StatusForbidden, "Order does not belong to the caller", requestID)
	case errors.Is(err, models.ErrInvalidTransition):
		h.writeErrorResponse(w, http.StatusConflict, err.Error(), requestID)
	case errors.Is(err, models.ErrEmptyCart):
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error(), requestID)
	default:
		h.logger.Error("order_request_failed", "Order request failed", requestID, err, map[string]interface{}{
			"order_id": orderID,
		})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

// parseOrderPath splits /orders/{id}[/action] into its parts.
func parseOrderPath(path string) (int64, string, bool) {
	trimmed := strings.TrimPrefix(path, "/orders/")
	parts := strings.SplitN(strings.Trim(trimmed, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action, true
}

// customerID reads the authenticated customer identity forwarded by the
// upstream gateway.
func (h *Handler) customerID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Customer-ID"), 10, 64)
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid X-Customer-ID header", requestID)
		return 0, false
	}
	return id, true
}

func (h *Handler) actor(r *http.Request, fallback string) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return fallback
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}

	json.NewEncoder(w).Encode(errorResponse)
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		h.logger.Debug("http_request", "HTTP request processed", "", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
