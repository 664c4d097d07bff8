package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sokoni/internal/logger"
	"sokoni/internal/models"
)

// Handler handles HTTP requests for the checkout service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new checkout handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Register sets up the checkout routes on the shared mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/checkout/validate", h.withLogging(h.ValidateCheckout))
	mux.HandleFunc("/checkout/complete", h.withLogging(h.CompleteCheckout))
	mux.HandleFunc("/delivery-quote", h.withLogging(h.GetDeliveryQuote))
	mux.HandleFunc("/vendors/nearby", h.withLogging(h.GetNearbyVendors))
}

// ValidateCheckout handles POST /checkout/validate requests
func (h *Handler) ValidateCheckout(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	req, ok := h.decodeRequest(w, r, requestID)
	if !ok {
		return
	}

	result, err := h.service.Validate(r.Context(), req, requestID)
	if err != nil {
		h.logger.Error("checkout_validate_failed", "Failed to validate checkout", requestID, err, map[string]interface{}{
			"cart_id": req.CartID,
		})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, result, requestID)
}

// CompleteCheckout handles POST /checkout/complete requests
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	req, ok := h.decodeRequest(w, r, requestID)
	if !ok {
		return
	}

	result, err := h.service.Complete(r.Context(), req, requestID)
	if err != nil {
		status, message := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("checkout_complete_failed", "Failed to complete checkout", requestID, err, map[string]interface{}{
				"cart_id": req.CartID,
			})
		}
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "60")
		}
		h.writeErrorResponse(w, status, message, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, result, requestID)
}

// GetDeliveryQuote handles GET /delivery-quote requests
func (h *Handler) GetDeliveryQuote(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	customerID, ok := h.customerID(w, r, requestID)
	if !ok {
		return
	}

	q := r.URL.Query()
	vendorID, err1 := strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	addressID, err2 := strconv.ParseInt(q.Get("address_id"), 10, 64)
	if err1 != nil || err2 != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "vendor_id and address_id are required", requestID)
		return
	}
	subtotal, _ := strconv.ParseInt(q.Get("subtotal"), 10, 64)
	isExpress := q.Get("express") == "true"

	quote, err := h.service.Quote(r.Context(), vendorID, addressID, customerID, subtotal, isExpress)
	if err != nil {
		status, message := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("delivery_quote_failed", "Failed to compute delivery quote", requestID, err, map[string]interface{}{
				"vendor_id":  vendorID,
				"address_id": addressID,
			})
		}
		h.writeErrorResponse(w, status, message, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, quote, requestID)
}

// GetNearbyVendors handles GET /vendors/nearby requests
func (h *Handler) GetNearbyVendors(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "lat and lng are required", requestID)
		return
	}
	radiusKm, _ := strconv.ParseFloat(q.Get("radius_km"), 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := h.service.NearbyVendors(r.Context(), lat, lng, radiusKm, limit)
	if err != nil {
		h.logger.Error("nearby_vendors_failed", "Failed to search nearby vendors", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"vendors": entries}, requestID)
}

// decodeRequest parses the body and resolves the caller's customer id.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, requestID string) (*Request, bool) {
	customerID, ok := h.customerID(w, r, requestID)
	if !ok {
		return nil, false
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON in request body", requestID)
		return nil, false
	}
	if req.CartID <= 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "cart_id is required", requestID)
		return nil, false
	}
	req.CustomerID = customerID
	return &req, true
}

// customerID reads the authenticated customer identity. Authentication
// itself happens upstream; this service only trusts the forwarded header.
func (h *Handler) customerID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Customer-ID"), 10, 64)
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid X-Customer-ID header", requestID)
		return 0, false
	}
	return id, true
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many checkout attempts, try again later"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrOwnershipMismatch):
		return http.StatusForbidden, "Resource does not belong to the caller"
	case errors.Is(err, models.ErrCartExpired),
		errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrStoreUnavailable),
		errors.Is(err, models.ErrOutOfZone),
		errors.Is(err, models.ErrPriceNotFound):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
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
