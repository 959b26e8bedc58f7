/*
handlers.go - HTTP API handlers for the lodge booking engine

PURPOSE:
  Exposes reservations, room transitions, the payment ledger and
  reconciliation via REST API. Handles HTTP request/response and JSON
  serialization, and delegates to the booking package.

ENDPOINTS:
  Reservations:
    POST   /api/reservations                      Create reservation with rooms
    GET    /api/reservations/{id}                 Reservation with active rooms
    POST   /api/reservations/{id}/cancel          Cancel and cascade to rooms
    DELETE /api/reservations/{id}                 Soft delete
    GET    /api/reservations/{id}/payments        Active payments and net paid
    GET    /api/reservations/{id}/reconciliation  Reconciliation report

  Rooms:
    POST   /api/rooms/{id}/check-in
    POST   /api/rooms/{id}/check-out
    POST   /api/rooms/{id}/cancel
    POST   /api/rooms/{id}/no-show

  Payments:
    POST   /api/payments                          Record payment
    POST   /api/payments/{id}/refund              Refund against a payment
    POST   /api/payments/{id}/cancel              Cancel a payment
    DELETE /api/payments/{id}                     Soft delete
    DELETE /api/admin/payments/{id}               Hard delete (no audit)

  Numbers:
    GET    /api/numbers/{identifier}              Parse a receipt/reference number

ACTOR:
  Every write reads the acting staff member from the X-Actor-ID header
  (see ActorMiddleware). A missing actor is a validation error.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Invalid room status transition
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/lodge-engine/booking"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the booking components the handlers delegate to.
type Services struct {
	Reservations *booking.ReservationDesk
	Rooms        *booking.RoomStatusMachine
	Ledger       *booking.PaymentLedger
	Reconciler   *booking.Reconciler
	Clock        booking.Clock
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc      Services
	log      *zap.Logger
	validate *validator.Validate
	checks   map[string]Pinger
}

// NewHandler creates a new handler. checks are named dependencies for /health.
func NewHandler(svc Services, log *zap.Logger, checks map[string]Pinger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if svc.Clock == nil {
		svc.Clock = booking.SystemClock()
	}
	return &Handler{svc: svc, log: log, validate: validator.New(), checks: checks}
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation creates a reservation and its rooms.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !h.decode(w, r, &req) {
		return
	}

	rooms := make([]booking.NewRoom, len(req.Rooms))
	for i, room := range req.Rooms {
		rooms[i] = booking.NewRoom{RoomNumber: room.RoomNumber, TariffPerNight: room.TariffPerNight}
	}
	view, err := h.svc.Reservations.Create(r.Context(), booking.NewReservation{
		GuestName:   req.GuestName,
		TotalAmount: req.TotalAmount,
		Rooms:       rooms,
		ActorID:     actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(view))
}

// GetReservation returns a reservation with its active rooms.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Reservations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(view))
}

// CancelReservation cancels a reservation and its remaining rooms.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	view, err := h.svc.Reservations.Cancel(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(view))
}

// DeleteReservation soft-deletes a reservation and its rooms.
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reservations.SoftDelete(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		h.writeDomainError(w, "Failed to delete reservation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListReservationPayments returns active payments and the net paid.
func (h *Handler) ListReservationPayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Reservations.Get(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}
	payments, err := h.svc.Ledger.PaymentsFor(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}

	dto := PaymentListDTO{
		ReservationID: id,
		NetPaid:       booking.NetPaid(payments),
		Payments:      make([]PaymentDTO, len(payments)),
	}
	for i, p := range payments {
		dto.Payments[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetReconciliation runs the read-only reconciliation for a reservation.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconciler.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to reconcile reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(report))
}

// =============================================================================
// ROOM HANDLERS
// =============================================================================

func (h *Handler) CheckInRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomEventRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	room, err := h.svc.Rooms.CheckIn(r.Context(), chi.URLParam(r, "id"), h.eventTime(req.At), actorFrom(r), req.Notes)
	if err != nil {
		h.writeDomainError(w, "Failed to check in room", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room))
}

func (h *Handler) CheckOutRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomEventRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	room, err := h.svc.Rooms.CheckOut(r.Context(), chi.URLParam(r, "id"), h.eventTime(req.At), actorFrom(r), req.Notes)
	if err != nil {
		h.writeDomainError(w, "Failed to check out room", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room))
}

func (h *Handler) CancelRoom(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	room, err := h.svc.Rooms.CancelRoom(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel room", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room))
}

func (h *Handler) MarkRoomNoShow(w http.ResponseWriter, r *http.Request) {
	room, err := h.svc.Rooms.MarkNoShow(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.writeDomainError(w, "Failed to mark room as no-show", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room))
}

func (h *Handler) eventTime(at *time.Time) time.Time {
	if at == nil {
		return h.svc.Clock.Now()
	}
	return at.UTC()
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a payment and returns its receipt.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	pr := booking.PaymentRequest{
		ReservationID: req.ReservationID,
		Amount:        req.Amount,
		Type:          booking.PaymentType(req.Type),
		Method:        booking.PaymentMethod(req.Method),
		Status:        booking.PaymentRecordStatus(req.Status),
		Notes:         req.Notes,
		ActorID:       actorFrom(r),
	}
	if req.PaymentDate != nil {
		pr.PaymentDate = req.PaymentDate.UTC()
	}
	receipt, err := h.svc.Ledger.RecordPayment(r.Context(), pr)
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

// RefundPayment records a refund against an existing payment.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req RefundPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.Ledger.RecordRefund(r.Context(), booking.RefundRequest{
		OriginalPaymentID: chi.URLParam(r, "id"),
		Amount:            req.Amount,
		Method:            booking.PaymentMethod(req.Method),
		Notes:             req.Notes,
		ActorID:           actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record refund", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	p, err := h.svc.Ledger.CancelPayment(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ledger.SoftDelete(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		h.writeDomainError(w, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HardDeletePayment permanently removes a payment. Admin only; no audit entry.
func (h *Handler) HardDeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ledger.HardDelete(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		h.writeDomainError(w, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// NUMBERS AND HEALTH
// =============================================================================

// ParseNumber validates a receipt or reference number.
func (h *Handler) ParseNumber(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "identifier")
	id, err := booking.Parse(raw)
	if err != nil {
		h.writeDomainError(w, "Invalid identifier", err)
		return
	}
	writeJSON(w, http.StatusOK, IdentifierDTO{
		Identifier: raw,
		Prefix:     id.Prefix,
		Period:     id.Period,
		Counter:    id.Counter,
	})
}

// Health pings every registered dependency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := map[string]string{"status": "ok"}
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result["status"] = "degraded"
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, result)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a required JSON body and validates its shape.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional accepts an empty body for endpoints where every field is optional.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return h.check(w, dst)
	}
	return h.decode(w, r, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()),
				Field:   strings.ToLower(fe.Field()),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps the booking error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Details: verr.Error(), Field: verr.Field})
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.log.Error(message, zap.Error(err), zap.Bool("retryable", booking.IsRetryable(err)))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
