/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking documents from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Reservations:
    CreateReservationRequest, RoomRequest, CancelRequest,
    ReservationDTO, RoomDTO

  Rooms:
    RoomEventRequest (check-in / check-out)

  Payments:
    RecordPaymentRequest, RefundPaymentRequest, PaymentDTO, ReceiptDTO,
    PaymentListDTO

  Reconciliation:
    ReconciliationDTO

VALIDATION:
  Shape is checked with go-playground/validator struct tags. Money and
  business rules are checked by the booking package, which owns them.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lodge-engine/booking"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateReservationRequest struct {
	GuestName   string          `json:"guest_name" validate:"required,max=200"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Rooms       []RoomRequest   `json:"rooms" validate:"required,min=1,dive"`
}

type RoomRequest struct {
	RoomNumber     string          `json:"room_number" validate:"required,max=20"`
	TariffPerNight decimal.Decimal `json:"tariff_per_night"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RoomEventRequest is the body for check-in and check-out. At defaults to now.
type RoomEventRequest struct {
	At    *time.Time `json:"at,omitempty"`
	Notes string     `json:"notes" validate:"max=500"`
}

type RecordPaymentRequest struct {
	ReservationID string          `json:"reservation_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"payment_type" validate:"required,oneof=advance partial_payment full_payment refund cancellation_fee additional_charge"`
	Method        string          `json:"method" validate:"required,oneof=cash card upi bank_transfer cheque online other"`
	Status        string          `json:"status,omitempty" validate:"omitempty,oneof=pending completed failed"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	Notes         string          `json:"notes" validate:"max=500"`
}

type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method,omitempty" validate:"omitempty,oneof=cash card upi bank_transfer cheque online other"`
	Notes  string          `json:"notes" validate:"max=500"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type ReservationDTO struct {
	ID                 string          `json:"id"`
	ReferenceNumber    string          `json:"reference_number"`
	GuestName          string          `json:"guest_name"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"payment_status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CreatedBy          string          `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CancelledBy        string          `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	Rooms              []RoomDTO       `json:"rooms"`
}

type RoomDTO struct {
	ID                 string          `json:"id"`
	ReservationID      string          `json:"reservation_id"`
	RoomNumber         string          `json:"room_number"`
	RoomStatus         string          `json:"room_status"`
	TariffPerNight     decimal.Decimal `json:"tariff_per_night"`
	CheckInDatetime    *time.Time      `json:"check_in_datetime,omitempty"`
	CheckOutDatetime   *time.Time      `json:"check_out_datetime,omitempty"`
	CheckedInBy        string          `json:"checked_in_by,omitempty"`
	CheckInNotes       string          `json:"check_in_notes,omitempty"`
	CheckedOutBy       string          `json:"checked_out_by,omitempty"`
	CheckOutNotes      string          `json:"check_out_notes,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	StatusChangedBy    string          `json:"status_changed_by,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type PaymentDTO struct {
	ID                string          `json:"id"`
	ReservationID     string          `json:"reservation_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Type              string          `json:"payment_type"`
	Method            string          `json:"method"`
	ReceiptNumber     string          `json:"receipt_number"`
	Status            string          `json:"status"`
	PaymentDate       time.Time       `json:"payment_date"`
	Notes             string          `json:"notes,omitempty"`
	OriginalPaymentID string          `json:"original_payment_id,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type ReceiptDTO struct {
	PaymentID     string     `json:"payment_id"`
	ReceiptNumber string     `json:"receipt_number"`
	Payment       PaymentDTO `json:"payment"`
}

type PaymentListDTO struct {
	ReservationID string          `json:"reservation_id"`
	NetPaid       decimal.Decimal `json:"net_paid"`
	Payments      []PaymentDTO    `json:"payments"`
}

type DiscrepancyDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ReconciliationDTO struct {
	ReservationID   string           `json:"reservation_id"`
	IsReconciled    bool             `json:"is_reconciled"`
	Discrepancies   []DiscrepancyDTO `json:"discrepancies"`
	Recommendations []string         `json:"recommendations"`
	Summary         struct {
		TotalAmount    decimal.Decimal `json:"total_amount"`
		NetPaid        decimal.Decimal `json:"net_paid"`
		Difference     decimal.Decimal `json:"difference"`
		RefundedTotal  decimal.Decimal `json:"refunded_total"`
		CompletedCount int             `json:"completed_count"`
		FailedCount    int             `json:"failed_count"`
		PendingCount   int             `json:"pending_count"`
		PaymentStatus  string          `json:"payment_status"`
		ExpectedStatus string          `json:"expected_status"`
	} `json:"summary"`
}

type IdentifierDTO struct {
	Identifier string `json:"identifier"`
	Prefix     string `json:"prefix,omitempty"`
	Period     string `json:"period"`
	Counter    int64  `json:"counter"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toReservationDTO(v booking.ReservationView) ReservationDTO {
	r := v.Reservation
	dto := ReservationDTO{
		ID:                 r.ID,
		ReferenceNumber:    r.ReferenceNumber,
		GuestName:          r.GuestName,
		Status:             string(r.Status),
		PaymentStatus:      string(r.PaymentStatus),
		TotalAmount:        r.TotalAmount,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		CancelledBy:        r.CancelledBy,
		CancelledAt:        timePtr(r.CancelledAt),
		CancellationReason: r.CancellationReason,
		Rooms:              make([]RoomDTO, len(v.Rooms)),
	}
	for i, room := range v.Rooms {
		dto.Rooms[i] = toRoomDTO(room)
	}
	return dto
}

func toRoomDTO(r booking.ReservationRoom) RoomDTO {
	return RoomDTO{
		ID:                 r.ID,
		ReservationID:      r.ReservationID,
		RoomNumber:         r.RoomNumber,
		RoomStatus:         string(r.RoomStatus),
		TariffPerNight:     r.TariffPerNight,
		CheckInDatetime:    timePtr(r.CheckInDatetime),
		CheckOutDatetime:   timePtr(r.CheckOutDatetime),
		CheckedInBy:        r.CheckedInBy,
		CheckInNotes:       r.CheckInNotes,
		CheckedOutBy:       r.CheckedOutBy,
		CheckOutNotes:      r.CheckOutNotes,
		CancellationReason: r.CancellationReason,
		StatusChangedBy:    r.StatusChangedBy,
		UpdatedAt:          r.UpdatedAt,
	}
}

func toPaymentDTO(p booking.Payment) PaymentDTO {
	return PaymentDTO{
		ID:                p.ID,
		ReservationID:     p.ReservationID,
		Amount:            p.Amount,
		Type:              string(p.Type),
		Method:            string(p.Method),
		ReceiptNumber:     p.ReceiptNumber,
		Status:            string(p.Status),
		PaymentDate:       p.PaymentDate,
		Notes:             p.Notes,
		OriginalPaymentID: p.OriginalPaymentID,
		CreatedBy:         p.CreatedBy,
		CreatedAt:         p.CreatedAt,
	}
}

func toReceiptDTO(r booking.Receipt) ReceiptDTO {
	return ReceiptDTO{PaymentID: r.PaymentID, ReceiptNumber: r.ReceiptNumber, Payment: toPaymentDTO(r.Payment)}
}

func toReconciliationDTO(r booking.ReconciliationReport) ReconciliationDTO {
	dto := ReconciliationDTO{
		ReservationID:   r.ReservationID,
		IsReconciled:    r.IsReconciled,
		Discrepancies:   make([]DiscrepancyDTO, len(r.Discrepancies)),
		Recommendations: r.Recommendations,
	}
	if dto.Recommendations == nil {
		dto.Recommendations = []string{}
	}
	for i, d := range r.Discrepancies {
		dto.Discrepancies[i] = DiscrepancyDTO{Code: d.Code, Message: d.Message}
	}
	s := r.Summary
	dto.Summary.TotalAmount = s.TotalAmount
	dto.Summary.NetPaid = s.NetPaid
	dto.Summary.Difference = s.Difference
	dto.Summary.RefundedTotal = s.RefundedTotal
	dto.Summary.CompletedCount = s.CompletedCount
	dto.Summary.FailedCount = s.FailedCount
	dto.Summary.PendingCount = s.PendingCount
	dto.Summary.PaymentStatus = string(s.PaymentStatus)
	dto.Summary.ExpectedStatus = string(s.ExpectedStatus)
	return dto
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
