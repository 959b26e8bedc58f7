/*
Package booking provides the lodge booking lifecycle and payment consistency core.

PURPOSE:
  Keeps three things mutually consistent under concurrent writes:
  a reservation's status, the occupancy state of each of its rooms, and the
  payment ledger recorded against it. Also owns the sequential numbering
  used for receipt and reservation reference numbers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Reservation: top-level booking spanning one or more rooms
  - ReservationRoom: one physical room's occupancy record
  - Payment: signed monetary entry (negative = refund)
  - PeriodCounter: per-period counter backing sequential numbers

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. One direction: rooms drive reservation status through explicit
     recompute functions; a reservation holds no room references
  3. Lifecycle: soft delete is an explicit Lifecycle value, never a nil check
  4. Auditability: every mutation carries the acting user's id

SEE ALSO:
  - rooms.go: RoomStatusMachine
  - status.go: DeriveStatus / DerivePaymentStatus
  - payments.go: PaymentLedger
  - numbering.go: Numberer
  - reconcile.go: Reconciler
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESERVATION
// =============================================================================

type ReservationStatus string

const (
	StatusReservation ReservationStatus = "reservation" // created, nothing paid yet
	StatusBooking     ReservationStatus = "booking"     // confirmed by a completed payment
	StatusCheckedIn   ReservationStatus = "checked_in"
	StatusCheckedOut  ReservationStatus = "checked_out"
	StatusCancelled   ReservationStatus = "cancelled"
)

// statusRank orders reservation statuses for the no-regression rule.
var statusRank = map[ReservationStatus]int{
	StatusReservation: 0,
	StatusBooking:     1,
	StatusCheckedIn:   2,
	StatusCheckedOut:  3,
	StatusCancelled:   4,
}

func (s ReservationStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

type Reservation struct {
	ID              string
	ReferenceNumber string
	GuestName       string
	Status          ReservationStatus
	PaymentStatus   PaymentStatus
	TotalAmount     decimal.Decimal

	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CancelledBy        string
	CancelledAt        time.Time
	CancellationReason string

	Lifecycle Lifecycle
}

func (r Reservation) LifecycleTag() Lifecycle { return r.Lifecycle }

// =============================================================================
// RESERVATION ROOM
// =============================================================================

type RoomStatus string

const (
	RoomPending    RoomStatus = "pending"
	RoomCheckedIn  RoomStatus = "checked_in"
	RoomCheckedOut RoomStatus = "checked_out"
	RoomCancelled  RoomStatus = "cancelled"
	RoomNoShow     RoomStatus = "no_show"
)

type ReservationRoom struct {
	ID             string
	ReservationID  string // back-reference, not ownership
	RoomNumber     string
	RoomStatus     RoomStatus
	TariffPerNight decimal.Decimal

	CheckInDatetime  time.Time
	CheckOutDatetime time.Time

	// Audit fields
	CheckedInBy        string
	CheckInNotes       string
	CheckedOutBy       string
	CheckOutNotes      string
	CancellationReason string
	StatusChangedBy    string
	UpdatedAt          time.Time

	Lifecycle Lifecycle
}

func (r ReservationRoom) LifecycleTag() Lifecycle { return r.Lifecycle }

// RoomStatuses extracts the status of each room, in order.
func RoomStatuses(rooms []ReservationRoom) []RoomStatus {
	out := make([]RoomStatus, len(rooms))
	for i, r := range rooms {
		out[i] = r.RoomStatus
	}
	return out
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentType string

const (
	TypeAdvance          PaymentType = "advance"
	TypePartialPayment   PaymentType = "partial_payment"
	TypeFullPayment      PaymentType = "full_payment"
	TypeRefund           PaymentType = "refund"
	TypeCancellationFee  PaymentType = "cancellation_fee"
	TypeAdditionalCharge PaymentType = "additional_charge"
)

var paymentTypes = map[PaymentType]bool{
	TypeAdvance: true, TypePartialPayment: true, TypeFullPayment: true,
	TypeRefund: true, TypeCancellationFee: true, TypeAdditionalCharge: true,
}

func (t PaymentType) Valid() bool { return paymentTypes[t] }

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodUPI          PaymentMethod = "upi"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheque       PaymentMethod = "cheque"
	MethodOnline       PaymentMethod = "online"
	MethodOther        PaymentMethod = "other"
)

var paymentMethods = map[PaymentMethod]bool{
	MethodCash: true, MethodCard: true, MethodUPI: true, MethodBankTransfer: true,
	MethodCheque: true, MethodOnline: true, MethodOther: true,
}

func (m PaymentMethod) Valid() bool { return paymentMethods[m] }

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordCompleted PaymentRecordStatus = "completed"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
	PaymentRecordCancelled PaymentRecordStatus = "cancelled"
)

// Payment is appended to the ledger and never edited in place, except for
// status flips to refunded or cancelled.
type Payment struct {
	ID                string
	ReservationID     string // empty for standalone payments
	Amount            decimal.Decimal
	Type              PaymentType
	Method            PaymentMethod
	ReceiptNumber     string
	Status            PaymentRecordStatus
	PaymentDate       time.Time
	Notes             string
	OriginalPaymentID string // set on refunds

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	Lifecycle Lifecycle
}

func (p Payment) LifecycleTag() Lifecycle { return p.Lifecycle }

// IsRefund reports whether the entry reverses money to the guest.
func (p Payment) IsRefund() bool { return p.Type == TypeRefund || p.Amount.IsNegative() }

// Settled reports whether the money actually moved. A refunded payment stays
// settled: its refund entries carry the negative side.
func (p Payment) Settled() bool {
	return p.Status == PaymentRecordCompleted || p.Status == PaymentRecordRefunded
}

// =============================================================================
// PERIOD COUNTER
// =============================================================================

// PeriodCounter backs one sequence within one period. ID is the sequence
// name joined to the period key ("receipt-012025", "reservation-012025"),
// so receipts and reservation references never share a counter.
type PeriodCounter struct {
	ID        string
	Counter   int64
	UpdatedAt time.Time
}
