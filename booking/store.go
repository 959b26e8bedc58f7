/*
store.go - Document-store collaborator contracts

PURPOSE:
  Defines what the core needs from persistence. The core never talks to a
  database directly; it consumes these interfaces.

KEY INTERFACES:
  Store:        get/save/delete by id, equality queries, ApplyBatch
  TxStore:      Store + WithTx for conditional read-then-write
  CounterStore: atomic read-or-create + increment of a PeriodCounter
  AuditLog:     append-only audit trail (best-effort from the core's view)

NOT FOUND CONTRACT:
  Get* methods return a *NotFoundError when the id is unknown. Soft-deleted
  documents are still returned; callers decide via the Lifecycle tag.

ATOMIC BATCHES:
  ApplyBatch writes every document in the batch or none. Creating a
  reservation with its rooms and cancelling a reservation with all of its
  rooms both go through a single batch.

IMPLEMENTATIONS:
  - booking/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite
  - store/redis/counter.go:  CounterStore only, Redis INCR
*/
package booking

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Document persistence
// =============================================================================

type Store interface {
	GetReservation(ctx context.Context, id string) (Reservation, error)
	SaveReservation(ctx context.Context, r Reservation) error
	DeleteReservation(ctx context.Context, id string) error

	GetRoom(ctx context.Context, id string) (ReservationRoom, error)
	SaveRoom(ctx context.Context, room ReservationRoom) error
	// RoomsByReservation returns every room (including deleted) for a reservation.
	RoomsByReservation(ctx context.Context, reservationID string) ([]ReservationRoom, error)

	GetPayment(ctx context.Context, id string) (Payment, error)
	SavePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id string) error
	// PaymentsByReservation returns every payment (including deleted) for a reservation.
	PaymentsByReservation(ctx context.Context, reservationID string) ([]Payment, error)
	// RefundsOf returns every refund entry pointing at the original payment.
	RefundsOf(ctx context.Context, originalPaymentID string) ([]Payment, error)

	// ApplyBatch persists all documents in b atomically.
	ApplyBatch(ctx context.Context, b Batch) error
}

// Batch is an all-or-nothing multi-document write.
type Batch struct {
	Reservations []Reservation
	Rooms        []ReservationRoom
	Payments     []Payment
}

func (b Batch) Empty() bool {
	return len(b.Reservations) == 0 && len(b.Rooms) == 0 && len(b.Payments) == 0
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// COUNTER STORE - Serializable read-modify-write for PeriodCounters
// =============================================================================

type CounterStore interface {
	// NextCounter creates the counter at 1 if absent, otherwise increments it,
	// and returns the new value. Concurrent callers never see the same value.
	NextCounter(ctx context.Context, id string) (int64, error)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditAction string

const (
	AuditReservationCreated   AuditAction = "reservation_created"
	AuditReservationCancelled AuditAction = "reservation_cancelled"
	AuditReservationDeleted   AuditAction = "reservation_deleted"
	AuditRoomTransition       AuditAction = "room_status_changed"
	AuditPaymentRecorded      AuditAction = "payment_recorded"
	AuditRefundRecorded       AuditAction = "refund_recorded"
	AuditPaymentCancelled     AuditAction = "payment_cancelled"
	AuditPaymentDeleted       AuditAction = "payment_deleted"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	ActorID       string
	Action        AuditAction
	EntityKind    string
	EntityID      string
	ReservationID string
	Payload       map[string]any
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}
