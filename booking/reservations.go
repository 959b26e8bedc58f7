/*
reservations.go - Reservation creation, cancellation cascade and views

PURPOSE:
  Owns the reservation-level writes that touch several documents at once:

  - Create:     reservation + all rooms in one batch, reference number
                from ReservationSequence
  - Cancel:     reservation -> cancelled and every active, non-terminal room
                -> cancelled in one batch inside one transaction
  - SoftDelete: lifecycle tag on the reservation and all of its rooms

  Rooms drive the reservation through SyncReservationStatus (status.go);
  the reservation drives rooms only through Cancel. Neither holds a pointer
  to the other.
*/
package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NewRoom describes one room of a new reservation.
type NewRoom struct {
	RoomNumber     string
	TariffPerNight decimal.Decimal
}

type NewReservation struct {
	GuestName   string
	TotalAmount decimal.Decimal
	Rooms       []NewRoom
	ActorID     string
}

// ReservationView is a reservation with its active rooms.
type ReservationView struct {
	Reservation Reservation
	Rooms       []ReservationRoom
}

type ReservationDesk struct {
	store   TxStore
	numbers *Numberer
	audit   AuditLog
	clock   Clock
	log     *zap.Logger
}

func NewReservationDesk(store TxStore, numbers *Numberer, audit AuditLog, clock Clock, log *zap.Logger) *ReservationDesk {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationDesk{store: store, numbers: numbers, audit: audit, clock: clock, log: log}
}

// Create writes a reservation and its rooms together.
func (d *ReservationDesk) Create(ctx context.Context, req NewReservation) (ReservationView, error) {
	if err := validateNewReservation(req); err != nil {
		return ReservationView{}, err
	}
	now := d.clock.Now()

	ref, err := d.numbers.Generate(ctx, ReservationSequence)
	if err != nil {
		return ReservationView{}, fmt.Errorf("allocate reference number: %w", err)
	}

	res := Reservation{
		ID:              uuid.NewString(),
		ReferenceNumber: ref,
		GuestName:       strings.TrimSpace(req.GuestName),
		Status:          StatusReservation,
		PaymentStatus:   PaymentPending,
		TotalAmount:     req.TotalAmount,
		CreatedBy:       req.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rooms := make([]ReservationRoom, len(req.Rooms))
	for i, r := range req.Rooms {
		rooms[i] = ReservationRoom{
			ID:             uuid.NewString(),
			ReservationID:  res.ID,
			RoomNumber:     r.RoomNumber,
			RoomStatus:     RoomPending,
			TariffPerNight: r.TariffPerNight,
			UpdatedAt:      now,
		}
	}

	if err := d.store.ApplyBatch(ctx, Batch{Reservations: []Reservation{res}, Rooms: rooms}); err != nil {
		return ReservationView{}, fmt.Errorf("create reservation: %w", err)
	}

	d.log.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("reference_number", res.ReferenceNumber),
		zap.Int("rooms", len(rooms)))
	writeAudit(ctx, d.audit, d.log, AuditEntry{
		Timestamp:     now,
		ActorID:       req.ActorID,
		Action:        AuditReservationCreated,
		EntityKind:    "reservation",
		EntityID:      res.ID,
		ReservationID: res.ID,
		Payload: map[string]any{
			"reference_number": res.ReferenceNumber,
			"total_amount":     res.TotalAmount.String(),
			"rooms":            len(rooms),
		},
	})
	return ReservationView{Reservation: res, Rooms: rooms}, nil
}

func validateNewReservation(req NewReservation) error {
	if req.ActorID == "" {
		return invalid("actor_id", "required", "actor id is required")
	}
	if strings.TrimSpace(req.GuestName) == "" {
		return invalid("guest_name", "required", "guest name is required")
	}
	if req.TotalAmount.IsNegative() {
		return invalid("total_amount", "non_negative", "total amount cannot be negative")
	}
	if !req.TotalAmount.Equal(req.TotalAmount.Truncate(2)) {
		return invalid("total_amount", "precision", "total amount has more than 2 decimal places")
	}
	if len(req.Rooms) == 0 {
		return invalid("rooms", "required", "a reservation needs at least one room")
	}
	seen := make(map[string]bool, len(req.Rooms))
	for i, r := range req.Rooms {
		if r.RoomNumber == "" {
			return invalid(fmt.Sprintf("rooms[%d].room_number", i), "required", "room number is required")
		}
		if seen[r.RoomNumber] {
			return invalid(fmt.Sprintf("rooms[%d].room_number", i), "unique", "room %s listed twice", r.RoomNumber)
		}
		seen[r.RoomNumber] = true
		if r.TariffPerNight.IsNegative() {
			return invalid(fmt.Sprintf("rooms[%d].tariff_per_night", i), "non_negative", "tariff cannot be negative")
		}
	}
	return nil
}

// Get returns the reservation with its active rooms.
func (d *ReservationDesk) Get(ctx context.Context, reservationID string) (ReservationView, error) {
	res, err := loadActiveReservation(ctx, d.store, reservationID)
	if err != nil {
		return ReservationView{}, err
	}
	rooms, err := d.store.RoomsByReservation(ctx, reservationID)
	if err != nil {
		return ReservationView{}, err
	}
	return ReservationView{Reservation: res, Rooms: ActiveOnly(rooms)}, nil
}

// Cancel cancels the reservation and cascades to every active room that can
// still be cancelled. Reservation and rooms are written as one batch.
// Cancelling an already cancelled reservation is a no-op.
func (d *ReservationDesk) Cancel(ctx context.Context, reservationID, actorID, reason string) (ReservationView, error) {
	if actorID == "" {
		return ReservationView{}, invalid("actor_id", "required", "actor id is required")
	}
	now := d.clock.Now()

	var (
		view      ReservationView
		cancelled []string
		noop      bool
	)
	err := d.store.WithTx(ctx, func(s Store) error {
		res, err := loadActiveReservation(ctx, s, reservationID)
		if err != nil {
			return err
		}
		all, err := s.RoomsByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		rooms := ActiveOnly(all)

		if res.Status == StatusCancelled {
			noop = true
			view = ReservationView{Reservation: res, Rooms: rooms}
			return nil
		}
		if res.Status == StatusCheckedOut {
			return invalid("status", "cancellable", "reservation %s is checked out and cannot be cancelled", res.ID)
		}

		batch := Batch{}
		for i := range rooms {
			if rooms[i].RoomStatus.IsTerminal() {
				continue
			}
			rooms[i].RoomStatus = RoomCancelled
			rooms[i].StatusChangedBy = actorID
			rooms[i].UpdatedAt = now
			batch.Rooms = append(batch.Rooms, rooms[i])
			cancelled = append(cancelled, rooms[i].ID)
		}

		res.Status = DeriveStatus(StatusCancelled, RoomStatuses(rooms), false)
		res.CancelledBy = actorID
		res.CancelledAt = now
		res.CancellationReason = reason
		res.UpdatedAt = now
		batch.Reservations = []Reservation{res}

		if err := s.ApplyBatch(ctx, batch); err != nil {
			return err
		}
		view = ReservationView{Reservation: res, Rooms: rooms}
		return nil
	})
	if err != nil {
		return ReservationView{}, err
	}
	if noop {
		return view, nil
	}

	d.log.Info("reservation cancelled",
		zap.String("reservation_id", reservationID),
		zap.Strings("rooms_cancelled", cancelled))
	writeAudit(ctx, d.audit, d.log, AuditEntry{
		Timestamp:     now,
		ActorID:       actorID,
		Action:        AuditReservationCancelled,
		EntityKind:    "reservation",
		EntityID:      reservationID,
		ReservationID: reservationID,
		Payload:       map[string]any{"reason": reason, "rooms_cancelled": cancelled},
	})
	return view, nil
}

// SoftDelete tags the reservation and all of its rooms deleted in one batch.
// Payments keep their own lifecycle.
func (d *ReservationDesk) SoftDelete(ctx context.Context, reservationID, actorID string) error {
	if actorID == "" {
		return invalid("actor_id", "required", "actor id is required")
	}
	now := d.clock.Now()
	err := d.store.WithTx(ctx, func(s Store) error {
		res, err := loadActiveReservation(ctx, s, reservationID)
		if err != nil {
			return err
		}
		rooms, err := s.RoomsByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		tag := Deleted(now, actorID)
		res.Lifecycle = tag
		res.UpdatedAt = now
		batch := Batch{Reservations: []Reservation{res}}
		for _, r := range ActiveOnly(rooms) {
			r.Lifecycle = tag
			r.UpdatedAt = now
			batch.Rooms = append(batch.Rooms, r)
		}
		return s.ApplyBatch(ctx, batch)
	})
	if err != nil {
		return err
	}

	writeAudit(ctx, d.audit, d.log, AuditEntry{
		Timestamp:     now,
		ActorID:       actorID,
		Action:        AuditReservationDeleted,
		EntityKind:    "reservation",
		EntityID:      reservationID,
		ReservationID: reservationID,
	})
	return nil
}
