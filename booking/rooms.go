/*
rooms.go - RoomStatusMachine

PURPOSE:
  Validates and applies occupancy-state transitions for a single room, and
  keeps the parent reservation's status in step inside the same transaction.

TRANSITION GRAPH:
  pending    -> checked_in, cancelled, no_show
  checked_in -> checked_out, cancelled
  checked_out, cancelled, no_show are terminal.

TIME WINDOWS:
  check-in:  at most 24h in the future
  check-out: after the check-in time, at most 24h in the future,
             stay no longer than 30 days

ATOMICITY:
  read room -> validate -> write room -> SyncReservationStatus
  all happen inside one TxStore.WithTx. No reader can observe a reservation
  status that disagrees with its rooms.

  The audit entry is written after commit and is best-effort.
*/
package booking

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomPending:    {RoomCheckedIn, RoomCancelled, RoomNoShow},
	RoomCheckedIn:  {RoomCheckedOut, RoomCancelled},
	RoomCheckedOut: nil,
	RoomCancelled:  nil,
	RoomNoShow:     nil,
}

// AllRoomStatuses lists every room status in declaration order.
var AllRoomStatuses = []RoomStatus{RoomPending, RoomCheckedIn, RoomCheckedOut, RoomCancelled, RoomNoShow}

func (s RoomStatus) Valid() bool {
	_, ok := roomTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s RoomStatus) IsTerminal() bool {
	return s.Valid() && len(roomTransitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to RoomStatus) bool {
	for _, next := range roomTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns an *InvalidTransitionError for any illegal pair.
func Transition(from, to RoomStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// StayLimits bounds the datetimes accepted by check-in and check-out.
type StayLimits struct {
	FutureTolerance time.Duration
	MaxStay         time.Duration
}

func DefaultStayLimits() StayLimits {
	return StayLimits{
		FutureTolerance: 24 * time.Hour,
		MaxStay:         30 * 24 * time.Hour,
	}
}

type RoomStatusMachine struct {
	store  TxStore
	audit  AuditLog
	clock  Clock
	log    *zap.Logger
	limits StayLimits
}

func NewRoomStatusMachine(store TxStore, audit AuditLog, clock Clock, log *zap.Logger) *RoomStatusMachine {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomStatusMachine{store: store, audit: audit, clock: clock, log: log, limits: DefaultStayLimits()}
}

// WithLimits overrides the default stay limits.
func (m *RoomStatusMachine) WithLimits(l StayLimits) *RoomStatusMachine {
	m.limits = l
	return m
}

// CheckIn moves a pending room to checked_in at the given time.
func (m *RoomStatusMachine) CheckIn(ctx context.Context, roomID string, at time.Time, actorID, notes string) (ReservationRoom, error) {
	now := m.clock.Now()
	return m.apply(ctx, roomID, RoomCheckedIn, actorID, func(room *ReservationRoom) error {
		if at.IsZero() {
			return invalid("check_in_datetime", "required", "check-in time is required")
		}
		if at.After(now.Add(m.limits.FutureTolerance)) {
			return invalid("check_in_datetime", "future_window",
				"check-in time %s is more than %s in the future", at.Format(time.RFC3339), m.limits.FutureTolerance)
		}
		room.CheckInDatetime = at
		room.CheckedInBy = actorID
		room.CheckInNotes = notes
		return nil
	})
}

// CheckOut moves a checked-in room to checked_out at the given time.
func (m *RoomStatusMachine) CheckOut(ctx context.Context, roomID string, at time.Time, actorID, notes string) (ReservationRoom, error) {
	now := m.clock.Now()
	return m.apply(ctx, roomID, RoomCheckedOut, actorID, func(room *ReservationRoom) error {
		if at.IsZero() {
			return invalid("check_out_datetime", "required", "check-out time is required")
		}
		if !at.After(room.CheckInDatetime) {
			return invalid("check_out_datetime", "after_check_in",
				"check-out time %s must be after check-in time %s",
				at.Format(time.RFC3339), room.CheckInDatetime.Format(time.RFC3339))
		}
		if at.After(now.Add(m.limits.FutureTolerance)) {
			return invalid("check_out_datetime", "future_window",
				"check-out time %s is more than %s in the future", at.Format(time.RFC3339), m.limits.FutureTolerance)
		}
		if stay := at.Sub(room.CheckInDatetime); stay > m.limits.MaxStay {
			return invalid("check_out_datetime", "max_stay",
				"stay of %s exceeds the maximum of %s", stay, m.limits.MaxStay)
		}
		room.CheckOutDatetime = at
		room.CheckedOutBy = actorID
		room.CheckOutNotes = notes
		return nil
	})
}

// CancelRoom cancels a pending or checked-in room. A cancelled room cancels
// its reservation.
func (m *RoomStatusMachine) CancelRoom(ctx context.Context, roomID, actorID, reason string) (ReservationRoom, error) {
	return m.apply(ctx, roomID, RoomCancelled, actorID, func(room *ReservationRoom) error {
		room.CancellationReason = reason
		return nil
	})
}

// MarkNoShow records that the guest never arrived for a pending room.
func (m *RoomStatusMachine) MarkNoShow(ctx context.Context, roomID, actorID string) (ReservationRoom, error) {
	return m.apply(ctx, roomID, RoomNoShow, actorID, nil)
}

// apply runs one transition in a single transaction:
// load, check the edge, mutate, save, recompute the parent reservation.
func (m *RoomStatusMachine) apply(ctx context.Context, roomID string, to RoomStatus, actorID string, mutate func(*ReservationRoom) error) (ReservationRoom, error) {
	if actorID == "" {
		return ReservationRoom{}, invalid("actor_id", "required", "actor id is required")
	}

	var (
		updated ReservationRoom
		from    RoomStatus
		changed bool
	)
	now := m.clock.Now()
	err := m.store.WithTx(ctx, func(s Store) error {
		room, err := s.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Lifecycle.IsDeleted() {
			return &NotFoundError{Kind: "room", ID: roomID}
		}
		from = room.RoomStatus
		if !CanTransition(from, to) {
			return &InvalidTransitionError{RoomID: roomID, From: from, To: to}
		}
		if mutate != nil {
			if err := mutate(&room); err != nil {
				return err
			}
		}
		room.RoomStatus = to
		room.StatusChangedBy = actorID
		room.UpdatedAt = now
		if err := s.SaveRoom(ctx, room); err != nil {
			return err
		}
		updated = room

		changed, err = SyncReservationStatus(ctx, s, room.ReservationID, now)
		return err
	})
	if err != nil {
		return ReservationRoom{}, err
	}

	m.log.Info("room status changed",
		zap.String("room_id", roomID),
		zap.String("reservation_id", updated.ReservationID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Bool("reservation_status_changed", changed))

	payload := map[string]any{"from": string(from), "to": string(to)}
	if to == RoomCancelled && updated.CancellationReason != "" {
		payload["reason"] = updated.CancellationReason
	}
	writeAudit(ctx, m.audit, m.log, AuditEntry{
		Timestamp:     now,
		ActorID:       actorID,
		Action:        AuditRoomTransition,
		EntityKind:    "room",
		EntityID:      roomID,
		ReservationID: updated.ReservationID,
		Payload:       payload,
	})
	return updated, nil
}
