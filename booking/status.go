/*
status.go - ReservationStatusDeriver

PURPOSE:
  The single source of truth for a reservation's status and payment status.
  Both are pure functions of explicit inputs; the Sync* helpers load those
  inputs through a (transaction-scoped) Store and write only on change.

PRECEDENCE (highest first):
  1. cancelled    - current is cancelled, or any active room is cancelled
  2. checked_out  - every active room is checked_out
  3. checked_in   - every active room is checked_in
  4. booking      - current is reservation and a completed payment exists
  5. unchanged

  The result never ranks below the current status.

PAYMENT STATUS:
  pending if net settled payments <= 0, paid if >= total, partial otherwise.
  paymentStatus is eventually consistent with the ledger: it is recomputed in
  a transaction separate from the payment write, and any later recompute
  self-corrects it.
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DeriveStatus computes the reservation status from its active rooms' statuses.
func DeriveStatus(current ReservationStatus, rooms []RoomStatus, hasCompletedPayment bool) ReservationStatus {
	if current == StatusCancelled {
		return StatusCancelled
	}
	for _, s := range rooms {
		if s == RoomCancelled {
			return StatusCancelled
		}
	}

	next := current
	switch {
	case allRooms(rooms, RoomCheckedOut):
		next = StatusCheckedOut
	case allRooms(rooms, RoomCheckedIn):
		next = StatusCheckedIn
	case current == StatusReservation && hasCompletedPayment:
		next = StatusBooking
	}

	if statusRank[next] < statusRank[current] {
		return current
	}
	return next
}

func allRooms(rooms []RoomStatus, want RoomStatus) bool {
	if len(rooms) == 0 {
		return false
	}
	for _, s := range rooms {
		if s != want {
			return false
		}
	}
	return true
}

// DerivePaymentStatus applies the pending/partial/paid rule.
func DerivePaymentStatus(netPaid, total decimal.Decimal) PaymentStatus {
	switch {
	case !netPaid.IsPositive():
		return PaymentPending
	case netPaid.GreaterThanOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// NetPaid sums settled, active payments. Refund entries are negative and net out.
func NetPaid(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range ActiveOnly(payments) {
		if p.Settled() {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// HasCompletedPayment reports whether any active, settled, positive payment exists.
func HasCompletedPayment(payments []Payment) bool {
	for _, p := range ActiveOnly(payments) {
		if p.Settled() && p.Amount.IsPositive() {
			return true
		}
	}
	return false
}

// =============================================================================
// RECOMPUTE - load inputs, derive, write on change
// =============================================================================

// SyncReservationStatus recomputes reservation.Status inside the caller's
// Store (normally the Store handed to WithTx). Returns whether it wrote.
func SyncReservationStatus(ctx context.Context, s Store, reservationID string, now time.Time) (bool, error) {
	res, err := loadActiveReservation(ctx, s, reservationID)
	if err != nil {
		return false, err
	}
	rooms, err := s.RoomsByReservation(ctx, reservationID)
	if err != nil {
		return false, fmt.Errorf("load rooms for %s: %w", reservationID, err)
	}
	payments, err := s.PaymentsByReservation(ctx, reservationID)
	if err != nil {
		return false, fmt.Errorf("load payments for %s: %w", reservationID, err)
	}

	next := DeriveStatus(res.Status, RoomStatuses(ActiveOnly(rooms)), HasCompletedPayment(payments))
	if next == res.Status {
		return false, nil
	}
	res.Status = next
	res.UpdatedAt = now
	if err := s.SaveReservation(ctx, res); err != nil {
		return false, fmt.Errorf("save reservation %s: %w", reservationID, err)
	}
	return true, nil
}

// SyncPaymentStatus recomputes reservation.PaymentStatus. Returns the
// resulting status and whether it wrote.
func SyncPaymentStatus(ctx context.Context, s Store, reservationID string, now time.Time) (PaymentStatus, bool, error) {
	res, err := loadActiveReservation(ctx, s, reservationID)
	if err != nil {
		return "", false, err
	}
	payments, err := s.PaymentsByReservation(ctx, reservationID)
	if err != nil {
		return "", false, fmt.Errorf("load payments for %s: %w", reservationID, err)
	}

	next := DerivePaymentStatus(NetPaid(payments), res.TotalAmount)
	if next == res.PaymentStatus {
		return next, false, nil
	}
	res.PaymentStatus = next
	res.UpdatedAt = now
	if err := s.SaveReservation(ctx, res); err != nil {
		return "", false, fmt.Errorf("save reservation %s: %w", reservationID, err)
	}
	return next, true, nil
}

func loadActiveReservation(ctx context.Context, s Store, id string) (Reservation, error) {
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if res.Lifecycle.IsDeleted() {
		return Reservation{}, &NotFoundError{Kind: "reservation", ID: id}
	}
	return res, nil
}
