package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lodge-engine/booking"
)

var t0 = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPayment(id, receipt string, amount string, createdAt time.Time) booking.Payment {
	return booking.Payment{
		ID:            id,
		ReservationID: "res-1",
		Amount:        decimal.RequireFromString(amount),
		Type:          booking.TypePartialPayment,
		Method:        booking.MethodUPI,
		ReceiptNumber: receipt,
		Status:        booking.PaymentRecordCompleted,
		PaymentDate:   createdAt,
		CreatedBy:     "staff-1",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestReservationRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	in := booking.Reservation{
		ID:                 "res-1",
		ReferenceNumber:    "012025-001",
		GuestName:          "Asha Rao",
		Status:             booking.StatusCancelled,
		PaymentStatus:      booking.PaymentPartial,
		TotalAmount:        decimal.RequireFromString("12500.75"),
		CreatedBy:          "staff-1",
		CreatedAt:          t0,
		UpdatedAt:          t0.Add(time.Hour),
		CancelledBy:        "staff-2",
		CancelledAt:        t0.Add(time.Hour),
		CancellationReason: "guest request",
		Lifecycle:          booking.Deleted(t0.Add(2*time.Hour), "admin"),
	}

	require.NoError(t, s.SaveReservation(ctx, in))
	out, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)

	assert.Equal(t, in.ReferenceNumber, out.ReferenceNumber)
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.PaymentStatus, out.PaymentStatus)
	assert.True(t, in.TotalAmount.Equal(out.TotalAmount))
	assert.True(t, in.CancelledAt.Equal(out.CancelledAt))
	assert.Equal(t, "guest request", out.CancellationReason)
	at, by, deleted := out.Lifecycle.DeletedAt()
	assert.True(t, deleted)
	assert.Equal(t, "admin", by)
	assert.True(t, at.Equal(t0.Add(2*time.Hour)))
}

func TestRoomsByReservation_OrderedByRoomNumber(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, n := range []string{"203", "101", "102"} {
		require.NoError(t, s.SaveRoom(ctx, booking.ReservationRoom{
			ID: "room-" + n, ReservationID: "res-1", RoomNumber: n,
			RoomStatus: booking.RoomPending, TariffPerNight: decimal.NewFromInt(2500), UpdatedAt: t0,
		}))
	}
	checkedIn := booking.ReservationRoom{
		ID: "room-101", ReservationID: "res-1", RoomNumber: "101", RoomStatus: booking.RoomCheckedIn,
		TariffPerNight: decimal.NewFromInt(2500), CheckInDatetime: t0, CheckedInBy: "staff-1", UpdatedAt: t0,
	}
	require.NoError(t, s.SaveRoom(ctx, checkedIn))

	rooms, err := s.RoomsByReservation(ctx, "res-1")
	require.NoError(t, err)

	require.Len(t, rooms, 3)
	assert.Equal(t, []string{"101", "102", "203"}, []string{rooms[0].RoomNumber, rooms[1].RoomNumber, rooms[2].RoomNumber})
	assert.Equal(t, booking.RoomCheckedIn, rooms[0].RoomStatus)
	assert.True(t, rooms[0].CheckInDatetime.Equal(t0))
	assert.True(t, rooms[1].CheckInDatetime.IsZero())
}

func TestRoomCancellationReasonRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	in := booking.ReservationRoom{
		ID: "room-101", ReservationID: "res-1", RoomNumber: "101", RoomStatus: booking.RoomCancelled,
		TariffPerNight: decimal.NewFromInt(2500), CheckInNotes: "late arrival",
		CancellationReason: "guest left early", UpdatedAt: t0,
	}

	require.NoError(t, s.SaveRoom(ctx, in))
	out, err := s.GetRoom(ctx, "room-101")

	require.NoError(t, err)
	assert.Equal(t, "guest left early", out.CancellationReason)
	assert.Equal(t, "late arrival", out.CheckInNotes)
	assert.Empty(t, out.CheckOutNotes)
}

func TestPayments_OrderAndImmutableAmount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePayment(ctx, testPayment("p2", "PAY-012025-00002", "200", t0)))
	require.NoError(t, s.SavePayment(ctx, testPayment("p1", "PAY-012025-00001", "100", t0)))
	require.NoError(t, s.SavePayment(ctx, testPayment("p0", "PAY-012025-00009", "50", t0.Add(-time.Minute))))

	// Status flips are persisted, amounts are not rewritten
	p1 := testPayment("p1", "PAY-012025-00001", "999", t0)
	p1.Status = booking.PaymentRecordRefunded
	require.NoError(t, s.SavePayment(ctx, p1))

	got, err := s.PaymentsByReservation(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"p0", "p1", "p2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, booking.PaymentRecordRefunded, got[1].Status)
	assert.True(t, decimal.NewFromInt(100).Equal(got[1].Amount))
}

func TestPayments_DuplicateReceiptRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePayment(ctx, testPayment("p1", "PAY-012025-00001", "100", t0)))

	err := s.SavePayment(ctx, testPayment("p2", "PAY-012025-00001", "100", t0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
	assert.False(t, booking.IsRetryable(err))
}

func TestRefundsOf(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePayment(ctx, testPayment("p1", "PAY-012025-00001", "1000", t0)))
	refund := testPayment("r1", "PAY-012025-00002", "-400", t0.Add(time.Minute))
	refund.Type = booking.TypeRefund
	refund.OriginalPaymentID = "p1"
	require.NoError(t, s.SavePayment(ctx, refund))

	refunds, err := s.RefundsOf(ctx, "p1")
	require.NoError(t, err)

	require.Len(t, refunds, 1)
	assert.True(t, decimal.NewFromInt(-400).Equal(refunds[0].Amount))
	assert.True(t, refunds[0].IsRefund())
}

func TestStandalonePaymentHasNoReservation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	p := testPayment("p1", "PAY-012025-00001", "100", t0)
	p.ReservationID = ""
	require.NoError(t, s.SavePayment(ctx, p))

	got, err := s.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, got.ReservationID)
}

func TestNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetReservation(ctx, "nope")
	assert.True(t, booking.IsNotFound(err))
	_, err = s.GetRoom(ctx, "nope")
	assert.True(t, booking.IsNotFound(err))
	_, err = s.GetPayment(ctx, "nope")
	assert.True(t, booking.IsNotFound(err))
	assert.True(t, booking.IsNotFound(s.DeletePayment(ctx, "nope")))
	assert.True(t, booking.IsNotFound(s.DeleteReservation(ctx, "nope")))
	_, err = s.GetCounter(ctx, "receipt-012025")
	assert.True(t, booking.IsNotFound(err))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx booking.Store) error {
		if err := tx.SaveReservation(ctx, booking.Reservation{
			ID: "res-1", ReferenceNumber: "012025-001", Status: booking.StatusReservation,
			PaymentStatus: booking.PaymentPending, CreatedAt: t0, UpdatedAt: t0,
		}); err != nil {
			return err
		}
		if _, err := tx.GetReservation(ctx, "res-1"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetReservation(ctx, "res-1")
	assert.True(t, booking.IsNotFound(err))
}

func TestApplyBatch_IsAtomic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePayment(ctx, testPayment("p1", "PAY-012025-00001", "100", t0)))

	err := s.ApplyBatch(ctx, booking.Batch{
		Reservations: []booking.Reservation{{ID: "res-2", ReferenceNumber: "012025-002", CreatedAt: t0, UpdatedAt: t0}},
		Payments:     []booking.Payment{testPayment("p2", "PAY-012025-00001", "100", t0)},
	})

	require.Error(t, err)
	_, err = s.GetReservation(ctx, "res-2")
	assert.True(t, booking.IsNotFound(err))
}

// =============================================================================
// COUNTERS AND AUDIT
// =============================================================================

func TestCounters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	n, err := s.NextCounter(ctx, "receipt-012025")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.NextCounter(ctx, "receipt-012025")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.SetCounter(ctx, "receipt-012025", 41))
	n, err = s.NextCounter(ctx, "receipt-012025")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	c, err := s.GetCounter(ctx, "receipt-012025")
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.Counter)
	assert.False(t, c.UpdatedAt.IsZero())
}

func TestAuditTrail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i, action := range []booking.AuditAction{booking.AuditPaymentRecorded, booking.AuditRefundRecorded} {
		require.NoError(t, s.Append(ctx, booking.AuditEntry{
			ID:            []string{"a1", "a2"}[i],
			Timestamp:     t0.Add(time.Duration(i) * time.Minute),
			ActorID:       "staff-1",
			Action:        action,
			EntityKind:    "payment",
			EntityID:      "p1",
			ReservationID: "res-1",
			Payload:       map[string]any{"amount": "100"},
		}))
	}
	require.NoError(t, s.Append(ctx, booking.AuditEntry{
		ID: "a3", Timestamp: t0, Action: booking.AuditPaymentRecorded, EntityKind: "payment", EntityID: "p2",
	}))

	trail, err := s.AuditTrail(ctx, "payment", "p1")
	require.NoError(t, err)

	require.Len(t, trail, 2)
	assert.Equal(t, booking.AuditPaymentRecorded, trail[0].Action)
	assert.Equal(t, booking.AuditRefundRecorded, trail[1].Action)
	assert.Equal(t, "100", trail[0].Payload["amount"])
	assert.Equal(t, "res-1", trail[0].ReservationID)
}

// =============================================================================
// SERVICES OVER SQLITE
// =============================================================================

func TestLedgerFlowOnSQLite(t *testing.T) {
	// GIVEN: Every booking service wired against one SQLite store
	s := newStore(t)
	ctx := context.Background()
	clock := booking.FixedClock(t0)
	numbers := booking.NewNumberer(s, clock, nil)
	desk := booking.NewReservationDesk(s, numbers, s, clock, nil)
	ledger := booking.NewPaymentLedger(s, numbers, s, clock, nil, booking.DefaultPaymentRules())
	rooms := booking.NewRoomStatusMachine(s, s, clock, nil)

	view, err := desk.Create(ctx, booking.NewReservation{
		GuestName:   "Asha Rao",
		TotalAmount: decimal.NewFromInt(10000),
		Rooms:       []booking.NewRoom{{RoomNumber: "101", TariffPerNight: decimal.NewFromInt(5000)}},
		ActorID:     "staff-1",
	})
	require.NoError(t, err)
	resID := view.Reservation.ID

	// WHEN: Paying in full, checking in, then refunding part of it
	receipt, err := ledger.RecordPayment(ctx, booking.PaymentRequest{
		ReservationID: resID, Amount: decimal.NewFromInt(10000),
		Type: booking.TypeFullPayment, Method: booking.MethodCard, ActorID: "staff-1",
	})
	require.NoError(t, err)
	_, err = rooms.CheckIn(ctx, view.Rooms[0].ID, t0, "staff-1", "")
	require.NoError(t, err)
	_, err = ledger.RecordRefund(ctx, booking.RefundRequest{
		OriginalPaymentID: receipt.PaymentID, Amount: decimal.NewFromInt(2500), ActorID: "staff-1",
	})
	require.NoError(t, err)

	// THEN: Status, totals and the audit trail all come back from SQLite
	res, err := s.GetReservation(ctx, resID)
	require.NoError(t, err)
	assert.Equal(t, "012025-001", res.ReferenceNumber)
	assert.Equal(t, booking.StatusCheckedIn, res.Status)
	assert.Equal(t, booking.PaymentPartial, res.PaymentStatus)

	paid, err := ledger.PaidTotal(ctx, resID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7500).Equal(paid), paid.String())

	c, err := s.GetCounter(ctx, booking.CounterID(booking.ReceiptSequence, "012025"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Counter)

	trail, err := s.AuditTrail(ctx, "reservation", resID)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, booking.AuditReservationCreated, trail[0].Action)

	report, err := booking.NewReconciler(s, nil).Reconcile(ctx, resID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Underpayment of ₹2500"}, report.Messages())
}
