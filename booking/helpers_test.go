package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/lodge-engine/booking"
	"github.com/warp/lodge-engine/booking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

const staff = "staff-1"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixture wires every booking service against one in-memory store.
type fixture struct {
	ctx        context.Context
	mem        *store.Memory
	clock      booking.Clock
	numbers    *booking.Numberer
	desk       *booking.ReservationDesk
	rooms      *booking.RoomStatusMachine
	ledger     *booking.PaymentLedger
	reconciler *booking.Reconciler
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, booking.DefaultPaymentRules(), nil)
}

// newFixtureWith overrides the payment rules and, when audit is non-nil, the audit log.
func newFixtureWith(t *testing.T, rules booking.PaymentRules, audit booking.AuditLog) *fixture {
	t.Helper()
	mem := store.NewMemory()
	if audit == nil {
		audit = mem
	}
	clock := booking.FixedClock(testNow)
	numbers := booking.NewNumberer(mem, clock, nil)
	return &fixture{
		ctx:        context.Background(),
		mem:        mem,
		clock:      clock,
		numbers:    numbers,
		desk:       booking.NewReservationDesk(mem, numbers, audit, clock, nil),
		rooms:      booking.NewRoomStatusMachine(mem, audit, clock, nil),
		ledger:     booking.NewPaymentLedger(mem, numbers, audit, clock, nil, rules),
		reconciler: booking.NewReconciler(mem, nil),
	}
}

// reservation creates a reservation with one room per number at 2500/night.
func (f *fixture) reservation(t *testing.T, total string, roomNumbers ...string) booking.ReservationView {
	t.Helper()
	if len(roomNumbers) == 0 {
		roomNumbers = []string{"101"}
	}
	rooms := make([]booking.NewRoom, len(roomNumbers))
	for i, n := range roomNumbers {
		rooms[i] = booking.NewRoom{RoomNumber: n, TariffPerNight: d("2500")}
	}
	view, err := f.desk.Create(f.ctx, booking.NewReservation{
		GuestName:   "Asha Rao",
		TotalAmount: d(total),
		Rooms:       rooms,
		ActorID:     staff,
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) pay(t *testing.T, reservationID, amount string, typ booking.PaymentType, method booking.PaymentMethod) booking.Receipt {
	t.Helper()
	receipt, err := f.ledger.RecordPayment(f.ctx, booking.PaymentRequest{
		ReservationID: reservationID,
		Amount:        d(amount),
		Type:          typ,
		Method:        method,
		ActorID:       staff,
	})
	require.NoError(t, err)
	return receipt
}

func (f *fixture) reload(t *testing.T, reservationID string) booking.Reservation {
	t.Helper()
	res, err := f.mem.GetReservation(f.ctx, reservationID)
	require.NoError(t, err)
	return res
}

func (f *fixture) room(t *testing.T, roomID string) booking.ReservationRoom {
	t.Helper()
	r, err := f.mem.GetRoom(f.ctx, roomID)
	require.NoError(t, err)
	return r
}

func (f *fixture) auditActions() []booking.AuditAction {
	var out []booking.AuditAction
	for _, e := range f.mem.AuditEntries() {
		out = append(out, e.Action)
	}
	return out
}

// failingAudit rejects every append.
type failingAudit struct{ calls int }

func (a *failingAudit) Append(context.Context, booking.AuditEntry) error {
	a.calls++
	return errors.New("audit backend down")
}

// failingCounters fails every increment with a transient error.
type failingCounters struct{ calls int }

func (c *failingCounters) NextCounter(context.Context, string) (int64, error) {
	c.calls++
	return 0, &booking.TransientStorageError{Op: "next counter", Err: errors.New("connection refused")}
}

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	var verr *booking.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Rule
}
