package booking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lodge-engine/booking"
)

func TestReconcile_ExactPaymentIsReconciled(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "10000", booking.TypeFullPayment, booking.MethodCard)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.True(t, report.IsReconciled)
	assert.Empty(t, report.Discrepancies)
	assert.Empty(t, report.Recommendations)
	assert.True(t, report.Summary.Difference.IsZero())
	assert.Equal(t, 1, report.Summary.CompletedCount)
	assert.Equal(t, booking.PaymentPaid, report.Summary.ExpectedStatus)
	assert.Equal(t, report.Summary.ExpectedStatus, report.Summary.PaymentStatus)
}

func TestReconcile_Underpayment(t *testing.T) {
	// GIVEN: 9000 paid against 10000
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "9000", booking.TypePartialPayment, booking.MethodCard)

	// WHEN
	report, err := f.reconciler.Reconcile(f.ctx, resID)

	// THEN
	require.NoError(t, err)
	assert.False(t, report.IsReconciled)
	assert.Equal(t, []string{"Underpayment of ₹1000"}, report.Messages())
	assert.Equal(t, "underpayment", report.Discrepancies[0].Code)
	assert.ErrorIs(t, report.Discrepancies[0], booking.ErrConsistency)
	assert.Equal(t, []string{"Collect the remaining balance of ₹1000 from the guest"}, report.Recommendations)
}

func TestReconcile_FractionalUnderpayment(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "8999.50", booking.TypePartialPayment, booking.MethodCard)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.Equal(t, []string{"Underpayment of ₹1000.50"}, report.Messages())
}

func TestReconcile_WithinToleranceIsReconciled(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "9999.50", booking.TypeFullPayment, booking.MethodCard)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.True(t, report.IsReconciled, report.Messages())
}

func TestReconcile_Overpayment(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "6000", booking.TypePartialPayment, booking.MethodCard)
	f.pay(t, resID, "6000", booking.TypePartialPayment, booking.MethodCard)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.Equal(t, []string{"Overpayment of ₹2000"}, report.Messages())
	assert.Equal(t, []string{"Refund the excess amount of ₹2000 to the guest"}, report.Recommendations)
}

func TestReconcile_PotentialDoublePayment(t *testing.T) {
	// GIVEN: An advance plus a full payment that already covers the total
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "5000", booking.TypeAdvance, booking.MethodCash)
	f.pay(t, resID, "10000", booking.TypeFullPayment, booking.MethodCard)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"Overpayment of ₹5000",
		"Potential double payment: advance and full payments total ₹15000 against a booking total of ₹10000",
	}, report.Messages())
	assert.Equal(t, "double_payment", report.Discrepancies[1].Code)
	assert.Equal(t, "Manually review advance and full payments for duplicates", report.Recommendations[1])
}

func TestReconcile_RefundedAdvanceIsNotDoublePayment(t *testing.T) {
	// GIVEN: An advance refunded in full, then replaced by a full payment
	f := newFixture(t)
	resID := f.reservation(t, "5000").Reservation.ID
	advance := f.pay(t, resID, "5000", booking.TypeAdvance, booking.MethodCash)
	_, err := f.ledger.RecordRefund(f.ctx, booking.RefundRequest{OriginalPaymentID: advance.PaymentID, Amount: d("5000"), ActorID: staff})
	require.NoError(t, err)
	f.pay(t, resID, "5000", booking.TypeFullPayment, booking.MethodCard)

	// WHEN
	report, err := f.reconciler.Reconcile(f.ctx, resID)

	// THEN: Only completed advance and full payments feed the duplicate check
	require.NoError(t, err)
	assert.True(t, report.IsReconciled)
	assert.Empty(t, report.Messages())
	assert.True(t, d("5000").Equal(report.Summary.NetPaid))
	assert.True(t, d("5000").Equal(report.Summary.RefundedTotal))
	assert.Equal(t, 2, report.Summary.CompletedCount, "the full payment and the refund entry")
}

func TestReconcile_FailedAndPendingPayments(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "10000", booking.TypeFullPayment, booking.MethodCard)
	for _, status := range []booking.PaymentRecordStatus{booking.PaymentRecordFailed, booking.PaymentRecordPending} {
		_, err := f.ledger.RecordPayment(f.ctx, booking.PaymentRequest{
			ReservationID: resID, Amount: d("500"), Type: booking.TypeAdditionalCharge,
			Method: booking.MethodCard, Status: status, ActorID: staff,
		})
		require.NoError(t, err)
	}

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.Equal(t, []string{"1 failed payment(s) found", "1 pending payment(s) found"}, report.Messages())
	assert.Equal(t, 1, report.Summary.FailedCount)
	assert.Equal(t, 1, report.Summary.PendingCount)
	assert.Equal(t, 1, report.Summary.CompletedCount)
}

func TestReconcile_RefundsNetOut(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	original := f.pay(t, resID, "10000", booking.TypeFullPayment, booking.MethodCash)
	_, err := f.ledger.RecordRefund(f.ctx, booking.RefundRequest{OriginalPaymentID: original.PaymentID, Amount: d("1000"), ActorID: staff})
	require.NoError(t, err)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.Equal(t, []string{"Underpayment of ₹1000"}, report.Messages())
	assert.True(t, d("1000").Equal(report.Summary.RefundedTotal))
	assert.True(t, d("9000").Equal(report.Summary.NetPaid))
}

func TestReconcile_DeletedPaymentsIgnored(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "10000", booking.TypeFullPayment, booking.MethodCard)
	dup := f.pay(t, resID, "10000", booking.TypeFullPayment, booking.MethodCard)
	require.NoError(t, f.ledger.SoftDelete(f.ctx, dup.PaymentID, staff))

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.True(t, report.IsReconciled, report.Messages())
}

func TestReconcile_CustomTolerance(t *testing.T) {
	f := newFixture(t)
	f.reconciler.Tolerance = d("100")
	resID := f.reservation(t, "10000").Reservation.ID
	f.pay(t, resID, "9950", booking.TypeFullPayment, booking.MethodCard)

	report, err := f.reconciler.Reconcile(f.ctx, resID)

	require.NoError(t, err)
	assert.True(t, report.IsReconciled)
}

func TestReconcile_UnknownOrDeletedReservation(t *testing.T) {
	f := newFixture(t)
	resID := f.reservation(t, "10000").Reservation.ID
	require.NoError(t, f.desk.SoftDelete(f.ctx, resID, staff))

	_, err := f.reconciler.Reconcile(f.ctx, resID)
	assert.True(t, booking.IsNotFound(err))

	_, err = f.reconciler.Reconcile(f.ctx, "missing")
	assert.True(t, booking.IsNotFound(err))
}
