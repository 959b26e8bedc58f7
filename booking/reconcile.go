/*
reconcile.go - ReconciliationEngine

PURPOSE:
  Read-only audit of a reservation's payments against its total. Nothing is
  written; discrepancies are returned as data so they can never block the
  booking flow.

CHECKS:
  - netPaid vs totalAmount, with a ₹1 tolerance (under/overpayment)
  - failed and pending payment counts
  - advance + full_payment total above totalAmount + tolerance
    (possible double payment, manual review)

  IsReconciled is true iff no discrepancy was found.
*/
package booking

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReconciliationSummary struct {
	TotalAmount    decimal.Decimal
	NetPaid        decimal.Decimal
	Difference     decimal.Decimal // TotalAmount - NetPaid
	RefundedTotal  decimal.Decimal // absolute value of settled refunds
	CompletedCount int // status completed; refunded originals excluded
	FailedCount    int
	PendingCount   int
	PaymentStatus  PaymentStatus // as stored on the reservation
	ExpectedStatus PaymentStatus // as derived from the ledger now
}

type ReconciliationReport struct {
	ReservationID   string
	IsReconciled    bool
	Discrepancies   []ConsistencyError
	Summary         ReconciliationSummary
	Recommendations []string
}

// Messages returns the discrepancy messages in order.
func (r ReconciliationReport) Messages() []string {
	out := make([]string, len(r.Discrepancies))
	for i, d := range r.Discrepancies {
		out[i] = d.Message
	}
	return out
}

type Reconciler struct {
	store     Store
	log       *zap.Logger
	Tolerance decimal.Decimal
}

func NewReconciler(store Store, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log, Tolerance: decimal.NewFromInt(1)}
}

// Reconcile compares expected and actual paid amounts for one reservation.
func (rc *Reconciler) Reconcile(ctx context.Context, reservationID string) (ReconciliationReport, error) {
	res, err := loadActiveReservation(ctx, rc.store, reservationID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	all, err := rc.store.PaymentsByReservation(ctx, reservationID)
	if err != nil {
		return ReconciliationReport{}, fmt.Errorf("load payments for %s: %w", reservationID, err)
	}
	payments := ActiveOnly(all)

	report := ReconciliationReport{ReservationID: reservationID}
	sum := ReconciliationSummary{
		TotalAmount:   res.TotalAmount,
		NetPaid:       NetPaid(payments),
		RefundedTotal: decimal.Zero,
		PaymentStatus: res.PaymentStatus,
	}
	sum.Difference = res.TotalAmount.Sub(sum.NetPaid)
	sum.ExpectedStatus = DerivePaymentStatus(sum.NetPaid, res.TotalAmount)

	advanceAndFull := decimal.Zero
	for _, p := range payments {
		switch p.Status {
		case PaymentRecordFailed:
			sum.FailedCount++
		case PaymentRecordPending:
			sum.PendingCount++
		}
		if !p.Settled() {
			continue
		}
		if p.IsRefund() {
			sum.RefundedTotal = sum.RefundedTotal.Add(p.Amount.Abs())
		}
		// A refunded original still nets into NetPaid through its refund
		// entries but is no longer a completed payment.
		if p.Status != PaymentRecordCompleted {
			continue
		}
		sum.CompletedCount++
		if p.Type == TypeAdvance || p.Type == TypeFullPayment {
			advanceAndFull = advanceAndFull.Add(p.Amount)
		}
	}
	report.Summary = sum

	add := func(code, message, recommendation string) {
		report.Discrepancies = append(report.Discrepancies, ConsistencyError{Code: code, Message: message})
		report.Recommendations = append(report.Recommendations, recommendation)
	}

	switch {
	case sum.Difference.GreaterThan(rc.Tolerance):
		add("underpayment",
			fmt.Sprintf("Underpayment of ₹%s", rupees(sum.Difference)),
			fmt.Sprintf("Collect the remaining balance of ₹%s from the guest", rupees(sum.Difference)))
	case sum.Difference.LessThan(rc.Tolerance.Neg()):
		excess := sum.Difference.Neg()
		add("overpayment",
			fmt.Sprintf("Overpayment of ₹%s", rupees(excess)),
			fmt.Sprintf("Refund the excess amount of ₹%s to the guest", rupees(excess)))
	}

	if sum.FailedCount > 0 {
		add("failed_payments",
			fmt.Sprintf("%d failed payment(s) found", sum.FailedCount),
			"Review failed payments and retry collection")
	}
	if sum.PendingCount > 0 {
		add("pending_payments",
			fmt.Sprintf("%d pending payment(s) found", sum.PendingCount),
			"Follow up on pending payments and mark them completed or failed")
	}

	if advanceAndFull.GreaterThan(res.TotalAmount.Add(rc.Tolerance)) {
		add("double_payment",
			fmt.Sprintf("Potential double payment: advance and full payments total ₹%s against a booking total of ₹%s",
				rupees(advanceAndFull), rupees(res.TotalAmount)),
			"Manually review advance and full payments for duplicates")
	}

	report.IsReconciled = len(report.Discrepancies) == 0
	if !report.IsReconciled {
		rc.log.Info("reservation has payment discrepancies",
			zap.String("reservation_id", reservationID),
			zap.Strings("discrepancies", report.Messages()))
	}
	return report, nil
}

// rupees renders whole amounts without decimals and everything else with two.
func rupees(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.Truncate(0).String()
	}
	return d.StringFixed(2)
}
