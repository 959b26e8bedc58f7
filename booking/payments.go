/*
payments.go - PaymentLedger

PURPOSE:
  Records payments and refunds against a reservation (or standalone),
  computes paid totals and keeps the reservation's paymentStatus in step.

APPEND-ONLY:
  Payments are never edited in place. The only mutations are status flips to
  refunded or cancelled, and the soft-delete lifecycle tag. Corrections are
  refund entries with a negative amount pointing at the original payment.

TWO TRANSACTIONS:
  1. persist the payment (and, for refunds, flip the original)
  2. recompute reservation paymentStatus/status
  A crash between them leaves paymentStatus stale until the next recompute;
  SyncPaymentStatus is idempotent and self-correcting.

RECEIPTS:
  Receipt numbers come from the Numberer before the write transaction opens,
  so counter contention never holds a document transaction.

AUDIT:
  Best-effort. A failed audit write is logged and swallowed.

HARD DELETE:
  HardDelete bypasses the audit trail entirely. It is an administrative escape
  hatch, not part of the normal flow, and is logged at warn level every time.
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// PAYMENT RULES
// =============================================================================

// PaymentRules are the validation limits for recording payments and refunds.
type PaymentRules struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	// MethodCeilings caps a single payment per method, e.g. cash and UPI.
	MethodCeilings map[PaymentMethod]decimal.Decimal

	// AllowedMethods, when present for a type, is the complete list of methods
	// that type may use. DisallowedMethods excludes specific pairs.
	AllowedMethods    map[PaymentType][]PaymentMethod
	DisallowedMethods map[PaymentType][]PaymentMethod

	// MaxRefundPercentage of the original payment, 0-100.
	MaxRefundPercentage decimal.Decimal

	FutureTolerance time.Duration
	MaxBackdate     time.Duration
}

func DefaultPaymentRules() PaymentRules {
	return PaymentRules{
		MinAmount: decimal.NewFromInt(1),
		MaxAmount: decimal.NewFromInt(1_000_000),
		MethodCeilings: map[PaymentMethod]decimal.Decimal{
			MethodCash: decimal.NewFromInt(200_000),
			MethodUPI:  decimal.NewFromInt(100_000),
		},
		AllowedMethods: map[PaymentType][]PaymentMethod{
			TypeRefund: {MethodCash, MethodBankTransfer, MethodOther},
		},
		DisallowedMethods: map[PaymentType][]PaymentMethod{
			TypeCancellationFee: {MethodCheque},
		},
		MaxRefundPercentage: decimal.NewFromInt(100),
		FutureTolerance:     24 * time.Hour,
		MaxBackdate:         365 * 24 * time.Hour,
	}
}

// MethodAllowed reports whether the type/method combination is permitted.
func (r PaymentRules) MethodAllowed(t PaymentType, m PaymentMethod) bool {
	if allowed, ok := r.AllowedMethods[t]; ok && !containsMethod(allowed, m) {
		return false
	}
	return !containsMethod(r.DisallowedMethods[t], m)
}

func containsMethod(list []PaymentMethod, m PaymentMethod) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}

// ValidateAmount checks range, precision and the method ceiling of a positive amount.
func (r PaymentRules) ValidateAmount(amount decimal.Decimal, method PaymentMethod) error {
	if amount.LessThan(r.MinAmount) {
		return invalid("amount", "min_amount", "amount %s is below the minimum of %s", amount, r.MinAmount)
	}
	if amount.GreaterThan(r.MaxAmount) {
		return invalid("amount", "max_amount", "amount %s exceeds the maximum of %s", amount, r.MaxAmount)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return invalid("amount", "precision", "amount %s has more than 2 decimal places", amount)
	}
	if ceiling, ok := r.MethodCeilings[method]; ok && amount.GreaterThan(ceiling) {
		return invalid("amount", "method_ceiling", "%s payments are limited to %s", method, ceiling)
	}
	return nil
}

// Validate checks every rule for a payment request.
func (r PaymentRules) Validate(amount decimal.Decimal, t PaymentType, m PaymentMethod, paymentDate, now time.Time) error {
	if !t.Valid() {
		return invalid("type", "enum", "unknown payment type %q", t)
	}
	if !m.Valid() {
		return invalid("method", "enum", "unknown payment method %q", m)
	}
	if err := r.ValidateAmount(amount, m); err != nil {
		return err
	}
	if !r.MethodAllowed(t, m) {
		return invalid("method", "type_method", "%s cannot be paid by %s", t, m)
	}
	if !paymentDate.IsZero() {
		if paymentDate.After(now.Add(r.FutureTolerance)) {
			return invalid("payment_date", "future_window", "payment date is more than %s in the future", r.FutureTolerance)
		}
		if paymentDate.Before(now.Add(-r.MaxBackdate)) {
			return invalid("payment_date", "backdate_window", "payment date is more than %s in the past", r.MaxBackdate)
		}
	}
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

// PaymentRequest records money received (or, with TypeRefund, paid out).
// Amount is always given as a positive value.
type PaymentRequest struct {
	ReservationID string // optional
	Amount        decimal.Decimal
	Type          PaymentType
	Method        PaymentMethod
	Status        PaymentRecordStatus // defaults to completed
	PaymentDate   time.Time           // defaults to now
	Notes         string
	ActorID       string
}

type RefundRequest struct {
	OriginalPaymentID string
	Amount            decimal.Decimal
	Method            PaymentMethod // defaults to the original method if refundable, else other
	Notes             string
	ActorID           string
}

// Receipt is returned by every successful ledger write.
type Receipt struct {
	PaymentID     string
	ReceiptNumber string
	Payment       Payment
}

type PaymentLedger struct {
	store   TxStore
	numbers *Numberer
	audit   AuditLog
	clock   Clock
	log     *zap.Logger
	rules   PaymentRules
}

func NewPaymentLedger(store TxStore, numbers *Numberer, audit AuditLog, clock Clock, log *zap.Logger, rules PaymentRules) *PaymentLedger {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentLedger{store: store, numbers: numbers, audit: audit, clock: clock, log: log, rules: rules}
}

func (l *PaymentLedger) Rules() PaymentRules { return l.rules }

// RecordPayment validates, allocates a receipt number and persists the payment.
// Nothing is persisted when validation fails.
func (l *PaymentLedger) RecordPayment(ctx context.Context, req PaymentRequest) (Receipt, error) {
	now := l.clock.Now()
	if req.ActorID == "" {
		return Receipt{}, invalid("actor_id", "required", "actor id is required")
	}
	if err := l.rules.Validate(req.Amount, req.Type, req.Method, req.PaymentDate, now); err != nil {
		return Receipt{}, err
	}
	status := req.Status
	if status == "" {
		status = PaymentRecordCompleted
	}
	switch status {
	case PaymentRecordCompleted, PaymentRecordPending, PaymentRecordFailed:
	default:
		return Receipt{}, invalid("status", "initial_status", "a new payment cannot start as %q", status)
	}

	if req.ReservationID != "" {
		if _, err := loadActiveReservation(ctx, l.store, req.ReservationID); err != nil {
			return Receipt{}, err
		}
	}

	receiptNumber, err := l.numbers.Generate(ctx, ReceiptSequence)
	if err != nil {
		return Receipt{}, fmt.Errorf("allocate receipt number: %w", err)
	}

	amount := req.Amount
	if req.Type == TypeRefund {
		amount = amount.Neg()
	}
	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = now
	}
	p := Payment{
		ID:            uuid.NewString(),
		ReservationID: req.ReservationID,
		Amount:        amount,
		Type:          req.Type,
		Method:        req.Method,
		ReceiptNumber: receiptNumber,
		Status:        status,
		PaymentDate:   paymentDate,
		Notes:         req.Notes,
		CreatedBy:     req.ActorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.store.SavePayment(ctx, p); err != nil {
		return Receipt{}, fmt.Errorf("save payment: %w", err)
	}

	l.log.Info("payment recorded",
		zap.String("payment_id", p.ID),
		zap.String("receipt_number", p.ReceiptNumber),
		zap.String("reservation_id", p.ReservationID),
		zap.String("amount", p.Amount.String()),
		zap.String("type", string(p.Type)),
		zap.String("method", string(p.Method)))

	writeAudit(ctx, l.audit, l.log, AuditEntry{
		Timestamp:     now,
		ActorID:       req.ActorID,
		Action:        AuditPaymentRecorded,
		EntityKind:    "payment",
		EntityID:      p.ID,
		ReservationID: p.ReservationID,
		Payload: map[string]any{
			"receipt_number": p.ReceiptNumber,
			"amount":         p.Amount.String(),
			"type":           string(p.Type),
			"method":         string(p.Method),
		},
	})

	l.refresh(ctx, p.ReservationID)
	return Receipt{PaymentID: p.ID, ReceiptNumber: p.ReceiptNumber, Payment: p}, nil
}

// RecordRefund appends a negative entry against an original payment. When the
// refund covers everything still refundable, the original flips to refunded.
func (l *PaymentLedger) RecordRefund(ctx context.Context, req RefundRequest) (Receipt, error) {
	now := l.clock.Now()
	if req.ActorID == "" {
		return Receipt{}, invalid("actor_id", "required", "actor id is required")
	}
	if !req.Amount.IsPositive() {
		return Receipt{}, invalid("amount", "positive", "refund amount must be positive")
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		return Receipt{}, invalid("amount", "precision", "refund amount %s has more than 2 decimal places", req.Amount)
	}

	// Validate against a first read so a rejected refund never consumes a
	// receipt number. The write transaction re-reads and re-checks.
	original, err := l.store.GetPayment(ctx, req.OriginalPaymentID)
	if err != nil {
		return Receipt{}, err
	}
	method := req.Method
	if method == "" {
		method = MethodOther
		if l.rules.MethodAllowed(TypeRefund, original.Method) {
			method = original.Method
		}
	}
	if !method.Valid() {
		return Receipt{}, invalid("method", "enum", "unknown payment method %q", method)
	}
	if !l.rules.MethodAllowed(TypeRefund, method) {
		return Receipt{}, invalid("method", "type_method", "refunds cannot be paid by %s", method)
	}
	if err := l.checkRefundable(ctx, l.store, original, req.Amount); err != nil {
		return Receipt{}, err
	}

	receiptNumber, err := l.numbers.Generate(ctx, ReceiptSequence)
	if err != nil {
		return Receipt{}, fmt.Errorf("allocate receipt number: %w", err)
	}

	var refund Payment
	var fullyRefunded bool
	err = l.store.WithTx(ctx, func(s Store) error {
		orig, err := s.GetPayment(ctx, req.OriginalPaymentID)
		if err != nil {
			return err
		}
		if err := l.checkRefundable(ctx, s, orig, req.Amount); err != nil {
			return err
		}
		prior, err := refundedSoFar(ctx, s, orig.ID)
		if err != nil {
			return err
		}

		refund = Payment{
			ID:                uuid.NewString(),
			ReservationID:     orig.ReservationID,
			Amount:            req.Amount.Neg(),
			Type:              TypeRefund,
			Method:            method,
			ReceiptNumber:     receiptNumber,
			Status:            PaymentRecordCompleted,
			PaymentDate:       now,
			Notes:             req.Notes,
			OriginalPaymentID: orig.ID,
			CreatedBy:         req.ActorID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.SavePayment(ctx, refund); err != nil {
			return err
		}

		// Only returning the whole amount flips the original. Under a cap
		// below 100 it stays completed.
		if prior.Add(req.Amount).Equal(orig.Amount) {
			fullyRefunded = true
			orig.Status = PaymentRecordRefunded
			orig.UpdatedAt = now
			return s.SavePayment(ctx, orig)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	l.log.Info("refund recorded",
		zap.String("payment_id", refund.ID),
		zap.String("original_payment_id", refund.OriginalPaymentID),
		zap.String("receipt_number", refund.ReceiptNumber),
		zap.String("amount", refund.Amount.String()),
		zap.Bool("fully_refunded", fullyRefunded))

	writeAudit(ctx, l.audit, l.log, AuditEntry{
		Timestamp:     now,
		ActorID:       req.ActorID,
		Action:        AuditRefundRecorded,
		EntityKind:    "payment",
		EntityID:      refund.ID,
		ReservationID: refund.ReservationID,
		Payload: map[string]any{
			"original_payment_id": refund.OriginalPaymentID,
			"receipt_number":      refund.ReceiptNumber,
			"amount":              refund.Amount.String(),
			"fully_refunded":      fullyRefunded,
		},
	})

	l.refresh(ctx, refund.ReservationID)
	return Receipt{PaymentID: refund.ID, ReceiptNumber: refund.ReceiptNumber, Payment: refund}, nil
}

func (l *PaymentLedger) checkRefundable(ctx context.Context, s Store, orig Payment, amount decimal.Decimal) error {
	if orig.Lifecycle.IsDeleted() {
		return &NotFoundError{Kind: "payment", ID: orig.ID}
	}
	if orig.IsRefund() {
		return invalid("original_payment_id", "refundable", "payment %s is itself a refund", orig.ID)
	}
	if orig.Status == PaymentRecordRefunded {
		return invalid("original_payment_id", "refundable", "payment %s is already fully refunded", orig.ID)
	}
	if orig.Status != PaymentRecordCompleted {
		return invalid("original_payment_id", "refundable", "payment %s is %s, only completed payments can be refunded", orig.ID, orig.Status)
	}
	if amount.GreaterThan(orig.Amount) {
		return invalid("amount", "exceeds_original", "refund %s exceeds the original payment of %s", amount, orig.Amount)
	}
	prior, err := refundedSoFar(ctx, s, orig.ID)
	if err != nil {
		return err
	}
	if prior.Add(amount).GreaterThan(orig.Amount) {
		return invalid("amount", "exceeds_remaining",
			"refund %s plus prior refunds %s exceeds the original payment of %s", amount, prior, orig.Amount)
	}
	// The cap bounds everything refunded against the original, not each refund.
	limit := orig.Amount.Mul(l.rules.MaxRefundPercentage).Div(decimal.NewFromInt(100))
	if prior.Add(amount).GreaterThan(limit) {
		return invalid("amount", "max_refund_percentage",
			"refund %s plus prior refunds %s exceeds %s%% of the original payment", amount, prior, l.rules.MaxRefundPercentage)
	}
	return nil
}

// refundedSoFar sums the absolute value of settled, active refunds of a payment.
func refundedSoFar(ctx context.Context, s Store, originalID string) (decimal.Decimal, error) {
	refunds, err := s.RefundsOf(ctx, originalID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load refunds of %s: %w", originalID, err)
	}
	total := decimal.Zero
	for _, r := range ActiveOnly(refunds) {
		if r.Settled() {
			total = total.Add(r.Amount.Abs())
		}
	}
	return total, nil
}

// PaidTotal returns the net of settled, active payments for a reservation.
func (l *PaymentLedger) PaidTotal(ctx context.Context, reservationID string) (decimal.Decimal, error) {
	payments, err := l.store.PaymentsByReservation(ctx, reservationID)
	if err != nil {
		return decimal.Zero, err
	}
	return NetPaid(payments), nil
}

// PaymentsFor lists active payments for a reservation.
func (l *PaymentLedger) PaymentsFor(ctx context.Context, reservationID string) ([]Payment, error) {
	payments, err := l.store.PaymentsByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	return ActiveOnly(payments), nil
}

// SyncPaymentStatus recomputes the reservation's paymentStatus in its own
// transaction, writing only on change.
func (l *PaymentLedger) SyncPaymentStatus(ctx context.Context, reservationID string) (PaymentStatus, error) {
	var status PaymentStatus
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		status, _, err = SyncPaymentStatus(ctx, s, reservationID, l.clock.Now())
		return err
	})
	return status, err
}

// CancelPayment flips a pending or completed payment to cancelled.
func (l *PaymentLedger) CancelPayment(ctx context.Context, paymentID, actorID, reason string) (Payment, error) {
	if actorID == "" {
		return Payment{}, invalid("actor_id", "required", "actor id is required")
	}
	now := l.clock.Now()
	var p Payment
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		p, err = s.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Lifecycle.IsDeleted() {
			return &NotFoundError{Kind: "payment", ID: paymentID}
		}
		if p.Status != PaymentRecordPending && p.Status != PaymentRecordCompleted {
			return invalid("status", "cancellable", "a %s payment cannot be cancelled", p.Status)
		}
		if p.Status == PaymentRecordCompleted && !p.IsRefund() {
			prior, err := refundedSoFar(ctx, s, p.ID)
			if err != nil {
				return err
			}
			if prior.IsPositive() {
				return invalid("status", "cancellable", "payment %s has refunds and cannot be cancelled", p.ID)
			}
		}
		p.Status = PaymentRecordCancelled
		p.UpdatedAt = now
		if reason != "" {
			p.Notes = reason
		}
		return s.SavePayment(ctx, p)
	})
	if err != nil {
		return Payment{}, err
	}

	writeAudit(ctx, l.audit, l.log, AuditEntry{
		Timestamp:     now,
		ActorID:       actorID,
		Action:        AuditPaymentCancelled,
		EntityKind:    "payment",
		EntityID:      p.ID,
		ReservationID: p.ReservationID,
		Payload:       map[string]any{"reason": reason},
	})
	l.refresh(ctx, p.ReservationID)
	return p, nil
}

// SoftDelete tags a payment deleted. It drops out of every total.
func (l *PaymentLedger) SoftDelete(ctx context.Context, paymentID, actorID string) error {
	if actorID == "" {
		return invalid("actor_id", "required", "actor id is required")
	}
	now := l.clock.Now()
	var p Payment
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		p, err = s.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Lifecycle.IsDeleted() {
			return &NotFoundError{Kind: "payment", ID: paymentID}
		}
		p.Lifecycle = Deleted(now, actorID)
		p.UpdatedAt = now
		return s.SavePayment(ctx, p)
	})
	if err != nil {
		return err
	}

	writeAudit(ctx, l.audit, l.log, AuditEntry{
		Timestamp:     now,
		ActorID:       actorID,
		Action:        AuditPaymentDeleted,
		EntityKind:    "payment",
		EntityID:      p.ID,
		ReservationID: p.ReservationID,
	})
	l.refresh(ctx, p.ReservationID)
	return nil
}

// HardDelete removes a payment outright. DANGEROUS: no audit trail is written.
// Administrative escape hatch only.
func (l *PaymentLedger) HardDelete(ctx context.Context, paymentID, actorID string) error {
	p, err := l.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	l.log.Warn("hard delete of payment bypasses the audit trail",
		zap.String("payment_id", p.ID),
		zap.String("receipt_number", p.ReceiptNumber),
		zap.String("reservation_id", p.ReservationID),
		zap.String("amount", p.Amount.String()),
		zap.String("actor_id", actorID))

	if err := l.store.DeletePayment(ctx, paymentID); err != nil {
		return fmt.Errorf("hard delete payment %s: %w", paymentID, err)
	}
	l.refresh(ctx, p.ReservationID)
	return nil
}

// refresh is the second transaction after a ledger write. A failure here is
// logged only: the payment is durable and the next recompute catches up.
func (l *PaymentLedger) refresh(ctx context.Context, reservationID string) {
	if reservationID == "" {
		return
	}
	now := l.clock.Now()
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, _, err := SyncPaymentStatus(ctx, s, reservationID, now); err != nil {
			return err
		}
		_, err := SyncReservationStatus(ctx, s, reservationID, now)
		return err
	})
	if err != nil {
		l.log.Warn("reservation recompute after payment failed; will self-correct on next trigger",
			zap.String("reservation_id", reservationID),
			zap.Error(err))
	}
}
