// Package store provides in-memory implementations of the booking store contracts.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/warp/lodge-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements booking.TxStore, booking.CounterStore and booking.AuditLog.
// All state sits behind one mutex; WithTx holds it for the whole callback.
type Memory struct {
	mu sync.Mutex
	state
}

type state struct {
	reservations map[string]booking.Reservation
	rooms        map[string]booking.ReservationRoom
	payments     map[string]booking.Payment
	counters     map[string]booking.PeriodCounter
	audit        []booking.AuditEntry
}

func newState() state {
	return state{
		reservations: make(map[string]booking.Reservation),
		rooms:        make(map[string]booking.ReservationRoom),
		payments:     make(map[string]booking.Payment),
		counters:     make(map[string]booking.PeriodCounter),
	}
}

var errDuplicateReceipt = errors.New("duplicate receipt number")

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func (m *Memory) locked(fn func(s *state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.state)
}

func (m *Memory) GetReservation(_ context.Context, id string) (r booking.Reservation, err error) {
	err = m.locked(func(s *state) error { r, err = s.getReservation(id); return err })
	return r, err
}

func (m *Memory) SaveReservation(_ context.Context, r booking.Reservation) error {
	return m.locked(func(s *state) error { s.reservations[r.ID] = r; return nil })
}

func (m *Memory) DeleteReservation(_ context.Context, id string) error {
	return m.locked(func(s *state) error { return s.deleteReservation(id) })
}

func (m *Memory) GetRoom(_ context.Context, id string) (r booking.ReservationRoom, err error) {
	err = m.locked(func(s *state) error { r, err = s.getRoom(id); return err })
	return r, err
}

func (m *Memory) SaveRoom(_ context.Context, r booking.ReservationRoom) error {
	return m.locked(func(s *state) error { s.rooms[r.ID] = r; return nil })
}

func (m *Memory) RoomsByReservation(_ context.Context, reservationID string) (out []booking.ReservationRoom, err error) {
	err = m.locked(func(s *state) error { out = s.roomsByReservation(reservationID); return nil })
	return out, err
}

func (m *Memory) GetPayment(_ context.Context, id string) (p booking.Payment, err error) {
	err = m.locked(func(s *state) error { p, err = s.getPayment(id); return err })
	return p, err
}

func (m *Memory) SavePayment(_ context.Context, p booking.Payment) error {
	return m.locked(func(s *state) error { return s.savePayment(p) })
}

func (m *Memory) DeletePayment(_ context.Context, id string) error {
	return m.locked(func(s *state) error { return s.deletePayment(id) })
}

func (m *Memory) PaymentsByReservation(_ context.Context, reservationID string) (out []booking.Payment, err error) {
	err = m.locked(func(s *state) error {
		out = s.paymentsWhere(func(p booking.Payment) bool { return p.ReservationID == reservationID })
		return nil
	})
	return out, err
}

func (m *Memory) RefundsOf(_ context.Context, originalID string) (out []booking.Payment, err error) {
	err = m.locked(func(s *state) error {
		out = s.paymentsWhere(func(p booking.Payment) bool { return p.OriginalPaymentID == originalID })
		return nil
	})
	return out, err
}

// ApplyBatch writes every document in b, or none of them.
func (m *Memory) ApplyBatch(_ context.Context, b booking.Batch) error {
	return m.locked(func(s *state) error { return s.applyBatch(b) })
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txView is the Store handed to WithTx callbacks. The parent lock is already held.
type txView struct {
	s *state
}

func (v *txView) GetReservation(_ context.Context, id string) (booking.Reservation, error) {
	return v.s.getReservation(id)
}

func (v *txView) SaveReservation(_ context.Context, r booking.Reservation) error {
	v.s.reservations[r.ID] = r
	return nil
}

func (v *txView) DeleteReservation(_ context.Context, id string) error {
	return v.s.deleteReservation(id)
}

func (v *txView) GetRoom(_ context.Context, id string) (booking.ReservationRoom, error) {
	return v.s.getRoom(id)
}

func (v *txView) SaveRoom(_ context.Context, r booking.ReservationRoom) error {
	v.s.rooms[r.ID] = r
	return nil
}

func (v *txView) RoomsByReservation(_ context.Context, reservationID string) ([]booking.ReservationRoom, error) {
	return v.s.roomsByReservation(reservationID), nil
}

func (v *txView) GetPayment(_ context.Context, id string) (booking.Payment, error) {
	return v.s.getPayment(id)
}

func (v *txView) SavePayment(_ context.Context, p booking.Payment) error {
	return v.s.savePayment(p)
}

func (v *txView) DeletePayment(_ context.Context, id string) error {
	return v.s.deletePayment(id)
}

func (v *txView) PaymentsByReservation(_ context.Context, reservationID string) ([]booking.Payment, error) {
	return v.s.paymentsWhere(func(p booking.Payment) bool { return p.ReservationID == reservationID }), nil
}

func (v *txView) RefundsOf(_ context.Context, originalID string) ([]booking.Payment, error) {
	return v.s.paymentsWhere(func(p booking.Payment) bool { return p.OriginalPaymentID == originalID }), nil
}

func (v *txView) ApplyBatch(_ context.Context, b booking.Batch) error {
	return v.s.applyBatch(b)
}

// =============================================================================
// COUNTERS AND AUDIT
// =============================================================================

// NextCounter atomically creates-or-increments a PeriodCounter.
func (m *Memory) NextCounter(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[id]
	c.ID = id
	c.Counter++
	c.UpdatedAt = time.Now().UTC()
	m.counters[id] = c
	return c.Counter, nil
}

// SetCounter seeds a counter, e.g. after a migration.
func (m *Memory) SetCounter(id string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[id] = booking.PeriodCounter{ID: id, Counter: value, UpdatedAt: time.Now().UTC()}
}

func (m *Memory) Append(_ context.Context, entry booking.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// AuditEntries returns a copy of the audit trail in append order.
func (m *Memory) AuditEntries() []booking.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]booking.AuditEntry(nil), m.audit...)
}

// =============================================================================
// STATE HELPERS (caller holds the lock)
// =============================================================================

func (s *state) getReservation(id string) (booking.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return booking.Reservation{}, &booking.NotFoundError{Kind: "reservation", ID: id}
	}
	return r, nil
}

func (s *state) deleteReservation(id string) error {
	if _, ok := s.reservations[id]; !ok {
		return &booking.NotFoundError{Kind: "reservation", ID: id}
	}
	delete(s.reservations, id)
	return nil
}

func (s *state) getRoom(id string) (booking.ReservationRoom, error) {
	r, ok := s.rooms[id]
	if !ok {
		return booking.ReservationRoom{}, &booking.NotFoundError{Kind: "room", ID: id}
	}
	return r, nil
}

func (s *state) roomsByReservation(reservationID string) []booking.ReservationRoom {
	var out []booking.ReservationRoom
	for _, r := range s.rooms {
		if r.ReservationID == reservationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomNumber < out[j].RoomNumber })
	return out
}

func (s *state) getPayment(id string) (booking.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return booking.Payment{}, &booking.NotFoundError{Kind: "payment", ID: id}
	}
	return p, nil
}

// savePayment enforces receipt number uniqueness like the SQL unique index.
func (s *state) savePayment(p booking.Payment) error {
	for id, other := range s.payments {
		if id != p.ID && p.ReceiptNumber != "" && other.ReceiptNumber == p.ReceiptNumber {
			return errDuplicateReceipt
		}
	}
	s.payments[p.ID] = p
	return nil
}

func (s *state) deletePayment(id string) error {
	if _, ok := s.payments[id]; !ok {
		return &booking.NotFoundError{Kind: "payment", ID: id}
	}
	delete(s.payments, id)
	return nil
}

func (s *state) paymentsWhere(match func(booking.Payment) bool) []booking.Payment {
	var out []booking.Payment
	for _, p := range s.payments {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ReceiptNumber < out[j].ReceiptNumber
	})
	return out
}

func (s *state) applyBatch(b booking.Batch) error {
	snapshot := s.clone()
	for _, r := range b.Reservations {
		s.reservations[r.ID] = r
	}
	for _, r := range b.Rooms {
		s.rooms[r.ID] = r
	}
	for _, p := range b.Payments {
		if err := s.savePayment(p); err != nil {
			*s = snapshot
			return err
		}
	}
	return nil
}

func (s *state) clone() state {
	c := newState()
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	c.audit = append([]booking.AuditEntry(nil), s.audit...)
	return c
}
