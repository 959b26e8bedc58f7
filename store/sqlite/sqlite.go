/*
Package sqlite provides a SQLite-backed implementation of the booking store contracts.

PURPOSE:
  Implements booking.TxStore, booking.CounterStore and booking.AuditLog on
  SQLite. The same schema ports to PostgreSQL with minor dialect changes.

KEY TABLES:
  reservations:       one row per reservation document
  reservation_rooms:  one row per room, reservation_id is a plain column
  payments:           signed ledger entries, receipt_number UNIQUE
  period_counters:    sequence counters keyed by "{sequence}-{period}"
  audit_log:          append-only audit trail

LIFECYCLE:
  deleted_at / deleted_by columns carry the soft-delete tag. Both NULL means
  active. Rows are mapped into booking.Lifecycle on scan; queries never filter
  on them, the core does via booking.ActiveOnly.

MONEY:
  Stored as TEXT decimal strings, never REAL.

COUNTERS:
  NextCounter is a single statement:

    INSERT ... ON CONFLICT(id) DO UPDATE SET counter = counter + 1 RETURNING counter

  SQLite serialises writers, so two callers can never observe the same value.
  SQLITE_BUSY / SQLITE_LOCKED surface as booking.TransientStorageError.

CONCURRENCY:
  One open connection (SQLite has a single writer; ":memory:" databases are
  per-connection) plus a sync.RWMutex, as WithTx holds the write lock for the
  whole callback.

USAGE:
  store, err := sqlite.New("./data/lodge.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lodge-engine/booking"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	docs
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// docs holds the document operations, run against either the pool or a tx.
type docs struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, docs: docs{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		reference_number TEXT NOT NULL,
		guest_name TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		cancelled_by TEXT,
		cancelled_at TEXT,
		cancellation_reason TEXT,
		deleted_at TEXT,
		deleted_by TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_reference
		ON reservations(reference_number);

	CREATE TABLE IF NOT EXISTS reservation_rooms (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		room_number TEXT NOT NULL,
		room_status TEXT NOT NULL,
		tariff_per_night TEXT NOT NULL,
		check_in_datetime TEXT,
		check_out_datetime TEXT,
		checked_in_by TEXT,
		check_in_notes TEXT,
		checked_out_by TEXT,
		check_out_notes TEXT,
		cancellation_reason TEXT,
		status_changed_by TEXT,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_reservation
		ON reservation_rooms(reservation_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reservation_id TEXT,
		amount TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		method TEXT NOT NULL,
		receipt_number TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		notes TEXT,
		original_payment_id TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	-- Receipt numbers are unique across the ledger
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_receipt
		ON payments(receipt_number);
	CREATE INDEX IF NOT EXISTS idx_payments_reservation
		ON payments(reservation_id) WHERE reservation_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_payments_original
		ON payments(original_payment_id) WHERE original_payment_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS period_counters (
		id TEXT PRIMARY KEY,
		counter INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		reservation_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_kind, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_reservation
		ON audit_log(reservation_id) WHERE reservation_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENT STORE (booking.Store interface)
// =============================================================================

func (s *Store) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.GetReservation(ctx, id)
}

func (s *Store) SaveReservation(ctx context.Context, r booking.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.SaveReservation(ctx, r)
}

func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.DeleteReservation(ctx, id)
}

func (s *Store) GetRoom(ctx context.Context, id string) (booking.ReservationRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.GetRoom(ctx, id)
}

func (s *Store) SaveRoom(ctx context.Context, r booking.ReservationRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.SaveRoom(ctx, r)
}

func (s *Store) RoomsByReservation(ctx context.Context, reservationID string) ([]booking.ReservationRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.RoomsByReservation(ctx, reservationID)
}

func (s *Store) GetPayment(ctx context.Context, id string) (booking.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.GetPayment(ctx, id)
}

func (s *Store) SavePayment(ctx context.Context, p booking.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.SavePayment(ctx, p)
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.DeletePayment(ctx, id)
}

func (s *Store) PaymentsByReservation(ctx context.Context, reservationID string) ([]booking.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.PaymentsByReservation(ctx, reservationID)
}

func (s *Store) RefundsOf(ctx context.Context, originalPaymentID string) ([]booking.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.RefundsOf(ctx, originalPaymentID)
}

// ApplyBatch writes every document in b inside one database transaction.
func (s *Store) ApplyBatch(ctx context.Context, b booking.Batch) error {
	return s.WithTx(ctx, func(tx booking.Store) error {
		return tx.ApplyBatch(ctx, b)
	})
}

// =============================================================================
// TRANSACTIONAL STORE (booking.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&docs{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

// =============================================================================
// DOCUMENT OPERATIONS
// =============================================================================

const reservationColumns = `id, reference_number, guest_name, status, payment_status, total_amount,
	created_by, created_at, updated_at, cancelled_by, cancelled_at, cancellation_reason,
	deleted_at, deleted_by`

func (d *docs) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Reservation{}, &booking.NotFoundError{Kind: "reservation", ID: id}
	}
	if err != nil {
		return booking.Reservation{}, wrapErr("get reservation", err)
	}
	return r, nil
}

func (d *docs) SaveReservation(ctx context.Context, r booking.Reservation) error {
	deletedAt, deletedBy := lifecycleColumns(r.Lifecycle)
	_, err := d.q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reference_number = excluded.reference_number,
			guest_name = excluded.guest_name,
			status = excluded.status,
			payment_status = excluded.payment_status,
			total_amount = excluded.total_amount,
			updated_at = excluded.updated_at,
			cancelled_by = excluded.cancelled_by,
			cancelled_at = excluded.cancelled_at,
			cancellation_reason = excluded.cancellation_reason,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by
	`,
		r.ID, r.ReferenceNumber, r.GuestName, string(r.Status), string(r.PaymentStatus), r.TotalAmount.String(),
		nullString(r.CreatedBy), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		nullString(r.CancelledBy), nullTime(r.CancelledAt), nullString(r.CancellationReason),
		deletedAt, deletedBy,
	)
	return wrapErr("save reservation", err)
}

func (d *docs) DeleteReservation(ctx context.Context, id string) error {
	return d.deleteByID(ctx, "reservations", "reservation", id)
}

const roomColumns = `id, reservation_id, room_number, room_status, tariff_per_night,
	check_in_datetime, check_out_datetime, checked_in_by, check_in_notes,
	checked_out_by, check_out_notes, cancellation_reason, status_changed_by, updated_at,
	deleted_at, deleted_by`

func (d *docs) GetRoom(ctx context.Context, id string) (booking.ReservationRoom, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM reservation_rooms WHERE id = ?`, id)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ReservationRoom{}, &booking.NotFoundError{Kind: "room", ID: id}
	}
	if err != nil {
		return booking.ReservationRoom{}, wrapErr("get room", err)
	}
	return r, nil
}

func (d *docs) SaveRoom(ctx context.Context, r booking.ReservationRoom) error {
	deletedAt, deletedBy := lifecycleColumns(r.Lifecycle)
	_, err := d.q.ExecContext(ctx, `
		INSERT INTO reservation_rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room_number = excluded.room_number,
			room_status = excluded.room_status,
			tariff_per_night = excluded.tariff_per_night,
			check_in_datetime = excluded.check_in_datetime,
			check_out_datetime = excluded.check_out_datetime,
			checked_in_by = excluded.checked_in_by,
			check_in_notes = excluded.check_in_notes,
			checked_out_by = excluded.checked_out_by,
			check_out_notes = excluded.check_out_notes,
			cancellation_reason = excluded.cancellation_reason,
			status_changed_by = excluded.status_changed_by,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by
	`,
		r.ID, r.ReservationID, r.RoomNumber, string(r.RoomStatus), r.TariffPerNight.String(),
		nullTime(r.CheckInDatetime), nullTime(r.CheckOutDatetime),
		nullString(r.CheckedInBy), nullString(r.CheckInNotes),
		nullString(r.CheckedOutBy), nullString(r.CheckOutNotes),
		nullString(r.CancellationReason), nullString(r.StatusChangedBy), formatTime(r.UpdatedAt),
		deletedAt, deletedBy,
	)
	return wrapErr("save room", err)
}

func (d *docs) RoomsByReservation(ctx context.Context, reservationID string) ([]booking.ReservationRoom, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM reservation_rooms WHERE reservation_id = ? ORDER BY room_number ASC`,
		reservationID)
	if err != nil {
		return nil, wrapErr("query rooms", err)
	}
	defer rows.Close()

	var out []booking.ReservationRoom
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, wrapErr("scan room", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const paymentColumns = `id, reservation_id, amount, payment_type, method, receipt_number, status,
	payment_date, notes, original_payment_id, created_by, created_at, updated_at, deleted_at, deleted_by`

func (d *docs) GetPayment(ctx context.Context, id string) (booking.Payment, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Payment{}, &booking.NotFoundError{Kind: "payment", ID: id}
	}
	if err != nil {
		return booking.Payment{}, wrapErr("get payment", err)
	}
	return p, nil
}

// SavePayment inserts a payment or updates its status and lifecycle.
// Amount, type, method and receipt number are immutable once written.
func (d *docs) SavePayment(ctx context.Context, p booking.Payment) error {
	deletedAt, deletedBy := lifecycleColumns(p.Lifecycle)
	_, err := d.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			notes = excluded.notes,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by
	`,
		p.ID, nullString(p.ReservationID), p.Amount.String(), string(p.Type), string(p.Method),
		p.ReceiptNumber, string(p.Status), formatTime(p.PaymentDate), nullString(p.Notes),
		nullString(p.OriginalPaymentID), nullString(p.CreatedBy),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		deletedAt, deletedBy,
	)
	return wrapErr("save payment", err)
}

func (d *docs) DeletePayment(ctx context.Context, id string) error {
	return d.deleteByID(ctx, "payments", "payment", id)
}

func (d *docs) PaymentsByReservation(ctx context.Context, reservationID string) ([]booking.Payment, error) {
	return d.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reservation_id = ? ORDER BY created_at ASC, receipt_number ASC`,
		reservationID)
}

func (d *docs) RefundsOf(ctx context.Context, originalPaymentID string) ([]booking.Payment, error) {
	return d.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE original_payment_id = ? ORDER BY created_at ASC, receipt_number ASC`,
		originalPaymentID)
}

func (d *docs) queryPayments(ctx context.Context, query string, args ...any) ([]booking.Payment, error) {
	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query payments", err)
	}
	defer rows.Close()

	var out []booking.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, wrapErr("scan payment", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyBatch on a docs value assumes the caller already opened a transaction.
func (d *docs) ApplyBatch(ctx context.Context, b booking.Batch) error {
	for _, r := range b.Reservations {
		if err := d.SaveReservation(ctx, r); err != nil {
			return err
		}
	}
	for _, r := range b.Rooms {
		if err := d.SaveRoom(ctx, r); err != nil {
			return err
		}
	}
	for _, p := range b.Payments {
		if err := d.SavePayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (d *docs) deleteByID(ctx context.Context, table, kind, id string) error {
	res, err := d.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete "+kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete "+kind, err)
	}
	if n == 0 {
		return &booking.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// =============================================================================
// COUNTER STORE (booking.CounterStore interface)
// =============================================================================

// NextCounter creates the counter at 1 or increments it, in one statement.
func (s *Store) NextCounter(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counter int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO period_counters (id, counter, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			counter = period_counters.counter + 1,
			updated_at = excluded.updated_at
		RETURNING counter
	`, id, formatTime(time.Now().UTC())).Scan(&counter)
	if err != nil {
		return 0, wrapErr("next counter", err)
	}
	return counter, nil
}

// GetCounter returns the stored counter document.
func (s *Store) GetCounter(ctx context.Context, id string) (booking.PeriodCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c         booking.PeriodCounter
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, counter, updated_at FROM period_counters WHERE id = ?`, id).
		Scan(&c.ID, &c.Counter, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.PeriodCounter{}, &booking.NotFoundError{Kind: "counter", ID: id}
	}
	if err != nil {
		return booking.PeriodCounter{}, wrapErr("get counter", err)
	}
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// SetCounter seeds or overwrites a counter.
func (s *Store) SetCounter(ctx context.Context, id string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO period_counters (id, counter, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET counter = excluded.counter, updated_at = excluded.updated_at
	`, id, value, formatTime(time.Now().UTC()))
	return wrapErr("set counter", err)
}

// =============================================================================
// AUDIT LOG (booking.AuditLog interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, e booking.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_kind, entity_id, reservation_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), nullString(e.ActorID), string(e.Action), e.EntityKind, e.EntityID,
		nullString(e.ReservationID), string(payloadJSON))
	return wrapErr("append audit entry", err)
}

// AuditTrail returns audit entries for one entity, oldest first.
func (s *Store) AuditTrail(ctx context.Context, entityKind, entityID string) ([]booking.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, actor_id, action, entity_kind, entity_id, reservation_id, payload_json
		FROM audit_log WHERE entity_kind = ? AND entity_id = ?
		ORDER BY timestamp ASC
	`, entityKind, entityID)
	if err != nil {
		return nil, wrapErr("query audit log", err)
	}
	defer rows.Close()

	var out []booking.AuditEntry
	for rows.Next() {
		var (
			e                     booking.AuditEntry
			ts, action            string
			actor, resID, payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &actor, &action, &e.EntityKind, &e.EntityID, &resID, &payload); err != nil {
			return nil, wrapErr("scan audit entry", err)
		}
		e.Timestamp = parseTime(ts)
		e.ActorID = actor.String
		e.Action = booking.AuditAction(action)
		e.ReservationID = resID.String
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (booking.Reservation, error) {
	var (
		r                                           booking.Reservation
		status, paymentStatus, total                string
		createdAt, updatedAt                        string
		createdBy, cancelledBy, cancelledAt, reason sql.NullString
		deletedAt, deletedBy                        sql.NullString
	)
	err := row.Scan(&r.ID, &r.ReferenceNumber, &r.GuestName, &status, &paymentStatus, &total,
		&createdBy, &createdAt, &updatedAt, &cancelledBy, &cancelledAt, &reason,
		&deletedAt, &deletedBy)
	if err != nil {
		return booking.Reservation{}, err
	}
	r.Status = booking.ReservationStatus(status)
	r.PaymentStatus = booking.PaymentStatus(paymentStatus)
	if r.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return booking.Reservation{}, fmt.Errorf("total_amount %q: %w", total, err)
	}
	r.CreatedBy = createdBy.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.CancelledBy = cancelledBy.String
	r.CancelledAt = parseNullTime(cancelledAt)
	r.CancellationReason = reason.String
	r.Lifecycle = lifecycleFrom(deletedAt, deletedBy)
	return r, nil
}

func scanRoom(row scanner) (booking.ReservationRoom, error) {
	var (
		r                                   booking.ReservationRoom
		status, tariff, updatedAt           string
		checkIn, checkOut                   sql.NullString
		inBy, inNotes, outBy, outNotes, chg sql.NullString
		cancelReason                        sql.NullString
		deletedAt, deletedBy                sql.NullString
	)
	err := row.Scan(&r.ID, &r.ReservationID, &r.RoomNumber, &status, &tariff,
		&checkIn, &checkOut, &inBy, &inNotes, &outBy, &outNotes, &cancelReason, &chg, &updatedAt,
		&deletedAt, &deletedBy)
	if err != nil {
		return booking.ReservationRoom{}, err
	}
	r.RoomStatus = booking.RoomStatus(status)
	if r.TariffPerNight, err = decimal.NewFromString(tariff); err != nil {
		return booking.ReservationRoom{}, fmt.Errorf("tariff_per_night %q: %w", tariff, err)
	}
	r.CheckInDatetime = parseNullTime(checkIn)
	r.CheckOutDatetime = parseNullTime(checkOut)
	r.CheckedInBy = inBy.String
	r.CheckInNotes = inNotes.String
	r.CheckedOutBy = outBy.String
	r.CheckOutNotes = outNotes.String
	r.CancellationReason = cancelReason.String
	r.StatusChangedBy = chg.String
	r.UpdatedAt = parseTime(updatedAt)
	r.Lifecycle = lifecycleFrom(deletedAt, deletedBy)
	return r, nil
}

func scanPayment(row scanner) (booking.Payment, error) {
	var (
		p                                           booking.Payment
		amount, ptype, method, status               string
		paymentDate, createdAt, updatedAt           string
		reservationID, notes, originalID, createdBy sql.NullString
		deletedAt, deletedBy                        sql.NullString
	)
	err := row.Scan(&p.ID, &reservationID, &amount, &ptype, &method, &p.ReceiptNumber, &status,
		&paymentDate, &notes, &originalID, &createdBy, &createdAt, &updatedAt,
		&deletedAt, &deletedBy)
	if err != nil {
		return booking.Payment{}, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return booking.Payment{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	p.ReservationID = reservationID.String
	p.Type = booking.PaymentType(ptype)
	p.Method = booking.PaymentMethod(method)
	p.Status = booking.PaymentRecordStatus(status)
	p.PaymentDate = parseTime(paymentDate)
	p.Notes = notes.String
	p.OriginalPaymentID = originalID.String
	p.CreatedBy = createdBy.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.Lifecycle = lifecycleFrom(deletedAt, deletedBy)
	return p, nil
}

// Helper functions

func lifecycleColumns(l booking.Lifecycle) (sql.NullString, sql.NullString) {
	at, by, deleted := l.DeletedAt()
	if !deleted {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: formatTime(at), Valid: true}, sql.NullString{String: by, Valid: true}
}

func lifecycleFrom(deletedAt, deletedBy sql.NullString) booking.Lifecycle {
	if !deletedAt.Valid {
		return booking.Active()
	}
	return booking.Deleted(parseTime(deletedAt.String), deletedBy.String)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	return parseTime(s.String)
}

// wrapErr maps driver errors onto the booking error taxonomy.
// Busy and locked databases are transient; everything else is wrapped as-is.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return &booking.TransientStorageError{Op: op, Err: err}
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: duplicate key: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
