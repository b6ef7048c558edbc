package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
)

// BookingRepo provides data access to the bookings and passenger_tickets
// tables.  Bookings are only ever created through the booking service;
// this repository guarantees that a booking row and its passenger rows
// are written in one transaction so a partially persisted booking can
// never be observed.  All timestamp fields are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// bookingColumns is the scan order shared by every booking query.
const bookingColumns = `id, reference, trip_id, user_id, contact_email, contact_phone,
       subtotal, service_fee, total_price, payment_method, status, payment_status,
       locked_until, paid_at, ticket_url, qr_code, created_at, updated_at`

// scanBooking reads one booking row in bookingColumns order.
func scanBooking(row interface{ Scan(...interface{}) error }) (*model.Booking, error) {
	var b model.Booking
	var userID sql.NullInt64
	var paidAt sql.NullTime
	var ticketURL, qrCode sql.NullString
	err := row.Scan(
		&b.ID, &b.Reference, &b.TripID, &userID, &b.ContactEmail, &b.ContactPhone,
		&b.Subtotal, &b.ServiceFee, &b.TotalPrice, &b.PaymentMethod, &b.Status, &b.PaymentStatus,
		&b.LockedUntil, &paidAt, &ticketURL, &qrCode, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		b.UserID = &uid
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.PaidAt = &t
	}
	if ticketURL.Valid {
		u := ticketURL.String
		b.TicketURL = &u
	}
	if qrCode.Valid {
		q := qrCode.String
		b.QRCode = &q
	}
	return &b, nil
}

// OccupiedSeats returns the subset of seatCodes that are already attached
// to a non-cancelled booking on the trip.  Passing an empty seatCodes
// slice returns every occupied seat for the trip.  This read is the
// authoritative availability check; the advisory lock store is only a
// secondary guard within the hold TTL window.
func (r *BookingRepo) OccupiedSeats(ctx context.Context, tripID uint64, seatCodes []string) ([]string, error) {
	query := `SELECT pt.seat_code
              FROM passenger_tickets pt
              JOIN bookings b ON b.id = pt.booking_id
              WHERE b.trip_id = ? AND b.status <> 'CANCELLED'`
	args := []interface{}{tripID}
	if len(seatCodes) > 0 {
		placeholders := make([]string, 0, len(seatCodes))
		for _, code := range seatCodes {
			placeholders = append(placeholders, "?")
			args = append(args, code)
		}
		query += ` AND pt.seat_code IN (` + strings.Join(placeholders, ",") + `)`
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var occupied []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		occupied = append(occupied, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return occupied, nil
}

// ReferenceExists reports whether a booking with the given reference is
// already present.  The reference generator uses this as its durable
// uniqueness check, which is what protects reference allocation against
// counter-store data loss.
func (r *BookingRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE reference = ?`, reference).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts a booking and its passenger tickets in a single
// transaction.  The booking's ID, reference and monetary fields must be
// populated by the caller; CreatedAt/UpdatedAt are read back from the
// database after the insert.  If any statement fails the whole write is
// rolled back and the booking does not exist.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO bookings
        (id, reference, trip_id, user_id, contact_email, contact_phone,
         subtotal, service_fee, total_price, payment_method, status, payment_status, locked_until)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var userID interface{}
	if b.UserID != nil {
		userID = *b.UserID
	}
	if _, err := tx.ExecContext(ctx, ins,
		b.ID, b.Reference, b.TripID, userID, b.ContactEmail, b.ContactPhone,
		b.Subtotal, b.ServiceFee, b.TotalPrice, b.PaymentMethod, b.Status, b.PaymentStatus,
		b.LockedUntil.UTC().Format("2006-01-02 15:04:05"),
	); err != nil {
		return err
	}

	if len(b.Passengers) > 0 {
		query := `INSERT INTO passenger_tickets (booking_id, full_name, document_id, phone, seat_code, price) VALUES `
		args := make([]interface{}, 0, len(b.Passengers)*6)
		for i := range b.Passengers {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?)"
			p := &b.Passengers[i]
			p.BookingID = b.ID
			args = append(args, b.ID, p.FullName, p.DocumentID, p.Phone, p.SeatCode, p.Price)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	// Query back timestamps and defaults set by the database.
	const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
	if err := tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID returns a booking and its passenger tickets by opaque id.
// ErrBookingNotFound is returned when no such booking exists.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetByReference returns a booking by its human-readable reference.
func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference = ?`, reference)
}

func (r *BookingRepo) getOne(ctx context.Context, query string, arg interface{}) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadPassengers(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BookingRepo) loadPassengers(ctx context.Context, b *model.Booking) error {
	const q = `SELECT id, booking_id, full_name, document_id, phone, seat_code, price, created_at
               FROM passenger_tickets WHERE booking_id = ? ORDER BY seat_code`
	rows, err := r.db.QueryContext(ctx, q, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p model.PassengerTicket
		if err := rows.Scan(&p.ID, &p.BookingID, &p.FullName, &p.DocumentID, &p.Phone, &p.SeatCode, &p.Price, &p.CreatedAt); err != nil {
			return err
		}
		b.Passengers = append(b.Passengers, p)
	}
	return rows.Err()
}

// ListByUser returns all bookings owned by a registered user, newest
// first, with passenger tickets populated.  Guest bookings are reachable
// only by id or reference.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range bookings {
		if err := r.loadPassengers(ctx, &bookings[i]); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

// Confirm transitions a PENDING booking to CONFIRMED/PAID and stamps the
// paid-at time.  It reports whether a row was actually transitioned; a
// false return with nil error means the booking was not in PENDING state,
// which the service layer uses for idempotent confirmation.
func (r *BookingRepo) Confirm(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	const q = `UPDATE bookings
               SET status = 'CONFIRMED', payment_status = 'PAID', paid_at = ?
               WHERE id = ? AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, paidAt.UTC().Format("2006-01-02 15:04:05"), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateLockedUntil pushes out the advisory-hold expiry recorded on a
// PENDING booking.  Like Confirm it is a conditional update: a false
// return with nil error means the booking is no longer PENDING and the
// hold must not be extended.
func (r *BookingRepo) UpdateLockedUntil(ctx context.Context, id string, until time.Time) (bool, error) {
	const q = `UPDATE bookings SET locked_until = ? WHERE id = ? AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, until.UTC().Format("2006-01-02 15:04:05"), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Cancel marks a booking CANCELLED.  When refunded is true the payment
// status moves to REFUNDED as well; otherwise it is left untouched (an
// unpaid booking stays UNPAID).
func (r *BookingRepo) Cancel(ctx context.Context, id string, refunded bool) error {
	query := `UPDATE bookings SET status = 'CANCELLED' WHERE id = ?`
	if refunded {
		query = `UPDATE bookings SET status = 'CANCELLED', payment_status = 'REFUNDED' WHERE id = ?`
	}
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ApplyModification applies seat changes and passenger detail updates to a
// booking in one transaction.  Seat changes are keyed by the current seat
// code; a change whose from-seat does not exist on the booking affects no
// rows and is treated as a conflict by returning ErrBookingNotFound, so
// callers never silently drop part of a modification.
func (r *BookingRepo) ApplyModification(ctx context.Context, id string, seatChanges []model.SeatChange, updates []model.PassengerUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const seatQ = `UPDATE passenger_tickets SET seat_code = ? WHERE booking_id = ? AND seat_code = ?`
	for _, ch := range seatChanges {
		res, err := tx.ExecContext(ctx, seatQ, ch.ToSeat, id, ch.FromSeat)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBookingNotFound
		}
	}

	// MySQL reports zero affected rows for an UPDATE that changes nothing,
	// so passenger updates deliberately skip the rows-affected check.
	const paxQ = `UPDATE passenger_tickets SET full_name = ?, document_id = ?, phone = ? WHERE booking_id = ? AND seat_code = ?`
	for _, up := range updates {
		if _, err := tx.ExecContext(ctx, paxQ, up.FullName, up.DocumentID, up.Phone, id, up.SeatCode); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// UpdateTicketArtifacts stores the generated ticket URL and QR payload on
// the booking row.  Called by the ticket worker after rendering; the
// booking's status is untouched.
func (r *BookingRepo) UpdateTicketArtifacts(ctx context.Context, id, ticketURL, qrCode string) error {
	const q = `UPDATE bookings SET ticket_url = ?, qr_code = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, ticketURL, qrCode, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}
