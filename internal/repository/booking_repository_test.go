package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
)

func newMockRepo(t *testing.T) (*BookingRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewBookingRepo(db), mock, func() { db.Close() }
}

func TestOccupiedSeatsFiltersByRequestedSeats(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	rows := sqlmock.NewRows([]string{"seat_code"}).AddRow("A2")
	mock.ExpectQuery("SELECT pt.seat_code").
		WithArgs(uint64(7), "A1", "A2").
		WillReturnRows(rows)

	occupied, err := repo.OccupiedSeats(context.Background(), 7, []string{"A1", "A2"})
	if err != nil {
		t.Fatalf("occupied seats: %v", err)
	}
	if len(occupied) != 1 || occupied[0] != "A2" {
		t.Fatalf("occupied: %v", occupied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOccupiedSeatsWholeTrip(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	rows := sqlmock.NewRows([]string{"seat_code"}).AddRow("A1").AddRow("B3")
	mock.ExpectQuery("SELECT pt.seat_code").WithArgs(uint64(7)).WillReturnRows(rows)

	occupied, err := repo.OccupiedSeats(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("occupied seats: %v", err)
	}
	if len(occupied) != 2 {
		t.Fatalf("occupied: %v", occupied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReferenceExists(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery("SELECT 1 FROM bookings WHERE reference").
		WithArgs("BK20250608001").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM bookings WHERE reference").
		WithArgs("BK20250608999").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err := repo.ReferenceExists(context.Background(), "BK20250608001")
	if err != nil || !exists {
		t.Fatalf("existing reference: exists=%v err=%v", exists, err)
	}
	exists, err = repo.ReferenceExists(context.Background(), "BK20250608999")
	if err != nil || exists {
		t.Fatalf("unknown reference: exists=%v err=%v", exists, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func sampleBooking() *model.Booking {
	return &model.Booking{
		ID:            "6f1d2a34-0000-0000-0000-000000000001",
		Reference:     "BK20250608001",
		TripID:        7,
		ContactEmail:  "a@example.com",
		ContactPhone:  "0901234567",
		Subtotal:      190000,
		ServiceFee:    10000,
		TotalPrice:    200000,
		PaymentMethod: "momo",
		Status:        model.BookingStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		LockedUntil:   time.Date(2025, 6, 8, 10, 10, 0, 0, time.UTC),
		Passengers: []model.PassengerTicket{
			{FullName: "Nguyen Van A", DocumentID: "012345678901", SeatCode: "A1", Price: 95000},
			{FullName: "Tran Thi B", DocumentID: "098765432109", SeatCode: "A2", Price: 95000},
		},
	}
}

func TestCreateWritesBookingAndTicketsInOneTransaction(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	b := sampleBooking()
	created := time.Date(2025, 6, 8, 10, 0, 1, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(b.ID, b.Reference, b.TripID, nil, b.ContactEmail, b.ContactPhone,
			b.Subtotal, b.ServiceFee, b.TotalPrice, b.PaymentMethod, b.Status, b.PaymentStatus,
			"2025-06-08 10:10:00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO passenger_tickets").
		WithArgs(b.ID, "Nguyen Van A", "012345678901", "", "A1", int64(95000),
			b.ID, "Tran Thi B", "098765432109", "", "A2", int64(95000)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT created_at, updated_at FROM bookings").
		WithArgs(b.ID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !b.CreatedAt.Equal(created) {
		t.Fatalf("created_at not read back: %v", b.CreatedAt)
	}
	if b.Passengers[0].BookingID != b.ID {
		t.Fatal("passenger rows must carry the booking id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateRollsBackOnTicketInsertFailure(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	b := sampleBooking()
	boom := errors.New("Duplicate entry 'A1' for key 'uniq_trip_seat'")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO passenger_tickets").WillReturnError(boom)
	mock.ExpectRollback()

	if err := repo.Create(context.Background(), b); !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConfirmReportsTransition(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	paidAt := time.Date(2025, 6, 8, 10, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE bookings").
		WithArgs("2025-06-08 10:05:00", "b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bookings").
		WithArgs("2025-06-08 10:05:00", "b-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	transitioned, err := repo.Confirm(context.Background(), "b-1", paidAt)
	if err != nil || !transitioned {
		t.Fatalf("first confirm: transitioned=%v err=%v", transitioned, err)
	}

	// Second run: the row is no longer PENDING, no transition.
	transitioned, err = repo.Confirm(context.Background(), "b-1", paidAt)
	if err != nil || transitioned {
		t.Fatalf("repeat confirm: transitioned=%v err=%v", transitioned, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateLockedUntilOnlyWhilePending(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	until := time.Date(2025, 6, 8, 10, 15, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE bookings SET locked_until").
		WithArgs("2025-06-08 10:15:00", "b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bookings SET locked_until").
		WithArgs("2025-06-08 10:15:00", "b-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	extended, err := repo.UpdateLockedUntil(context.Background(), "b-1", until)
	if err != nil || !extended {
		t.Fatalf("pending booking: extended=%v err=%v", extended, err)
	}

	// The booking has since been confirmed or cancelled: no extension.
	extended, err = repo.UpdateLockedUntil(context.Background(), "b-1", until)
	if err != nil || extended {
		t.Fatalf("non-pending booking: extended=%v err=%v", extended, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCancelRefundedSetsPaymentStatus(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec("UPDATE bookings SET status = 'CANCELLED', payment_status = 'REFUNDED'").
		WithArgs("b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Cancel(context.Background(), "b-1", true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCancelUnknownBooking(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec("UPDATE bookings SET status = 'CANCELLED'").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Cancel(context.Background(), "nope", false); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestApplyModificationSeatChangeMustMatchARow(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE passenger_tickets SET seat_code").
		WithArgs("B5", "b-1", "C9").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyModification(context.Background(), "b-1",
		[]model.SeatChange{{FromSeat: "C9", ToSeat: "B5"}}, nil)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyModificationCommitsSeatAndPassengerUpdates(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE passenger_tickets SET seat_code").
		WithArgs("B5", "b-1", "A2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE passenger_tickets SET full_name").
		WithArgs("Nguyen Van An", "012345678901", "0907654321", "b-1", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyModification(context.Background(), "b-1",
		[]model.SeatChange{{FromSeat: "A2", ToSeat: "B5"}},
		[]model.PassengerUpdate{{SeatCode: "A1", FullName: "Nguyen Van An", DocumentID: "012345678901", Phone: "0907654321"}})
	if err != nil {
		t.Fatalf("apply modification: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}
