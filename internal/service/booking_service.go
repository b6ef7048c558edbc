package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
	"github.com/vietbus/bus-ticket-reservation/internal/queue"
)

// SeatLockStore is the expiring advisory lock layer over (trip, seat)
// pairs.  Implemented by repository.SeatLockRepo over Redis.
type SeatLockStore interface {
	Acquire(ctx context.Context, tripID uint64, seatCodes []string, holder string, ttl time.Duration) (acquired []string, held map[string]string, err error)
	IsLocked(ctx context.Context, tripID uint64, seatCodes []string) (map[string]bool, error)
	Release(ctx context.Context, tripID uint64, seatCodes []string) error
	Refresh(ctx context.Context, tripID uint64, seatCodes []string, ttl time.Duration) error
	LockedSeats(ctx context.Context, tripID uint64) ([]string, error)
}

// BookingStore is the durable system of record for bookings.  Implemented
// by repository.BookingRepo over MySQL.
type BookingStore interface {
	OccupiedSeats(ctx context.Context, tripID uint64, seatCodes []string) ([]string, error)
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetByReference(ctx context.Context, reference string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	Confirm(ctx context.Context, id string, paidAt time.Time) (bool, error)
	UpdateLockedUntil(ctx context.Context, id string, until time.Time) (bool, error)
	Cancel(ctx context.Context, id string, refunded bool) error
	ApplyModification(ctx context.Context, id string, seatChanges []model.SeatChange, updates []model.PassengerUpdate) error
}

// TripStore resolves trips; implemented by repository.TripRepo.
type TripStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Trip, error)
}

// ReferenceSource produces unique booking references.
type ReferenceSource interface {
	Generate(ctx context.Context) (string, error)
}

// TicketDispatcher submits ticket generation work to the downstream
// pipeline.  Implemented by queue.Publisher; a nil dispatcher disables
// ticket generation (useful in tests).
type TicketDispatcher interface {
	PublishTicketGenerate(ctx context.Context, ev queue.TicketGenerateEvent) error
}

// PassengerInput is one traveller in a booking request.
type PassengerInput struct {
	FullName   string
	DocumentID string
	Phone      string
	SeatCode   string
}

// CreateBookingInput carries everything needed to create a booking.
// UserID is nil for guest checkouts; guests and registered users follow
// the identical locking and reference path.
type CreateBookingInput struct {
	TripID        uint64
	UserID        *uint64
	Passengers    []PassengerInput
	TotalPrice    int64 // VND, as quoted to the customer
	ContactEmail  string
	ContactPhone  string
	PaymentMethod string
}

// BookingService is the only component allowed to create bookings.  It
// composes the durable availability read, the advisory seat locks, the
// reference generator and the durable write into one logical operation
// with compensating lock release on every failure path: a lock must never
// outlive a failed durable write, and callers are never left responsible
// for cleaning up a partially acquired lock set.
type BookingService struct {
	bookings   BookingStore
	trips      TripStore
	locks      SeatLockStore
	refs       ReferenceSource
	tickets    TicketDispatcher
	holdTTL    time.Duration
	feePercent int64
	now        func() time.Time
}

// NewBookingService wires the coordinator.  holdTTL is the advisory seat
// hold window (600 seconds unless configured otherwise); feePercent is the
// service fee charged on top of the ticket subtotal.
func NewBookingService(bookings BookingStore, trips TripStore, locks SeatLockStore, refs ReferenceSource, tickets TicketDispatcher, holdTTL time.Duration, feePercent int64) *BookingService {
	if bookings == nil || trips == nil || locks == nil || refs == nil {
		panic("nil store passed to NewBookingService")
	}
	return &BookingService{
		bookings:   bookings,
		trips:      trips,
		locks:      locks,
		refs:       refs,
		tickets:    tickets,
		holdTTL:    holdTTL,
		feePercent: feePercent,
		now:        time.Now,
	}
}

// CreateBooking runs the booking creation protocol.  A successful return
// means the seats were free, are now held for the hold TTL, and the
// booking is durably recorded as PENDING/UNPAID.  On any failure no
// residual lock remains from this call.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	trip, err := s.trips.GetByID(ctx, in.TripID)
	if err != nil {
		return nil, err
	}

	seats := make([]string, 0, len(in.Passengers))
	seen := make(map[string]struct{}, len(in.Passengers))
	for _, p := range in.Passengers {
		if _, dup := seen[p.SeatCode]; dup {
			return nil, ErrDuplicateSeats
		}
		seen[p.SeatCode] = struct{}{}
		seats = append(seats, p.SeatCode)
	}

	// Step 1: durable availability is authoritative.
	occupied, err := s.bookings.OccupiedSeats(ctx, in.TripID, seats)
	if err != nil {
		return nil, err
	}
	if len(occupied) > 0 {
		return nil, &SeatsAlreadyBookedError{Seats: occupied}
	}

	// Step 2: advisory pre-check.  Purely a latency optimization — a seat
	// can become locked between this check and the acquire below, and the
	// acquire's own failure path is what actually decides.
	lockedMap, err := s.locks.IsLocked(ctx, in.TripID, seats)
	if err != nil {
		return nil, err
	}
	var locked []string
	for _, code := range seats {
		if lockedMap[code] {
			locked = append(locked, code)
		}
	}
	if len(locked) > 0 {
		return nil, &SeatsLockedError{Seats: locked}
	}

	// Step 3: acquire the whole batch; on any conflict release what this
	// call did manage to lock before reporting failure.
	holder := uuid.NewString()
	acquired, held, err := s.locks.Acquire(ctx, in.TripID, seats, holder, s.holdTTL)
	if err != nil {
		s.releaseLocks(in.TripID, acquired)
		return nil, err
	}
	if len(held) > 0 {
		s.releaseLocks(in.TripID, acquired)
		conflict := make([]string, 0, len(held))
		for _, code := range seats {
			if _, ok := held[code]; ok {
				conflict = append(conflict, code)
			}
		}
		return nil, &SeatsLockedError{Seats: conflict}
	}

	// Step 4: fee split.  The quoted total includes the service fee.
	serviceFee := in.TotalPrice * s.feePercent / 100
	subtotal := in.TotalPrice - serviceFee

	// Step 5: booking reference.
	reference, err := s.refs.Generate(ctx)
	if err != nil {
		s.releaseLocks(in.TripID, seats)
		return nil, err
	}

	// Step 6: single durable transaction for the booking and its tickets.
	now := s.now().UTC()
	booking := &model.Booking{
		ID:            uuid.NewString(),
		Reference:     reference,
		TripID:        in.TripID,
		UserID:        in.UserID,
		ContactEmail:  in.ContactEmail,
		ContactPhone:  in.ContactPhone,
		Subtotal:      subtotal,
		ServiceFee:    serviceFee,
		TotalPrice:    in.TotalPrice,
		PaymentMethod: in.PaymentMethod,
		Status:        model.BookingStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		LockedUntil:   now.Add(s.holdTTL),
	}
	for _, p := range in.Passengers {
		booking.Passengers = append(booking.Passengers, model.PassengerTicket{
			FullName:   p.FullName,
			DocumentID: p.DocumentID,
			Phone:      p.Phone,
			SeatCode:   p.SeatCode,
			Price:      trip.SeatPrice,
		})
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		s.releaseLocks(in.TripID, seats)
		return nil, fmt.Errorf("persist booking: %w", err)
	}
	return booking, nil
}

// releaseLocks is the compensating action shared by every failure path.
// Release failures are logged, not propagated: the locks self-expire at
// their TTL, and the original error is the one the caller needs.
func (s *BookingService) releaseLocks(tripID uint64, seats []string) {
	if len(seats) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locks.Release(ctx, tripID, seats); err != nil {
		log.Printf("booking: compensating lock release failed for trip %d seats %v: %v", tripID, seats, err)
	}
}

// ConfirmBooking transitions a booking to CONFIRMED/PAID and triggers
// ticket generation without awaiting it.  Confirming an already-confirmed
// booking is a no-op success because the upstream payment notifier may
// retry its webhook.  Ticket pipeline failures are logged and never
// surface to the caller: the durable confirmation is the source of truth
// and artifacts can be regenerated later.
func (s *BookingService) ConfirmBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case model.BookingStatusConfirmed:
		return b, nil
	case model.BookingStatusCancelled:
		return nil, &PolicyRejectionError{Reason: "booking is cancelled"}
	case model.BookingStatusCompleted:
		return nil, &PolicyRejectionError{Reason: "trip has already been completed"}
	}

	transitioned, err := s.bookings.Confirm(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	b, err = s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// The conditional update matched no row: the booking left PENDING
		// between our read and the update.  A rival confirmation is still
		// an idempotent success; any other state must be reported, or a
		// cancelled booking would be confirmed back to the payment
		// notifier.
		switch b.Status {
		case model.BookingStatusConfirmed:
			return b, nil
		case model.BookingStatusCancelled:
			return nil, &PolicyRejectionError{Reason: "booking is cancelled"}
		case model.BookingStatusCompleted:
			return nil, &PolicyRejectionError{Reason: "trip has already been completed"}
		}
		return nil, &PolicyRejectionError{Reason: "booking is no longer pending"}
	}
	s.dispatchTicket(b)
	return b, nil
}

// dispatchTicket fires the ticket generation event for a just-confirmed
// booking.  It runs detached from the request lifecycle with its own
// timeout; the publisher's durable queue carries the retry burden from
// there.
func (s *BookingService) dispatchTicket(b *model.Booking) {
	if s.tickets == nil {
		return
	}
	ev := queue.TicketGenerateEvent{
		BookingID:  b.ID,
		Reference:  b.Reference,
		TripID:     b.TripID,
		TotalPrice: b.TotalPrice,
	}
	if b.PaidAt != nil {
		ev.ConfirmedAt = b.PaidAt.UTC().Format(time.RFC3339)
	}
	if trip, err := s.trips.GetByID(context.Background(), b.TripID); err == nil {
		ev.RouteFrom = trip.RouteFrom
		ev.RouteTo = trip.RouteTo
		ev.DepartureAt = trip.DepartureAt.Format(time.RFC3339)
	}
	for _, p := range b.Passengers {
		ev.Passengers = append(ev.Passengers, queue.TicketPassenger{FullName: p.FullName, SeatCode: p.SeatCode})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.tickets.PublishTicketGenerate(ctx, ev); err != nil {
			log.Printf("booking: ticket generation dispatch failed for %s: %v", b.ID, err)
		}
	}()
}

// GetBooking returns a booking by opaque id.
func (s *BookingService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// GetBookingByReference returns a booking by its human-readable reference.
func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return s.bookings.GetByReference(ctx, reference)
}

// ListBookings returns a registered user's bookings, newest first.
func (s *BookingService) ListBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, userID)
}

// SeatAvailability returns the trip's durably booked seats and the seats
// currently held by advisory locks (excluding booked ones).  The locked
// list is a snapshot and may be stale by the time the client renders it;
// the booking protocol re-checks everything.
func (s *BookingService) SeatAvailability(ctx context.Context, tripID uint64) (booked, locked []string, err error) {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, nil, err
	}
	booked, err = s.bookings.OccupiedSeats(ctx, tripID, nil)
	if err != nil {
		return nil, nil, err
	}
	all, err := s.locks.LockedSeats(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	bookedSet := make(map[string]struct{}, len(booked))
	for _, code := range booked {
		bookedSet[code] = struct{}{}
	}
	for _, code := range all {
		if _, ok := bookedSet[code]; !ok {
			locked = append(locked, code)
		}
	}
	return booked, locked, nil
}

// ReleaseSeats abandons a checkout's advisory holds.  Release is
// unconditional: locks self-expire anyway, so an over-eager release can
// at worst force another availability round-trip.
func (s *BookingService) ReleaseSeats(ctx context.Context, tripID uint64, seats []string) error {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return err
	}
	return s.locks.Release(ctx, tripID, seats)
}

// ExtendHold renews a pending booking's advisory seat locks for another
// full hold window, keeping the seats reserved while the customer is
// still inside a slow payment flow.  Only PENDING bookings qualify: once
// confirmed the durable rows own the seats, and a cancelled booking's
// seats must become contestable again.  The durable locked_until is
// updated with the same conditional idiom as confirmation, so a rival
// transition between the read and the update is reported, not papered
// over.
func (s *BookingService) ExtendHold(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusPending {
		return nil, &PolicyRejectionError{Reason: "only a pending booking can extend its seat hold"}
	}
	if err := s.locks.Refresh(ctx, b.TripID, b.SeatCodes(), s.holdTTL); err != nil {
		return nil, err
	}
	until := s.now().UTC().Add(s.holdTTL)
	extended, err := s.bookings.UpdateLockedUntil(ctx, id, until)
	if err != nil {
		return nil, err
	}
	if !extended {
		return nil, &PolicyRejectionError{Reason: "booking is no longer pending"}
	}
	return s.bookings.GetByID(ctx, id)
}

// CancellationPreview evaluates the cancellation policy for a booking at
// the given time without changing anything.
func (s *BookingService) CancellationPreview(ctx context.Context, id string, now time.Time) (PolicyResult, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return PolicyResult{}, err
	}
	trip, err := s.trips.GetByID(ctx, b.TripID)
	if err != nil {
		return PolicyResult{}, err
	}
	return EvaluateCancellation(b, trip.DepartureAt, now), nil
}

// CancelBooking cancels a booking through the policy gate.  On success
// the booking is CANCELLED (and REFUNDED when a paid refund applies) and
// its advisory seat locks are released so the seats become lockable
// again.  A disallowed cancellation returns PolicyRejectionError together
// with the evaluated result so callers can surface the reason.
func (s *BookingService) CancelBooking(ctx context.Context, id string, now time.Time) (*model.Booking, PolicyResult, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, PolicyResult{}, err
	}
	trip, err := s.trips.GetByID(ctx, b.TripID)
	if err != nil {
		return nil, PolicyResult{}, err
	}
	res := EvaluateCancellation(b, trip.DepartureAt, now)
	if !res.Allowed {
		return nil, res, &PolicyRejectionError{Reason: res.Reason}
	}
	refunded := b.PaymentStatus == model.PaymentStatusPaid && res.TotalRefund > 0
	if err := s.bookings.Cancel(ctx, id, refunded); err != nil {
		return nil, res, err
	}
	s.releaseLocks(b.TripID, b.SeatCodes())
	b, err = s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, res, err
	}
	return b, res, nil
}

// ModificationPreview evaluates the modification policy for a requested
// change set without applying it.
func (s *BookingService) ModificationPreview(ctx context.Context, id string, mods model.Modification, now time.Time) (PolicyResult, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return PolicyResult{}, err
	}
	trip, err := s.trips.GetByID(ctx, b.TripID)
	if err != nil {
		return PolicyResult{}, err
	}
	return EvaluateModification(b, trip.DepartureAt, now, len(mods.SeatChanges), len(mods.PassengerUpdates)), nil
}

// ModifyBooking applies seat changes and passenger updates through the
// policy gate.  New seats go through the same availability check and
// advisory locking as booking creation; once the durable update commits,
// the freshly acquired locks and the vacated seats' locks are released —
// the durable rows are authoritative for the new seats from that point.
func (s *BookingService) ModifyBooking(ctx context.Context, id string, mods model.Modification, now time.Time) (*model.Booking, PolicyResult, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, PolicyResult{}, err
	}
	trip, err := s.trips.GetByID(ctx, b.TripID)
	if err != nil {
		return nil, PolicyResult{}, err
	}
	res := EvaluateModification(b, trip.DepartureAt, now, len(mods.SeatChanges), len(mods.PassengerUpdates))
	if !res.Allowed {
		return nil, res, &PolicyRejectionError{Reason: res.Reason}
	}

	var newSeats, oldSeats []string
	if len(mods.SeatChanges) > 0 {
		current := make(map[string]struct{}, len(b.Passengers))
		for _, p := range b.Passengers {
			current[p.SeatCode] = struct{}{}
		}
		targets := make(map[string]struct{}, len(mods.SeatChanges))
		for _, ch := range mods.SeatChanges {
			if _, ok := current[ch.FromSeat]; !ok {
				return nil, res, &PolicyRejectionError{Reason: fmt.Sprintf("seat %s is not part of this booking", ch.FromSeat)}
			}
			if _, dup := targets[ch.ToSeat]; dup {
				return nil, res, ErrDuplicateSeats
			}
			if _, taken := current[ch.ToSeat]; taken {
				return nil, res, &PolicyRejectionError{Reason: fmt.Sprintf("seat %s already belongs to this booking", ch.ToSeat)}
			}
			targets[ch.ToSeat] = struct{}{}
			newSeats = append(newSeats, ch.ToSeat)
			oldSeats = append(oldSeats, ch.FromSeat)
		}

		occupied, err := s.bookings.OccupiedSeats(ctx, b.TripID, newSeats)
		if err != nil {
			return nil, res, err
		}
		if len(occupied) > 0 {
			return nil, res, &SeatsAlreadyBookedError{Seats: occupied}
		}
		holder := uuid.NewString()
		acquired, held, err := s.locks.Acquire(ctx, b.TripID, newSeats, holder, s.holdTTL)
		if err != nil {
			s.releaseLocks(b.TripID, acquired)
			return nil, res, err
		}
		if len(held) > 0 {
			s.releaseLocks(b.TripID, acquired)
			conflict := make([]string, 0, len(held))
			for _, code := range newSeats {
				if _, ok := held[code]; ok {
					conflict = append(conflict, code)
				}
			}
			return nil, res, &SeatsLockedError{Seats: conflict}
		}
	}

	if err := s.bookings.ApplyModification(ctx, id, mods.SeatChanges, mods.PassengerUpdates); err != nil {
		s.releaseLocks(b.TripID, newSeats)
		return nil, res, fmt.Errorf("persist modification: %w", err)
	}
	s.releaseLocks(b.TripID, newSeats)
	s.releaseLocks(b.TripID, oldSeats)

	b, err = s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, res, err
	}
	return b, res, nil
}
