package model

import "time"

// Booking status values.  A booking starts life as PENDING and moves to
// CONFIRMED once payment is acknowledged.  CANCELLED is reached only
// through the cancellation policy gate.  COMPLETED is stamped by the
// trip-lifecycle process after departure and is never set by this service.
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
	BookingStatusCompleted = "COMPLETED"
)

// Payment status values for a booking.
const (
	PaymentStatusUnpaid   = "UNPAID"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
	PaymentStatusFailed   = "FAILED"
)

// Booking is the durable system of record for a purchase.  It aggregates
// one or more passenger tickets bought in a single transaction and tracks
// payment state, the human-facing reference and the soft seat-hold expiry.
//
// Fields:
//  ID            – server-generated opaque identifier (UUID).
//  Reference     – human-readable booking reference (PREFIX+YYYYMMDD+NNN).
//  TripID        – trip being booked.
//  UserID        – owning user; nil for guest bookings.
//  ContactEmail  – contact email for guest and registered bookings alike.
//  ContactPhone  – contact phone number.
//  Subtotal      – ticket price total before the service fee, in VND.
//  ServiceFee    – percentage-based service fee, in VND.
//  TotalPrice    – amount charged to the customer, in VND.
//  PaymentMethod – payment channel chosen at checkout.
//  Status        – booking lifecycle state.
//  PaymentStatus – payment lifecycle state.
//  LockedUntil   – when the advisory seat hold backing this booking expires.
//  PaidAt        – when payment was confirmed (nil while unpaid).
//  TicketURL     – location of the generated ticket artifact (nil until the
//                  ticket pipeline has run).
//  QRCode        – check-in QR payload (nil until generated).
type Booking struct {
	ID            string     // bookings.id
	Reference     string     // bookings.reference
	TripID        uint64     // bookings.trip_id
	UserID        *uint64    // bookings.user_id (nullable)
	ContactEmail  string     // bookings.contact_email
	ContactPhone  string     // bookings.contact_phone
	Subtotal      int64      // bookings.subtotal
	ServiceFee    int64      // bookings.service_fee
	TotalPrice    int64      // bookings.total_price
	PaymentMethod string     // bookings.payment_method
	Status        string     // bookings.status
	PaymentStatus string     // bookings.payment_status
	LockedUntil   time.Time  // bookings.locked_until
	PaidAt        *time.Time // bookings.paid_at (nullable)
	TicketURL     *string    // bookings.ticket_url (nullable)
	QRCode        *string    // bookings.qr_code (nullable)
	CreatedAt     time.Time  // bookings.created_at
	UpdatedAt     time.Time  // bookings.updated_at

	Passengers []PassengerTicket // passenger_tickets rows owned by this booking
}

// SeatCodes returns the seat codes covered by this booking's passenger
// tickets, in passenger order.
func (b *Booking) SeatCodes() []string {
	codes := make([]string, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		codes = append(codes, p.SeatCode)
	}
	return codes
}

// PassengerTicket is a single traveller's seat on a trip.  Rows are
// inserted together with their owning Booking in one transaction.
type PassengerTicket struct {
	ID         uint64    // passenger_tickets.id
	BookingID  string    // passenger_tickets.booking_id
	FullName   string    // passenger_tickets.full_name
	DocumentID string    // passenger_tickets.document_id
	Phone      string    // passenger_tickets.phone
	SeatCode   string    // passenger_tickets.seat_code
	Price      int64     // passenger_tickets.price (VND)
	CreatedAt  time.Time // passenger_tickets.created_at
}
