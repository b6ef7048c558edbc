// Package queue defines the messages exchanged over the broker and the
// background worker that turns confirmed bookings into ticket artifacts.
package queue

// TicketQueueName is the durable queue carrying ticket generation requests.
const TicketQueueName = "ticket.generate"

// TicketPassenger is the slice of passenger data the ticket renderer needs.
type TicketPassenger struct {
	FullName string `json:"full_name"`
	SeatCode string `json:"seat_code"`
}

// TicketGenerateEvent is published fire-and-forget when a booking is
// confirmed.  It carries enough information for the ticket worker to
// render the artifact without querying the primary database for trip or
// passenger details; only the artifact write-back touches the booking row.
type TicketGenerateEvent struct {
	BookingID   string            `json:"booking_id"`
	Reference   string            `json:"reference"`
	TripID      uint64            `json:"trip_id"`
	RouteFrom   string            `json:"route_from"`
	RouteTo     string            `json:"route_to"`
	DepartureAt string            `json:"departure_at"`
	Passengers  []TicketPassenger `json:"passengers"`
	TotalPrice  int64             `json:"total_price"`
	ConfirmedAt string            `json:"confirmed_at"`
}
