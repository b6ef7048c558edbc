package model

import "time"

// Trip is a scheduled bus departure.  The reservation core only reads
// trips; route management belongs to the operator tooling and is out of
// scope here.
//
// Fields:
//  ID          – primary key identifier.
//  RouteFrom   – origin city/terminal name.
//  RouteTo     – destination city/terminal name.
//  DepartureAt – scheduled departure time in UTC; the policy engine's
//                time tiers are measured against this instant.
//  SeatPrice   – base price per seat in VND.
type Trip struct {
	ID          uint64    // trips.id
	RouteFrom   string    // trips.route_from
	RouteTo     string    // trips.route_to
	DepartureAt time.Time // trips.departure_at
	SeatPrice   int64     // trips.seat_price
}
