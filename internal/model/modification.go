package model

// SeatChange swaps one passenger ticket from its current seat to a new
// one on the same trip.
type SeatChange struct {
	FromSeat string
	ToSeat   string
}

// PassengerUpdate rewrites the traveller details on a passenger ticket,
// addressed by its current seat code.
type PassengerUpdate struct {
	SeatCode   string
	FullName   string
	DocumentID string
	Phone      string
}

// Modification bundles the changes requested against an existing booking.
// Either list may be empty; an entirely empty modification is rejected by
// validation before it reaches the policy gate.
type Modification struct {
	SeatChanges      []SeatChange
	PassengerUpdates []PassengerUpdate
}
