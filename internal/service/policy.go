// Package service contains the business core of the reservation system:
// the booking transaction coordinator, the booking-reference generator and
// the time-tiered cancellation/modification policy engine.  Stores are
// consumed through narrow interfaces so the core can be exercised against
// fakes in tests.
package service

import (
	"math"
	"time"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
)

// CancellationTier maps a bracket of hours-before-departure to a refund
// percentage and a flat processing fee.  Brackets are half-open [Min, Max)
// and evaluated in order; the first match wins.
type CancellationTier struct {
	Name          string
	MinHours      float64 // inclusive
	MaxHours      float64 // exclusive
	RefundPercent int64
	FlatFee       int64 // VND
}

// cancellationTiers is ordered from most to least generous.  Exactly 48.0
// hours out still earns the full refund; 47.999 falls into Standard.
var cancellationTiers = []CancellationTier{
	{Name: "FULL_REFUND", MinHours: 48, MaxHours: math.Inf(1), RefundPercent: 100, FlatFee: 0},
	{Name: "STANDARD", MinHours: 24, MaxHours: 48, RefundPercent: 80, FlatFee: 5000},
	{Name: "LATE", MinHours: 6, MaxHours: 24, RefundPercent: 50, FlatFee: 10000},
	{Name: "VERY_LATE", MinHours: 2, MaxHours: 6, RefundPercent: 20, FlatFee: 15000},
	{Name: "NO_REFUND", MinHours: 0, MaxHours: 2, RefundPercent: 0, FlatFee: 0},
}

// ModificationTier maps a time bracket to what may still be changed on a
// booking and at what cost.  Fees sum linearly with the number of seat
// changes requested.
type ModificationTier struct {
	Name                 string
	MinHours             float64 // inclusive
	MaxHours             float64 // exclusive
	AllowSeatChange      bool
	AllowPassengerUpdate bool
	BaseFee              int64 // VND
	PerSeatChangeFee     int64 // VND per seat change
}

var modificationTiers = []ModificationTier{
	{Name: "FREE_CHANGE", MinHours: 48, MaxHours: math.Inf(1), AllowSeatChange: true, AllowPassengerUpdate: true, BaseFee: 0, PerSeatChangeFee: 10000},
	{Name: "STANDARD_CHANGE", MinHours: 24, MaxHours: 48, AllowSeatChange: true, AllowPassengerUpdate: true, BaseFee: 10000, PerSeatChangeFee: 10000},
	{Name: "LATE_CHANGE", MinHours: 6, MaxHours: 24, AllowSeatChange: true, AllowPassengerUpdate: true, BaseFee: 20000, PerSeatChangeFee: 15000},
	{Name: "DETAILS_ONLY", MinHours: 2, MaxHours: 6, AllowSeatChange: false, AllowPassengerUpdate: true, BaseFee: 30000, PerSeatChangeFee: 0},
}

// PolicyResult is the outcome of running a cancellation or modification
// request through the policy engine.  Allowed=false is a normal negative
// business result, not an error; Reason carries the human-readable
// explanation in that case.  The refund fields are populated for
// cancellations, the permission flags and ModificationFee for
// modifications.
type PolicyResult struct {
	Allowed bool
	Reason  string
	Tier    string

	RefundPercent int64
	FlatFee       int64
	RefundAmount  int64
	TotalRefund   int64

	AllowSeatChange      bool
	AllowPassengerUpdate bool
	ModificationFee      int64
}

// bookingStateGate checks the booking-status conditions shared by
// cancellation and modification.  It returns a rejection result and true
// when the booking's own state rules the operation out regardless of tier.
func bookingStateGate(b *model.Booking) (PolicyResult, bool) {
	switch b.Status {
	case model.BookingStatusCancelled:
		return PolicyResult{Allowed: false, Reason: "booking is already cancelled"}, true
	case model.BookingStatusCompleted:
		return PolicyResult{Allowed: false, Reason: "trip has already been completed"}, true
	}
	return PolicyResult{}, false
}

// EvaluateCancellation decides whether a booking may be cancelled at the
// given evaluation time and what refund applies.  It is a pure function
// of (booking, departureAt, now): no I/O, no clock reads.  Callers are
// responsible for loading the booking and the trip's departure time.
func EvaluateCancellation(b *model.Booking, departureAt, now time.Time) PolicyResult {
	if res, rejected := bookingStateGate(b); rejected {
		return res
	}
	hours := departureAt.Sub(now).Hours()
	if hours < 0 {
		return PolicyResult{Allowed: false, Reason: "trip has already departed"}
	}
	for _, tier := range cancellationTiers {
		if hours >= tier.MinHours && hours < tier.MaxHours {
			res := PolicyResult{
				Allowed:       true,
				Tier:          tier.Name,
				RefundPercent: tier.RefundPercent,
				FlatFee:       tier.FlatFee,
			}
			// An unpaid booking has nothing to refund regardless of tier.
			if b.PaymentStatus != model.PaymentStatusPaid {
				return res
			}
			// The service fee is not refundable: percentages apply to the
			// ticket subtotal, then the tier's flat fee comes off the top.
			res.RefundAmount = b.Subtotal * tier.RefundPercent / 100
			res.TotalRefund = res.RefundAmount - tier.FlatFee
			if res.TotalRefund < 0 {
				res.TotalRefund = 0
			}
			return res
		}
	}
	// Unreachable while the tiers cover [0, +inf); kept as a guard.
	return PolicyResult{Allowed: false, Reason: "no applicable cancellation tier"}
}

// EvaluateModification decides whether the requested modification is
// permitted at the given evaluation time and what fee applies.  Like
// EvaluateCancellation it is pure; seatChanges and passengerUpdates are
// the counts of each kind of change requested.
func EvaluateModification(b *model.Booking, departureAt, now time.Time, seatChanges, passengerUpdates int) PolicyResult {
	if res, rejected := bookingStateGate(b); rejected {
		return res
	}
	hours := departureAt.Sub(now).Hours()
	if hours < 0 {
		return PolicyResult{Allowed: false, Reason: "trip has already departed"}
	}
	if hours < 2 {
		return PolicyResult{Allowed: false, Reason: "bookings cannot be modified within 2 hours of departure"}
	}
	for _, tier := range modificationTiers {
		if hours >= tier.MinHours && hours < tier.MaxHours {
			if seatChanges > 0 && !tier.AllowSeatChange {
				return PolicyResult{
					Allowed:              false,
					Reason:               "seat changes are not allowed this close to departure",
					Tier:                 tier.Name,
					AllowSeatChange:      false,
					AllowPassengerUpdate: tier.AllowPassengerUpdate,
				}
			}
			if passengerUpdates > 0 && !tier.AllowPassengerUpdate {
				return PolicyResult{
					Allowed:         false,
					Reason:          "passenger updates are not allowed this close to departure",
					Tier:            tier.Name,
					AllowSeatChange: tier.AllowSeatChange,
				}
			}
			return PolicyResult{
				Allowed:              true,
				Tier:                 tier.Name,
				AllowSeatChange:      tier.AllowSeatChange,
				AllowPassengerUpdate: tier.AllowPassengerUpdate,
				ModificationFee:      tier.BaseFee + tier.PerSeatChangeFee*int64(seatChanges),
			}
		}
	}
	return PolicyResult{Allowed: false, Reason: "no applicable modification tier"}
}
