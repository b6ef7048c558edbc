package service

import (
	"testing"
	"time"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
)

// paidBooking returns a confirmed, paid booking with the end-to-end
// scenario's figures: 200000 total, 5% fee, 190000 subtotal.
func paidBooking() *model.Booking {
	return &model.Booking{
		ID:            "b-1",
		Subtotal:      190000,
		ServiceFee:    10000,
		TotalPrice:    200000,
		Status:        model.BookingStatusConfirmed,
		PaymentStatus: model.PaymentStatusPaid,
	}
}

func hoursBefore(departure time.Time, h float64) time.Time {
	return departure.Add(-time.Duration(h * float64(time.Hour)))
}

func TestCancellationTierBoundaries(t *testing.T) {
	departure := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		hours   float64
		tier    string
		percent int64
		flatFee int64
	}{
		{"exactly 48h is full refund", 48.0, "FULL_REFUND", 100, 0},
		{"just under 48h is standard", 47.999, "STANDARD", 80, 5000},
		{"30h is standard", 30, "STANDARD", 80, 5000},
		{"exactly 24h is standard", 24.0, "STANDARD", 80, 5000},
		{"12h is late", 12, "LATE", 50, 10000},
		{"exactly 2h is very late", 2.0, "VERY_LATE", 20, 15000},
		{"just under 2h is no refund", 1.999, "NO_REFUND", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := EvaluateCancellation(paidBooking(), departure, hoursBefore(departure, tc.hours))
			if !res.Allowed {
				t.Fatalf("expected cancellation allowed, got rejection: %s", res.Reason)
			}
			if res.Tier != tc.tier {
				t.Fatalf("tier mismatch: got %s want %s", res.Tier, tc.tier)
			}
			if res.RefundPercent != tc.percent || res.FlatFee != tc.flatFee {
				t.Fatalf("tier terms mismatch: got %d%%/%d want %d%%/%d",
					res.RefundPercent, res.FlatFee, tc.percent, tc.flatFee)
			}
		})
	}
}

func TestCancellationRefundAmounts(t *testing.T) {
	departure := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	// 30 hours out: 190000 * 80% - 5000 = 147000.
	res := EvaluateCancellation(paidBooking(), departure, hoursBefore(departure, 30))
	if res.RefundAmount != 152000 {
		t.Fatalf("refund amount: got %d want 152000", res.RefundAmount)
	}
	if res.TotalRefund != 147000 {
		t.Fatalf("total refund: got %d want 147000", res.TotalRefund)
	}

	// 72 hours out: full subtotal back, no fee.
	res = EvaluateCancellation(paidBooking(), departure, hoursBefore(departure, 72))
	if res.TotalRefund != 190000 {
		t.Fatalf("full refund: got %d want 190000", res.TotalRefund)
	}

	// 1 hour out: allowed but nothing back.
	res = EvaluateCancellation(paidBooking(), departure, hoursBefore(departure, 1))
	if !res.Allowed || res.TotalRefund != 0 {
		t.Fatalf("no-refund tier: allowed=%v refund=%d", res.Allowed, res.TotalRefund)
	}
}

func TestCancellationFlatFeeNeverGoesNegative(t *testing.T) {
	departure := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	b := paidBooking()
	b.Subtotal = 10000 // 20% of 10000 = 2000, below the 15000 flat fee
	res := EvaluateCancellation(b, departure, hoursBefore(departure, 3))
	if res.TotalRefund != 0 {
		t.Fatalf("refund should clamp at zero, got %d", res.TotalRefund)
	}
}

func TestCancellationUnpaidYieldsNoRefund(t *testing.T) {
	departure := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	b := paidBooking()
	b.Status = model.BookingStatusPending
	b.PaymentStatus = model.PaymentStatusUnpaid
	res := EvaluateCancellation(b, departure, hoursBefore(departure, 72))
	if !res.Allowed {
		t.Fatalf("unpaid booking should still be cancellable: %s", res.Reason)
	}
	if res.TotalRefund != 0 || res.RefundAmount != 0 {
		t.Fatalf("unpaid booking must refund nothing, got %d/%d", res.RefundAmount, res.TotalRefund)
	}
}

func TestCancellationStateGates(t *testing.T) {
	departure := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	now := hoursBefore(departure, 72)

	b := paidBooking()
	b.Status = model.BookingStatusCancelled
	if res := EvaluateCancellation(b, departure, now); res.Allowed {
		t.Fatal("cancelled booking must not be cancellable again")
	}

	b = paidBooking()
	b.Status = model.BookingStatusCompleted
	if res := EvaluateCancellation(b, departure, now); res.Allowed {
		t.Fatal("completed booking must not be cancellable")
	}

	// Departed trip: rejected outright regardless of tier.
	if res := EvaluateCancellation(paidBooking(), departure, departure.Add(time.Minute)); res.Allowed {
		t.Fatal("departed trip must reject cancellation")
	}
}

func TestModificationTiers(t *testing.T) {
	departure := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	// 72h out: free base, 10000 per seat change.
	res := EvaluateModification(paidBooking(), departure, hoursBefore(departure, 72), 2, 0)
	if !res.Allowed || !res.AllowSeatChange || !res.AllowPassengerUpdate {
		t.Fatalf("72h modification should be fully allowed: %+v", res)
	}
	if res.ModificationFee != 20000 {
		t.Fatalf("fee: got %d want 20000", res.ModificationFee)
	}

	// 30h out: base 10000 plus 10000 per seat.
	res = EvaluateModification(paidBooking(), departure, hoursBefore(departure, 30), 1, 1)
	if !res.Allowed || res.ModificationFee != 20000 {
		t.Fatalf("30h fee: allowed=%v fee=%d", res.Allowed, res.ModificationFee)
	}

	// 4h out: passenger details only; seat changes rejected.
	res = EvaluateModification(paidBooking(), departure, hoursBefore(departure, 4), 1, 0)
	if res.Allowed {
		t.Fatal("seat change at 4h must be rejected")
	}
	res = EvaluateModification(paidBooking(), departure, hoursBefore(departure, 4), 0, 1)
	if !res.Allowed || res.ModificationFee != 30000 {
		t.Fatalf("4h passenger update: allowed=%v fee=%d", res.Allowed, res.ModificationFee)
	}

	// Under 2h: rejected outright.
	res = EvaluateModification(paidBooking(), departure, hoursBefore(departure, 1.5), 0, 1)
	if res.Allowed {
		t.Fatal("modification under 2h must be rejected")
	}

	// Departed: rejected outright.
	res = EvaluateModification(paidBooking(), departure, departure.Add(time.Minute), 0, 1)
	if res.Allowed {
		t.Fatal("modification after departure must be rejected")
	}
}
