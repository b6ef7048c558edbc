package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework handles routing

	"github.com/vietbus/bus-ticket-reservation/internal/handler"
	"github.com/vietbus/bus-ticket-reservation/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication or
// identity extraction.  Currently it exposes only a health check used by
// load balancers and monitoring.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterBooking wires the reservation core's endpoints.  All booking
// routes run behind the optional-identity middleware so registered users
// are recognized while guests pass through untouched; only the personal
// booking list additionally requires a user.  The token-bucket rate
// limiter guards the checkout hot path.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.OptionalIdentity(jwtSecret))

	// Seat availability and advisory-lock management for a trip.
	g.GET("/trips/:id/seats", h.TripSeats)
	g.DELETE("/trips/:id/locks", h.ReleaseLocks)

	// Booking creation is the contended path: rate limit it.
	g.POST("/bookings", h.CreateBooking, limiter)

	// Confirmation is idempotent and retried by the payment notifier, so
	// it stays outside the rate limiter.
	g.POST("/bookings/:id/confirm", h.ConfirmBooking)

	// A slow payment flow can renew its seat hold instead of losing the
	// seats to the TTL mid-checkout.
	g.POST("/bookings/:id/extend-hold", h.ExtendHold)

	g.GET("/bookings/:id", h.GetBooking)
	g.GET("/bookings/reference/:ref", h.GetBookingByReference)
	g.GET("/my-bookings", h.ListBookings, middleware.RequireUser())

	// Policy previews and the policy-gated transitions.
	g.GET("/bookings/:id/cancellation-preview", h.CancellationPreview)
	g.POST("/bookings/:id/cancel", h.CancelBooking)
	g.POST("/bookings/:id/modification-preview", h.ModificationPreview)
	g.POST("/bookings/:id/modify", h.ModifyBooking)
}
