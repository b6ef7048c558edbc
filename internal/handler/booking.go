package handler

import (
	"errors"   // for errors.Is/As comparisons
	"net/http" // HTTP status codes
	"strconv"  // parsing path parameters
	"time"     // working with timestamps

	"github.com/labstack/echo/v4"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
	"github.com/vietbus/bus-ticket-reservation/internal/repository"
	"github.com/vietbus/bus-ticket-reservation/internal/service"
)

// BookingHandler exposes the reservation core over HTTP: booking
// creation, idempotent confirmation, policy previews and the
// policy-gated cancel/modify operations.  Identity extraction happens in
// middleware; a missing user simply means a guest checkout.
type BookingHandler struct {
	Bookings *service.BookingService
}

// NewBookingHandler constructs a BookingHandler.  The service must be
// non-nil.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: svc}
}

// currentUser extracts the authenticated user's id from the context, or
// nil for guests.
func currentUser(c echo.Context) *uint64 {
	if uid, ok := c.Get("user_id").(uint64); ok && uid > 0 {
		return &uid
	}
	return nil
}

// passengerView / bookingView shape the JSON representation of a booking.
type passengerView struct {
	FullName   string `json:"full_name"`
	DocumentID string `json:"document_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	SeatCode   string `json:"seat_code"`
	Price      int64  `json:"price"`
}

type bookingView struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	TripID        uint64          `json:"trip_id"`
	UserID        *uint64         `json:"user_id,omitempty"`
	ContactEmail  string          `json:"contact_email"`
	ContactPhone  string          `json:"contact_phone"`
	Subtotal      int64           `json:"subtotal"`
	ServiceFee    int64           `json:"service_fee"`
	TotalPrice    int64           `json:"total_price"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	LockedUntil   string          `json:"locked_until"`
	PaidAt        *string         `json:"paid_at,omitempty"`
	TicketURL     *string         `json:"ticket_url,omitempty"`
	QRCode        *string         `json:"qr_code,omitempty"`
	CreatedAt     string          `json:"created_at"`
	Passengers    []passengerView `json:"passengers"`
}

func viewOf(b *model.Booking) bookingView {
	v := bookingView{
		ID:            b.ID,
		Reference:     b.Reference,
		TripID:        b.TripID,
		UserID:        b.UserID,
		ContactEmail:  b.ContactEmail,
		ContactPhone:  b.ContactPhone,
		Subtotal:      b.Subtotal,
		ServiceFee:    b.ServiceFee,
		TotalPrice:    b.TotalPrice,
		PaymentMethod: b.PaymentMethod,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		LockedUntil:   b.LockedUntil.UTC().Format(time.RFC3339),
		TicketURL:     b.TicketURL,
		QRCode:        b.QRCode,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.PaidAt != nil {
		s := b.PaidAt.UTC().Format(time.RFC3339)
		v.PaidAt = &s
	}
	v.Passengers = make([]passengerView, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		v.Passengers = append(v.Passengers, passengerView{
			FullName:   p.FullName,
			DocumentID: p.DocumentID,
			Phone:      p.Phone,
			SeatCode:   p.SeatCode,
			Price:      p.Price,
		})
	}
	return v
}

// policyView shapes a policy engine result for preview and cancel/modify
// responses.
type policyView struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason,omitempty"`
	Tier                 string `json:"tier,omitempty"`
	RefundPercent        int64  `json:"refund_percent"`
	FlatFee              int64  `json:"flat_fee"`
	RefundAmount         int64  `json:"refund_amount"`
	TotalRefund          int64  `json:"total_refund"`
	AllowSeatChange      bool   `json:"allow_seat_change"`
	AllowPassengerUpdate bool   `json:"allow_passenger_update"`
	ModificationFee      int64  `json:"modification_fee"`
}

func policyViewOf(res service.PolicyResult) policyView {
	return policyView{
		Allowed:              res.Allowed,
		Reason:               res.Reason,
		Tier:                 res.Tier,
		RefundPercent:        res.RefundPercent,
		FlatFee:              res.FlatFee,
		RefundAmount:         res.RefundAmount,
		TotalRefund:          res.TotalRefund,
		AllowSeatChange:      res.AllowSeatChange,
		AllowPassengerUpdate: res.AllowPassengerUpdate,
		ModificationFee:      res.ModificationFee,
	}
}

// writeBookingError maps service and repository errors onto HTTP
// responses.  Conflicts carry the offending seats and a stable code so
// the client can retry with an adjusted selection.
func writeBookingError(c echo.Context, err error) error {
	var booked *service.SeatsAlreadyBookedError
	var lockedErr *service.SeatsLockedError
	var rejected *service.PolicyRejectionError
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrTripNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "booking belongs to another user"})
	case errors.Is(err, service.ErrDuplicateSeats):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.As(err, &booked):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "some seats are already booked",
			"code":  "seats_already_booked",
			"seats": booked.Seats,
		})
	case errors.As(err, &lockedErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "some seats are currently locked by another checkout",
			"code":  "seats_locked",
			"seats": lockedErr.Seats,
		})
	case errors.As(err, &rejected):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": rejected.Reason,
			"code":  "policy_rejected",
		})
	case errors.Is(err, service.ErrReferenceExhausted):
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "could not allocate a booking reference",
			"code":  "reference_exhausted",
		})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

type passengerPayload struct {
	FullName   string `json:"full_name" validate:"required"`
	DocumentID string `json:"document_id"`
	Phone      string `json:"phone"`
	SeatCode   string `json:"seat_code" validate:"required"`
}

type createBookingRequest struct {
	TripID        uint64             `json:"trip_id" validate:"required"`
	Passengers    []passengerPayload `json:"passengers" validate:"required,min=1,dive"`
	TotalPrice    int64              `json:"total_price" validate:"required,gt=0"`
	ContactEmail  string             `json:"contact_email" validate:"required,email"`
	ContactPhone  string             `json:"contact_phone" validate:"required"`
	PaymentMethod string             `json:"payment_method" validate:"required"`
}

// CreateBooking handles POST /v1/bookings.  Guests and registered users
// share the path; middleware decides whether a user id is present.  On
// success the created booking is returned with its seats held for the
// configured TTL.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	in := service.CreateBookingInput{
		TripID:        req.TripID,
		UserID:        currentUser(c),
		TotalPrice:    req.TotalPrice,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		PaymentMethod: req.PaymentMethod,
	}
	for _, p := range req.Passengers {
		in.Passengers = append(in.Passengers, service.PassengerInput{
			FullName:   p.FullName,
			DocumentID: p.DocumentID,
			Phone:      p.Phone,
			SeatCode:   p.SeatCode,
		})
	}

	b, err := h.Bookings.CreateBooking(c.Request().Context(), in)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking": viewOf(b)})
}

// ConfirmBooking handles POST /v1/bookings/:id/confirm.  Confirmation is
// idempotent: re-confirming an already-confirmed booking returns the same
// terminal state with 200.
func (h *BookingHandler) ConfirmBooking(c echo.Context) error {
	id := c.Param("id")
	b, err := h.Bookings.ConfirmBooking(c.Request().Context(), id)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": viewOf(b)})
}

// authorizeOwner fetches a booking and checks the caller may act on it.
// Guest bookings are authorized by knowledge of the opaque id alone; a
// registered user's booking is off-limits to everyone but that user.
// Operations driven by backchannel callers (confirm, lookup by reference)
// skip this guard deliberately.
func (h *BookingHandler) authorizeOwner(c echo.Context, id string) (*model.Booking, error) {
	b, err := h.Bookings.GetBooking(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if b.UserID != nil {
		uid := currentUser(c)
		if uid == nil || *uid != *b.UserID {
			return nil, repository.ErrForbidden
		}
	}
	return b, nil
}

// ExtendHold handles POST /v1/bookings/:id/extend-hold, renewing a
// pending booking's seat locks for another hold window while the
// customer finishes payment.
func (h *BookingHandler) ExtendHold(c echo.Context) error {
	if _, err := h.authorizeOwner(c, c.Param("id")); err != nil {
		return writeBookingError(c, err)
	}
	b, err := h.Bookings.ExtendHold(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": viewOf(b)})
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	b, err := h.authorizeOwner(c, c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": viewOf(b)})
}

// GetBookingByReference handles GET /v1/bookings/reference/:ref.
func (h *BookingHandler) GetBookingByReference(c echo.Context) error {
	b, err := h.Bookings.GetBookingByReference(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": viewOf(b)})
}

// ListBookings handles GET /v1/my-bookings.  RequireUser middleware
// guarantees a user id is present.
func (h *BookingHandler) ListBookings(c echo.Context) error {
	uid := currentUser(c)
	if uid == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	bookings, err := h.Bookings.ListBookings(c.Request().Context(), *uid)
	if err != nil {
		return writeBookingError(c, err)
	}
	items := make([]bookingView, 0, len(bookings))
	for i := range bookings {
		items = append(items, viewOf(&bookings[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// evaluationTime resolves the policy evaluation time for previews: the
// optional `at` query parameter (RFC3339) or the current time.
func evaluationTime(c echo.Context) (time.Time, error) {
	if raw := c.QueryParam("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	return time.Now().UTC(), nil
}

// CancellationPreview handles GET /v1/bookings/:id/cancellation-preview.
// A disallowed cancellation is a normal 200 with allowed=false.
func (h *BookingHandler) CancellationPreview(c echo.Context) error {
	now, err := evaluationTime(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid at parameter"})
	}
	if _, err := h.authorizeOwner(c, c.Param("id")); err != nil {
		return writeBookingError(c, err)
	}
	res, err := h.Bookings.CancellationPreview(c.Request().Context(), c.Param("id"), now)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"policy": policyViewOf(res)})
}

// CancelBooking handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	if _, err := h.authorizeOwner(c, c.Param("id")); err != nil {
		return writeBookingError(c, err)
	}
	b, res, err := h.Bookings.CancelBooking(c.Request().Context(), c.Param("id"), time.Now().UTC())
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking": viewOf(b),
		"policy":  policyViewOf(res),
	})
}

type seatChangePayload struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type passengerUpdatePayload struct {
	SeatCode   string `json:"seat_code" validate:"required"`
	FullName   string `json:"full_name" validate:"required"`
	DocumentID string `json:"document_id"`
	Phone      string `json:"phone"`
}

type modificationRequest struct {
	SeatChanges      []seatChangePayload      `json:"seat_changes" validate:"dive"`
	PassengerUpdates []passengerUpdatePayload `json:"passenger_updates" validate:"dive"`
}

func (r *modificationRequest) toModel() model.Modification {
	var mods model.Modification
	for _, ch := range r.SeatChanges {
		mods.SeatChanges = append(mods.SeatChanges, model.SeatChange{FromSeat: ch.From, ToSeat: ch.To})
	}
	for _, up := range r.PassengerUpdates {
		mods.PassengerUpdates = append(mods.PassengerUpdates, model.PassengerUpdate{
			SeatCode:   up.SeatCode,
			FullName:   up.FullName,
			DocumentID: up.DocumentID,
			Phone:      up.Phone,
		})
	}
	return mods
}

// ModificationPreview handles POST /v1/bookings/:id/modification-preview.
func (h *BookingHandler) ModificationPreview(c echo.Context) error {
	var req modificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if len(req.SeatChanges) == 0 && len(req.PassengerUpdates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no modifications requested"})
	}
	now, err := evaluationTime(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid at parameter"})
	}
	if _, err := h.authorizeOwner(c, c.Param("id")); err != nil {
		return writeBookingError(c, err)
	}
	res, err := h.Bookings.ModificationPreview(c.Request().Context(), c.Param("id"), req.toModel(), now)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"policy": policyViewOf(res)})
}

// ModifyBooking handles POST /v1/bookings/:id/modify.
func (h *BookingHandler) ModifyBooking(c echo.Context) error {
	var req modificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if len(req.SeatChanges) == 0 && len(req.PassengerUpdates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no modifications requested"})
	}
	if _, err := h.authorizeOwner(c, c.Param("id")); err != nil {
		return writeBookingError(c, err)
	}
	b, res, err := h.Bookings.ModifyBooking(c.Request().Context(), c.Param("id"), req.toModel(), time.Now().UTC())
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking": viewOf(b),
		"policy":  policyViewOf(res),
	})
}

// TripSeats handles GET /v1/trips/:id/seats.  It reports the trip's
// durably booked seats and the seats currently under an advisory lock.
func (h *BookingHandler) TripSeats(c echo.Context) error {
	tripID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || tripID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	booked, locked, err := h.Bookings.SeatAvailability(c.Request().Context(), tripID)
	if err != nil {
		return writeBookingError(c, err)
	}
	if booked == nil {
		booked = []string{}
	}
	if locked == nil {
		locked = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booked": booked,
		"locked": locked,
	})
}

type releaseLocksRequest struct {
	Seats []string `json:"seats" validate:"required,min=1"`
}

// ReleaseLocks handles DELETE /v1/trips/:id/locks, abandoning a
// checkout's advisory seat holds early instead of waiting for the TTL.
func (h *BookingHandler) ReleaseLocks(c echo.Context) error {
	tripID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || tripID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	var req releaseLocksRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Bookings.ReleaseSeats(c.Request().Context(), tripID, req.Seats); err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": len(req.Seats)})
}
