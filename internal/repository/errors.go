// Package repository defines error types that are reused across the
// repository layer and inspected by services and handlers.  These sentinel
// values let higher layers distinguish failure scenarios with errors.Is
// instead of string matching.  For example, ErrBookingNotFound maps to an
// HTTP 404 while the seat conflict errors raised in the service layer map
// to 409 responses carrying the offending seat codes.
package repository

import "errors"

// ErrBookingNotFound is returned when no booking exists for the requested
// id or reference.
var ErrBookingNotFound = errors.New("booking not found")

// ErrTripNotFound is returned when the requested trip does not exist.
var ErrTripNotFound = errors.New("trip not found")

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own.  Handlers should translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")
