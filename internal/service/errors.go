package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReferenceExhausted is returned when the reference generator runs out
// of attempts and even the timestamp fallback collides.  This is expected
// to be extremely rare and should alert operators.
var ErrReferenceExhausted = errors.New("booking reference generation exhausted")

// ErrDuplicateSeats is returned when a booking request names the same
// seat code for more than one passenger.
var ErrDuplicateSeats = errors.New("duplicate seat codes in request")

// SeatsAlreadyBookedError reports seats that are attached to a
// non-cancelled booking in the durable store.  The client may retry with
// different seats; the conflict will not clear on its own.
type SeatsAlreadyBookedError struct {
	Seats []string
}

func (e *SeatsAlreadyBookedError) Error() string {
	return fmt.Sprintf("seats already booked: %s", strings.Join(e.Seats, ", "))
}

// SeatsLockedError reports seats currently held by another checkout's
// advisory lock.  The conflict clears when the other checkout completes
// or its hold TTL expires.
type SeatsLockedError struct {
	Seats []string
}

func (e *SeatsLockedError) Error() string {
	return fmt.Sprintf("seats currently locked: %s", strings.Join(e.Seats, ", "))
}

// PolicyRejectionError carries the human-readable reason a cancellation
// or modification was disallowed by the policy engine.  It represents a
// normal negative business outcome, not a system failure.
type PolicyRejectionError struct {
	Reason string
}

func (e *PolicyRejectionError) Error() string { return e.Reason }
