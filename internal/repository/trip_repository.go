package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vietbus/bus-ticket-reservation/internal/model"
)

// TripRepo provides read access to the trips table.  The reservation core
// never mutates trips; schedule management lives elsewhere.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a new TripRepo bound to the given database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// GetByID returns the trip with the given id, or ErrTripNotFound.  The
// departure time is returned in UTC; callers feed it to the policy engine
// without further conversion.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
	const q = `SELECT id, route_from, route_to, departure_at, seat_price FROM trips WHERE id = ?`
	var t model.Trip
	err := r.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.RouteFrom, &t.RouteTo, &t.DepartureAt, &t.SeatPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	t.DepartureAt = t.DepartureAt.UTC()
	return &t, nil
}
