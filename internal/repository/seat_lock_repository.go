package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeatLockRepo provides advisory, self-expiring mutual exclusion over
// (trip, seat) pairs, backed by Redis.  Locks are the serialization point
// between concurrent checkout attempts: whichever request's SETNX lands
// first wins and every loser must report a conflict to its caller.  A
// lock's absence means the seat is free to lock, not necessarily free to
// book — durable availability in MySQL stays authoritative.
//
// Key layout: seatlock:<trip_id>:<seat_code> -> holder token, with a TTL
// so abandoned checkouts release themselves without a cron job.
type SeatLockRepo struct {
	rdb *redis.Client
}

// NewSeatLockRepo returns a SeatLockRepo bound to the provided Redis client.
func NewSeatLockRepo(rdb *redis.Client) *SeatLockRepo { return &SeatLockRepo{rdb: rdb} }

// seatLockKey builds the Redis key for a single seat on a trip.
func seatLockKey(tripID uint64, seatCode string) string {
	return fmt.Sprintf("seatlock:%d:%s", tripID, seatCode)
}

// Acquire attempts to lock every seat in seatCodes for the given holder
// token.  Each seat is claimed with an independent SETNX+TTL; this is not
// a multi-key transaction.  The method returns the seats that were
// acquired in this call and, for seats that were already locked, a map
// from seat code to the existing holder token so the caller can tell
// "held by someone else" apart from "I already hold it".  Callers must
// treat a non-empty held map as a failure for the whole batch and release
// the acquired seats themselves; partial lock sets must never be left
// dangling.
//
// When Redis itself fails mid-batch, the seats acquired before the
// failure are still returned alongside the error so the caller can run
// its compensating release.
func (r *SeatLockRepo) Acquire(ctx context.Context, tripID uint64, seatCodes []string, holder string, ttl time.Duration) (acquired []string, held map[string]string, err error) {
	held = make(map[string]string)
	for _, code := range seatCodes {
		key := seatLockKey(tripID, code)
		ok, setErr := r.rdb.SetNX(ctx, key, holder, ttl).Result()
		if setErr != nil {
			return acquired, held, setErr
		}
		if ok {
			acquired = append(acquired, code)
			continue
		}
		// Seat already locked: report the current holder.  The key may
		// expire between SETNX and GET; an empty holder still counts as
		// a conflict for this attempt.
		owner, getErr := r.rdb.Get(ctx, key).Result()
		if getErr != nil && getErr != redis.Nil {
			return acquired, held, getErr
		}
		held[code] = owner
	}
	return acquired, held, nil
}

// IsLocked reports, per seat, whether an advisory lock currently exists.
// It is an optimization for surfacing "seats currently locked" before an
// acquire attempt, not a correctness gate: the answer can go stale the
// moment it is produced, and callers must still handle acquire conflicts.
func (r *SeatLockRepo) IsLocked(ctx context.Context, tripID uint64, seatCodes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(seatCodes))
	for _, code := range seatCodes {
		n, err := r.rdb.Exists(ctx, seatLockKey(tripID, code)).Result()
		if err != nil {
			return nil, err
		}
		out[code] = n > 0
	}
	return out, nil
}

// Release unconditionally deletes the locks for the given seats.  Used on
// cancellation and for compensating rollback after a failed booking write.
// Deleting a key that does not exist is harmless.
func (r *SeatLockRepo) Release(ctx context.Context, tripID uint64, seatCodes []string) error {
	if len(seatCodes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(seatCodes))
	for _, code := range seatCodes {
		keys = append(keys, seatLockKey(tripID, code))
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// Refresh extends the TTL of existing locks, keeping a hold alive while a
// customer completes payment.  Seats whose locks have already expired are
// skipped silently; the durable availability check catches any fallout.
func (r *SeatLockRepo) Refresh(ctx context.Context, tripID uint64, seatCodes []string, ttl time.Duration) error {
	for _, code := range seatCodes {
		if err := r.rdb.Expire(ctx, seatLockKey(tripID, code), ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

// LockedSeats scans for all live advisory locks on a trip and returns the
// seat codes.  Used by the seat-availability view; the result is a
// snapshot and may be stale by the time it is rendered.
func (r *SeatLockRepo) LockedSeats(ctx context.Context, tripID uint64) ([]string, error) {
	pattern := fmt.Sprintf("seatlock:%d:*", tripID)
	prefix := fmt.Sprintf("seatlock:%d:", tripID)
	var seats []string
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) > len(prefix) {
			seats = append(seats, key[len(prefix):])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}
