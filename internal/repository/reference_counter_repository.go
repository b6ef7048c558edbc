package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// referenceCounterTTL garbage-collects stale per-day counters.  48 hours
// comfortably outlives the calendar day the counter serves while keeping
// Redis free of dead keys without a cron job.
const referenceCounterTTL = 48 * time.Hour

// ReferenceCounterRepo allocates monotonically increasing sequence numbers
// scoped to a calendar day, backed by Redis INCR.  A fresh key appears
// for each day; the previous day's key simply expires.  Redis is fast but
// not guaranteed durable here — the reference generator layered on top
// verifies every candidate against MySQL before using it.
type ReferenceCounterRepo struct {
	rdb *redis.Client
}

// NewReferenceCounterRepo returns a ReferenceCounterRepo bound to the
// provided Redis client.
func NewReferenceCounterRepo(rdb *redis.Client) *ReferenceCounterRepo {
	return &ReferenceCounterRepo{rdb: rdb}
}

// Next atomically increments the counter for dateKey (YYYYMMDD) and
// returns the new value.  The first increment of a key also stamps its
// TTL; EXPIRE after INCR leaves a short window where a crash could strand
// the key, which the 48h TTL on the next day's counter makes moot.
func (r *ReferenceCounterRepo) Next(ctx context.Context, dateKey string) (int64, error) {
	key := "bookingref:" + dateKey
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, key, referenceCounterTTL).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}
