package service

import (
	"context"
	"fmt"
	"time"
)

// SequenceStore allocates day-scoped monotonically increasing sequence
// numbers.  Implemented by repository.ReferenceCounterRepo over Redis.
type SequenceStore interface {
	Next(ctx context.Context, dateKey string) (int64, error)
}

// ReferenceIndex answers whether a candidate reference already exists in
// the durable store.  Implemented by repository.BookingRepo.
type ReferenceIndex interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// referenceAttempts is the budget of sequence-based candidates tried
// before falling back to a timestamp-derived suffix.
const referenceAttempts = 10

// ReferenceGenerator produces short, human-presentable booking references
// of the form PREFIX+YYYYMMDD+NNN.  The fast path allocates a sequence
// number from the counter store; every candidate is then verified against
// the durable store because the counter is fast but not durable — after a
// counter restart the sequence can replay values that were already
// handed out.  When the attempt budget is exhausted the generator
// sacrifices the pure-sequence property and derives the suffix from a
// high-resolution timestamp instead, preserving format and length.
type ReferenceGenerator struct {
	seq    SequenceStore
	index  ReferenceIndex
	prefix string
	now    func() time.Time
}

// NewReferenceGenerator builds a generator with the given prefix (the
// wire format fixes the reference at len(prefix)+11 characters).
func NewReferenceGenerator(seq SequenceStore, index ReferenceIndex, prefix string) *ReferenceGenerator {
	return &ReferenceGenerator{seq: seq, index: index, prefix: prefix, now: time.Now}
}

// Generate returns a booking reference unique in the durable store, or
// ErrReferenceExhausted when both the attempt budget and the timestamp
// fallback fail.
func (g *ReferenceGenerator) Generate(ctx context.Context) (string, error) {
	dateKey := g.now().UTC().Format("20060102")
	for i := 0; i < referenceAttempts; i++ {
		n, err := g.seq.Next(ctx, dateKey)
		if err != nil {
			return "", err
		}
		ref := fmt.Sprintf("%s%s%03d", g.prefix, dateKey, n)
		exists, err := g.index.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	// Fallback: derive the 3-digit suffix from the sub-millisecond part of
	// the clock rather than the sequence.
	ref := fmt.Sprintf("%s%s%03d", g.prefix, dateKey, g.now().UnixNano()%1000)
	exists, err := g.index.ReferenceExists(ctx, ref)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrReferenceExhausted
	}
	return ref, nil
}
