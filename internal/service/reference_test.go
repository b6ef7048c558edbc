package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSequence struct {
	mu   sync.Mutex
	n    int64
	err  error
	hits int
}

func (f *fakeSequence) Next(ctx context.Context, dateKey string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if f.err != nil {
		return 0, f.err
	}
	f.n++
	return f.n, nil
}

type fakeIndex struct {
	existing map[string]bool
	err      error
}

func (f *fakeIndex) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.existing[reference], nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestReferenceFormat(t *testing.T) {
	gen := NewReferenceGenerator(&fakeSequence{}, &fakeIndex{}, "BK")
	gen.now = fixedClock(time.Date(2025, 6, 8, 10, 30, 0, 0, time.UTC))

	ref, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ref != "BK20250608001" {
		t.Fatalf("reference: got %s want BK20250608001", ref)
	}
	if len(ref) != 13 {
		t.Fatalf("reference length: got %d want 13", len(ref))
	}
}

func TestReferenceSequenceAdvances(t *testing.T) {
	seq := &fakeSequence{}
	gen := NewReferenceGenerator(seq, &fakeIndex{}, "BK")
	gen.now = fixedClock(time.Date(2025, 6, 8, 10, 30, 0, 0, time.UTC))

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ref, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %s", ref)
		}
		seen[ref] = true
	}
	if !seen["BK20250608005"] {
		t.Fatal("expected sequence to reach 005")
	}
}

func TestReferenceConcurrentGenerationDistinct(t *testing.T) {
	// The counter is the serialization point: N generators racing on the
	// same day must come away with N distinct references.
	const n = 50
	gen := NewReferenceGenerator(&fakeSequence{}, &fakeIndex{}, "BK")
	gen.now = fixedClock(time.Date(2025, 6, 8, 10, 30, 0, 0, time.UTC))

	refs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := gen.Generate(context.Background())
			if err != nil {
				t.Errorf("generate %d: %v", i, err)
				return
			}
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, ref := range refs {
		if ref == "" {
			continue // already reported above
		}
		if seen[ref] {
			t.Fatalf("duplicate reference under concurrency: %s", ref)
		}
		seen[ref] = true
	}
	if len(seen) != n {
		t.Fatalf("distinct references: got %d want %d", len(seen), n)
	}
}

func TestReferenceSkipsExistingCandidates(t *testing.T) {
	// The counter replayed values already persisted; the durable check
	// must push past them.
	idx := &fakeIndex{existing: map[string]bool{
		"BK20250608001": true,
		"BK20250608002": true,
	}}
	gen := NewReferenceGenerator(&fakeSequence{}, idx, "BK")
	gen.now = fixedClock(time.Date(2025, 6, 8, 10, 30, 0, 0, time.UTC))

	ref, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ref != "BK20250608003" {
		t.Fatalf("reference: got %s want BK20250608003", ref)
	}
}

func TestReferenceTimestampFallback(t *testing.T) {
	// Every sequence-based candidate collides; the suffix must come from
	// the clock instead.
	idx := &fakeIndex{existing: map[string]bool{
		"BK20250608001": true, "BK20250608002": true, "BK20250608003": true,
		"BK20250608004": true, "BK20250608005": true, "BK20250608006": true,
		"BK20250608007": true, "BK20250608008": true, "BK20250608009": true,
		"BK20250608010": true,
	}}
	seq := &fakeSequence{}
	gen := NewReferenceGenerator(seq, idx, "BK")
	gen.now = fixedClock(time.Date(2025, 6, 8, 10, 30, 0, 123456789, time.UTC))

	ref, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if seq.hits != referenceAttempts {
		t.Fatalf("sequence hits: got %d want %d", seq.hits, referenceAttempts)
	}
	// 123456789 ns % 1000 = 789.
	if ref != "BK20250608789" {
		t.Fatalf("fallback reference: got %s want BK20250608789", ref)
	}
}

func TestReferenceExhaustion(t *testing.T) {
	idx := &fakeIndex{existing: map[string]bool{
		"BK20250608001": true, "BK20250608002": true, "BK20250608003": true,
		"BK20250608004": true, "BK20250608005": true, "BK20250608006": true,
		"BK20250608007": true, "BK20250608008": true, "BK20250608009": true,
		"BK20250608010": true,
		"BK20250608789": true, // the fallback candidate too
	}}
	gen := NewReferenceGenerator(&fakeSequence{}, idx, "BK")
	gen.now = fixedClock(time.Date(2025, 6, 8, 10, 30, 0, 123456789, time.UTC))

	if _, err := gen.Generate(context.Background()); !errors.Is(err, ErrReferenceExhausted) {
		t.Fatalf("expected ErrReferenceExhausted, got %v", err)
	}
}

func TestReferenceCounterFailurePropagates(t *testing.T) {
	boom := errors.New("counter unavailable")
	gen := NewReferenceGenerator(&fakeSequence{err: boom}, &fakeIndex{}, "BK")
	if _, err := gen.Generate(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected counter error, got %v", err)
	}
}
