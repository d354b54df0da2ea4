package kb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helpline-dev/helpline/internal/store"
)

// failingStore implements KnowledgeStore and fails every operation.
type failingStore struct{}

func (failingStore) LookupAnswer(string) (string, error) {
	return "", errors.New("disk on fire")
}

func (failingStore) UpsertKnowledgeBaseEntry(string, string, time.Time) (store.KnowledgeBaseEntry, error) {
	return store.KnowledgeBaseEntry{}, errors.New("disk on fire")
}

func (failingStore) ListKnowledgeBaseEntries() ([]store.KnowledgeBaseEntry, error) {
	return nil, errors.New("disk on fire")
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func openTestResolver(t *testing.T) *Resolver {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewResolver(s)
}

func TestLookupHitAndMiss(t *testing.T) {
	r := openTestResolver(t)
	ctx := context.Background()

	if _, err := r.Upsert(ctx, "what are your hours?", "9am to 7pm."); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	answer, ok, err := r.Lookup(ctx, "What Are Your Hours?")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || answer != "9am to 7pm." {
		t.Errorf("Lookup = (%q, %v), want hit", answer, ok)
	}

	// A miss is not an error.
	_, ok, err = r.Lookup(ctx, "Do you sell gift cards?")
	if err != nil {
		t.Fatalf("Lookup miss returned error: %v", err)
	}
	if ok {
		t.Error("Lookup miss reported ok = true")
	}
}

func TestLookupStoreFaultIsErrStore(t *testing.T) {
	r := NewResolver(failingStore{})

	_, _, err := r.Lookup(context.Background(), "anything")
	if !errors.Is(err, ErrStore) {
		t.Errorf("err = %v, want ErrStore", err)
	}
}

func TestUpsertStoreFaultIsErrStore(t *testing.T) {
	r := NewResolver(failingStore{})

	_, err := r.Upsert(context.Background(), "q", "a")
	if !errors.Is(err, ErrStore) {
		t.Errorf("err = %v, want ErrStore", err)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := &steppingClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	r := NewResolverWithClock(s, clock)
	ctx := context.Background()

	first, err := r.Upsert(ctx, "Do you do perms?", "Yes.")
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	second, err := r.Upsert(ctx, "do you do perms?", "Yes, starting at $80.")
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("upsert created a second row: %s vs %s", first.ID, second.ID)
	}
	if second.Answer != "Yes, starting at $80." {
		t.Errorf("answer = %q", second.Answer)
	}
	if !second.UpdatedAt.After(second.CreatedAt) {
		t.Errorf("updated_at %v not advanced past created_at %v", second.UpdatedAt, second.CreatedAt)
	}
	if entries := r.List(ctx); len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

// steppingClock advances one second per Now call.
type steppingClock struct{ now time.Time }

func (c *steppingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestListDegradesToEmptyOnFault(t *testing.T) {
	r := NewResolver(failingStore{})

	if entries := r.List(context.Background()); entries != nil {
		t.Errorf("List = %v, want nil on store fault", entries)
	}
}
