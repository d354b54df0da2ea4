// Package kb owns the knowledge base collection: lookup of cached answers
// and write-back of supervisor answers. It is the only writer of
// knowledge base entries.
package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpline-dev/helpline/internal/store"
)

// ErrStore marks knowledge-store faults so callers can tell a backend
// failure apart from an ordinary miss or a request-store problem.
var ErrStore = errors.New("knowledge store error")

// KnowledgeStore defines the storage operations the Resolver needs.
// Implemented by store.Store.
type KnowledgeStore interface {
	LookupAnswer(question string) (string, error)
	UpsertKnowledgeBaseEntry(question, answer string, now time.Time) (store.KnowledgeBaseEntry, error)
	ListKnowledgeBaseEntries() ([]store.KnowledgeBaseEntry, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Resolver answers questions from the knowledge base and persists
// supervisor answers back into it.
type Resolver struct {
	store  KnowledgeStore
	clock  Clock
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(s KnowledgeStore) *Resolver {
	return &Resolver{store: s, clock: realClock{}, logger: slog.Default()}
}

// NewResolverWithClock creates a Resolver with a custom clock (for testing).
func NewResolverWithClock(s KnowledgeStore, clock Clock) *Resolver {
	return &Resolver{store: s, clock: clock, logger: slog.Default()}
}

// Lookup returns the stored answer for a question, matched
// case-insensitively against existing entries. A miss is ("", false, nil);
// a store fault is reported as ErrStore so read-path callers can degrade.
func (r *Resolver) Lookup(ctx context.Context, question string) (string, bool, error) {
	answer, err := r.store.LookupAnswer(question)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: looking up %q: %v", ErrStore, question, err)
	}
	return answer, true, nil
}

// Upsert writes the answer for a question, overwriting any existing entry
// for the same (case-insensitive) question text. The write is a single
// conditional insert, so concurrent upserts converge on one row. Either
// the full write succeeds or nothing is changed.
func (r *Resolver) Upsert(ctx context.Context, question, answer string) (store.KnowledgeBaseEntry, error) {
	entry, err := r.store.UpsertKnowledgeBaseEntry(question, answer, r.clock.Now())
	if err != nil {
		return store.KnowledgeBaseEntry{}, fmt.Errorf("%w: upserting %q: %v", ErrStore, question, err)
	}
	return entry, nil
}

// List returns all entries ordered by updatedAt descending. Store faults
// degrade to an empty list with a logged error to keep the read path
// available.
func (r *Resolver) List(ctx context.Context) []store.KnowledgeBaseEntry {
	entries, err := r.store.ListKnowledgeBaseEntries()
	if err != nil {
		r.logger.Error("listing knowledge base entries failed", "error", err)
		return nil
	}
	return entries
}
