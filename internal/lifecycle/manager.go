// Package lifecycle owns help request state transitions. It is the only
// writer of help request rows: creation, guarded resolution with
// knowledge-base write-back, and the timeout sweep all live here.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helpline-dev/helpline/internal/notify"
	"github.com/helpline-dev/helpline/internal/store"
)

// ErrValidation is returned when a required field is missing or empty.
var ErrValidation = errors.New("validation error")

// ErrRequestStore marks request-store faults on write paths so callers can
// tell a backend failure ("try again") apart from a lost resolution race.
var ErrRequestStore = errors.New("request store error")

const supervisorNotifyTimeout = 30 * time.Second

// RequestStore defines the storage operations the Manager needs.
// Implemented by store.Store.
type RequestStore interface {
	CreateHelpRequest(callID, callerID, question string, now time.Time) (store.HelpRequest, error)
	GetHelpRequest(id string) (store.HelpRequest, error)
	ListHelpRequests(status store.Status) ([]store.HelpRequest, error)
	ResolveHelpRequest(id, answer string, now time.Time) (store.HelpRequest, error)
	ExpireHelpRequests(cutoff time.Time) (int64, error)
}

// KnowledgeWriter persists resolved answers into the knowledge base.
// Implemented by kb.Resolver.
type KnowledgeWriter interface {
	Upsert(ctx context.Context, question, answer string) (store.KnowledgeBaseEntry, error)
	List(ctx context.Context) []store.KnowledgeBaseEntry
}

// TextProducer generates supervisor-facing summaries and style-matched
// rewrites. Implemented by suggest.Suggester; both methods degrade to
// usable fallback text rather than failing.
type TextProducer interface {
	SummarizeContext(ctx context.Context, callerID, question string) string
	ReformatToStyle(ctx context.Context, styleReference, text string) string
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager drives the help request state machine:
//
//	pending -> resolved   (supervisor answer, at most one winner)
//	pending -> unresolved (timeout sweep)
//
// Both terminal states are final. All transitions are guarded at write
// time, so the Manager is safe under concurrent use.
type Manager struct {
	store    RequestStore
	kb       KnowledgeWriter
	notifier notify.Notifier
	producer TextProducer
	clock    Clock
	timeout  time.Duration
	logger   *slog.Logger
}

// Options carries the collaborators for NewManager.
type Options struct {
	Store    RequestStore
	KB       KnowledgeWriter
	Notifier notify.Notifier
	Producer TextProducer
	// Timeout is how long a request may stay pending before the sweep
	// demotes it to unresolved. Defaults to 15 minutes.
	Timeout time.Duration
	// Clock defaults to the wall clock.
	Clock Clock
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Manager{
		store:    opts.Store,
		kb:       opts.KB,
		notifier: opts.Notifier,
		producer: opts.Producer,
		clock:    opts.Clock,
		timeout:  opts.Timeout,
		logger:   slog.Default(),
	}
}

// Create inserts a new pending help request and kicks off the supervisor
// notification in the background. The notification is fire-and-forget:
// its failure is logged and never fails creation.
func (m *Manager) Create(ctx context.Context, callID, callerID, question string) (store.HelpRequest, error) {
	if strings.TrimSpace(callID) == "" || strings.TrimSpace(callerID) == "" || strings.TrimSpace(question) == "" {
		return store.HelpRequest{}, fmt.Errorf("%w: callId, callerId and question are required", ErrValidation)
	}

	req, err := m.store.CreateHelpRequest(callID, callerID, question, m.clock.Now())
	if err != nil {
		return store.HelpRequest{}, fmt.Errorf("%w: creating help request: %v", ErrRequestStore, err)
	}
	m.logger.Info("help request created", "id", req.ID, "call_id", callID, "question", question)

	go m.notifySupervisor(req)

	return req, nil
}

// notifySupervisor runs detached from the creating request with its own
// deadline, as the caller has usually hung up by the time it completes.
func (m *Manager) notifySupervisor(req store.HelpRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), supervisorNotifyTimeout)
	defer cancel()

	text := fmt.Sprintf("Help needed for request %s: caller %s asked %q.", req.ID, req.CallerID, req.Question)
	if m.producer != nil {
		text = m.producer.SummarizeContext(ctx, req.CallerID, req.Question)
	}
	if err := m.notifier.NotifySupervisor(ctx, text); err != nil {
		m.logger.Warn("supervisor notification failed", "id", req.ID, "error", err)
	}
}

// Get returns the help request with the given id.
func (m *Manager) Get(ctx context.Context, id string) (store.HelpRequest, error) {
	return m.store.GetHelpRequest(id)
}

// List returns help requests newest first, optionally filtered by status.
// Store faults degrade to an empty list with a logged error to keep the
// read path available.
func (m *Manager) List(ctx context.Context, status store.Status) []store.HelpRequest {
	reqs, err := m.store.ListHelpRequests(status)
	if err != nil {
		m.logger.Error("listing help requests failed", "status", status, "error", err)
		return nil
	}
	return reqs
}

// Resolve transitions a pending request to resolved with the supervisor's
// answer. At most one concurrent call per id succeeds; the rest observe
// store.ErrNotPending. After the transition commits, the knowledge-base
// write-back and the caller notification run as best-effort follow-ups:
// their failures come back as warnings, never as a rollback.
func (m *Manager) Resolve(ctx context.Context, id, answer string) (store.HelpRequest, []string, error) {
	if strings.TrimSpace(answer) == "" {
		return store.HelpRequest{}, nil, fmt.Errorf("%w: answer is required", ErrValidation)
	}

	req, err := m.store.ResolveHelpRequest(id, answer, m.clock.Now())
	if errors.Is(err, store.ErrNotPending) {
		return store.HelpRequest{}, nil, err
	}
	if err != nil {
		return store.HelpRequest{}, nil, fmt.Errorf("%w: resolving help request %s: %v", ErrRequestStore, id, err)
	}
	m.logger.Info("help request resolved", "id", req.ID, "question", req.Question)

	warnings := make([]string, 2)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text := answer
		if m.producer != nil {
			text = m.producer.ReformatToStyle(gctx, m.styleReference(gctx, req.Question), answer)
		}
		if _, err := m.kb.Upsert(gctx, req.Question, text); err != nil {
			m.logger.Warn("knowledge base write-back failed", "id", req.ID, "error", err)
			warnings[0] = fmt.Sprintf("knowledge base write-back failed: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := m.notifier.NotifyCaller(gctx, req.CallerID, answer); err != nil {
			m.logger.Warn("caller notification failed", "id", req.ID, "caller_id", req.CallerID, "error", err)
			warnings[1] = fmt.Sprintf("caller notification failed: %v", err)
		}
		return nil
	})
	g.Wait()

	var nonEmpty []string
	for _, w := range warnings {
		if w != "" {
			nonEmpty = append(nonEmpty, w)
		}
	}
	return req, nonEmpty, nil
}

// styleReference picks an existing answer (for a different question) as
// the tone reference when rewriting the new answer for the knowledge base.
// Returns "" when the knowledge base has nothing usable, which skips the
// rewrite.
func (m *Manager) styleReference(ctx context.Context, question string) string {
	key := store.QuestionKey(question)
	for _, entry := range m.kb.List(ctx) {
		if store.QuestionKey(entry.Question) != key {
			return entry.Answer
		}
	}
	return ""
}

// SweepTimeouts demotes pending requests older than the configured timeout
// to unresolved, returning how many changed. Safe to run repeatedly and
// concurrently with Resolve: the store-level status guard means a request
// resolved mid-sweep stays resolved.
func (m *Manager) SweepTimeouts(ctx context.Context) (int64, error) {
	cutoff := m.clock.Now().Add(-m.timeout)
	n, err := m.store.ExpireHelpRequests(cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: expiring help requests: %v", ErrRequestStore, err)
	}
	if n > 0 {
		m.logger.Info("pending help requests timed out", "count", n)
	}
	return n, nil
}
