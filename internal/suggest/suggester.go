package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpline-dev/helpline/internal/ollama"
	"github.com/helpline-dev/helpline/internal/store"
)

const (
	suggestTimeout   = 15 * time.Second
	summarizeTimeout = 5 * time.Second
	reformatTimeout  = 10 * time.Second

	maxContextEntries = 3
)

// Chatter is the interface for chat completion via a local model.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// EntrySource provides knowledge base entries for prompt context.
// Implemented by kb.Resolver.
type EntrySource interface {
	List(ctx context.Context) []store.KnowledgeBaseEntry
}

// Suggester produces generated text for the escalation workflow: suggested
// answers for supervisors, request summaries for notifications, and
// style-matched rewrites for knowledge base write-back. Every method
// degrades to deterministic fallback text on any model failure; callers
// never see an error from this package.
type Suggester struct {
	client  Chatter
	entries EntrySource
	model   string
	logger  *slog.Logger
}

// New creates a Suggester using the given chat client and model name.
func New(client Chatter, entries EntrySource, model string) *Suggester {
	return &Suggester{
		client:  client,
		entries: entries,
		model:   model,
		logger:  slog.Default(),
	}
}

// Suggest proposes an answer to a customer question, grounded on knowledge
// base excerpts. On model failure it returns a fixed deferral message.
func (s *Suggester) Suggest(ctx context.Context, question string) string {
	fallback := "I couldn't find that in the knowledge base. This one needs a supervisor answer."
	if question == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, suggestTimeout)
	defer cancel()

	var entries []store.KnowledgeBaseEntry
	if s.entries != nil {
		entries = relevantEntries(s.entries.List(ctx), question)
	}

	raw, err := s.client.Chat(ctx, s.model, buildSuggestPrompt(question, entries), suggestSchema())
	if err != nil {
		s.logger.Warn("answer suggestion failed", "error", err)
		return fallback
	}

	var result struct {
		SuggestedAnswer string `json:"suggested_answer"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil || result.SuggestedAnswer == "" {
		s.logger.Warn("failed to parse suggested answer", "error", err, "response", raw)
		return fallback
	}
	return result.SuggestedAnswer
}

// SummarizeContext produces a short supervisor-facing summary of a request.
// Falls back to a plain rendering of the caller id and question.
func (s *Suggester) SummarizeContext(ctx context.Context, callerID, question string) string {
	fallback := fmt.Sprintf("Help needed: caller %s asked %q.", callerID, question)

	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	raw, err := s.client.Chat(ctx, s.model, buildSummarizePrompt(callerID, question), summarizeSchema())
	if err != nil {
		s.logger.Warn("request summary failed", "error", err)
		return fallback
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil || result.Summary == "" {
		s.logger.Warn("failed to parse request summary", "error", err, "response", raw)
		return fallback
	}
	return result.Summary
}

// ReformatToStyle rewrites text to match the tone of styleReference.
// Falls back to the unmodified text; an empty style reference skips the
// model entirely.
func (s *Suggester) ReformatToStyle(ctx context.Context, styleReference, text string) string {
	if styleReference == "" || text == "" {
		return text
	}

	ctx, cancel := context.WithTimeout(ctx, reformatTimeout)
	defer cancel()

	raw, err := s.client.Chat(ctx, s.model, buildReformatPrompt(styleReference, text), reformatSchema())
	if err != nil {
		s.logger.Warn("style reformat failed", "error", err)
		return text
	}

	var result struct {
		Reformatted string `json:"reformatted"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil || result.Reformatted == "" {
		s.logger.Warn("failed to parse reformatted answer", "error", err, "response", raw)
		return text
	}
	return result.Reformatted
}
