package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/helpline-dev/helpline/internal/ollama"
	"github.com/helpline-dev/helpline/internal/store"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	gotMsgs  []ollama.Message
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	m.gotMsgs = messages
	return m.response, m.err
}

// staticEntries implements EntrySource.
type staticEntries []store.KnowledgeBaseEntry

func (s staticEntries) List(ctx context.Context) []store.KnowledgeBaseEntry {
	return s
}

func TestSuggest_GroundedOnKnowledgeBase(t *testing.T) {
	mock := &mockChatter{response: `{"suggested_answer":"We're open 9am to 7pm."}`}
	entries := staticEntries{
		{Question: "What are your hours?", Answer: "9am to 7pm, Monday through Saturday."},
	}
	s := New(mock, entries, "llama3.2")

	got := s.Suggest(context.Background(), "What are your hours?")
	if got != "We're open 9am to 7pm." {
		t.Errorf("Suggest = %q", got)
	}

	// The matching entry must have been embedded in the system prompt.
	if len(mock.gotMsgs) == 0 || !strings.Contains(mock.gotMsgs[0].Content, "Monday through Saturday") {
		t.Error("knowledge base excerpt missing from prompt")
	}
}

func TestSuggest_FallbackOnModelError(t *testing.T) {
	mock := &mockChatter{err: errors.New("connection refused")}
	s := New(mock, staticEntries{}, "llama3.2")

	got := s.Suggest(context.Background(), "Do you do perms?")
	if !strings.Contains(got, "supervisor") {
		t.Errorf("Suggest fallback = %q, want deferral text", got)
	}
}

func TestSuggest_FallbackOnMalformedJSON(t *testing.T) {
	mock := &mockChatter{response: "not json at all"}
	s := New(mock, staticEntries{}, "llama3.2")

	got := s.Suggest(context.Background(), "Do you do perms?")
	if !strings.Contains(got, "supervisor") {
		t.Errorf("Suggest fallback = %q, want deferral text", got)
	}
}

func TestSummarizeContext(t *testing.T) {
	mock := &mockChatter{response: `{"summary":"Caller 555-123-0001 wants to know about perm pricing."}`}
	s := New(mock, nil, "llama3.2")

	got := s.SummarizeContext(context.Background(), "555-123-0001", "Do you do perms?")
	if got != "Caller 555-123-0001 wants to know about perm pricing." {
		t.Errorf("SummarizeContext = %q", got)
	}
}

func TestSummarizeContext_Fallback(t *testing.T) {
	mock := &mockChatter{err: errors.New("timeout")}
	s := New(mock, nil, "llama3.2")

	got := s.SummarizeContext(context.Background(), "555-123-0001", "Do you do perms?")
	if !strings.Contains(got, "555-123-0001") || !strings.Contains(got, "Do you do perms?") {
		t.Errorf("fallback summary missing caller or question: %q", got)
	}
}

func TestReformatToStyle(t *testing.T) {
	mock := &mockChatter{response: `{"reformatted":"Yes! Perms start at $80."}`}
	s := New(mock, nil, "llama3.2")

	got := s.ReformatToStyle(context.Background(), "Yes! Haircuts start at $40.", "Perms cost 80 dollars and up")
	if got != "Yes! Perms start at $80." {
		t.Errorf("ReformatToStyle = %q", got)
	}
}

func TestReformatToStyle_FallbackToRawText(t *testing.T) {
	mock := &mockChatter{err: errors.New("model not found")}
	s := New(mock, nil, "llama3.2")

	got := s.ReformatToStyle(context.Background(), "reference", "Perms cost 80 dollars and up")
	if got != "Perms cost 80 dollars and up" {
		t.Errorf("ReformatToStyle fallback = %q, want raw text", got)
	}
}

func TestReformatToStyle_EmptyStyleSkipsModel(t *testing.T) {
	mock := &mockChatter{response: `{"reformatted":"should not be used"}`}
	s := New(mock, nil, "llama3.2")

	got := s.ReformatToStyle(context.Background(), "", "raw answer")
	if got != "raw answer" {
		t.Errorf("ReformatToStyle = %q, want raw text unchanged", got)
	}
	if mock.gotMsgs != nil {
		t.Error("model should not be called without a style reference")
	}
}

func TestRelevantEntries_KeywordMatchAndCap(t *testing.T) {
	entries := []store.KnowledgeBaseEntry{
		{Question: "What are your hours?", Answer: "9-7"},
		{Question: "Do you do perms?", Answer: "Yes"},
		{Question: "Where are you located?", Answer: "Main St"},
		{Question: "Do you sell gift cards?", Answer: "Yes"},
	}

	got := relevantEntries(entries, "what are your HOURS?")
	if len(got) != 1 || got[0].Question != "What are your hours?" {
		t.Errorf("relevantEntries = %+v", got)
	}

	// No keyword match: falls back to the first entries, capped.
	got = relevantEntries(entries, "zzzz")
	if len(got) != maxContextEntries {
		t.Errorf("fallback len = %d, want %d", len(got), maxContextEntries)
	}
}
