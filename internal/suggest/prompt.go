package suggest

import (
	"fmt"
	"strings"

	"github.com/helpline-dev/helpline/internal/ollama"
	"github.com/helpline-dev/helpline/internal/store"
)

const suggestSystemPrompt = `You are an AI assistant helping a human supervisor answer customer questions for a salon front desk. Your output must be ONLY a single valid JSON object conforming to the provided schema.

Rules:
- Synthesize the answer strictly from the customer's question and the knowledge base excerpts supplied below.
- If the excerpts do not cover the question, say you could not find the specific information; do not invent facts.
- Keep the answer short and phone-friendly.`

const summarizeSystemPrompt = `You summarize incoming customer support requests for a human supervisor. Output ONLY a single valid JSON object conforming to the provided schema. The summary must be one or two sentences and must include the caller's identifier.`

const reformatSystemPrompt = `You rewrite knowledge base answers to match the tone and formatting of an existing reference answer. Keep the meaning of the new answer intact; change only style, phrasing, and formatting. Output ONLY a single valid JSON object conforming to the provided schema.`

// buildSuggestPrompt constructs chat messages for answer suggestion,
// embedding up to maxContextEntries knowledge base excerpts.
func buildSuggestPrompt(question string, entries []store.KnowledgeBaseEntry) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(suggestSystemPrompt)

	if len(entries) > 0 {
		sb.WriteString("\n\n[Knowledge Base]")
		for _, e := range entries {
			fmt.Fprintf(&sb, "\nQ: %s\nA: %s", e.Question, e.Answer)
		}
	}

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: question},
	}
}

func buildSummarizePrompt(callerID, question string) []ollama.Message {
	return []ollama.Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Caller: %s\nQuestion: %s", callerID, question)},
	}
}

func buildReformatPrompt(styleReference, text string) []ollama.Message {
	return []ollama.Message{
		{Role: "system", Content: reformatSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("[Reference answer]\n%s\n\n[New answer to rewrite]\n%s", styleReference, text)},
	}
}

func suggestSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"suggested_answer": {Type: "string", Description: "The suggested answer to the customer's question"},
		},
		Required: []string{"suggested_answer"},
	}
}

func summarizeSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"summary": {Type: "string", Description: "One to two sentence summary including the caller identifier"},
		},
		Required: []string{"summary"},
	}
}

func reformatSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"reformatted": {Type: "string", Description: "The rewritten answer matching the reference style"},
		},
		Required: []string{"reformatted"},
	}
}

// relevantEntries filters the knowledge base down to entries whose question
// or answer shares text with the search query, case-insensitively. This is
// deliberately simple keyword matching, capped at maxContextEntries.
func relevantEntries(entries []store.KnowledgeBaseEntry, query string) []store.KnowledgeBaseEntry {
	q := strings.ToLower(query)
	var out []store.KnowledgeBaseEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Question), q) ||
			strings.Contains(strings.ToLower(e.Answer), q) ||
			strings.Contains(q, strings.ToLower(strings.TrimSpace(e.Question))) {
			out = append(out, e)
			if len(out) == maxContextEntries {
				break
			}
		}
	}
	if out == nil {
		// Nothing matched: fall back to the most recently updated entries so
		// the model still sees the house style and common facts.
		for i := 0; i < len(entries) && i < maxContextEntries; i++ {
			out = append(out, entries[i])
		}
	}
	return out
}
