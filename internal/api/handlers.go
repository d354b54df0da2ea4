// Package api exposes the helpline over HTTP and MCP: the supervisor
// surface (help requests, resolution, suggestions, knowledge base) and a
// call-injection endpoint that drives the agent directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helpline-dev/helpline/internal/agent"
	"github.com/helpline-dev/helpline/internal/kb"
	"github.com/helpline-dev/helpline/internal/lifecycle"
	"github.com/helpline-dev/helpline/internal/store"
	"github.com/helpline-dev/helpline/internal/transport"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AnswerSuggester proposes a draft answer for a pending question.
// Implemented by suggest.Suggester.
type AnswerSuggester interface {
	Suggest(ctx context.Context, question string) string
}

// AppDeps holds the collaborators the HTTP handlers need.
type AppDeps struct {
	Manager   *lifecycle.Manager
	KB        *kb.Resolver
	Suggester AnswerSuggester // optional; if nil, suggestions are unavailable
	Token     string          // optional; if empty, auth is disabled
}

// NewAppHandler builds the HTTP router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/help-requests", handleCreateHelpRequest(deps))
		r.Get("/help-requests", handleListHelpRequests(deps))
		r.Get("/help-requests/{id}", handleGetHelpRequest(deps))
		r.Post("/help-requests/{id}/resolve", handleResolveHelpRequest(deps))
		r.Get("/help-requests/{id}/suggest", handleSuggestAnswer(deps))
		r.Get("/knowledge-base", handleListKnowledgeBase(deps))
		r.Get("/knowledge-base/lookup", handleLookupAnswer(deps))
		r.Post("/calls", handleInjectCall(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type createHelpRequestBody struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	Question string `json:"question"`
}

func handleCreateHelpRequest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body createHelpRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		req, err := deps.Manager.Create(r.Context(), body.CallID, body.CallerID, body.Question)
		if errors.Is(err, lifecycle.ErrValidation) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create help request: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(req)
	}
}

func handleListHelpRequests(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := store.Status(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", status)
			return
		}

		reqs := deps.Manager.List(r.Context(), status)
		if reqs == nil {
			reqs = []store.HelpRequest{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reqs)
	}
}

func handleGetHelpRequest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		req, err := deps.Manager.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "help request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get help request: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(req)
	}
}

type resolveBody struct {
	Answer string `json:"answer"`
}

// resolveResponse carries the resolved request plus any follow-up
// warnings (failed write-back or caller notification).
type resolveResponse struct {
	Request  store.HelpRequest `json:"request"`
	Warnings []string          `json:"warnings,omitempty"`
}

func handleResolveHelpRequest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")

		var body resolveBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		req, warnings, err := deps.Manager.Resolve(r.Context(), id, body.Answer)
		switch {
		case errors.Is(err, lifecycle.ErrValidation):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, store.ErrNotPending):
			// Already resolved, timed out, or unknown id. A conflict,
			// not a server fault: retrying will not help.
			httpError(w, http.StatusConflict, "conflict", "help request is not pending")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve help request: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resolveResponse{Request: req, Warnings: warnings})
	}
}

func handleSuggestAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Suggester == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "suggestions not available: no model configured")
			return
		}

		id := chi.URLParam(r, "id")
		req, err := deps.Manager.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "help request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get help request: %v", err)
			return
		}

		suggestion := deps.Suggester.Suggest(r.Context(), req.Question)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"requestId":       req.ID,
			"question":        req.Question,
			"suggestedAnswer": suggestion,
		})
	}
}

func handleListKnowledgeBase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := deps.KB.List(r.Context())
		if entries == nil {
			entries = []store.KnowledgeBaseEntry{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func handleLookupAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		question := r.URL.Query().Get("question")
		if question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		answer, found, err := deps.KB.Lookup(r.Context(), question)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "lookup failed: %v", err)
			return
		}

		resp := map[string]any{"found": found}
		if found {
			resp["answer"] = answer
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type injectCallBody struct {
	CallerID string `json:"callerId"`
	Question string `json:"question"`
}

// recordedCall is a single-call transport that captures what the agent
// said and did so the handler can report it back.
type recordedCall struct {
	response string
	hungUp   bool
}

func (c *recordedCall) Receive(ctx context.Context) (transport.Call, error) {
	return transport.Call{}, errors.New("recorded call does not receive")
}

func (c *recordedCall) Respond(ctx context.Context, callID, text string) error {
	c.response = text
	return nil
}

func (c *recordedCall) HangUp(ctx context.Context, callID string) error {
	c.hungUp = true
	return nil
}

// handleInjectCall feeds one synthetic call through the agent flow:
// answered from the knowledge base or escalated to a supervisor.
func handleInjectCall(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body injectCallBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if body.CallerID == "" || body.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "callerId and question are required")
			return
		}

		call := transport.Call{
			ID:       uuid.New().String(),
			CallerID: body.CallerID,
			Question: body.Question,
		}

		line := &recordedCall{}
		a := agent.New(line, deps.KB, deps.Manager)
		if err := a.HandleCall(r.Context(), call); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "call handling failed: %v", err)
			return
		}

		// An escalated call shows up as a pending request for this call id.
		var requestID string
		for _, req := range deps.Manager.List(r.Context(), "") {
			if req.CallID == call.ID {
				requestID = req.ID
				break
			}
		}

		resp := map[string]any{
			"callId":    call.ID,
			"response":  line.response,
			"escalated": requestID != "",
		}
		if requestID != "" {
			resp["requestId"] = requestID
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
