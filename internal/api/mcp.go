package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helpline-dev/helpline/internal/lifecycle"
	"github.com/helpline-dev/helpline/internal/store"
)

// KnowledgeReader is the read side of the knowledge base.
// Implemented by kb.Resolver.
type KnowledgeReader interface {
	Lookup(ctx context.Context, question string) (string, bool, error)
	List(ctx context.Context) []store.KnowledgeBaseEntry
}

// MCPDeps holds dependencies for the MCP server. It mirrors AppDeps so a
// supervisor's agent gets the same capabilities as the HTTP surface.
type MCPDeps struct {
	Manager   *lifecycle.Manager
	KB        KnowledgeReader
	Suggester AnswerSuggester // optional; if nil, suggest_answer returns an error
}

// NewMCPServer creates an MCP server with the helpline tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"helpline",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("helpline — human-in-the-loop phone helpline: look up answers, review pending help requests, and resolve them as a supervisor."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("lookup_answer",
			mcp.WithDescription("Look up a stored answer for a caller question in the knowledge base."),
			mcp.WithString("question", mcp.Description("The question to look up"), mcp.Required()),
		),
		mcpLookupAnswer(deps),
	)

	s.AddTool(
		mcp.NewTool("pending_requests",
			mcp.WithDescription("List help requests waiting for a supervisor answer, newest first."),
		),
		mcpPendingRequests(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_request",
			mcp.WithDescription("Answer a pending help request as a supervisor. The answer is sent to the caller and saved into the knowledge base."),
			mcp.WithString("id", mcp.Description("Help request id"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The supervisor's answer"), mcp.Required()),
		),
		mcpResolveRequest(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest_answer",
			mcp.WithDescription("Draft an answer for a pending help request from the knowledge base. The draft still needs supervisor review."),
			mcp.WithString("id", mcp.Description("Help request id"), mcp.Required()),
		),
		mcpSuggestAnswer(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"helpline://knowledge-base",
			"Knowledge Base",
			mcp.WithResourceDescription("All learned question/answer pairs as JSON, most recently updated first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceKnowledgeBase(deps),
	)

	return s
}

func mcpLookupAnswer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, found, err := deps.KB.Lookup(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		if !found {
			return mcpText("No stored answer for that question."), nil
		}
		return mcpText(answer), nil
	}
}

func mcpPendingRequests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending := deps.Manager.List(ctx, store.StatusPending)
		if len(pending) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(pending)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal requests: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveRequest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		resolved, warnings, err := deps.Manager.Resolve(ctx, id, answer)
		if errors.Is(err, store.ErrNotPending) {
			return mcpError("help request is not pending (already resolved, timed out, or unknown id)"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to resolve: %v", err)), nil
		}

		text := fmt.Sprintf("Resolved %s: %q", resolved.ID, resolved.SupervisorAnswer)
		for _, warning := range warnings {
			text += "\nwarning: " + warning
		}
		return mcpText(text), nil
	}
}

func mcpSuggestAnswer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Suggester == nil {
			return mcpError("suggestions not available: no model configured"), nil
		}

		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		request, err := deps.Manager.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return mcpError("help request not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get help request: %v", err)), nil
		}

		return mcpText(deps.Suggester.Suggest(ctx, request.Question)), nil
	}
}

func mcpResourceKnowledgeBase(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries := deps.KB.List(ctx)
		if entries == nil {
			entries = []store.KnowledgeBaseEntry{}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal knowledge base: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
