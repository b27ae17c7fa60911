// Package mcpserver exposes the orchestrator's operations as MCP tools.
//
// This is a composition root: handlers parse arguments, call the
// orchestrator, and format results. No memory logic lives here, and
// handlers never touch the offline queue directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/perchdata/membank/internal/backend"
	"github.com/perchdata/membank/internal/model"
	"github.com/perchdata/membank/internal/session"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with all memory tools registered.
func New(mgr *session.Manager) *server.MCPServer {
	s := server.NewMCPServer(
		"membank",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	h := &handlers{mgr: mgr}

	s.AddTool(mcp.NewTool("memory_recall",
		mcp.WithDescription("Search long-term memories for this project. Works offline with reduced ranking."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to search for")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithString("fact_type", mcp.Description("Restrict to one fact type: world, experience, opinion, observation")),
	), h.recall)

	s.AddTool(mcp.NewTool("memory_reflect",
		mcp.WithDescription("Ask the memory backend to reason over stored memories. Requires a connection."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to reflect on")),
	), h.reflect)

	s.AddTool(mcp.NewTool("memory_retain",
		mcp.WithDescription("Store content in long-term memory."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Content to remember")),
		mcp.WithString("context", mcp.Description("Where this came from")),
		mcp.WithString("fact_type", mcp.Description("world, experience, opinion, or observation")),
	), h.retain)

	s.AddTool(mcp.NewTool("memory_signal",
		mcp.WithDescription("Report whether a previously recalled memory was useful."),
		mcp.WithString("fact_id", mcp.Required(), mcp.Description("Id of the recalled memory")),
		mcp.WithString("signal_type", mcp.Required(), mcp.Description("used, helpful, unhelpful, or outdated")),
		mcp.WithNumber("weight", mcp.Description("Optional signal weight")),
	), h.signal)

	s.AddTool(mcp.NewTool("memory_status",
		mcp.WithDescription("Report connectivity state and offline queue statistics."),
	), h.status)

	return s
}

// ServeStdio runs the MCP server on stdin/stdout until the client hangs up.
func ServeStdio(mgr *session.Manager) error {
	return server.ServeStdio(New(mgr))
}

type handlers struct {
	mgr *session.Manager
}

func (h *handlers) recall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items, err := h.mgr.Recall(ctx, query, backend.RecallOptions{
		Limit:    req.GetInt("limit", 10),
		FactType: model.FactType(req.GetString("fact_type", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("No memories matched."), nil
	}
	return jsonResult(items)
}

func (h *handlers) reflect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	refl, err := h.mgr.Reflect(ctx, query)
	if err != nil {
		if errors.Is(err, session.ErrRequiresConnection) {
			return mcp.NewToolResultError("reflection requires a backend connection; currently degraded"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(refl)
}

func (h *handlers) retain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := h.mgr.Retain(ctx, content,
		req.GetString("context", ""),
		model.FactType(req.GetString("fact_type", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Queued {
		return mcp.NewToolResultText("Backend unreachable; memory queued for later sync."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stored %d memory item(s).", res.Stored)), nil
}

func (h *handlers) signal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	factID, err := req.RequireString("fact_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	signalType, err := req.RequireString("signal_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	queued, err := h.mgr.Signal(ctx, []model.FeedbackSignal{{
		FactID:     factID,
		SignalType: signalType,
		Weight:     req.GetFloat("weight", 0),
	}})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if queued {
		return mcp.NewToolResultText("Backend unreachable; signal queued for later sync."), nil
	}
	return mcp.NewToolResultText("Signal delivered."), nil
}

func (h *handlers) status(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.mgr.Queue().Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"state": h.mgr.State().String(),
		"queue": stats,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
