// Package mcpserver exposes the host's registered tools over MCP stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

// ToolSource lists the tools to expose.
type ToolSource interface {
	List() []domain.Tool
}

// Server is an MCP server backed by host tools.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger
	tools  []string
}

// New builds an MCP server exposing every tool in src.
func New(cfg config.MCPConfig, src ToolSource, logger *slog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			cfg.Name,
			cfg.Version,
			server.WithToolCapabilities(true),
			server.WithInstructions("Use the web_search tool to answer questions from live web results."),
			server.WithRecovery(),
		),
		logger: logger,
	}
	for _, t := range src.List() {
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), describe(t), t.Schema().Parameters), s.handler(t))
		s.tools = append(s.tools, t.Name())
	}
	return s
}

// describe appends a tool's trigger examples to its description.
func describe(t domain.Tool) string {
	desc := t.Description()
	if it, ok := t.(domain.IntentTool); ok && len(it.Examples()) > 0 {
		desc += " Use for requests like: " + strings.Join(it.Examples(), "; ") + "."
	}
	return desc
}

// handler adapts t to an MCP tool handler. Tool failures become MCP error
// results; the protocol-level error is reserved for broken requests.
func (s *Server) handler(t domain.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if session := server.ClientSessionFromContext(ctx); session != nil {
			ctx = domain.ContextWithSessionID(ctx, session.SessionID())
		}

		params := json.RawMessage("{}")
		if req.Params.Arguments != nil {
			raw, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
			}
			params = raw
		}

		res, err := t.Execute(ctx, params)
		if err != nil {
			s.logger.Warn("mcp tool call failed", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// Tools returns the names of the exposed tools.
func (s *Server) Tools() []string { return s.tools }

// HandleMessage processes one JSON-RPC message.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

// Serve speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio", "tools", s.tools)
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
