package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

type echoTool struct {
	got    json.RawMessage
	result *domain.ToolResult
	err    error
}

func (e *echoTool) Name() string        { return "web_search" }
func (e *echoTool) Description() string { return "Search the web." }
func (e *echoTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:       "web_search",
		Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	}
}
func (e *echoTool) Examples() []string { return []string{"Search on internet"} }
func (e *echoTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	e.got = params
	return e.result, e.err
}

type toolList []domain.Tool

func (l toolList) List() []domain.Tool { return l }

func newTestServer(tools ...domain.Tool) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(config.MCPConfig{Name: "websearch", Version: "test"}, toolList(tools), logger)
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandlerPassesArgumentsAndReturnsText(t *testing.T) {
	tool := &echoTool{result: &domain.ToolResult{Content: "answer<br>References:<br>"}}
	s := newTestServer(tool)

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "web_search", Arguments: map[string]any{"query": "go"}}}
	res, err := s.handler(tool)(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "answer<br>References:<br>", callText(t, res))
	assert.JSONEq(t, `{"query":"go"}`, string(tool.got))
}

func TestHandlerMissingArguments(t *testing.T) {
	tool := &echoTool{result: &domain.ToolResult{Content: "ok"}}
	s := newTestServer(tool)

	_, err := s.handler(tool)(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(tool.got))
}

func TestHandlerToolErrorResult(t *testing.T) {
	tool := &echoTool{result: &domain.ToolResult{Content: "web search failed", IsError: true}}
	s := newTestServer(tool)

	res, err := s.handler(tool)(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "web search failed", callText(t, res))
}

func TestHandlerGoError(t *testing.T) {
	tool := &echoTool{err: errors.New("boom")}
	s := newTestServer(tool)

	res, err := s.handler(tool)(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "boom", callText(t, res))
}

func TestServerListsTools(t *testing.T) {
	s := newTestServer(&echoTool{})
	assert.Equal(t, []string{"web_search"}, s.Tools())

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"web_search"`)
	assert.Contains(t, string(data), "Search on internet")
}

func TestDescribeWithoutExamples(t *testing.T) {
	assert.Equal(t, "plain", describe(plainTool{}))
}

type plainTool struct{}

func (plainTool) Name() string              { return "plain" }
func (plainTool) Description() string       { return "plain" }
func (plainTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: "plain"} }
func (plainTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return &domain.ToolResult{}, nil
}
