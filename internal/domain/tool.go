package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID  string `json:"tool_call_id"`
	Content     string `json:"content"`
	IsError     bool   `json:"is_error"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
	// ReturnDirect asks the host to hand Content to the user as the final
	// answer instead of feeding it back to the model.
	ReturnDirect bool `json:"return_direct,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// IntentTool is implemented by tools that publish natural-language trigger
// examples the host uses to route user intent to the tool.
type IntentTool interface {
	Tool
	Examples() []string
}

// ToolExecutor abstracts tool lookup and execution.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}

// ToolRegistrar is the slice of the host's tool registry handed to plugins.
type ToolRegistrar interface {
	Register(t Tool) error
}

// DirectTool is implemented by tools whose output is the final answer for
// the user rather than input for another model turn.
type DirectTool interface {
	Tool
	ReturnDirect() bool
}
