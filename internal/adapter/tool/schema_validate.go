package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"websearch/internal/domain"
)

// SchemaValidatingTool wraps a Tool and validates params against the tool's
// JSON Schema before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps t with param validation. Tools without a schema
// are returned unchanged.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

// Examples forwards the inner tool's trigger examples, if any.
func (s *SchemaValidatingTool) Examples() []string {
	if it, ok := s.inner.(domain.IntentTool); ok {
		return it.Examples()
	}
	return nil
}

// ReturnDirect forwards the inner tool's flag.
func (s *SchemaValidatingTool) ReturnDirect() bool {
	if dt, ok := s.inner.(domain.DirectTool); ok {
		return dt.ReturnDirect()
	}
	return false
}

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return ErrResult("invalid JSON: %v", err), nil
	}

	if err := s.schema.Validate(v); err != nil {
		return ErrResult("schema validation failed: %v", err), nil
	}

	return s.inner.Execute(ctx, params)
}

var (
	_ domain.IntentTool = (*SchemaValidatingTool)(nil)
	_ domain.DirectTool = (*SchemaValidatingTool)(nil)
)
