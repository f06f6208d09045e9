package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexuscore/agentrt/pkg/models"
)

func toolCallOf(name, argsJSON string) models.ToolCall {
	return models.ToolCall{ID: "c1", Name: name, Input: json.RawMessage(argsJSON)}
}

type strictTool struct{}

func (strictTool) Name() string        { return "strict" }
func (strictTool) Description() string { return "requires a name field" }
func (strictTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
}

func TestRegisterValidatedRejectsMissingRequiredField(t *testing.T) {
	registry := NewToolRegistry()
	called := false
	if err := registry.RegisterValidated(strictTool{}, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		called = true
		return &ToolResult{Content: "ok"}, nil
	}); err != nil {
		t.Fatalf("RegisterValidated: %v", err)
	}

	result := registry.Dispatch(context.Background(), toolCallOf("strict", `{}`))
	if !result.IsError {
		t.Fatalf("expected validation failure, got %+v", result)
	}
	if called {
		t.Fatal("handler should not run when validation fails")
	}
}

func TestRegisterValidatedAllowsConformingArguments(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.RegisterValidated(strictTool{}, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: "ok"}, nil
	}); err != nil {
		t.Fatalf("RegisterValidated: %v", err)
	}

	result := registry.Dispatch(context.Background(), toolCallOf("strict", `{"name":"ada"}`))
	if result.IsError {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestRegisterValidatedRejectsUncompilableSchema(t *testing.T) {
	registry := NewToolRegistry()
	err := registry.RegisterValidated(badSchemaTool{}, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: "ok"}, nil
	})
	if err == nil {
		t.Fatal("expected an error compiling a malformed schema")
	}
}

type badSchemaTool struct{}

func (badSchemaTool) Name() string            { return "bad" }
func (badSchemaTool) Description() string     { return "" }
func (badSchemaTool) Schema() json.RawMessage { return json.RawMessage(`{not json`) }
