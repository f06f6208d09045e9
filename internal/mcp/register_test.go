package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nexuscore/agentrt/internal/agent"
	"github.com/nexuscore/agentrt/pkg/models"
)

func TestRegisterListedToolsNamespacesByPeer(t *testing.T) {
	registry := agent.NewToolRegistry()
	listed := []mcp.Tool{
		{Name: "search", Description: "search the docs", InputSchema: mcp.ToolInputSchema{Type: "object"}},
		{Name: "fetch", Description: "fetch a page", InputSchema: mcp.ToolInputSchema{Type: "object"}},
	}

	var calledWith string
	call := func(ctx context.Context, toolName string, args json.RawMessage) (*agent.ToolResult, error) {
		calledWith = toolName
		return &agent.ToolResult{Content: "peer says hi"}, nil
	}
	if err := registerListedTools(registry, "docs", listed, call); err != nil {
		t.Fatalf("registerListedTools: %v", err)
	}

	if _, ok := registry.Get("mcp:docs:search"); !ok {
		t.Fatal("expected namespaced tool mcp:docs:search")
	}
	if _, ok := registry.Get("search"); ok {
		t.Fatal("bare tool name must not be registered")
	}

	// Dispatch goes through the namespaced name but reaches the peer with
	// the peer-local tool name.
	result := registry.Dispatch(context.Background(), models.ToolCall{
		ID:    "c1",
		Name:  "mcp:docs:fetch",
		Input: json.RawMessage(`{"url":"https://example.com"}`),
	})
	if result.IsError || result.Content != "peer says hi" {
		t.Fatalf("unexpected dispatch result: %+v", result)
	}
	if calledWith != "fetch" {
		t.Fatalf("peer must receive the un-namespaced name, got %q", calledWith)
	}
}

func TestRegisterListedToolsGlobMatchesOnePeer(t *testing.T) {
	registry := agent.NewToolRegistry()
	call := func(ctx context.Context, toolName string, args json.RawMessage) (*agent.ToolResult, error) {
		return &agent.ToolResult{Content: "ok"}, nil
	}
	_ = registerListedTools(registry, "a", []mcp.Tool{{Name: "search"}}, call)
	_ = registerListedTools(registry, "b", []mcp.Tool{{Name: "search"}}, call)

	tools := registry.Resolve([]string{"mcp:a:*"})
	if len(tools) != 1 || tools[0].Name() != "mcp:a:search" {
		t.Fatalf("glob over one peer's namespace must not leak the other's, got %+v", tools)
	}
}

func TestToToolResultConcatenatesTextContent(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "line one"},
			mcp.TextContent{Type: "text", Text: "line two"},
		},
		IsError: true,
	}
	result := toToolResult(resp)
	if result.Content != "line one\nline two" {
		t.Fatalf("text blocks must join with newlines, got %q", result.Content)
	}
	if !result.IsError {
		t.Fatal("error flag must carry through")
	}
}
