package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nexuscore/agentrt/internal/agent"
)

// peerTool adapts one MCP tool listing to agent.Tool.
type peerTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (t peerTool) Name() string            { return t.name }
func (t peerTool) Description() string     { return t.description }
func (t peerTool) Schema() json.RawMessage { return t.schema }

// callFunc routes one tool invocation to its owning peer.
type callFunc func(ctx context.Context, toolName string, args json.RawMessage) (*agent.ToolResult, error)

// RegisterTools lists peer's tools and registers each as an agent.Tool on
// registry, namespaced "mcp:<peer>:<tool>" so identically-named tools on
// different peers never collide.
func RegisterTools(ctx context.Context, registry *agent.ToolRegistry, peer *Peer, peerName string) error {
	tools, err := peer.Tools(ctx)
	if err != nil {
		return err
	}
	return registerListedTools(registry, peerName, tools, peer.Call)
}

// registerListedTools binds each listed tool to a handler delegating to
// call with the peer-local (un-namespaced) tool name.
func registerListedTools(registry *agent.ToolRegistry, peerName string, tools []mcp.Tool, call callFunc) error {
	for _, mt := range tools {
		schema, err := json.Marshal(mt.InputSchema)
		if err != nil {
			return fmt.Errorf("mcp: marshal schema for %q: %w", mt.Name, err)
		}
		toolName := mt.Name
		registry.Register(peerTool{
			name:        fmt.Sprintf("mcp:%s:%s", peerName, mt.Name),
			description: mt.Description,
			schema:      schema,
		}, func(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
			return call(ctx, toolName, params)
		})
	}
	return nil
}
