// Package mcp implements an external tool bridge: a thin wrapper
// around a stdio-connected MCP peer, exposing its tools as agent.Tool
// bindings the tool registry can dispatch like any local tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nexuscore/agentrt/internal/agent"
)

// Peer is one connected MCP server reached over stdio. The lock serializes
// access to the underlying client connection across a single request's
// round trip only — a long tool call does not hold the lock for its whole
// duration beyond the in-flight request/response pair the client library
// itself performs.
type Peer struct {
	name   string
	client *mcpclient.Client

	mu sync.Mutex
}

// ConnectStdio launches command as a subprocess MCP server, performs the
// initialize handshake, and returns a connected Peer.
func ConnectStdio(ctx context.Context, name, command string, args []string, env map[string]string) (*Peer, error) {
	envPairs := make([]string, 0, len(env))
	for k, v := range env {
		envPairs = append(envPairs, fmt.Sprintf("%s=%s", k, v))
	}

	client, err := mcpclient.NewStdioMCPClient(command, envPairs, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect_stdio %q: %w", name, err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start %q: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentrt", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, fmt.Errorf("mcp: initialize %q: %w", name, err)
	}

	return &Peer{name: name, client: client}, nil
}

// Tools lists the peer's currently advertised tools.
func (p *Peer) Tools(ctx context.Context) ([]mcp.Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp, err := p.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: tools %q: %w", p.name, err)
	}
	return resp.Tools, nil
}

// Call invokes a tool by name with raw JSON arguments, serializing access
// to the peer's connection for the request/response round trip.
func (p *Peer) Call(ctx context.Context, toolName string, args json.RawMessage) (*agent.ToolResult, error) {
	var argMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return &agent.ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = argMap

	p.mu.Lock()
	resp, err := p.client.CallTool(ctx, req)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("mcp: call %q on %q: %w", toolName, p.name, err)
	}

	return toToolResult(resp), nil
}

func toToolResult(resp *mcp.CallToolResult) *agent.ToolResult {
	var text string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return &agent.ToolResult{Content: text, IsError: resp.IsError}
}

// Close releases the peer's subprocess and connection.
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.Close()
}
