package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nexuscore/agentrt/pkg/models"
)

// ToolRegistry maps tool names to their (Tool, Handler) binding. Reads are
// concurrent; writes (Register/Unregister) take an exclusive lock. Writes
// are rare in practice — setup time and MCP peer connect.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	handlers map[string]Handler
}

// Tool parameter limits, guarding against resource exhaustion from a
// misbehaving or adversarial tool call.
const (
	MaxToolNameLength  = 256
	MaxToolParamsBytes = 10 << 20
)

// NewToolRegistry creates an empty registry ready for registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:    make(map[string]Tool),
		handlers: make(map[string]Handler),
	}
}

// Register inserts or replaces a tool binding by tool.Name().
func (r *ToolRegistry) Register(tool Tool, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.handlers[tool.Name()] = handler
}

// Unregister removes a tool binding by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.handlers, name)
}

// Get returns a tool by exact name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// boundPair is a resolved (Tool, Handler) binding returned by ResolveTools.
type boundPair struct {
	Tool    Tool
	Handler Handler
}

// ResolveTools returns, in input order, the bindings reachable by each
// name: an exact match wins over a glob; an unmatched "prefix*" glob
// expands to every registered name starting with prefix, sorted
// lexically. Unknown literal names and unmatched globs are skipped.
// Results are deduplicated by tool name, preserving first occurrence.
func (r *ToolRegistry) ResolveTools(names []string) []boundPair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(names))
	var out []boundPair

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		tool, ok := r.tools[name]
		if !ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, boundPair{Tool: tool, Handler: r.handlers[name]})
	}

	for _, name := range names {
		// Exact match always wins over any glob with the same text.
		if _, ok := r.tools[name]; ok {
			add(name)
			continue
		}
		if !strings.HasSuffix(name, "*") {
			slog.Warn("skipping unknown tool name", "name", name)
			continue
		}
		prefix := strings.TrimSuffix(name, "*")
		var matches []string
		for candidate := range r.tools {
			if strings.HasPrefix(candidate, prefix) {
				matches = append(matches, candidate)
			}
		}
		if len(matches) == 0 {
			slog.Warn("tool glob matched nothing", "pattern", name)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out
}

// Resolve is ResolveTools, returning only the Tool schemas.
func (r *ToolRegistry) Resolve(names []string) []Tool {
	pairs := r.ResolveTools(names)
	tools := make([]Tool, 0, len(pairs))
	for _, p := range pairs {
		tools = append(tools, p.Tool)
	}
	return tools
}

// Dispatch invokes the handler bound to toolCall.Name with toolCall.Input.
// A missing name or a handler error is never returned to the caller: both
// are serialized into the tool-message content that answers the call, per
// the runtime's recovered tool-dispatch error policy.
func (r *ToolRegistry) Dispatch(ctx context.Context, call models.ToolCall) models.ToolResult {
	if len(call.Name) > MaxToolNameLength {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError:    true,
		}
	}
	if len(call.Input) > MaxToolParamsBytes {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool arguments exceed maximum size of %d bytes", MaxToolParamsBytes),
			IsError:    true,
		}
	}

	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		err := &ToolDispatchError{ToolName: call.Name, ToolCallID: call.ID}
		return models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	result, err := handler(ctx, call.Input)
	if err != nil {
		dispatchErr := &ToolDispatchError{ToolName: call.Name, ToolCallID: call.ID, Cause: err}
		return models.ToolResult{ToolCallID: call.ID, Content: dispatchErr.Error(), IsError: true}
	}
	return models.ToolResult{ToolCallID: call.ID, Content: result.Content, IsError: result.IsError}
}

// RegisterRemember wires the automatic "remember" tool that stores a
// {key, value} pair through the given memory adapter. Called once when
// memory is configured on the runtime; schema matches invariant 4 of the
// data model.
func RegisterRemember(registry *ToolRegistry, store func(ctx context.Context, key, value string) error) {
	tool := rememberTool{}
	registry.Register(tool, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		var args struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			return &ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
		}
		if args.Key == "" {
			return &ToolResult{Content: "key is required", IsError: true}, nil
		}
		if err := store(ctx, args.Key, args.Value); err != nil {
			return nil, err
		}
		return &ToolResult{Content: "remembered"}, nil
	})
}

type rememberTool struct{}

func (rememberTool) Name() string        { return "remember" }
func (rememberTool) Description() string { return "Stores a durable fact as a key/value pair." }
func (rememberTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"key": {"type": "string"},
			"value": {"type": "string"}
		},
		"required": ["key", "value"]
	}`)
}
