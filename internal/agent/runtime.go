// Package agent implements the agent execution runtime: the composition
// layer that drives a stateless LLM provider through tool-calling rounds,
// injects memory and skill context, and exposes named agents to callers.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/agentrt/internal/sessions"
	"github.com/nexuscore/agentrt/pkg/models"
)

// Runtime owns every piece of mutable state for a set of named agents:
// the tool registry, the session store, the prompt assembler, and an
// optional compactor. Multiple Runtimes may coexist in one process —
// there is no global mutable state (see design notes).
//
// Example usage:
//
//	rt := agent.NewRuntime(provider, sessions.NewMemoryStore())
//	rt.RegisterAgent(models.AgentConfig{Name: "echo", SystemPrompt: "reply OK"})
//	text, err := rt.SendTo(ctx, "echo", "hi")
type Runtime struct {
	provider  LLMProvider
	tools     *ToolRegistry
	sessions  *sessions.MemoryStore
	assembler *PromptAssembler
	compactor Compactor
	diagSink  DiagnosticSink

	mu     sync.RWMutex
	agents map[string]models.AgentConfig
}

// NewRuntime constructs a Runtime with an empty tool registry and no
// memory, skills, or compactor configured. Use With* to attach them.
func NewRuntime(provider LLMProvider, store *sessions.MemoryStore) *Runtime {
	if store == nil {
		store = sessions.NewMemoryStore()
	}
	return &Runtime{
		provider:  provider,
		tools:     NewToolRegistry(),
		sessions:  store,
		assembler: NewPromptAssembler(nil, nil),
		agents:    make(map[string]models.AgentConfig),
	}
}

// MemoryAdapter is the capability set WithMemory requires: compiling
// relevant context for prompt injection, and writing through the
// automatic "remember" tool.
type MemoryAdapter interface {
	MemorySource
	Remember(ctx context.Context, key, value string) error
}

// WithMemory attaches a memory adapter: the automatic "remember" tool is
// registered, and the prompt assembler starts injecting <memory> blocks.
func (rt *Runtime) WithMemory(mem MemoryAdapter) *Runtime {
	rt.assembler = NewPromptAssembler(mem, rt.assembler.skills)
	RegisterRemember(rt.tools, mem.Remember)
	return rt
}

// WithSkills attaches a skill registry; the prompt assembler starts
// matching and injecting skill bodies.
func (rt *Runtime) WithSkills(skills SkillSource) *Runtime {
	rt.assembler = NewPromptAssembler(rt.assembler.memory, skills)
	return rt
}

// WithCompactor attaches the two-turn compaction protocol implementation.
func (rt *Runtime) WithCompactor(c Compactor) *Runtime {
	rt.compactor = c
	return rt
}

// WithDiagnostics attaches the out-of-band diagnostics sink.
func (rt *Runtime) WithDiagnostics(sink DiagnosticSink) *Runtime {
	rt.diagSink = sink
	return rt
}

func (rt *Runtime) diag() DiagnosticSink {
	if rt.diagSink == nil {
		return NopDiagnosticSink{}
	}
	return rt.diagSink
}

// RegisterTool inserts or replaces a tool binding, available to any agent
// whose tool_names reaches it by exact name or glob.
func (rt *Runtime) RegisterTool(tool Tool, handler Handler) {
	rt.tools.Register(tool, handler)
}

// Tools returns the runtime's tool registry, e.g. for an MCP bridge to
// register its peers' tools into, or a team composer to add worker tools.
func (rt *Runtime) Tools() *ToolRegistry { return rt.tools }

// Sessions returns the runtime's session store.
func (rt *Runtime) Sessions() *sessions.MemoryStore { return rt.sessions }

// Provider returns the runtime's configured LLM provider.
func (rt *Runtime) Provider() LLMProvider { return rt.provider }

// RegisterAgent registers (or replaces) a named agent's immutable
// configuration. Registering an agent does not create its session —
// sessions are created lazily on first send_to/stream_to.
func (rt *Runtime) RegisterAgent(cfg models.AgentConfig) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.agents[cfg.Name] = cfg
}

// AgentConfig returns the registered configuration for name.
func (rt *Runtime) AgentConfig(name string) (models.AgentConfig, error) {
	return rt.agentConfig(name)
}

func (rt *Runtime) agentConfig(name string) (models.AgentConfig, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	cfg, ok := rt.agents[name]
	if !ok {
		return models.AgentConfig{}, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return cfg, nil
}

// ClearSession drops all non-system history for agentName.
func (rt *Runtime) ClearSession(ctx context.Context, agentName string) error {
	return rt.sessions.Clear(ctx, agentName)
}

// prepareTurn loads/creates the session, assembles this turn's system
// prompt, overwrites the session's system message, appends the user
// message, and resolves the effective tool schema list.
func (rt *Runtime) prepareTurn(ctx context.Context, agentName, userText string) ([]Tool, error) {
	cfg, err := rt.agentConfig(agentName)
	if err != nil {
		return nil, err
	}

	sess, err := rt.sessions.GetOrCreate(ctx, agentName, cfg.SystemPrompt)
	if err != nil {
		return nil, err
	}

	assembled := rt.assembler.Assemble(ctx, cfg, userText, rt.diag())
	if len(sess.History) > 0 && sess.History[0].Role == models.RoleSystem {
		sess.History[0].Content = assembled.SystemPrompt
	}

	if err := rt.sessions.Append(ctx, agentName, models.Message{Role: models.RoleUser, Content: userText}); err != nil {
		return nil, err
	}

	toolNames := append(append([]string(nil), cfg.ToolNames...), assembled.ExtraToolNames...)
	return rt.tools.Resolve(toolNames), nil
}

// SendTo runs the non-streaming execution loop for agentName with
// userMessage and returns the final assistant text.
func (rt *Runtime) SendTo(ctx context.Context, agentName, userMessage string) (string, error) {
	unlock := rt.sessions.Lock(agentName)
	defer unlock()

	tools, err := rt.prepareTurn(ctx, agentName, userMessage)
	if err != nil {
		return "", err
	}

	return rt.runRounds(ctx, agentName, CompletionRequest{Tools: tools})
}

// StreamTo runs the streaming execution loop for agentName with
// userMessage, returning a channel of StreamChunks. The session
// lock is held for the lifetime of the returned channel and released once
// it is drained to closure or the caller's context is cancelled.
func (rt *Runtime) StreamTo(ctx context.Context, agentName, userMessage string) (<-chan *StreamChunk, error) {
	unlock := rt.sessions.Lock(agentName)

	tools, err := rt.prepareTurn(ctx, agentName, userMessage)
	if err != nil {
		unlock()
		return nil, err
	}

	req := CompletionRequest{Tools: tools}
	produced := rt.streamRounds(ctx, agentName, req)

	out := make(chan *StreamChunk)
	go func() {
		defer close(out)
		defer unlock()
		for chunk := range produced {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
