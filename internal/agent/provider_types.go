package agent

import (
	"context"
	"encoding/json"

	"github.com/nexuscore/agentrt/pkg/models"
)

// LLMProvider is the capability set the runtime requires of a language
// model backend. Implementations handle the specifics of talking to a
// concrete API (Anthropic, OpenAI, ...) while presenting this single
// streaming interface to the execution loop.
//
// Thread Safety: implementations must be safe for concurrent use. Multiple
// goroutines may call Complete simultaneously for different requests.
//
// See Also:
//   - providers.AnthropicProvider for Anthropic Claude
//   - providers.OpenAIProvider for OpenAI GPT
type LLMProvider interface {
	// Complete sends a prompt and returns a channel of streamed chunks.
	// Non-streaming callers drain the channel to a single assistant message;
	// the runtime never special-cases "non-streaming" at the provider level.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name, used in diagnostics.
	Name() string

	// Models returns the models this provider exposes.
	Models() []Model

	// SupportsTools reports whether the provider can be handed tool schemas.
	SupportsTools() bool

	// ContextLimit returns the max-token context window for the given
	// model (or the provider default if model is empty).
	ContextLimit(model string) int

	// EstimateTokens returns a cheap, conservative token estimate for a
	// message history, used to decide when to trigger compaction.
	EstimateTokens(messages []CompletionMessage) int
}

// CompletionRequest carries everything needed for one provider turn: the
// conversation history, system prompt, available tools, and generation
// parameters.
//
// Example:
//
//	req := &CompletionRequest{
//	    Model:    "claude-sonnet-4-20250514",
//	    System:   "You are a helpful assistant.",
//	    Messages: []CompletionMessage{{Role: "user", Content: "hi"}},
//	}
type CompletionRequest struct {
	Model     string               `json:"model"`
	System    string               `json:"system,omitempty"`
	Messages  []CompletionMessage  `json:"messages"`
	Tools     []Tool               `json:"tools,omitempty"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

// CompletionMessage is a single provider-facing turn, shaped to cover
// user/assistant/tool roles without a dependency on the session package.
type CompletionMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

// CompletionChunk is a single chunk in a streamed provider response.
//
// Processing example:
//
//	for chunk := range chunks {
//	    switch {
//	    case chunk.Error != nil:
//	        return chunk.Error
//	    case chunk.ToolCallDelta != nil:
//	        accumulateToolCall(chunk.ToolCallDelta)
//	    case chunk.Text != "":
//	        fmt.Print(chunk.Text)
//	    case chunk.Done:
//	    }
//	}
type CompletionChunk struct {
	Text          string         `json:"text,omitempty"`
	ToolCallDelta *ToolCallDelta `json:"tool_call_delta,omitempty"`
	Thinking      string         `json:"thinking,omitempty"`
	Done          bool           `json:"done,omitempty"`
	Error         error          `json:"-"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ToolCallDelta is an incremental fragment of a tool call's arguments,
// keyed by call id so the streaming loop can accumulate fragments that
// arrive out of band with text deltas.
type ToolCallDelta struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	ArgsFragment string `json:"args_fragment,omitempty"`
}

// Model describes an available LLM model and its capabilities.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Tool is the interface an executable agent tool satisfies. A tool's
// identity is its Name; the registry owns the binding between Tool and
// Handler.
//
// Implementing a Tool:
//
//	type Clock struct{}
//
//	func (c *Clock) Name() string        { return "now" }
//	func (c *Clock) Description() string { return "Returns the current time" }
//	func (c *Clock) Schema() json.RawMessage {
//	    return json.RawMessage(`{"type":"object","properties":{}}`)
//	}
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
}

// Handler is the asynchronous procedure that executes a tool call and
// produces its textual result. The registry owns the handler; dispatch
// borrows it for the duration of one call.
type Handler func(ctx context.Context, params json.RawMessage) (*ToolResult, error)

// ToolResult is the output of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// StreamChunk is the tagged-variant shape yielded by the streaming loop.
// Exactly one field is meaningful per chunk; callers switch on Kind.
type StreamChunk struct {
	Kind StreamChunkKind

	Text         string
	ToolCallID   string
	ToolCallName string
	ArgsFragment string
	Thinking     string
	FinishReason string
	Error        error
}

// StreamChunkKind tags the variant of a StreamChunk.
type StreamChunkKind string

const (
	ChunkText          StreamChunkKind = "text"
	ChunkToolCallDelta StreamChunkKind = "tool_call_delta"
	ChunkThinking      StreamChunkKind = "thinking"
	ChunkFinish        StreamChunkKind = "finish"
	ChunkSeparator     StreamChunkKind = "separator"
	ChunkError         StreamChunkKind = "error"
)
