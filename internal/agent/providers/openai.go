package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nexuscore/agentrt/internal/agent"
	"github.com/nexuscore/agentrt/internal/agent/toolconv"
	"github.com/nexuscore/agentrt/internal/backoff"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements agent.LLMProvider against OpenAI's chat
// completions API.
type OpenAIProvider struct {
	BaseProvider

	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	MaxAttempts  int
	RetryPolicy  backoff.BackoffPolicy
	DefaultModel string
}

// NewOpenAIProvider creates a provider from config. An empty APIKey
// produces a provider whose Complete always fails — useful for wiring a
// provider slot without crashing a runtime that never calls it.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}
	p := &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", config.MaxAttempts, config.RetryPolicy),
		defaultModel: config.DefaultModel,
	}
	if config.APIKey != "" {
		p.client = openai.NewClient(config.APIKey)
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
		{ID: "gpt-4", Name: "GPT-4", ContextSize: 8192},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385},
	}
}

func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) ContextLimit(model string) int {
	target := p.getModel(model)
	for _, m := range p.Models() {
		if m.ID == target {
			return m.ContextSize
		}
	}
	return 128000
}

func (p *OpenAIProvider) EstimateTokens(messages []agent.CompletionMessage) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)/4 + len(msg.Role)/4
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name)/4 + len(tc.Input)/4
		}
	}
	return total
}

// Complete opens a streaming chat completion, retrying stream-open
// failures with exponential backoff before handing the stream off to
// processStream.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.getModel(req.Model),
		Messages: p.convertMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, p.isRetryableError, func() error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

// processStream converts OpenAI's per-choice streaming deltas into
// CompletionChunks, accumulating tool-call argument fragments by their
// stream index so a partial id/name pair only needs to arrive once.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	ids := make(map[int]string)

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				chunks <- &agent.CompletionChunk{Done: true}
				return
			}
			chunks <- &agent.CompletionChunk{Error: err}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			id := ids[index]
			if tc.ID != "" {
				id = tc.ID
				ids[index] = id
			}
			chunks <- &agent.CompletionChunk{ToolCallDelta: &agent.ToolCallDelta{
				ID:           id,
				Name:         tc.Function.Name,
				ArgsFragment: tc.Function.Arguments,
			}}
		}
	}
}

// convertMessages converts history (plus an optional leading system
// prompt) into OpenAI's chat message shape. A tool-role message maps
// directly to OpenAI's tool role, answering by ToolCallID.
func (p *OpenAIProvider) convertMessages(messages []agent.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue

		case "tool":
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(tc.Input)},
				})
			}
			result = append(result, oaiMsg)

		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}

	return result
}

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *OpenAIProvider) isRetryableError(err error) bool {
	return ClassifyError(err).IsRetryable()
}
