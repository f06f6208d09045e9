package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nexuscore/agentrt/internal/agent"
	"github.com/nexuscore/agentrt/internal/agent/toolconv"
	"github.com/nexuscore/agentrt/internal/backoff"
)

// GoogleProvider implements agent.LLMProvider against Google's Gemini API
// via the Gen AI Go SDK, streaming responses through the SDK's Go 1.23
// iterator surface.
//
// Gemini does not assign tool-call ids, so the provider synthesizes one
// per function call; function-call arguments arrive whole rather than as
// fragments, and are relayed as a single ToolCallDelta carrying the full
// JSON payload.
type GoogleProvider struct {
	BaseProvider

	client       *genai.Client
	defaultModel string
}

// GoogleConfig configures a GoogleProvider. Only APIKey is required.
type GoogleConfig struct {
	APIKey       string
	MaxAttempts  int
	RetryPolicy  backoff.BackoffPolicy
	DefaultModel string
}

// NewGoogleProvider builds a provider from config, applying defaults for
// retry policy and default model.
func NewGoogleProvider(ctx context.Context, config GoogleConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		BaseProvider: NewBaseProvider("google", config.MaxAttempts, config.RetryPolicy),
		client:       client,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextSize: 1000000},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextSize: 1000000},
	}
}

func (p *GoogleProvider) SupportsTools() bool { return true }

func (p *GoogleProvider) ContextLimit(model string) int {
	target := p.getModel(model)
	for _, m := range p.Models() {
		if m.ID == target {
			return m.ContextSize
		}
	}
	return 1000000
}

func (p *GoogleProvider) EstimateTokens(messages []agent.CompletionMessage) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)/4 + len(msg.Role)/4
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name)/4 + len(tc.Input)/4
		}
	}
	return total
}

// Complete streams a Gemini response as CompletionChunks. Transient
// failures are retried with exponential backoff only while nothing has
// been relayed yet; once any chunk reaches the caller, a later failure is
// surfaced as an error chunk rather than silently replaying partial text.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("google: client not initialized")
	}

	model := p.getModel(req.Model)
	contents := p.convertMessages(req.Messages)
	cfg := p.buildConfig(req)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var emitted bool
		err := p.Retry(ctx, func(err error) bool {
			return !emitted && p.isRetryableError(err)
		}, func() error {
			stream := p.client.Models.GenerateContentStream(ctx, model, contents, cfg)
			return p.processStream(ctx, stream, chunks, &emitted)
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}
		chunks <- &agent.CompletionChunk{Done: true}
	}()

	return chunks, nil
}

// processStream consumes the SDK's response iterator, relaying text parts
// and converting each completed function call into one ToolCallDelta with
// the full argument payload.
func (p *GoogleProvider) processStream(ctx context.Context, stream iter.Seq2[*genai.GenerateContentResponse, error], chunks chan<- *agent.CompletionChunk, emitted *bool) error {
	for resp, err := range stream {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					*emitted = true
					chunks <- &agent.CompletionChunk{Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					*emitted = true
					chunks <- &agent.CompletionChunk{ToolCallDelta: &agent.ToolCallDelta{
						ID:           generateToolCallID(part.FunctionCall.Name),
						Name:         part.FunctionCall.Name,
						ArgsFragment: string(argsJSON),
					}}
				}
			}
		}
	}
	return nil
}

// convertMessages converts history into Gemini content. System messages
// are dropped (carried via SystemInstruction); a tool message becomes a
// user-role function response.
func (p *GoogleProvider) convertMessages(messages []agent.CompletionMessage) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		content := &genai.Content{Role: genai.RoleUser}

		switch msg.Role {
		case "assistant":
			content.Role = genai.RoleModel
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal(tc.Input, &args); err != nil {
					args = make(map[string]any)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
				})
			}

		case "tool":
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNameForCall(msg, messages),
					Response: response,
				},
			})

		default:
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result
}

func (p *GoogleProvider) buildConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		// #nosec G115 -- request sizes are nowhere near int32 range
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = toolconv.ToGeminiTools(req.Tools)
	}
	return config
}

func (p *GoogleProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *GoogleProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason.IsRetryable()
	}

	// The SDK surfaces Gemini's quota errors by message, not status.
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "resource exhausted") || strings.Contains(errMsg, "quota") {
		return true
	}
	return ClassifyError(err).IsRetryable()
}

func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	providerErr := NewProviderError("google", model, err)

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "401"), strings.Contains(errMsg, "unauthenticated"):
		providerErr = providerErr.WithStatus(http.StatusUnauthorized)
	case strings.Contains(errMsg, "403"), strings.Contains(errMsg, "permission denied"):
		providerErr = providerErr.WithStatus(http.StatusForbidden)
	case strings.Contains(errMsg, "429"), strings.Contains(errMsg, "resource exhausted"):
		providerErr = providerErr.WithStatus(http.StatusTooManyRequests)
	case strings.Contains(errMsg, "503"):
		providerErr = providerErr.WithStatus(http.StatusServiceUnavailable)
	}
	return providerErr
}

// generateToolCallID synthesizes an id for a Gemini function call, since
// the API does not provide one.
func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}

// toolNameForCall finds the tool name a tool message answers by matching
// its ToolCallID against earlier assistant tool calls.
func toolNameForCall(toolMsg agent.CompletionMessage, messages []agent.CompletionMessage) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolMsg.ToolCallID {
				return tc.Name
			}
		}
	}
	if toolMsg.Name != "" {
		return toolMsg.Name
	}
	parts := strings.Split(toolMsg.ToolCallID, "_")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
