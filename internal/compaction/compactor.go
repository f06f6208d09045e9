package compaction

import (
	"context"
	"fmt"

	"github.com/nexuscore/agentrt/internal/agent"
	"github.com/nexuscore/agentrt/internal/sessions"
	"github.com/nexuscore/agentrt/pkg/models"
)

// TriggerRatio is the fraction of a model's context window at which
// compaction fires: history estimated at or above 80% of context_limit
// triggers the two-turn protocol at the next round boundary.
const TriggerRatio = 0.80

// SummarizePrompt is appended as a final user turn to request the
// compaction summary; it asks for a self-contained recap a fresh session
// can resume from.
const SummarizePrompt = "Summarize this conversation so far in a few dense paragraphs: goals, decisions, open threads, and anything a continuation needs to know. Do not call any tools."

// FlushPrompt is appended as a final user turn before the flush round: it
// asks the model to extract durable facts and persist each via remember
// before the history is discarded.
const FlushPrompt = "Before this conversation is summarized, call the remember tool once for each durable fact worth keeping (preferences, decisions, identifiers). Do not respond with anything else."

// Compactor runs the two-turn flush+summarize protocol over a
// runtime's sessions when triggered by estimated token pressure.
//
//  1. Flush turn: the provider is offered only the remember tool, one
//     round, so any pending facts get written to memory before the history
//     is replaced. Its output (text or tool calls) is discarded from
//     history entirely — it never becomes part of the compacted log.
//  2. Summarize turn: a provider call with no tools, asked to produce a
//     summary. Success replaces the session's history with exactly
//     [system_message, assistant(summary)] and increments CompactionCount.
//
// Any failure at either stage aborts the whole protocol and leaves history
// untouched; the caller's send_to/stream_to result is unaffected — only a
// diagnostic is emitted (see agent.DiagCompactionError).
type Compactor struct {
	provider agent.LLMProvider
	store    *sessions.MemoryStore
	tools    *agent.ToolRegistry
}

var _ agent.Compactor = (*Compactor)(nil)

// New builds a Compactor. tools is used only to resolve the remember tool
// (if registered) for the flush turn; nil is valid when memory is not
// configured, in which case the flush turn is skipped entirely.
func New(provider agent.LLMProvider, store *sessions.MemoryStore, tools *agent.ToolRegistry) *Compactor {
	return &Compactor{provider: provider, store: store, tools: tools}
}

// MaybeCompact checks estimated token pressure for agentName's session and
// runs the two-turn protocol if it is at or above TriggerRatio of the
// provider's context limit. It reports whether a rewrite happened.
func (c *Compactor) MaybeCompact(ctx context.Context, agentName string) (bool, error) {
	sess, err := c.store.GetOrCreate(ctx, agentName, "")
	if err != nil {
		return false, fmt.Errorf("compaction: load session: %w", err)
	}

	limit := c.provider.ContextLimit("")
	if limit <= 0 {
		return false, nil
	}
	estimated := c.provider.EstimateTokens(toCompletionMessages(sess.History))
	if float64(estimated) < TriggerRatio*float64(limit) {
		return false, nil
	}

	if err := c.flush(ctx, agentName, sess); err != nil {
		return false, fmt.Errorf("compaction: flush turn: %w", err)
	}
	if err := c.summarize(ctx, agentName, sess); err != nil {
		return false, fmt.Errorf("compaction: summarize turn: %w", err)
	}
	return true, nil
}

func (c *Compactor) flush(ctx context.Context, agentName string, sess *sessions.Session) error {
	if c.tools == nil {
		return nil
	}
	rememberTool, ok := c.tools.Get("remember")
	if !ok {
		return nil
	}

	req := &agent.CompletionRequest{
		Messages: toCompletionMessages(append(append([]models.Message(nil), sess.History...), models.Message{
			Role:    models.RoleUser,
			Content: FlushPrompt,
		})),
		Tools: []agent.Tool{rememberTool},
	}
	chunks, err := c.provider.Complete(ctx, req)
	if err != nil {
		return err
	}
	assistantMsg, err := drainFlushTurn(chunks)
	if err != nil {
		return err
	}
	// Only the remember tool is dispatched in a flush turn; any other call
	// the model makes is suppressed (no side effect), matching the
	// restricted-round contract. The flush turn's own messages — including
	// every tool result — are discarded from history entirely.
	for _, call := range assistantMsg.ToolCalls {
		if call.Name != "remember" {
			continue
		}
		_ = c.tools.Dispatch(ctx, call)
	}
	return nil
}

func (c *Compactor) summarize(ctx context.Context, agentName string, sess *sessions.Session) error {
	messages := append(append([]models.Message(nil), sess.History...), models.Message{
		Role:    models.RoleUser,
		Content: SummarizePrompt,
	})
	req := &agent.CompletionRequest{Messages: toCompletionMessages(messages)}
	chunks, err := c.provider.Complete(ctx, req)
	if err != nil {
		return err
	}
	summary, err := drainSummary(chunks)
	if err != nil {
		return err
	}

	var systemMsg models.Message
	if len(sess.History) > 0 && sess.History[0].Role == models.RoleSystem {
		systemMsg = sess.History[0]
	}
	newHistory := []models.Message{
		systemMsg,
		{Role: models.RoleAssistant, Content: summary},
	}
	return c.store.ReplaceHistory(ctx, agentName, newHistory)
}

func toCompletionMessages(history []models.Message) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(history))
	for _, m := range history {
		out = append(out, agent.CompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	return out
}

// drainFlushTurn consumes the flush turn's chunks into a complete
// assistant message, accumulating every tool call the model makes in the
// round (not just the first) — the flush round is restricted to a single
// provider call, but that call may emit several remember calls.
func drainFlushTurn(chunks <-chan *agent.CompletionChunk) (models.Message, error) {
	msg := models.Message{Role: models.RoleAssistant}
	pending := map[string]*models.ToolCall{}
	var order []string

	for chunk := range chunks {
		if chunk.Error != nil {
			return msg, chunk.Error
		}
		if chunk.Text != "" {
			msg.Content += chunk.Text
		}
		if chunk.ToolCallDelta != nil {
			d := chunk.ToolCallDelta
			tc, ok := pending[d.ID]
			if !ok {
				tc = &models.ToolCall{ID: d.ID, Name: d.Name}
				pending[d.ID] = tc
				order = append(order, d.ID)
			}
			if d.Name != "" {
				tc.Name = d.Name
			}
			tc.Input = append(tc.Input, []byte(d.ArgsFragment)...)
		}
	}
	for _, id := range order {
		tc := pending[id]
		if len(tc.Input) == 0 {
			tc.Input = []byte("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, *tc)
	}
	return msg, nil
}

func drainSummary(chunks <-chan *agent.CompletionChunk) (string, error) {
	var text string
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		text += chunk.Text
	}
	if text == "" {
		return "", fmt.Errorf("compaction: empty summary")
	}
	return text, nil
}
