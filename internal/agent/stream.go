package agent

import (
	"context"

	"github.com/nexuscore/agentrt/pkg/models"
)

// streamRounds runs the same state machine as send_to, but drives the
// provider via its streaming interface and yields chunks as they arrive.
// The returned channel is closed when the call completes, fails, or ctx
// is cancelled.
//
// Cancellation: the caller cancels ctx to stop consuming. The in-flight
// provider turn is aborted and no further rounds start; partial assistant
// text accumulated up to cancellation is not appended to the session —
// atomicity holds at round boundaries, never mid-round.
func (rt *Runtime) streamRounds(ctx context.Context, agentName string, req CompletionRequest) <-chan *StreamChunk {
	out := make(chan *StreamChunk)

	go func() {
		defer close(out)

		for round := 0; round < MaxRounds; round++ {
			if round > 0 {
				if !emit(ctx, out, &StreamChunk{Kind: ChunkSeparator, Text: "\n"}) {
					return
				}
			}

			req.Messages = toCompletionMessages(rt.historySnapshot(ctx, agentName))
			chunks, err := rt.provider.Complete(ctx, &req)
			if err != nil {
				emit(ctx, out, &StreamChunk{Kind: ChunkError, Error: &LoopError{Phase: PhaseProviderTurn, AgentName: agentName, Round: round, Cause: err}})
				return
			}

			assistantMsg, finishReason, ok := rt.relayRound(ctx, out, chunks)
			if !ok || ctx.Err() != nil {
				// Context cancelled or provider failed mid-round: the partial
				// message is deliberately not appended, per round-boundary atomicity.
				// The ctx re-check closes a race where a provider reacts to
				// cancellation by closing its chunk channel, which would
				// otherwise read as a normally-completed round.
				return
			}

			if err := rt.sessions.Append(ctx, agentName, assistantMsg); err != nil {
				emit(ctx, out, &StreamChunk{Kind: ChunkError, Error: &LoopError{Phase: PhaseProviderTurn, AgentName: agentName, Round: round, Cause: err}})
				return
			}

			if len(assistantMsg.ToolCalls) == 0 {
				if !emit(ctx, out, &StreamChunk{Kind: ChunkFinish, FinishReason: finishReason}) {
					return
				}
				rt.maybeCompact(ctx, agentName)
				return
			}

			for _, toolMsg := range dispatchRound(ctx, rt.tools, rt.diag(), agentName, assistantMsg.ToolCalls) {
				if err := rt.sessions.Append(ctx, agentName, toolMsg); err != nil {
					emit(ctx, out, &StreamChunk{Kind: ChunkError, Error: &LoopError{Phase: PhaseToolDispatch, AgentName: agentName, Round: round, Cause: err}})
					return
				}
			}
		}

		rt.diag().Emit(ctx, Diagnostic{
			Kind:      DiagRoundCapExceeded,
			AgentName: agentName,
			Message:   "round cap exceeded",
		})
		emit(ctx, out, &StreamChunk{Kind: ChunkFinish, FinishReason: "round_cap_exceeded"})
		rt.maybeCompact(ctx, agentName)
	}()

	return out
}

// relayRound forwards one provider turn's chunks as StreamChunks while
// reconstructing the complete assistant message (aggregated text plus
// completed tool calls) exactly as the non-streaming loop would. Returns
// ok=false if ctx was cancelled before the round finished, or after
// relaying a provider error chunk.
func (rt *Runtime) relayRound(ctx context.Context, out chan<- *StreamChunk, chunks <-chan *CompletionChunk) (models.Message, string, bool) {
	msg := models.Message{Role: models.RoleAssistant}
	pending := map[string]*models.ToolCall{}
	var order []string
	finishReason := "stop"

	for {
		select {
		case <-ctx.Done():
			return msg, finishReason, false
		case chunk, more := <-chunks:
			if !more {
				for _, id := range order {
					tc := pending[id]
					if len(tc.Input) == 0 {
						tc.Input = []byte("{}")
					}
					msg.ToolCalls = append(msg.ToolCalls, *tc)
				}
				if len(msg.ToolCalls) > 0 {
					finishReason = "tool_calls"
				}
				return msg, finishReason, true
			}
			if chunk.Error != nil {
				emit(ctx, out, &StreamChunk{Kind: ChunkError, Error: chunk.Error})
				return msg, finishReason, false
			}
			if chunk.Text != "" {
				msg.Content += chunk.Text
				if !emit(ctx, out, &StreamChunk{Kind: ChunkText, Text: chunk.Text}) {
					return msg, finishReason, false
				}
			}
			if chunk.Thinking != "" {
				if !emit(ctx, out, &StreamChunk{Kind: ChunkThinking, Thinking: chunk.Thinking}) {
					return msg, finishReason, false
				}
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
				if !emit(ctx, out, &StreamChunk{Kind: ChunkToolCallDelta, ToolCallID: d.ID, ToolCallName: d.Name, ArgsFragment: d.ArgsFragment}) {
					return msg, finishReason, false
				}
			}
		}
	}
}

// emit sends chunk on out, returning false if ctx is cancelled first so
// callers can unwind without leaking the goroutine.
func emit(ctx context.Context, out chan<- *StreamChunk, chunk *StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
