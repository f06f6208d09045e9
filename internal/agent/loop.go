package agent

import (
	"context"
	"fmt"

	"github.com/nexuscore/agentrt/pkg/models"
)

// MaxRounds is the hard round cap enforced by both the non-streaming and
// streaming execution loops: at most this many provider turns per
// send_to/stream_to call.
const MaxRounds = 16

// Compactor runs the two-turn flush+summarize protocol at a round
// boundary when triggered. It is consulted once per send_to/stream_to
// call, after the final round completes or the round cap is reached; a
// nil Compactor disables compaction entirely. The
// returned bool reports whether a rewrite actually happened, as opposed to
// the estimate staying under the trigger threshold.
type Compactor interface {
	MaybeCompact(ctx context.Context, agentName string) (bool, error)
}

func toCompletionMessages(history []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, m := range history {
		out = append(out, CompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	return out
}

// drainComplete consumes a provider's chunk channel to a single completed
// assistant message, aggregating text and accumulating any tool calls.
// Every provider call — streaming or not — goes through this channel
// shape; the non-streaming loop simply drains it fully before proceeding.
func drainComplete(chunks <-chan *CompletionChunk) (models.Message, error) {
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

// dispatchRound runs one round's tool calls against the registry, in
// order, and returns one tool message per call answering it. This is the
// sequential, ordered dispatch the session invariants require: a parallel
// executor would have to reorder results back into call order anyway, so
// dispatch is kept straightforwardly sequential here.
func dispatchRound(ctx context.Context, registry *ToolRegistry, diag DiagnosticSink, agentName string, calls []models.ToolCall) []models.Message {
	out := make([]models.Message, 0, len(calls))
	for _, call := range calls {
		result := registry.Dispatch(ctx, call)
		if result.IsError {
			diag.Emit(ctx, Diagnostic{
				Kind:      DiagToolError,
				AgentName: agentName,
				Message:   result.Content,
			})
		}
		out = append(out, models.Message{
			Role:       models.RoleTool,
			Content:    result.Content,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}
	return out
}

// runRounds is the shared state machine behind send_to: it assumes
// the session already holds the user message as its last entry, and the
// system message for this turn has already been written. It appends every
// assistant/tool message it produces and returns the final assistant text.
//
// Callers that need streaming wrap provider.Complete differently (see
// stream.go); this helper is the non-streaming path, draining each
// provider turn to completion before dispatching tools.
func (rt *Runtime) runRounds(ctx context.Context, agentName string, req CompletionRequest) (string, error) {
	var lastText string
	for round := 0; round < MaxRounds; round++ {
		req.Messages = toCompletionMessages(rt.historySnapshot(ctx, agentName))

		chunks, err := rt.provider.Complete(ctx, &req)
		if err != nil {
			return "", &LoopError{Phase: PhaseProviderTurn, AgentName: agentName, Round: round, Cause: err}
		}
		assistantMsg, err := drainComplete(chunks)
		if err != nil {
			return "", &LoopError{Phase: PhaseProviderTurn, AgentName: agentName, Round: round, Cause: err}
		}
		if err := rt.sessions.Append(ctx, agentName, assistantMsg); err != nil {
			return "", &LoopError{Phase: PhaseProviderTurn, AgentName: agentName, Round: round, Cause: err}
		}
		lastText = assistantMsg.Content

		if len(assistantMsg.ToolCalls) == 0 {
			rt.maybeCompact(ctx, agentName)
			return lastText, nil
		}

		for _, toolMsg := range dispatchRound(ctx, rt.tools, rt.diag(), agentName, assistantMsg.ToolCalls) {
			if err := rt.sessions.Append(ctx, agentName, toolMsg); err != nil {
				return "", &LoopError{Phase: PhaseToolDispatch, AgentName: agentName, Round: round, Cause: err}
			}
		}
	}

	rt.diag().Emit(ctx, Diagnostic{
		Kind:      DiagRoundCapExceeded,
		AgentName: agentName,
		Message:   fmt.Sprintf("round cap (%d) exceeded", MaxRounds),
	})
	rt.maybeCompact(ctx, agentName)
	return lastText, nil
}

func (rt *Runtime) historySnapshot(ctx context.Context, agentName string) []models.Message {
	sess, err := rt.sessions.GetOrCreate(ctx, agentName, "")
	if err != nil {
		return nil
	}
	return append([]models.Message(nil), sess.History...)
}

func (rt *Runtime) maybeCompact(ctx context.Context, agentName string) {
	if rt.compactor == nil {
		return
	}
	compacted, err := rt.compactor.MaybeCompact(ctx, agentName)
	if err != nil {
		rt.diag().Emit(ctx, Diagnostic{
			Kind:      DiagCompactionError,
			AgentName: agentName,
			Message:   "compaction aborted; history left untouched",
			Cause:     err,
		})
		return
	}
	if compacted {
		rt.diag().Emit(ctx, Diagnostic{
			Kind:      DiagCompactionDone,
			AgentName: agentName,
			Message:   "history compacted",
		})
	}
}
