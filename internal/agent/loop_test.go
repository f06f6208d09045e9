package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexuscore/agentrt/pkg/models"
)

func TestDrainCompleteAccumulatesArgumentFragments(t *testing.T) {
	ch := make(chan *CompletionChunk, 8)
	ch <- &CompletionChunk{Text: "calling "}
	ch <- &CompletionChunk{ToolCallDelta: &ToolCallDelta{ID: "t1", Name: "search", ArgsFragment: `{"q":`}}
	ch <- &CompletionChunk{Text: "tools"}
	ch <- &CompletionChunk{ToolCallDelta: &ToolCallDelta{ID: "t2", Name: "now", ArgsFragment: `{}`}}
	ch <- &CompletionChunk{ToolCallDelta: &ToolCallDelta{ID: "t1", ArgsFragment: `"go"}`}}
	ch <- &CompletionChunk{Done: true}
	close(ch)

	msg, err := drainComplete(ch)
	if err != nil {
		t.Fatalf("drainComplete: %v", err)
	}
	if msg.Content != "calling tools" {
		t.Fatalf("text deltas must aggregate, got %q", msg.Content)
	}
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("want 2 tool calls, got %+v", msg.ToolCalls)
	}
	if msg.ToolCalls[0].ID != "t1" || msg.ToolCalls[1].ID != "t2" {
		t.Fatalf("tool calls must keep first-fragment order, got %+v", msg.ToolCalls)
	}
	if string(msg.ToolCalls[0].Input) != `{"q":"go"}` {
		t.Fatalf("fragments must accumulate per id, got %q", msg.ToolCalls[0].Input)
	}
}

func TestDrainCompleteDefaultsEmptyArguments(t *testing.T) {
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{ToolCallDelta: &ToolCallDelta{ID: "t1", Name: "now"}}
	ch <- &CompletionChunk{Done: true}
	close(ch)

	msg, err := drainComplete(ch)
	if err != nil {
		t.Fatalf("drainComplete: %v", err)
	}
	if string(msg.ToolCalls[0].Input) != "{}" {
		t.Fatalf("empty arguments must default to an empty object, got %q", msg.ToolCalls[0].Input)
	}
}

func TestDrainCompleteSurfacesStreamError(t *testing.T) {
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{Text: "partial"}
	ch <- &CompletionChunk{Error: context.DeadlineExceeded}
	close(ch)

	if _, err := drainComplete(ch); err == nil {
		t.Fatal("stream errors must propagate from drainComplete")
	}
}

func TestDispatchRoundAnswersCallsInOrder(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(echoTool{name: "now"}, okHandler("noon"))
	diag := NewChanDiagnosticSink(4)

	calls := []models.ToolCall{
		{ID: "c1", Name: "now", Input: json.RawMessage(`{}`)},
		{ID: "c2", Name: "missing", Input: json.RawMessage(`{}`)},
	}
	msgs := dispatchRound(context.Background(), registry, diag, "clock", calls)

	if len(msgs) != 2 {
		t.Fatalf("want one tool message per call, got %d", len(msgs))
	}
	if msgs[0].ToolCallID != "c1" || msgs[0].Content != "noon" || msgs[0].Role != models.RoleTool {
		t.Fatalf("unexpected first tool message: %+v", msgs[0])
	}
	if msgs[1].ToolCallID != "c2" || msgs[1].Content == "" {
		t.Fatalf("unknown tool must still be answered with error text: %+v", msgs[1])
	}

	select {
	case d := <-diag.C():
		if d.Kind != DiagToolError || d.AgentName != "clock" {
			t.Fatalf("want a tool-error diagnostic for the failed call, got %+v", d)
		}
	default:
		t.Fatal("expected a diagnostic for the failed dispatch")
	}
}
