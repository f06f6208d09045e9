package agent

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/sessions"
	"github.com/nexuscore/agentrt/pkg/models"
)

func collectChunks(t *testing.T, ch <-chan *StreamChunk) []*StreamChunk {
	t.Helper()
	var out []*StreamChunk
	for chunk := range ch {
		out = append(out, chunk)
	}
	return out
}

func TestStreamRoundSeparator(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*CompletionChunk{
		{
			{Text: "Calling tool"},
			{ToolCallDelta: &ToolCallDelta{ID: "t1", Name: "now", ArgsFragment: "{}"}},
			{Done: true},
		},
		textTurn("Done"),
	}}
	rt := NewRuntime(provider, sessions.NewMemoryStore())
	rt.RegisterAgent(models.AgentConfig{Name: "clock", SystemPrompt: "tell time", ToolNames: []string{"now"}})
	rt.RegisterTool(echoTool{name: "now"}, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: "2025-01-01T00:00:00Z"}, nil
	})

	ch, err := rt.StreamTo(context.Background(), "clock", "what time?")
	if err != nil {
		t.Fatalf("StreamTo: %v", err)
	}
	chunks := collectChunks(t, ch)

	wantKinds := []StreamChunkKind{ChunkText, ChunkToolCallDelta, ChunkSeparator, ChunkText, ChunkFinish}
	if len(chunks) != len(wantKinds) {
		t.Fatalf("want %d chunks %v, got %d: %+v", len(wantKinds), wantKinds, len(chunks), chunks)
	}
	for i, want := range wantKinds {
		if chunks[i].Kind != want {
			t.Fatalf("chunk %d: want kind %q, got %q (%+v)", i, want, chunks[i].Kind, chunks[i])
		}
	}
	if chunks[0].Text != "Calling tool" || chunks[3].Text != "Done" {
		t.Fatalf("unexpected text chunks: %+v", chunks)
	}
	if chunks[2].Text != "\n" {
		t.Fatalf("separator should carry a single newline, got %q", chunks[2].Text)
	}
	if chunks[1].ToolCallID != "t1" {
		t.Fatalf("tool-call delta should carry the call id, got %+v", chunks[1])
	}
}

func TestStreamingAndNonStreamingHistoriesMatch(t *testing.T) {
	script := func() *scriptedProvider {
		return &scriptedProvider{turns: [][]*CompletionChunk{
			{
				{Text: "checking"},
				{ToolCallDelta: &ToolCallDelta{ID: "t1", Name: "now", ArgsFragment: `{"zone":`}},
				{ToolCallDelta: &ToolCallDelta{ID: "t1", ArgsFragment: `"utc"}`}},
				{Done: true},
			},
			textTurn("It is 2025-01-01T00:00:00Z"),
		}}
	}
	setup := func(provider LLMProvider) *Runtime {
		rt := NewRuntime(provider, sessions.NewMemoryStore())
		rt.RegisterAgent(models.AgentConfig{Name: "clock", SystemPrompt: "tell time", ToolNames: []string{"now"}})
		rt.RegisterTool(echoTool{name: "now"}, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "2025-01-01T00:00:00Z"}, nil
		})
		return rt
	}

	sendRT := setup(script())
	if _, err := sendRT.SendTo(context.Background(), "clock", "what time?"); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	streamRT := setup(script())
	ch, err := streamRT.StreamTo(context.Background(), "clock", "what time?")
	if err != nil {
		t.Fatalf("StreamTo: %v", err)
	}
	collectChunks(t, ch)

	sendSess, _ := sendRT.sessions.GetOrCreate(context.Background(), "clock", "")
	streamSess, _ := streamRT.sessions.GetOrCreate(context.Background(), "clock", "")
	if !reflect.DeepEqual(sendSess.History, streamSess.History) {
		t.Fatalf("histories diverge:\nsend:   %+v\nstream: %+v", sendSess.History, streamSess.History)
	}
	if args := string(sendSess.History[2].ToolCalls[0].Input); args != `{"zone":"utc"}` {
		t.Fatalf("fragments should accumulate into one JSON value, got %q", args)
	}
}

// hangingProvider emits one partial text chunk and then holds the stream
// open until the caller's context is cancelled.
type hangingProvider struct{}

func (p *hangingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	ch := make(chan *CompletionChunk)
	go func() {
		defer close(ch)
		select {
		case ch <- &CompletionChunk{Text: "partial answer"}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return ch, nil
}

func (p *hangingProvider) Name() string                                { return "hanging" }
func (p *hangingProvider) Models() []Model                             { return nil }
func (p *hangingProvider) SupportsTools() bool                         { return false }
func (p *hangingProvider) ContextLimit(string) int                     { return 100000 }
func (p *hangingProvider) EstimateTokens(msgs []CompletionMessage) int { return 0 }

func TestStreamCancellationDoesNotAppendPartialRound(t *testing.T) {
	rt := NewRuntime(&hangingProvider{}, sessions.NewMemoryStore())
	rt.RegisterAgent(models.AgentConfig{Name: "slow", SystemPrompt: "take forever"})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := rt.StreamTo(ctx, "slow", "go")
	if err != nil {
		t.Fatalf("StreamTo: %v", err)
	}

	select {
	case chunk := <-ch:
		if chunk.Kind != ChunkText || chunk.Text != "partial answer" {
			t.Fatalf("want the partial text chunk first, got %+v", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the first chunk")
	}
	cancel()
	collectChunks(t, ch)

	// The lock is released once the stream goroutines unwind; acquiring it
	// here proves teardown completed before we inspect the session.
	unlock := rt.sessions.Lock("slow")
	defer unlock()
	sess, _ := rt.sessions.GetOrCreate(context.Background(), "slow", "")
	if len(sess.History) != 2 {
		t.Fatalf("want only [system, user] after cancellation, got %+v", sess.History)
	}
	for _, m := range sess.History {
		if m.Role == models.RoleAssistant {
			t.Fatalf("partial assistant text must not be appended, got %+v", sess.History)
		}
	}
}
