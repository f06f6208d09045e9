package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nexuscore/agentrt/pkg/models"
)

type staticMemory struct {
	block string
	err   error
}

func (m staticMemory) CompileRelevant(context.Context, string) (string, error) {
	return m.block, m.err
}

type staticSkills struct {
	skills []models.Skill
}

func (s staticSkills) Match([]string, string) []models.Skill { return s.skills }

func TestAssembleInjectsMemoryAndSkillBlocks(t *testing.T) {
	skills := staticSkills{skills: []models.Skill{{
		Name:         "git-helper",
		Body:         "prefer rebase over merge",
		AllowedTools: map[string]struct{}{"git_status": {}, "git_diff": {}},
	}}}
	a := NewPromptAssembler(staticMemory{block: "- branch: main"}, skills)

	got := a.Assemble(context.Background(), models.AgentConfig{Name: "dev", SystemPrompt: "be helpful"}, "rebase my branch", NopDiagnosticSink{})

	if !strings.HasPrefix(got.SystemPrompt, "be helpful") {
		t.Fatalf("base prompt must come first, got %q", got.SystemPrompt)
	}
	if !strings.Contains(got.SystemPrompt, "<memory>\n- branch: main\n</memory>") {
		t.Fatalf("want memory block, got %q", got.SystemPrompt)
	}
	if !strings.Contains(got.SystemPrompt, `<skill name="git-helper">`) || !strings.Contains(got.SystemPrompt, "prefer rebase over merge") {
		t.Fatalf("want skill block with body, got %q", got.SystemPrompt)
	}
	if len(got.ExtraToolNames) != 2 || got.ExtraToolNames[0] != "git_diff" || got.ExtraToolNames[1] != "git_status" {
		t.Fatalf("want skill tools in deterministic order, got %v", got.ExtraToolNames)
	}
}

func TestAssembleOmitsEmptyMemoryBlock(t *testing.T) {
	a := NewPromptAssembler(staticMemory{block: "  \n"}, nil)
	got := a.Assemble(context.Background(), models.AgentConfig{SystemPrompt: "base"}, "hi", NopDiagnosticSink{})
	if got.SystemPrompt != "base" {
		t.Fatalf("blank memory should inject nothing, got %q", got.SystemPrompt)
	}
}

func TestAssembleRecoversMemoryFailure(t *testing.T) {
	a := NewPromptAssembler(staticMemory{err: errors.New("index offline")}, nil)
	diag := NewChanDiagnosticSink(1)

	got := a.Assemble(context.Background(), models.AgentConfig{Name: "dev", SystemPrompt: "base"}, "hi", diag)

	if got.SystemPrompt != "base" {
		t.Fatalf("memory failure must leave the base prompt intact, got %q", got.SystemPrompt)
	}
	select {
	case d := <-diag.C():
		if d.Kind != DiagMemoryError {
			t.Fatalf("want memory-error diagnostic, got %v", d.Kind)
		}
		var memErr *MemoryError
		if !errors.As(d.Cause, &memErr) {
			t.Fatalf("want a wrapped MemoryError cause, got %v", d.Cause)
		}
	default:
		t.Fatal("expected a diagnostic for the recovered memory failure")
	}
}
