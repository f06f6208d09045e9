package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nexuscore/agentrt/pkg/models"
)

// MemorySource is the capability the Prompt Assembler needs from a memory
// adapter: compiling the top relevant entries for a user message into a
// ready-to-inject text block. A nil MemorySource means memory is not
// configured and the memory block is simply omitted.
type MemorySource interface {
	CompileRelevant(ctx context.Context, query string) (string, error)
}

// SkillSource is the capability the Prompt Assembler needs from a skill
// registry: resolving the set of skills matched by an agent's declared
// tags and by keyword triggers found in the user's message, already
// ranked per the registry's tier/priority/name ordering.
type SkillSource interface {
	Match(skillTags []string, userText string) []models.Skill
}

// PromptAssembler builds the per-request system prompt and effective tool
// list for one send_to/stream_to call, without mutating the base
// AgentConfig. The clone produced by Assemble is discarded after
// the request.
type PromptAssembler struct {
	memory MemorySource
	skills SkillSource
}

// NewPromptAssembler builds an assembler from optional memory and skill
// sources; either may be nil.
func NewPromptAssembler(memory MemorySource, skills SkillSource) *PromptAssembler {
	return &PromptAssembler{memory: memory, skills: skills}
}

// Assembled is the result of one Assemble call: the per-request system
// prompt and the tool names that should be added to the agent's own
// tool_names for this turn (from matched skills' AllowedTools).
type Assembled struct {
	SystemPrompt   string
	ExtraToolNames []string
}

// Assemble builds the system prompt for agent on the given user message:
//
//	<base system_prompt>
//	<memory block>   // if memory configured and compile_relevant non-empty
//	<skill blocks>   // one per matched skill, in rank order
//
// Memory and skill failures are recovered locally: a memory error yields
// an empty memory block plus a diagnostic; the base prompt is still
// returned.
func (a *PromptAssembler) Assemble(ctx context.Context, cfg models.AgentConfig, userText string, diag DiagnosticSink) Assembled {
	var b strings.Builder
	b.WriteString(cfg.SystemPrompt)

	if a.memory != nil {
		block, err := a.memory.CompileRelevant(ctx, userText)
		if err != nil {
			emitDiag(ctx, diag, Diagnostic{
				Kind:      DiagMemoryError,
				AgentName: cfg.Name,
				Message:   "memory recall failed; proceeding without memory context",
				Cause:     &MemoryError{Op: "compile_relevant", Cause: err},
			})
		} else if strings.TrimSpace(block) != "" {
			b.WriteString("\n<memory>\n")
			b.WriteString(block)
			b.WriteString("\n</memory>")
		}
	}

	var extraTools []string
	if a.skills != nil {
		matched := a.skills.Match(cfg.SkillTags, userText)
		for _, sk := range matched {
			b.WriteString(fmt.Sprintf("\n\n<skill name=%q>\n%s\n</skill>", sk.Name, sk.Body))
			declared := make([]string, 0, len(sk.AllowedTools))
			for tool := range sk.AllowedTools {
				declared = append(declared, tool)
			}
			sort.Strings(declared)
			extraTools = append(extraTools, declared...)
		}
	}

	return Assembled{SystemPrompt: b.String(), ExtraToolNames: extraTools}
}

func emitDiag(ctx context.Context, sink DiagnosticSink, d Diagnostic) {
	if sink == nil {
		return
	}
	sink.Emit(ctx, d)
}
