package skills

import (
	"strings"
	"testing"

	"github.com/nexuscore/agentrt/pkg/models"
)

func TestParseSkillFileParsesFrontmatterAndBody(t *testing.T) {
	raw := `---
name: git-helper
description: helps with git
tier: managed
priority: 3
tags: [git, vcs]
triggers: [commit, rebase]
allowed_tools: [shell]
---
Use git carefully. Prefer rebase over merge.
`
	skill, err := ParseSkillFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skill.Name != "git-helper" || skill.Tier != models.TierManaged || skill.Priority != 3 {
		t.Fatalf("unexpected skill: %+v", skill)
	}
	if !strings.Contains(skill.Body, "Prefer rebase") {
		t.Fatalf("body not captured: %q", skill.Body)
	}
	if len(skill.Triggers) != 2 || len(skill.AllowedTools) != 1 {
		t.Fatalf("triggers/allowed_tools not captured: %+v", skill)
	}
}

func TestParseSkillFileDefaultsTierToBundled(t *testing.T) {
	raw := "---\nname: minimal\n---\nbody text\n"
	skill, err := ParseSkillFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skill.Tier != models.TierBundled {
		t.Fatalf("want TierBundled default, got %v", skill.Tier)
	}
}

func TestParseSkillFileRejectsMissingFrontmatter(t *testing.T) {
	if _, err := ParseSkillFile("just a body, no frontmatter"); err == nil {
		t.Fatal("expected error for missing frontmatter")
	}
}

func TestParseSkillFileRejectsMissingName(t *testing.T) {
	raw := "---\ndescription: no name here\n---\nbody\n"
	if _, err := ParseSkillFile(raw); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParseSkillFileRejectsUnterminatedFrontmatter(t *testing.T) {
	if _, err := ParseSkillFile("---\nname: x\nbody with no closing delimiter"); err == nil {
		t.Fatal("expected error for unterminated frontmatter")
	}
}
