package skills

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexuscore/agentrt/pkg/models"
)

// frontmatter is the YAML header a skill file carries before its body.
type frontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Tier         string   `yaml:"tier"`
	Priority     int      `yaml:"priority"`
	Tags         []string `yaml:"tags"`
	Triggers     []string `yaml:"triggers"`
	AllowedTools []string `yaml:"allowed_tools"`
}

// ParseSkillFile parses a skill document of the form:
//
//	---
//	name: git-helper
//	tier: bundled
//	priority: 0
//	tags: [git, vcs]
//	triggers: [git, commit, rebase]
//	---
//	<body text injected into the system prompt when the skill is selected>
//
// The frontmatter delimiters are a line containing only "---"; content
// before the first delimiter pair is rejected as malformed.
func ParseSkillFile(raw string) (models.Skill, error) {
	const delim = "---"

	text := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(text, delim) {
		return models.Skill{}, fmt.Errorf("skills: missing frontmatter delimiter")
	}
	text = strings.TrimPrefix(text, delim)

	end := strings.Index(text, "\n"+delim)
	if end < 0 {
		return models.Skill{}, fmt.Errorf("skills: unterminated frontmatter")
	}
	header := text[:end]
	body := strings.TrimLeft(text[end+len(delim)+1:], "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return models.Skill{}, fmt.Errorf("skills: parse frontmatter: %w", err)
	}
	if fm.Name == "" {
		return models.Skill{}, fmt.Errorf("skills: frontmatter missing name")
	}

	tier, err := parseTier(fm.Tier)
	if err != nil {
		return models.Skill{}, err
	}

	return NewSkill(fm.Name, fm.Description, tier, fm.Priority, fm.Tags, fm.Triggers, fm.AllowedTools, strings.TrimRight(body, "\n")), nil
}

func parseTier(raw string) (models.Tier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "bundled":
		return models.TierBundled, nil
	case "managed":
		return models.TierManaged, nil
	case "workspace":
		return models.TierWorkspace, nil
	default:
		return 0, fmt.Errorf("skills: unknown tier %q", raw)
	}
}
