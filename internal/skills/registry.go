// Package skills implements the skill registry: a ranked lookup of
// system-prompt fragments by the agent's declared tags and by keyword
// triggers found in the user's message.
package skills

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/nexuscore/agentrt/pkg/models"
)

// Registry holds every registered skill and resolves matches for prompt
// assembly. Registration is expected at startup; lookups are read-heavy
// and safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]models.Skill
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]models.Skill)}
}

// Register inserts or replaces a skill by name.
func (r *Registry) Register(skill models.Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[skill.Name] = skill
}

// Unregister removes a skill by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.skills, name)
}

// FindByTags returns every skill sharing at least one tag with tags,
// ranked per sortSkills.
func (r *Registry) FindByTags(tags []string) []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		wanted[t] = struct{}{}
	}

	var matches []models.Skill
	for _, sk := range r.skills {
		for tag := range sk.Tags {
			if _, ok := wanted[tag]; ok {
				matches = append(matches, sk)
				break
			}
		}
	}
	sortSkills(matches)
	return matches
}

// wordBoundaryPattern wraps a quoted literal trigger in a case-insensitive
// regexp pattern that only matches on a token boundary — "go" matches "I use go daily" but not "going".
func wordBoundaryPattern(trigger string) string {
	return `(?i)\b` + regexp.QuoteMeta(trigger) + `\b`
}

// FindByTrigger returns every skill with at least one trigger keyword
// appearing in text as a case-insensitive, word-boundary match, ranked per
// sortSkills. No corpus library covers this: it is a small, deliberately
// literal keyword scan, not a tokenizer or NLP match.
func (r *Registry) FindByTrigger(text string) []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []models.Skill
	for _, sk := range r.skills {
		for trigger := range sk.Triggers {
			if trigger == "" {
				continue
			}
			matched, err := regexp.MatchString(wordBoundaryPattern(trigger), text)
			if err == nil && matched {
				matches = append(matches, sk)
				break
			}
		}
	}
	sortSkills(matches)
	return matches
}

// Match resolves the skills that apply to one turn: every skill reachable
// by the agent's declared tags, plus every skill whose trigger fires on
// userText, deduplicated by name and ranked together.
func (r *Registry) Match(skillTags []string, userText string) []models.Skill {
	byName := make(map[string]models.Skill)
	for _, sk := range r.FindByTags(skillTags) {
		byName[sk.Name] = sk
	}
	for _, sk := range r.FindByTrigger(userText) {
		byName[sk.Name] = sk
	}

	out := make([]models.Skill, 0, len(byName))
	for _, sk := range byName {
		out = append(out, sk)
	}
	sortSkills(out)
	return out
}

// sortSkills orders by tier descending, then priority descending, then
// name ascending — the Skill Registry's one ranking rule, applied
// identically by find_by_tags, find_by_trigger, and Match.
func sortSkills(skills []models.Skill) {
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].Tier != skills[j].Tier {
			return skills[i].Tier > skills[j].Tier
		}
		if skills[i].Priority != skills[j].Priority {
			return skills[i].Priority > skills[j].Priority
		}
		return skills[i].Name < skills[j].Name
	})
}

// normalizeTrigger lowercases and trims a trigger keyword at registration
// time, so FindByTrigger's word-boundary match behaves consistently
// regardless of how callers cased their trigger list.
func normalizeTrigger(trigger string) string {
	return strings.ToLower(strings.TrimSpace(trigger))
}

// NewSkill builds a Skill from plain slices, normalizing triggers and
// converting tags/triggers/allowed-tools to the set form the registry
// matches against.
func NewSkill(name, description string, tier models.Tier, priority int, tags, triggers, allowedTools []string, body string) models.Skill {
	sk := models.Skill{
		Name:         name,
		Description:  description,
		Tier:         tier,
		Priority:     priority,
		Tags:         toSet(tags),
		Triggers:     make(map[string]struct{}, len(triggers)),
		AllowedTools: toSet(allowedTools),
		Body:         body,
	}
	for _, t := range triggers {
		sk.Triggers[normalizeTrigger(t)] = struct{}{}
	}
	return sk
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
