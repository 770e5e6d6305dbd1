// Package skills implements the C4-adjunct skill catalog supplemented from
// the teacher's internal/command package (internal/command/executor.go): a
// declarative, store-backed catalog of named behaviors, each either spliced
// into a turn's system prompt (type=prompt) or exposed as an additional
// in-process tool with no child process (type=tool). Where the teacher
// loads commands from config and markdown files, this package loads them
// from C1's skills table, since skills here are a user-managed catalog
// rather than a project-local config/file decoration.
package skills

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

// Service resolves the skill catalog and its per-role overrides.
type Service struct {
	store *store.Store
}

func New(st *store.Store) *Service {
	return &Service{store: st}
}

// List returns the full catalog, independent of any role's overrides.
func (s *Service) List() ([]types.Skill, error) {
	return s.store.ListSkills()
}

// Get returns a single skill by id.
func (s *Service) Get(id string) (*types.Skill, error) {
	return s.store.GetSkill(id)
}

// SetEnabled toggles a skill's catalog-wide default.
func (s *Service) SetEnabled(id string, enabled bool) error {
	return s.store.SetSkillEnabled(id, enabled)
}

// SetRoleEnabled overrides a skill's enablement for a single role, layered
// over the catalog-wide default (spec.md's supplemented
// setEnabled(roleId, skillId, enabled) operation).
func (s *Service) SetRoleEnabled(roleID, skillID string, enabled bool) error {
	return s.store.SetRoleSkillEnabled(roleID, skillID, enabled)
}

// Effective returns every catalog skill with its enabled flag resolved for
// roleID: a role-level override wins over the skill's catalog default.
func (s *Service) Effective(roleID string) ([]types.Skill, error) {
	all, err := s.store.ListSkills()
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.RoleSkillOverrides(roleID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Skill, len(all))
	for i, sk := range all {
		if v, ok := overrides[sk.ID]; ok {
			sk.Enabled = v
		}
		out[i] = sk
	}
	return out, nil
}

// PromptFragment joins the Content of every enabled type=prompt skill for
// roleID into a single block C7 splices into the system prompt, separated
// by blank lines so each skill reads as an independent instruction.
func (s *Service) PromptFragment(roleID string) (string, error) {
	effective, err := s.Effective(roleID)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, sk := range effective {
		if sk.Type != types.SkillPrompt || !sk.Enabled {
			continue
		}
		parts = append(parts, strings.TrimSpace(sk.Content))
	}
	return strings.Join(parts, "\n\n"), nil
}

// ToolSkill is one type=tool skill enabled for a role, described the way
// C7's toolsFor needs to declare it to the model.
type ToolSkill struct {
	ID          string
	Name        string
	Description string
	// Parameters is the skill's declared JSON schema for its arguments, if
	// any (sk.Config["parameters"]); an empty schema means no arguments.
	Parameters string
}

// ToolSkills returns every enabled type=tool skill for roleID.
func (s *Service) ToolSkills(roleID string) ([]ToolSkill, error) {
	effective, err := s.Effective(roleID)
	if err != nil {
		return nil, err
	}
	var out []ToolSkill
	for _, sk := range effective {
		if sk.Type != types.SkillTool || !sk.Enabled {
			continue
		}
		out = append(out, ToolSkill{
			ID: sk.ID, Name: sk.Name, Description: sk.Description,
			Parameters: sk.Config["parameters"],
		})
	}
	return out, nil
}

// Invoke executes a type=tool skill's Content as a text/template against
// args, mirroring the teacher's Executor.executeTemplate — generalized
// from "produce the next turn's prompt" to "produce this tool call's
// result text", since a skill tool has no process to shell out to: its
// body IS the template that renders the result.
func (s *Service) Invoke(skillID string, args map[string]any) (string, error) {
	sk, err := s.store.GetSkill(skillID)
	if err != nil {
		return "", err
	}
	if sk.Type != types.SkillTool {
		return "", fmt.Errorf("skills: %s is not a tool skill", skillID)
	}

	tmpl, err := template.New(sk.ID).Parse(sk.Content)
	if err != nil {
		// A skill author's template fails to parse; fall back to the raw
		// content rather than failing the tool call outright.
		return sk.Content, nil
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{"args": args}); err != nil {
		return sk.Content, nil
	}
	return buf.String(), nil
}
