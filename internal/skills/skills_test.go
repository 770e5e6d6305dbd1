package skills

import (
	"path/filepath"
	"testing"

	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func TestListReturnsCatalog(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "s1", Name: "Digest", Content: "be concise", Type: types.SkillPrompt, Enabled: true}))

	got, err := svc.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
}

func TestEffectiveAppliesRoleOverrideOverCatalogDefault(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "s1", Name: "Digest", Content: "be concise", Type: types.SkillPrompt, Enabled: true}))

	require.NoError(t, svc.SetRoleEnabled("role-a", "s1", false))

	effA, err := svc.Effective("role-a")
	require.NoError(t, err)
	require.Len(t, effA, 1)
	assert.False(t, effA[0].Enabled)

	effB, err := svc.Effective("role-b")
	require.NoError(t, err)
	require.Len(t, effB, 1)
	assert.True(t, effB[0].Enabled, "role without an override inherits the catalog default")
}

func TestPromptFragmentJoinsOnlyEnabledPromptSkills(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "p1", Name: "Tone", Content: "Be warm.", Type: types.SkillPrompt, Enabled: true}))
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "p2", Name: "Disabled", Content: "ignored", Type: types.SkillPrompt, Enabled: false}))
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "t1", Name: "Tool", Content: "a tool body", Type: types.SkillTool, Enabled: true}))

	frag, err := svc.PromptFragment("role-a")
	require.NoError(t, err)
	assert.Equal(t, "Be warm.", frag)
}

func TestToolSkillsReturnsOnlyEnabledToolTypeSkills(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{
		ID: "t1", Name: "lookup", Description: "looks things up", Type: types.SkillTool,
		Content: "result for {{.args.query}}", Enabled: true,
		Config: map[string]string{"parameters": `{"type":"object","properties":{"query":{"type":"string"}}}`},
	}))
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "p1", Name: "prompt-only", Type: types.SkillPrompt, Content: "x", Enabled: true}))

	tools, err := svc.ToolSkills("role-a")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].Name)
	assert.Contains(t, tools[0].Parameters, "query")
}

func TestInvokeExpandsTemplateWithArgs(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{
		ID: "t1", Name: "lookup", Type: types.SkillTool, Content: "result for {{.args.query}}", Enabled: true,
	}))

	out, err := svc.Invoke("t1", map[string]any{"query": "weather"})
	require.NoError(t, err)
	assert.Equal(t, "result for weather", out)
}

func TestInvokeRejectsNonToolSkill(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "p1", Name: "prompt", Type: types.SkillPrompt, Content: "x", Enabled: true}))

	_, err := svc.Invoke("p1", nil)
	require.Error(t, err)
}

func TestSetEnabledTogglesCatalogDefault(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.UpsertSkill(&types.Skill{ID: "s1", Name: "x", Type: types.SkillPrompt, Content: "x", Enabled: true}))

	require.NoError(t, svc.SetEnabled("s1", false))

	sk, err := svc.Get("s1")
	require.NoError(t, err)
	assert.False(t, sk.Enabled)
}
