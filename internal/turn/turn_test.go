package turn

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pellucid/hearth/internal/config"
	"github.com/pellucid/hearth/internal/mcpregistry"
	"github.com/pellucid/hearth/internal/memory"
	"github.com/pellucid/hearth/internal/oauthbroker"
	"github.com/pellucid/hearth/internal/provider"
	"github.com/pellucid/hearth/internal/skills"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResponse is one canned reply a scriptedProvider hands back.
type scriptedResponse struct {
	content   string
	toolCalls []schema.ToolCall
}

// scriptedProvider answers each CreateCompletion with the next response in
// script — the same test-double shape as internal/memory's scriptedProvider,
// extended with tool calls since the turn loop needs to drive them.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
}

func (p *scriptedProvider) ID() string            { return "test" }
func (p *scriptedProvider) Name() string          { return "Test" }
func (p *scriptedProvider) Models() []types.Model { return []types.Model{{ID: "test-model", ProviderID: "test"}} }
func (p *scriptedProvider) ChatModel() model.ToolCallingChatModel { return nil }
func (p *scriptedProvider) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	p.mu.Lock()
	var resp scriptedResponse
	if p.calls < len(p.responses) {
		resp = p.responses[p.calls]
	}
	p.calls++
	p.mu.Unlock()

	msg := &schema.Message{Role: schema.Assistant, Content: resp.content, ToolCalls: resp.toolCalls}
	reader := schema.StreamReaderFromArray([]*schema.Message{msg})
	return provider.NewCompletionStream(reader), nil
}

type testFixture struct {
	orch *Orchestrator
	st   *store.Store
	prov *scriptedProvider
}

func newFixture(t *testing.T, responses ...scriptedResponse) *testFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := provider.NewRegistry(&config.Config{})
	sp := &scriptedProvider{responses: responses}
	registry.Register(sp)

	mcp := mcpregistry.New(st, oauthbroker.New(st))
	t.Cleanup(mcp.Close)

	mem := memory.New(st, registry)
	sk := skills.New(st)

	return &testFixture{orch: New(st, registry, mcp, mem, sk), st: st, prov: sp}
}

func mustCreateRole(t *testing.T, st *store.Store, userID string) *types.Role {
	t.Helper()
	require.NoError(t, st.CreateUser(&types.User{ID: userID, Email: userID + "@example.com"}))
	r := &types.Role{ID: "role-" + userID, UserID: userID, Name: "default"}
	require.NoError(t, st.CreateRole(r))
	return r
}

func collectEvents(t *testing.T) (Emit, func() []Event) {
	t.Helper()
	var events []Event
	var mu sync.Mutex
	return func(e Event) error {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		}, func() []Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]Event{}, events...)
		}
}

func TestRunHappyPathPersistsAndEmitsContent(t *testing.T) {
	fx := newFixture(t,
		scriptedResponse{content: "Hello there!"},
		scriptedResponse{content: "[]"}, // memory extraction
	)
	role := mustCreateRole(t, fx.st, "u1")

	emit, drain := collectEvents(t)
	result, err := fx.orch.Run(context.Background(), Request{
		UserID: "u1", RoleID: role.ID,
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello"}},
	}, emit)
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", result.FinalContent)

	events := drain()
	var sawContent, sawStarted, sawCompleted bool
	for _, e := range events {
		if e.Content == "Hello there!" {
			sawContent = true
		}
		if e.Type == "memory_task" && e.Status == "started" {
			sawStarted = true
		}
		if e.Type == "memory_task" && e.Status == "completed" {
			sawCompleted = true
		}
	}
	assert.True(t, sawContent, "expected a content frame with the assistant text")
	assert.True(t, sawStarted)
	assert.True(t, sawCompleted)

	limit := 10
	msgs, _, err := fx.st.ListMessages("u1", role.ID, store.ListMessagesOpts{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there!", msgs[1].Content)
}

func TestRunRoleBusyRejectsSecondConcurrentTurn(t *testing.T) {
	fx := newFixture(t, scriptedResponse{content: "ok"}, scriptedResponse{content: "[]"})
	role := mustCreateRole(t, fx.st, "u1")

	mu, ok := fx.orch.lockRole(role.ID)
	require.True(t, ok)
	defer mu.Unlock()

	emit, drain := collectEvents(t)
	_, err := fx.orch.Run(context.Background(), Request{UserID: "u1", RoleID: role.ID}, emit)
	require.Error(t, err)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
	assert.Equal(t, "role_busy", events[0].Message)
}

func TestRunUnknownRoleEmitsError(t *testing.T) {
	fx := newFixture(t)
	emit, drain := collectEvents(t)
	_, err := fx.orch.Run(context.Background(), Request{UserID: "u1", RoleID: "nope"}, emit)
	require.Error(t, err)
	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
}

func TestRunSwitchRoleToolForwardsMetadataWithoutSwitching(t *testing.T) {
	fx := newFixture(t,
		scriptedResponse{toolCalls: []schema.ToolCall{{
			ID:       "call1",
			Function: schema.FunctionCall{Name: "switchRole", Arguments: `{"roleId":"role-target"}`},
		}}},
		scriptedResponse{content: "switched"},
		scriptedResponse{content: "[]"},
	)
	role := mustCreateRole(t, fx.st, "u1")
	target := &types.Role{ID: "role-target", UserID: "u1", Name: "Work"}
	require.NoError(t, fx.st.CreateRole(target))

	emit, drain := collectEvents(t)
	result, err := fx.orch.Run(context.Background(), Request{
		UserID: "u1", RoleID: role.ID,
		Messages: []types.Message{{Role: types.RoleUser, Content: "switch to work"}},
	}, emit)
	require.NoError(t, err)
	assert.Equal(t, "role-target", result.RoleSwitchTarget)

	var sawToolResult bool
	for _, e := range drain() {
		if e.Type == "tool_result" {
			sawToolResult = true
			assert.Equal(t, "role-target", e.Metadata["roleSwitch"].(map[string]string)["roleId"])
		}
	}
	assert.True(t, sawToolResult)

	// The orchestrator must not have changed the caller's active role;
	// it only reports the target via Result/metadata for the client to act on.
	got, err := fx.st.GetRole(role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
}

func TestRunToolLimitExceeded(t *testing.T) {
	responses := make([]scriptedResponse, 0, MaxToolCallsPerTurn+2)
	for i := 0; i <= MaxToolCallsPerTurn+1; i++ {
		responses = append(responses, scriptedResponse{toolCalls: []schema.ToolCall{{
			ID:       "call",
			Function: schema.FunctionCall{Name: "switchRole", Arguments: `{"roleId":"role-target"}`},
		}}})
	}
	fx := newFixture(t, responses...)
	role := mustCreateRole(t, fx.st, "u1")
	target := &types.Role{ID: "role-target", UserID: "u1", Name: "Work"}
	require.NoError(t, fx.st.CreateRole(target))

	emit, drain := collectEvents(t)
	_, err := fx.orch.Run(context.Background(), Request{UserID: "u1", RoleID: role.ID}, emit)
	require.Error(t, err)

	events := drain()
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Type)
}

func TestRunViewerFileMissingEmitsInfoAndProceeds(t *testing.T) {
	fx := newFixture(t, scriptedResponse{content: "done"}, scriptedResponse{content: "[]"})
	role := mustCreateRole(t, fx.st, "u1")

	emit, drain := collectEvents(t)
	_, err := fx.orch.Run(context.Background(), Request{
		UserID: "u1", RoleID: role.ID,
		ViewerFile: &ViewerFile{Name: "gone.pdf", MimeType: "application/pdf", AbsolutePath: filepath.Join(t.TempDir(), "missing.pdf")},
	}, emit)
	require.NoError(t, err)

	var sawInfo bool
	for _, e := range drain() {
		if e.Type == "info" {
			sawInfo = true
		}
	}
	assert.True(t, sawInfo)
}

func TestRunHeadlessReturnsFinalContentOnly(t *testing.T) {
	fx := newFixture(t, scriptedResponse{content: "job done"}, scriptedResponse{content: "[]"})
	role := mustCreateRole(t, fx.st, "u1")

	result, err := fx.orch.RunHeadless(context.Background(), Request{
		UserID: "u1", RoleID: role.ID,
		Messages: []types.Message{{Role: types.RoleUser, Content: "run the job"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "job done", result.FinalContent)
}

func TestContentFlushedOnNewlineBoundary(t *testing.T) {
	fx := newFixture(t, scriptedResponse{content: "line one\nline two"}, scriptedResponse{content: "[]"})
	role := mustCreateRole(t, fx.st, "u1")

	emit, drain := collectEvents(t)
	_, err := fx.orch.Run(context.Background(), Request{UserID: "u1", RoleID: role.ID}, emit)
	require.NoError(t, err)

	var concatenated string
	for _, e := range drain() {
		if e.Type == "" && e.Content != "" {
			concatenated += e.Content
		}
	}
	assert.Equal(t, "line one\nline two", concatenated)
}

func TestToolUseNoteFormatsAccounts(t *testing.T) {
	assert.Equal(t, "*gmail search*", toolUseNote("gmail search", nil))
	assert.Equal(t, "*gmail search* · u@x.com", toolUseNote("gmail search", []string{"u@x.com"}))
}

func TestRunDispatchesEnabledToolSkillInProcess(t *testing.T) {
	fx := newFixture(t,
		scriptedResponse{toolCalls: []schema.ToolCall{{
			ID:       "call1",
			Function: schema.FunctionCall{Name: "lookup", Arguments: `{"query":"weather"}`},
		}}},
		scriptedResponse{content: "it's sunny"},
		scriptedResponse{content: "[]"},
	)
	role := mustCreateRole(t, fx.st, "u1")
	require.NoError(t, fx.st.UpsertSkill(&types.Skill{
		ID: "sk1", Name: "lookup", Description: "looks things up", Type: types.SkillTool,
		Content: "result for {{.args.query}}", Enabled: true,
	}))

	emit, drain := collectEvents(t)
	result, err := fx.orch.Run(context.Background(), Request{
		UserID: "u1", RoleID: role.ID,
		Messages: []types.Message{{Role: types.RoleUser, Content: "what's the weather"}},
	}, emit)
	require.NoError(t, err)
	assert.Equal(t, "it's sunny", result.FinalContent)

	var sawToolResult bool
	for _, e := range drain() {
		if e.Type == "tool_result" && e.ToolName == "lookup" {
			sawToolResult = true
			assert.Equal(t, "result for weather", e.Result)
		}
	}
	assert.True(t, sawToolResult)
}

func TestBuildSystemPromptSplicesEnabledPromptSkill(t *testing.T) {
	fx := newFixture(t, scriptedResponse{content: "ok"}, scriptedResponse{content: "[]"})
	role := mustCreateRole(t, fx.st, "u1")
	require.NoError(t, fx.st.UpsertSkill(&types.Skill{
		ID: "sk1", Name: "tone", Type: types.SkillPrompt, Content: "Always be encouraging.", Enabled: true,
	}))

	emit, _ := collectEvents(t)
	prompt := fx.orch.buildSystemPrompt(context.Background(), role, Request{UserID: "u1", RoleID: role.ID}, emit)
	assert.Contains(t, prompt, "Always be encouraging.")
}

func TestResolveRoleModelFallsBackToDefault(t *testing.T) {
	fx := newFixture(t)
	_, modelID, err := fx.orch.resolveRoleModel("")
	require.NoError(t, err)
	assert.Equal(t, "test-model", modelID)
}

func TestRunTimeoutIsBounded(t *testing.T) {
	// Sanity check the constants used for context.WithTimeout wrapping;
	// this is a property of the package, not of a specific run.
	assert.Equal(t, 120*time.Second, ToolCallTimeout)
	assert.Equal(t, 300*time.Second, TurnTimeout)
}
