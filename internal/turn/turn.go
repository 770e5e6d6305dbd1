// Package turn implements the turn orchestrator (C7): prompt assembly,
// the provider call/tool-call step loop, SSE-shaped event emission, and
// post-turn memory extraction. It is grounded directly on the teacher's
// internal/session package — runLoop's retry/backoff/step-loop structure
// (loop.go), processStream's chunk-accumulation and tool-call tracking
// (stream.go), and the single-writer callback discipline (processor.go) —
// generalized from a multi-part Message/parts model to this domain's flat
// Message.Content and from a TUI event bus to a single Emit callback a
// transport (SSE handler, headless job runner) supplies.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/mcpregistry"
	"github.com/pellucid/hearth/internal/memory"
	"github.com/pellucid/hearth/internal/provider"
	"github.com/pellucid/hearth/internal/skills"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

const (
	// MaxToolCallsPerTurn bounds consecutive tool calls within one turn
	// (spec.md §4.7 edge policy "tool loop bound").
	MaxToolCallsPerTurn = 16
	// MaxRecentMessages is the default prompt-assembly history window.
	MaxRecentMessages = 50

	// ToolCallTimeout and TurnTimeout are the hard ceilings of spec.md §5.
	ToolCallTimeout = 120 * time.Second
	TurnTimeout     = 300 * time.Second

	// Retry tuning for transient provider errors, mirroring the teacher's
	// newRetryBackoff in internal/session/loop.go.
	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 2 * time.Minute
	retryMaxAttempts     = 3

	// switchRoleTool is the built-in, in-process tool the model calls to
	// signal a role switch; it never reaches C4/the MCP session pool.
	switchRoleTool = "switchRole"
)

// ViewerFile is the local, already-downloaded attachment (C9's output)
// handed to this turn.
type ViewerFile struct {
	Name         string
	MimeType     string
	AbsolutePath string
}

// Request is one /chat/stream invocation.
type Request struct {
	UserID     string
	RoleID     string
	GroupID    string
	Messages   []types.Message // the new message(s) the client is submitting this turn
	Locale     string
	Timezone   string
	ViewerFile *ViewerFile
}

// Result summarizes a completed (or failed) turn for the caller that
// doesn't need the event stream itself — the headless job runner (C8).
type Result struct {
	FinalContent     string
	ToolCallCount    int
	ExtractedCount   int
	RoleSwitchTarget string // non-empty if a switchRole tool call fired
}

// Emit delivers one Event to the transport. A non-nil error (e.g. a
// disconnected SSE client) aborts the turn; Run treats it as cooperative
// cancellation rather than logging it as an internal error.
type Emit func(Event) error

// Orchestrator runs turns against a Store, provider Registry, MCP
// Registry, and Memory Service — the teacher's pattern of an explicit
// dependency-holding struct instead of package-level singletons (per
// SPEC_FULL.md's DESIGN NOTES re-architecting guidance).
type Orchestrator struct {
	store     *store.Store
	providers *provider.Registry
	mcp       *mcpregistry.Registry
	memory    *memory.Service
	skills    *skills.Service

	roleLocks sync.Map // roleID -> *sync.Mutex
}

func New(st *store.Store, providers *provider.Registry, mcp *mcpregistry.Registry, mem *memory.Service, sk *skills.Service) *Orchestrator {
	return &Orchestrator{store: st, providers: providers, mcp: mcp, memory: mem, skills: sk}
}

// resolveRoleModel picks the provider/model for a turn: the role's pinned
// "provider/model" string if set, otherwise the registry's default model.
func (o *Orchestrator) resolveRoleModel(roleModel string) (provider.Provider, string, error) {
	if roleModel != "" {
		return o.providers.ResolveModel(roleModel)
	}
	m, err := o.providers.DefaultModel()
	if err != nil {
		return nil, "", err
	}
	p, err := o.providers.Get(m.ProviderID)
	if err != nil {
		return nil, "", err
	}
	return p, m.ID, nil
}

func (o *Orchestrator) lockRole(roleID string) (*sync.Mutex, bool) {
	v, _ := o.roleLocks.LoadOrStore(roleID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	return mu, mu.TryLock()
}

// Run executes one turn, emitting events as they occur. It always
// returns after emitting a terminal event (the final assistant content
// persisted, or an error event) — the caller (the SSE handler) is
// responsible for writing the literal `[DONE]` sentinel once Run returns,
// since that token isn't JSON and doesn't belong inside Event.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit Emit) (*Result, error) {
	mu, ok := o.lockRole(req.RoleID)
	if !ok {
		err := apperr.RoleBusy(req.RoleID)
		_ = emit(ErrorEvent(err))
		return nil, err
	}
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, TurnTimeout)
	defer cancel()

	role, err := o.store.GetRole(req.RoleID)
	if err != nil {
		e := apperr.RoleNotFound(req.RoleID)
		_ = emit(ErrorEvent(e))
		return nil, e
	}

	for i := range req.Messages {
		m := req.Messages[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.UserID = req.UserID
		m.RoleID = req.RoleID
		m.GroupID = req.GroupID
		if err := o.store.SaveMessage(&m); err != nil {
			e := apperr.Internal(err)
			_ = emit(ErrorEvent(e))
			return nil, e
		}
	}

	historyLimit := MaxRecentMessages
	history, _, err := o.store.ListMessages(req.UserID, req.RoleID, store.ListMessagesOpts{Limit: &historyLimit})
	if err != nil {
		e := apperr.Internal(err)
		_ = emit(ErrorEvent(e))
		return nil, e
	}

	systemPrompt := o.buildSystemPrompt(ctx, role, req, emit)

	catalog, err := o.mcp.Catalog(ctx, req.UserID)
	if err != nil {
		e := apperr.Internal(err)
		_ = emit(ErrorEvent(e))
		return nil, e
	}
	toolSkillList, err := o.skills.ToolSkills(req.RoleID)
	if err != nil {
		e := apperr.Internal(err)
		_ = emit(ErrorEvent(e))
		return nil, e
	}
	einoTools := toolsFor(catalog, toolSkillList)
	toolIndex := make(map[string]mcpregistry.CatalogTool, len(catalog))
	for _, t := range catalog {
		toolIndex[t.Name] = t
	}
	toolSkillIndex := make(map[string]skills.ToolSkill, len(toolSkillList))
	for _, ts := range toolSkillList {
		toolSkillIndex[ts.Name] = ts
	}

	einoMsgs := provider.ToEinoMessages(systemPrompt, history)

	result := &Result{}
	var lastAssistantContent string
	toolCalls := 0

	for {
		prov, modelID, err := o.resolveRoleModel(role.Model)
		if err != nil {
			e := apperr.ProviderError("no model available", err)
			_ = emit(ErrorEvent(e))
			return result, e
		}

		content, calls, err := o.callProvider(ctx, prov, modelID, einoMsgs, einoTools, emit)
		if err != nil {
			if ctx.Err() != nil {
				e := apperr.ProviderError("turn timed out", ctx.Err())
				_ = emit(ErrorEvent(e))
				return result, e
			}
			e := apperr.ProviderError(err.Error(), err)
			_ = emit(ErrorEvent(e))
			return result, e
		}

		if len(calls) == 0 {
			// Normal completion: persist and finish.
			lastAssistantContent = content
			if content != "" {
				asst := types.Message{
					ID: uuid.NewString(), UserID: req.UserID, RoleID: req.RoleID,
					GroupID: req.GroupID, Role: types.RoleAssistant, Content: content,
				}
				if err := o.store.SaveMessage(&asst); err != nil {
					e := apperr.Internal(err)
					_ = emit(ErrorEvent(e))
					return result, e
				}
			}
			break
		}

		toolCalls += len(calls)
		if toolCalls > MaxToolCallsPerTurn {
			e := apperr.ToolLimitExceeded(MaxToolCallsPerTurn)
			_ = emit(ErrorEvent(e))
			return result, e
		}

		// Flush any partial assistant text accumulated before the tool
		// calls as its own persisted Message, per spec.md §4.7 step 3b.
		if content != "" {
			asst := types.Message{
				ID: uuid.NewString(), UserID: req.UserID, RoleID: req.RoleID,
				GroupID: req.GroupID, Role: types.RoleAssistant, Content: content,
			}
			_ = o.store.SaveMessage(&asst)
		}

		einoMsgs = append(einoMsgs, &schema.Message{Role: schema.Assistant, Content: content, ToolCalls: calls})

		for _, tc := range calls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)

			_ = emit(ToolCallEvent(tc.Function.Name, args))

			toolCtx, toolCancel := context.WithTimeout(ctx, ToolCallTimeout)
			resultText, displayName, serverID, accounts, metadata, switchTo, err := o.invokeTool(toolCtx, req, toolIndex, toolSkillIndex, tc.Function.Name, args)
			toolCancel()

			if switchTo != "" {
				result.RoleSwitchTarget = switchTo
			}

			if err != nil {
				resultText = "error: " + err.Error()
			}
			_ = emit(ToolResultEvent(tc.Function.Name, resultText, serverID, accounts, metadata))

			sysNote := types.Message{
				ID: uuid.NewString(), UserID: req.UserID, RoleID: req.RoleID, GroupID: req.GroupID,
				Role: types.RoleSystem, Content: toolUseNote(displayName, accounts),
			}
			_ = o.store.SaveMessage(&sysNote)

			einoMsgs = append(einoMsgs, provider.ToolResultMessage(tc.ID, resultText))
		}
	}

	result.FinalContent = lastAssistantContent
	result.ToolCallCount = toolCalls

	_ = emit(MemoryTaskStarted())
	recent := req.Messages
	if lastAssistantContent != "" {
		recent = append(append([]types.Message{}, recent...), types.Message{Role: types.RoleAssistant, Content: lastAssistantContent})
	}
	n, extractErr := o.memory.Extract(ctx, req.RoleID, recent)
	if extractErr != nil {
		n = 0
	}
	result.ExtractedCount = n
	_ = emit(MemoryTaskCompleted(n))

	return result, nil
}

// RunHeadless runs a turn without a live SSE client (C8's use), discarding
// every emitted frame, and returns the turn's Result.
func (o *Orchestrator) RunHeadless(ctx context.Context, req Request) (*Result, error) {
	return o.Run(ctx, req, func(Event) error { return nil })
}

// buildSystemPrompt assembles the role's prompt, memory overview, viewer
// file note, and locale/timezone hint per spec.md §4.7 step 1.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context, role *types.Role, req Request, emit Emit) string {
	var parts []string

	prompt := role.SystemPrompt
	if prompt == "" {
		prompt = types.DefaultSystemPrompt
	}
	parts = append(parts, prompt)

	if overview, err := o.memory.Overview(ctx, req.RoleID); err == nil && overview != nil && !overview.Empty {
		parts = append(parts, "What you remember about this user:\n"+overview.Overview)
	}

	if frag, err := o.skills.PromptFragment(req.RoleID); err == nil && frag != "" {
		parts = append(parts, frag)
	}

	if req.ViewerFile != nil {
		if _, err := os.Stat(req.ViewerFile.AbsolutePath); err != nil {
			_ = emit(InfoEvent("the attached file is no longer available"))
		} else {
			parts = append(parts, fmt.Sprintf(
				"A file is attached for this turn: name=%q mimeType=%q absolutePath=%q. Tools may read it directly from absolutePath.",
				req.ViewerFile.Name, req.ViewerFile.MimeType, req.ViewerFile.AbsolutePath))
		}
	}

	var hint []string
	if req.Locale != "" {
		hint = append(hint, "locale="+req.Locale)
	}
	if req.Timezone != "" {
		hint = append(hint, "timezone="+req.Timezone)
	}
	if len(hint) > 0 {
		parts = append(parts, "User context: "+strings.Join(hint, ", "))
	}

	return strings.Join(parts, "\n\n")
}

// invokeTool dispatches the built-in switchRole tool, a skill tool (C4
// adjunct, executed in-process with no child process), or an MCP catalog
// tool via C4 — resolving the catalog-facing name back to its (serverID,
// rawToolName) pair via the Catalog snapshot taken at the start of the
// turn.
func (o *Orchestrator) invokeTool(ctx context.Context, req Request, toolIndex map[string]mcpregistry.CatalogTool, toolSkillIndex map[string]skills.ToolSkill, name string, args map[string]any) (resultText, displayName, serverID string, accounts []string, metadata map[string]any, switchTo string, err error) {
	if name == switchRoleTool {
		roleID, _ := args["roleId"].(string)
		target, err := o.store.GetRole(roleID)
		if err != nil {
			return "", "switch role", "", nil, nil, "", apperr.RoleNotFound(roleID)
		}
		member, _ := o.store.IsGroupMember(req.UserID, target.GroupID)
		if target.UserID != req.UserID && !member {
			return "", "switch role", "", nil, nil, "", apperr.RoleForbidden(roleID)
		}
		return fmt.Sprintf("switched to %s", target.Name), "switch role", "", nil,
			map[string]any{"roleSwitch": map[string]string{"roleId": target.ID, "roleName": target.Name}},
			target.ID, nil
	}

	if ts, ok := toolSkillIndex[name]; ok {
		resultText, invokeErr := o.skills.Invoke(ts.ID, args)
		if invokeErr != nil {
			return "", ts.Name, "", nil, nil, "", apperr.ToolFailed(name, invokeErr.Error())
		}
		return resultText, ts.Name, "", nil, nil, "", nil
	}

	t, ok := toolIndex[name]
	if !ok {
		return "", name, "", nil, nil, "", apperr.ToolFailed(name, "tool not in this turn's catalog")
	}
	res, invokeErr := o.mcp.InvokeTool(ctx, req.UserID, t.ServerID, t.RawToolName, args)
	if invokeErr != nil {
		return "", t.DisplayName, "", nil, nil, "", invokeErr
	}
	return res.Result, t.DisplayName, res.ServerID, res.Accounts, nil, "", nil
}

// toolUseNote is the synthetic system message recorded in history after a
// tool call, per spec.md §4.7 step 3b ("italic formatted tool name +
// account suffix").
func toolUseNote(displayName string, accounts []string) string {
	note := "*" + displayName + "*"
	if len(accounts) > 0 {
		note += " · " + strings.Join(accounts, ", ")
	}
	return note
}

// callProvider runs one streaming completion step, forwarding content
// deltas buffered until the next newline (spec.md §4.7 step 3a) and
// accumulating tool calls by stream index, mirroring the teacher's
// processStream/processMessageChunk in internal/session/stream.go. It
// retries transient provider errors with jittered exponential backoff
// before the stream opens, matching internal/session/loop.go's
// newRetryBackoff.
func (o *Orchestrator) callProvider(ctx context.Context, prov provider.Provider, modelID string, msgs []*schema.Message, tools []*schema.ToolInfo, emit Emit) (string, []schema.ToolCall, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsedTime
	bo := backoff.WithContext(backoff.WithMaxRetries(b, retryMaxAttempts), ctx)

	var stream *provider.CompletionStream
	openErr := backoff.Retry(func() error {
		s, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
			Model:    modelID,
			Messages: msgs,
			Tools:    tools,
		})
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, bo)
	if openErr != nil {
		return "", nil, openErr
	}
	defer stream.Close()

	var full strings.Builder
	var buf strings.Builder
	type acc struct {
		id   string
		name string
		args strings.Builder
	}
	calls := map[int]*acc{}
	var order []int

	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}

		if msg.Content != "" {
			var delta string
			cur := full.String()
			if cur != "" && strings.HasPrefix(msg.Content, cur) {
				delta = msg.Content[len(cur):]
				full.Reset()
				full.WriteString(msg.Content)
			} else {
				delta = msg.Content
				full.WriteString(msg.Content)
			}
			buf.WriteString(delta)
			if idx := strings.LastIndex(buf.String(), "\n"); idx >= 0 {
				chunk := buf.String()[:idx+1]
				rest := buf.String()[idx+1:]
				if err := emit(ContentEvent(chunk)); err != nil {
					return "", nil, err
				}
				buf.Reset()
				buf.WriteString(rest)
			}
		}

		for _, tc := range msg.ToolCalls {
			idx := len(order)
			if tc.Index != nil {
				idx = *tc.Index
			}
			a, exists := calls[idx]
			if !exists {
				a = &acc{}
				calls[idx] = a
				order = append(order, idx)
			}
			if tc.ID != "" {
				a.id = tc.ID
			}
			if tc.Function.Name != "" {
				a.name = tc.Function.Name
			}
			a.args.WriteString(tc.Function.Arguments)
		}
	}

	if buf.Len() > 0 {
		if err := emit(ContentEvent(buf.String())); err != nil {
			return "", nil, err
		}
	}

	var result []schema.ToolCall
	for _, idx := range order {
		a := calls[idx]
		if a.name == "" {
			continue
		}
		result = append(result, schema.ToolCall{
			ID:       a.id,
			Function: schema.FunctionCall{Name: a.name, Arguments: a.args.String()},
		})
	}

	return full.String(), result, nil
}

// emptyObjectSchema is the JSON schema for a tool skill that declares no
// parameters.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// toolsFor converts C4's catalog and the role's enabled tool skills into
// the Eino tool declarations the provider sees, plus the always-present
// built-in switchRole tool.
func toolsFor(catalog []mcpregistry.CatalogTool, toolSkills []skills.ToolSkill) []*schema.ToolInfo {
	infos := make([]provider.ToolInfo, 0, len(catalog)+len(toolSkills)+1)
	for _, t := range catalog {
		infos = append(infos, provider.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	for _, ts := range toolSkills {
		params := emptyObjectSchema
		if ts.Parameters != "" {
			params = json.RawMessage(ts.Parameters)
		}
		infos = append(infos, provider.ToolInfo{
			Name:        ts.Name,
			Description: ts.Description,
			Parameters:  params,
		})
	}
	infos = append(infos, provider.ToolInfo{
		Name:        switchRoleTool,
		Description: "Switch the active role/persona for this user.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"roleId":{"type":"string"}},"required":["roleId"]}`),
	})
	return provider.ConvertToEinoTools(infos)
}
