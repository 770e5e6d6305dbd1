package mcpregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/oauthbroker"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

// CatalogTool is one entry in a turn's merged tool catalog: the globally
// unique dispatch name alongside the server that owns it and the
// human-readable label formatToolName produces.
type CatalogTool struct {
	Name        string
	DisplayName string
	Description string
	InputSchema json.RawMessage
	ServerID    string
	RawToolName string
}

// InvokeResult is the return shape of invokeTool.
type InvokeResult struct {
	Result   string
	Accounts []string
	ServerID string
}

// Registry implements C4 against a Store, an oauthbroker for refresh, and
// an in-process session pool.
type Registry struct {
	store  *store.Store
	oauth  *oauthbroker.Broker
	pool   *sessionPool
	stopGC chan struct{}
}

// New constructs a Registry and starts its idle-eviction ticker.
func New(st *store.Store, broker *oauthbroker.Broker) *Registry {
	r := &Registry{
		store:  st,
		oauth:  broker,
		pool:   newSessionPool(),
		stopGC: make(chan struct{}),
	}
	go r.runIdleEviction()
	return r
}

func (r *Registry) runIdleEviction() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.pool.evictIdle()
		case <-r.stopGC:
			return
		}
	}
}

// Close stops the idle-eviction loop and tears down every live session.
func (r *Registry) Close() {
	close(r.stopGC)
	r.pool.closeAll()
}

// ListInstalled returns the user's installed server configs.
func (r *Registry) ListInstalled(userID string) ([]types.MCPServerConfig, error) {
	return r.store.ListMCPServers(userID)
}

// AddPredefined clones a predefined catalog entry into an installed
// MCPServerConfig, optionally stamping accountEmail into both the id and
// the config for multi-account servers, and persists it. The session is
// started lazily on first tool call, not here.
func (r *Registry) AddPredefined(userID, baseID, accountEmail, apiKey string) (*types.MCPServerConfig, error) {
	predef, ok := FindPredefined(baseID)
	if !ok {
		return nil, apperr.Validation("unknown predefined server: " + baseID)
	}

	id := baseID
	if accountEmail != "" {
		id = baseID + "~" + accountEmail
	}

	cfg := &types.MCPServerConfig{
		ID:     id,
		UserID: userID,
		Config: predef.toDef(accountEmail, apiKey),
	}
	if err := r.store.UpsertMCPServer(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetEnabled toggles a server's enabled flag. Disabling drops any live session.
func (r *Registry) SetEnabled(id string, enabled bool) (*types.MCPServerConfig, error) {
	cfg, err := r.store.GetMCPServer(id)
	if err != nil {
		return nil, err
	}
	cfg.Config.Enabled = enabled
	if err := r.store.UpsertMCPServer(cfg); err != nil {
		return nil, err
	}
	if !enabled {
		r.pool.drop(id)
	}
	return cfg, nil
}

// Remove uninstalls a server and tears down any live session.
func (r *Registry) Remove(id string) error {
	r.pool.drop(id)
	return r.store.DeleteMCPServer(id)
}

// Catalog builds the merged tool catalog for userID: the union of tools
// from every enabled server the user owns, with names kept globally
// unique by prefixing with serverId on collision.
func (r *Registry) Catalog(ctx context.Context, userID string) ([]CatalogTool, error) {
	servers, err := r.store.ListMCPServers(userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	var out []CatalogTool
	for _, cfg := range servers {
		if !cfg.Config.Enabled {
			continue
		}
		ls, err := r.pool.getOrSpawn(ctx, cfg.ID, cfg.Config)
		if err != nil {
			continue // a down server just contributes no tools this turn
		}
		for _, t := range ls.tools {
			seen[t.Name]++
		}
	}

	for _, cfg := range servers {
		if !cfg.Config.Enabled {
			continue
		}
		ls, ok := r.pool.get(cfg.ID)
		if !ok {
			continue
		}
		for _, t := range ls.tools {
			name := t.Name
			if seen[t.Name] > 1 {
				name = sanitize(cfg.ID) + "_" + sanitize(t.Name)
			}
			out = append(out, CatalogTool{
				Name:        name,
				DisplayName: formatToolName(t.Name),
				Description: t.Description,
				InputSchema: toolInputSchema(t),
				ServerID:    cfg.ID,
				RawToolName: t.Name,
			})
		}
	}
	return out, nil
}

// InvokeTool dispatches a tools/call to serverID. If the server is
// OAuth-backed (its config's Auth field is set) and the call fails with
// any error, the broker is asked to refresh once and the call is retried;
// a second failure surfaces as oauth_required. The account email is taken
// from the config or, failing that, the serverId's "~accountEmail" suffix.
func (r *Registry) InvokeTool(ctx context.Context, userID, serverID, rawToolName string, args map[string]any) (*InvokeResult, error) {
	cfg, err := r.store.GetMCPServer(serverID)
	if err != nil {
		return nil, apperr.ToolFailed(rawToolName, "server not found")
	}
	if !cfg.Config.Enabled {
		return nil, apperr.ToolFailed(rawToolName, "server disabled")
	}

	result, err := r.callTool(ctx, serverID, cfg.Config, rawToolName, args)
	if err != nil && cfg.Config.Auth != nil {
		accountEmail := accountEmailFromServerID(serverID, cfg.Config)
		if _, refreshErr := r.oauth.GetToken(ctx, userID, cfg.Config.Auth.Provider, accountEmail); refreshErr != nil {
			return nil, apperr.OAuthRequired(cfg.Config.Auth.Provider, accountEmail)
		}
		r.pool.drop(serverID)
		result, err = r.callTool(ctx, serverID, cfg.Config, rawToolName, args)
		if err != nil {
			return nil, apperr.OAuthRequired(cfg.Config.Auth.Provider, accountEmail)
		}
	} else if err != nil {
		return nil, apperr.ToolFailed(rawToolName, err.Error())
	}

	out := &InvokeResult{Result: result, ServerID: serverID}
	if cfg.Config.Auth != nil {
		out.Accounts = []string{accountEmailFromServerID(serverID, cfg.Config)}
	}
	return out, nil
}

func (r *Registry) callTool(ctx context.Context, serverID string, def types.MCPServerDef, toolName string, args map[string]any) (string, error) {
	ls, err := r.pool.getOrSpawn(ctx, serverID, def)
	if err != nil {
		return "", err
	}
	ls.touch()

	params := &sdkmcp.CallToolParams{Name: toolName, Arguments: args}
	result, err := ls.session.CallTool(ctx, params)
	if err != nil {
		return "", err
	}

	if result.IsError {
		for _, c := range result.Content {
			if tc, ok := c.(*sdkmcp.TextContent); ok {
				return "", fmt.Errorf("tool error: %s", tc.Text)
			}
		}
		return "", fmt.Errorf("tool execution failed")
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), nil
}

func accountEmailFromServerID(serverID string, def types.MCPServerDef) string {
	if def.AccountEmail != "" {
		return def.AccountEmail
	}
	if idx := strings.LastIndex(serverID, "~"); idx >= 0 {
		return serverID[idx+1:]
	}
	return ""
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
