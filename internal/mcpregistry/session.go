package mcpregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pellucid/hearth/pkg/types"
)

// IdleTimeout is how long a spawned server session survives without an
// invocation before the registry tears it down.
const IdleTimeout = 10 * time.Minute

// connectTimeout bounds how long spawning and the initial tools/list may
// take before the registry gives up on a server.
const connectTimeout = 15 * time.Second

type liveSession struct {
	serverID   string
	session    *sdkmcp.ClientSession
	tools      []sdkmcp.Tool
	lastUsedAt time.Time
}

func (s *liveSession) touch() { s.lastUsedAt = time.Now() }

// sessionPool owns the live, spawned MCP sessions for every serverId
// currently in use across all users — grounded on the teacher's
// map[string]*mcpServer client, generalized from a single process-wide
// config set to per-(user-owned) server configs keyed by serverId.
type sessionPool struct {
	mu       sync.Mutex
	sdk      *sdkmcp.Client
	sessions map[string]*liveSession
}

func newSessionPool() *sessionPool {
	return &sessionPool{
		sdk: sdkmcp.NewClient(&sdkmcp.Implementation{
			Name:    "hearth",
			Version: "1.0.0",
		}, nil),
		sessions: make(map[string]*liveSession),
	}
}

// getOrSpawn returns the live session for serverID, spawning it from def
// if it isn't already running.
func (p *sessionPool) getOrSpawn(ctx context.Context, serverID string, def types.MCPServerDef) (*liveSession, error) {
	p.mu.Lock()
	if ls, ok := p.sessions[serverID]; ok {
		ls.touch()
		p.mu.Unlock()
		return ls, nil
	}
	p.mu.Unlock()

	ls, err := p.spawn(ctx, serverID, def)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.sessions[serverID] = ls
	p.mu.Unlock()
	return ls, nil
}

func (p *sessionPool) spawn(ctx context.Context, serverID string, def types.MCPServerDef) (*liveSession, error) {
	if len(def.Command) == 0 {
		return nil, fmt.Errorf("mcpregistry: server %s has an empty command", serverID)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cmd := exec.Command(def.Command[0], append(def.Command[1:], def.Args...)...)
	cmd.Env = os.Environ()
	if def.APIKey != "" {
		cmd.Env = append(cmd.Env, "API_KEY="+def.APIKey)
	}

	transport := &sdkmcp.CommandTransport{Command: cmd}
	session, err := p.sdk.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: connect %s: %w", serverID, err)
	}

	ls := &liveSession{serverID: serverID, session: session, lastUsedAt: time.Now()}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		// Non-fatal: some servers expose no tools.
		ls.tools = nil
	} else {
		ls.tools = make([]sdkmcp.Tool, len(result.Tools))
		for i, t := range result.Tools {
			ls.tools[i] = *t
		}
	}

	return ls, nil
}

// get returns the live session for serverID without spawning one.
func (p *sessionPool) get(serverID string) (*liveSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ls, ok := p.sessions[serverID]
	return ls, ok
}

// evictIdle closes and drops any session unused for longer than IdleTimeout.
func (p *sessionPool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for id, ls := range p.sessions {
		if now.Sub(ls.lastUsedAt) > IdleTimeout {
			ls.session.Close()
			delete(p.sessions, id)
		}
	}
}

// drop tears down and removes a single server's session, used when a
// server is uninstalled or its connection fails irrecoverably.
func (p *sessionPool) drop(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ls, ok := p.sessions[serverID]; ok {
		ls.session.Close()
		delete(p.sessions, serverID)
	}
}

func (p *sessionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ls := range p.sessions {
		ls.session.Close()
		delete(p.sessions, id)
	}
}

// formatToolName converts a raw tool identifier into a human-readable
// label: insert a space before each uppercase letter, replace underscores
// with spaces, lowercase, and collapse runs of whitespace.
func formatToolName(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r == '_' {
			b.WriteRune(' ')
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	words := strings.Fields(strings.ToLower(b.String()))
	return strings.Join(words, " ")
}

func toolInputSchema(t sdkmcp.Tool) json.RawMessage {
	if t.InputSchema == nil {
		return nil
	}
	raw, _ := json.Marshal(t.InputSchema)
	return raw
}
