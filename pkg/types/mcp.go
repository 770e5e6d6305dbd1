package types

import "time"

// MCPServerAuth declares the OAuth provider backing an MCP server, if any.
type MCPServerAuth struct {
	Provider string `json:"provider,omitempty"`
}

// MCPServerDef is the JSON shape stored in MCPServerConfig.Config.
type MCPServerDef struct {
	Name         string         `json:"name"`
	Command      []string       `json:"command"`
	Args         []string       `json:"args,omitempty"`
	Enabled      bool           `json:"enabled"`
	AccountEmail string         `json:"accountEmail,omitempty"`
	APIKey       string         `json:"apiKey,omitempty"`
	Auth         *MCPServerAuth `json:"auth,omitempty"`
	Hidden       bool           `json:"hidden,omitempty"`
}

// MCPServerConfig is a persisted, user-installed MCP server. Its ID follows
// the convention "<baseId>~<accountEmail>" for multi-account servers.
type MCPServerConfig struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Config    MCPServerDef `json:"config"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
