// Package mcpregistry implements C4: the predefined MCP server catalog, the
// user-installed server set, live session lifecycle with idle eviction,
// merged tool discovery, and dispatch with OAuth-refresh-and-retry.
package mcpregistry

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pellucid/hearth/pkg/types"
)

// PredefinedServer is one catalog entry a user can install via
// addPredefined. Servers with a nonempty AuthProvider require an OAuth
// connection for that provider before they can be invoked on the user's
// behalf; APIKeyParam servers take a plain API key instead.
type PredefinedServer struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Command      []string `yaml:"command"`
	Args         []string `yaml:"args"`
	AuthProvider string   `yaml:"authProvider"`
	APIKeyParam  bool     `yaml:"apiKeyParam"`
	Hidden       bool     `yaml:"hidden"`
}

// baseCatalog is the built-in, process-wide list of predefined servers.
// An operator overlay (see LoadCatalogOverlay) can add to or override it
// at runtime without a redeploy; mergedCatalog combines the two.
var baseCatalog = []PredefinedServer{
	{
		ID:          "gmail",
		Name:        "Gmail",
		Description: "Read and send email via Gmail",
		Command:     []string{"mcp-server-gmail"},
		AuthProvider: "google",
	},
	{
		ID:          "google-calendar",
		Name:        "Google Calendar",
		Description: "Read and manage Google Calendar events",
		Command:     []string{"mcp-server-gcal"},
		AuthProvider: "google",
	},
	{
		ID:          "github",
		Name:        "GitHub",
		Description: "Read and manage GitHub repositories, issues, and pull requests",
		Command:     []string{"mcp-server-github"},
		AuthProvider: "github",
	},
	{
		ID:          "slack",
		Name:        "Slack",
		Description: "Send and read Slack messages",
		Command:     []string{"mcp-server-slack"},
		AuthProvider: "slack",
	},
	{
		ID:          "notion",
		Name:        "Notion",
		Description: "Read and manage Notion pages and databases",
		Command:     []string{"mcp-server-notion"},
		AuthProvider: "notion",
	},
	{
		ID:          "alphavantage",
		Name:        "Alpha Vantage",
		Description: "Stock market and financial data",
		Command:     []string{"mcp-server-alphavantage"},
		APIKeyParam: true,
	},
	{
		ID:          "twelvedata",
		Name:        "Twelve Data",
		Description: "Real-time and historical market data",
		Command:     []string{"mcp-server-twelvedata"},
		APIKeyParam: true,
	},
	{
		ID:          "calculator",
		Name:        "Calculator",
		Description: "Arithmetic and unit conversion tools",
		Command:     []string{"hearth-calculator-mcp"},
		Hidden:      true,
	},
}

// catalogOverlay holds the entries loaded from a DATA_DIR overlay file
// (see LoadCatalogOverlay), merged over baseCatalog by ID. Guarded by
// catalogMu since a fsnotify-triggered reload (see watch.go) runs
// concurrently with request handling.
var (
	catalogMu      sync.RWMutex
	catalogOverlay []PredefinedServer
)

// catalogOverlayFile is the merged-entry shape of the overlay YAML file.
type catalogOverlayFile struct {
	Servers []PredefinedServer `yaml:"servers"`
}

// LoadCatalogOverlay reads path and replaces the current overlay entries.
// A missing file clears the overlay back to baseCatalog rather than
// erroring, so deleting the overlay file is a valid way to revert to
// defaults. Each overlay entry is merged into the catalog by ID: an ID
// matching a built-in entry replaces it, a new ID appends.
func LoadCatalogOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			catalogMu.Lock()
			catalogOverlay = nil
			catalogMu.Unlock()
			return nil
		}
		return err
	}
	var overlay catalogOverlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	catalogMu.Lock()
	catalogOverlay = overlay.Servers
	catalogMu.Unlock()
	return nil
}

// mergedCatalog returns baseCatalog with catalogOverlay applied.
func mergedCatalog() []PredefinedServer {
	catalogMu.RLock()
	overlay := catalogOverlay
	catalogMu.RUnlock()
	if len(overlay) == 0 {
		return baseCatalog
	}

	byID := make(map[string]PredefinedServer, len(baseCatalog)+len(overlay))
	order := make([]string, 0, len(baseCatalog)+len(overlay))
	for _, p := range baseCatalog {
		byID[p.ID] = p
		order = append(order, p.ID)
	}
	for _, p := range overlay {
		if _, exists := byID[p.ID]; !exists {
			order = append(order, p.ID)
		}
		byID[p.ID] = p
	}

	out := make([]PredefinedServer, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// FindPredefined looks up a catalog entry by baseId.
func FindPredefined(baseID string) (PredefinedServer, bool) {
	for _, p := range mergedCatalog() {
		if p.ID == baseID {
			return p, true
		}
	}
	return PredefinedServer{}, false
}

// ListAvailable returns the non-hidden catalog, for the
// GET /api/mcp/available-servers endpoint.
func ListAvailable() []PredefinedServer {
	merged := mergedCatalog()
	out := make([]PredefinedServer, 0, len(merged))
	for _, p := range merged {
		if !p.Hidden {
			out = append(out, p)
		}
	}
	return out
}

// toDef converts a predefined entry plus install-time options into the
// persisted server definition.
func (p PredefinedServer) toDef(accountEmail, apiKey string) types.MCPServerDef {
	def := types.MCPServerDef{
		Name:    p.Name,
		Command: p.Command,
		Args:    p.Args,
		Enabled: true,
		Hidden:  p.Hidden,
	}
	if p.AuthProvider != "" {
		def.Auth = &types.MCPServerAuth{Provider: p.AuthProvider}
		def.AccountEmail = accountEmail
	}
	if p.APIKeyParam {
		def.APIKey = apiKey
	}
	return def
}
