package mcpregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pellucid/hearth/internal/oauthbroker"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetCatalogOverlay clears any loaded overlay at the end of a test so
// later tests in the package see baseCatalog again.
func resetCatalogOverlay(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		catalogMu.Lock()
		catalogOverlay = nil
		catalogMu.Unlock()
	})
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := New(st, oauthbroker.New(st))
	t.Cleanup(r.Close)
	return r
}

func TestFindPredefined(t *testing.T) {
	p, ok := FindPredefined("gmail")
	require.True(t, ok)
	assert.Equal(t, "google", p.AuthProvider)

	_, ok = FindPredefined("does-not-exist")
	assert.False(t, ok)
}

func TestListAvailableExcludesHidden(t *testing.T) {
	available := ListAvailable()
	for _, p := range available {
		assert.False(t, p.Hidden, "hidden entry %s leaked into available-servers", p.ID)
	}
}

func TestFormatToolName(t *testing.T) {
	cases := map[string]string{
		"send_email":      "send email",
		"SendEmail":       "send email",
		"list_Calendars":  "list calendars",
		"simpleword":      "simpleword",
	}
	for raw, want := range cases {
		assert.Equal(t, want, formatToolName(raw), "raw=%s", raw)
	}
}

func TestAddPredefinedStampsAccountEmailIntoID(t *testing.T) {
	r := newTestRegistry(t)
	cfg, err := r.AddPredefined("u1", "gmail", "me@gmail.com", "")
	require.NoError(t, err)
	assert.Equal(t, "gmail~me@gmail.com", cfg.ID)
	assert.Equal(t, "me@gmail.com", cfg.Config.AccountEmail)
	require.NotNil(t, cfg.Config.Auth)
	assert.Equal(t, "google", cfg.Config.Auth.Provider)
}

func TestAddPredefinedAPIKeyServerNeverGetsAuth(t *testing.T) {
	r := newTestRegistry(t)
	cfg, err := r.AddPredefined("u1", "alphavantage", "", "key123")
	require.NoError(t, err)
	assert.Equal(t, "alphavantage", cfg.ID)
	assert.Equal(t, "key123", cfg.Config.APIKey)
	assert.Nil(t, cfg.Config.Auth)
}

func TestAddPredefinedUnknownBaseID(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.AddPredefined("u1", "does-not-exist", "", "")
	require.Error(t, err)
}

func TestSetEnabledTogglesAndPersists(t *testing.T) {
	r := newTestRegistry(t)
	cfg, err := r.AddPredefined("u1", "alphavantage", "", "key123")
	require.NoError(t, err)

	updated, err := r.SetEnabled(cfg.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Config.Enabled)

	installed, err := r.ListInstalled("u1")
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.False(t, installed[0].Config.Enabled)
}

func TestRemoveUninstallsServer(t *testing.T) {
	r := newTestRegistry(t)
	cfg, err := r.AddPredefined("u1", "alphavantage", "", "key123")
	require.NoError(t, err)

	require.NoError(t, r.Remove(cfg.ID))

	installed, err := r.ListInstalled("u1")
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestLoadCatalogOverlayAddsNewEntry(t *testing.T) {
	resetCatalogOverlay(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - id: linear
    name: Linear
    description: Track issues in Linear
    command: ["mcp-server-linear"]
    apiKeyParam: true
`), 0o644))

	require.NoError(t, LoadCatalogOverlay(path))

	p, ok := FindPredefined("linear")
	require.True(t, ok)
	assert.Equal(t, "Linear", p.Name)
	assert.True(t, p.APIKeyParam)

	_, ok = FindPredefined("gmail")
	assert.True(t, ok, "overlay must not drop built-in entries")
}

func TestLoadCatalogOverlayOverridesExistingEntry(t *testing.T) {
	resetCatalogOverlay(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - id: gmail
    name: Gmail (internal mirror)
    description: Routed through the internal relay
    command: ["mcp-server-gmail-internal"]
    authProvider: google
`), 0o644))

	require.NoError(t, LoadCatalogOverlay(path))

	p, ok := FindPredefined("gmail")
	require.True(t, ok)
	assert.Equal(t, "Gmail (internal mirror)", p.Name)
	assert.Equal(t, []string{"mcp-server-gmail-internal"}, p.Command)
}

func TestLoadCatalogOverlayHiddenEntryExcludedFromAvailable(t *testing.T) {
	resetCatalogOverlay(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - id: internal-tool
    name: Internal Tool
    command: ["mcp-server-internal"]
    hidden: true
`), 0o644))

	require.NoError(t, LoadCatalogOverlay(path))

	for _, p := range ListAvailable() {
		assert.NotEqual(t, "internal-tool", p.ID)
	}
	_, ok := FindPredefined("internal-tool")
	assert.True(t, ok)
}

func TestLoadCatalogOverlayMissingFileRevertsToDefaults(t *testing.T) {
	resetCatalogOverlay(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - id: linear
    name: Linear
    command: ["mcp-server-linear"]
`), 0o644))
	require.NoError(t, LoadCatalogOverlay(path))
	_, ok := FindPredefined("linear")
	require.True(t, ok)

	require.NoError(t, os.Remove(path))
	require.NoError(t, LoadCatalogOverlay(path))

	_, ok = FindPredefined("linear")
	assert.False(t, ok, "removing the overlay file must revert to baseCatalog")
	p, ok := FindPredefined("gmail")
	require.True(t, ok)
	assert.Equal(t, "Gmail", p.Name)
}

func TestAccountEmailFromServerID(t *testing.T) {
	got := accountEmailFromServerID("gmail~me@gmail.com", types.MCPServerDef{})
	assert.Equal(t, "me@gmail.com", got)

	got = accountEmailFromServerID("gmail~ignored", types.MCPServerDef{AccountEmail: "explicit@gmail.com"})
	assert.Equal(t, "explicit@gmail.com", got)
}
