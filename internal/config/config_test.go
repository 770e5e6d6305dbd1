package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, 30, cfg.SessionTTLDays)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hearth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\nappEnv: production\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, EnvProduction, cfg.AppEnv)
	// Unset fields keep their defaults.
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hearth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o644))

	os.Setenv("PORT", "7070")
	defer os.Unsetenv("PORT")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
}

func TestOAuthEnvOverride(t *testing.T) {
	os.Setenv("OAUTH_GOOGLE_CLIENT_ID", "abc")
	os.Setenv("OAUTH_GOOGLE_CLIENT_SECRET", "shh")
	defer os.Unsetenv("OAUTH_GOOGLE_CLIENT_ID")
	defer os.Unsetenv("OAUTH_GOOGLE_CLIENT_SECRET")

	cfg, err := Load("")
	require.NoError(t, err)

	google := cfg.OAuth["google"]
	assert.Equal(t, "abc", google.ClientID)
	assert.Equal(t, "shh", google.ClientSecret)
}

func TestProviderAPIKeyEnvOverride(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "sk-test")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.ProviderAPIKeys["anthropic"])
}

func TestDBPathAndViewerTmpDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/hearth"

	assert.Equal(t, "/var/hearth/main.db", cfg.DBPath())
	assert.Equal(t, "/var/hearth/tmp", cfg.ViewerTmpDir())
}
