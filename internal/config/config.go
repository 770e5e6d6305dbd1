// Package config loads server configuration from an optional YAML overlay
// file plus environment variables, with environment variables always
// winning over the file. This mirrors the teacher's layered-source
// precedence, simplified to the single server-process shape this domain
// needs instead of a project-discovery tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Env is the deployment environment a process is running under.
type Env string

const (
	EnvDevelopment Env = "development"
	EnvTest        Env = "test"
	EnvProduction  Env = "production"
)

// OAuthProviderConfig is the client credential pair registered for one
// OAuth provider (google, github, ...).
type OAuthProviderConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURL  string `yaml:"redirectUrl"`
}

// Config is the fully resolved server configuration.
type Config struct {
	// DataDir is the root directory for the SQLite database file, the
	// viewer attachment cache, and any on-disk job state.
	DataDir string `yaml:"dataDir"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	AppEnv Env `yaml:"appEnv"`

	// LogLevel is parsed with logging.ParseLevel.
	LogLevel string `yaml:"logLevel"`
	LogPretty bool  `yaml:"logPretty"`

	// OAuth maps provider name ("google", "github", ...) to its client
	// credentials. Populated from file and/or per-provider env vars of the
	// form OAUTH_<PROVIDER>_CLIENT_ID / _CLIENT_SECRET / _REDIRECT_URL.
	OAuth map[string]OAuthProviderConfig `yaml:"oauth"`

	// ProviderAPIKeys holds the direct API keys for LLM providers that
	// aren't OAuth-brokered (anthropic, openai), keyed by provider name.
	ProviderAPIKeys map[string]string `yaml:"providerApiKeys"`

	// JobPollIntervalSeconds controls how often the scheduler checks for due jobs.
	JobPollIntervalSeconds int `yaml:"jobPollIntervalSeconds"`

	// SessionTTLDays is the login session lifetime.
	SessionTTLDays int `yaml:"sessionTtlDays"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		DataDir:                "./data",
		Host:                   "0.0.0.0",
		Port:                   8080,
		AppEnv:                 EnvDevelopment,
		LogLevel:               "info",
		LogPretty:              true,
		OAuth:                  map[string]OAuthProviderConfig{},
		ProviderAPIKeys:        map[string]string{},
		JobPollIntervalSeconds: 30,
		SessionTTLDays:         30,
	}
}

// Load builds a Config starting from DefaultConfig, overlaying the YAML
// file at path (if it exists — a missing file is not an error), then
// applying environment variable overrides, which always win.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
			mergeConfig(cfg, &fileCfg)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func mergeConfig(target, source *Config) {
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.Host != "" {
		target.Host = source.Host
	}
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.AppEnv != "" {
		target.AppEnv = source.AppEnv
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	target.LogPretty = source.LogPretty || target.LogPretty
	if source.JobPollIntervalSeconds != 0 {
		target.JobPollIntervalSeconds = source.JobPollIntervalSeconds
	}
	if source.SessionTTLDays != 0 {
		target.SessionTTLDays = source.SessionTTLDays
	}
	for k, v := range source.OAuth {
		target.OAuth[k] = v
	}
	for k, v := range source.ProviderAPIKeys {
		target.ProviderAPIKeys[k] = v
	}
}

// knownOAuthProviders lists the providers whose env-var credentials are
// recognized. MCP servers installed at runtime may reference additional
// providers configured only through the YAML file.
var knownOAuthProviders = []string{"google", "github", "slack", "notion"}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.AppEnv = Env(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.LogPretty = v == "1" || v == "true"
	}
	if v := os.Getenv("JOB_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JobPollIntervalSeconds = n
		}
	}
	if v := os.Getenv("SESSION_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTLDays = n
		}
	}

	for _, p := range knownOAuthProviders {
		prefix := "OAUTH_" + upperSnake(p)
		id := os.Getenv(prefix + "_CLIENT_ID")
		secret := os.Getenv(prefix + "_CLIENT_SECRET")
		redirect := os.Getenv(prefix + "_REDIRECT_URL")
		if id == "" && secret == "" && redirect == "" {
			continue
		}
		entry := cfg.OAuth[p]
		if id != "" {
			entry.ClientID = id
		}
		if secret != "" {
			entry.ClientSecret = secret
		}
		if redirect != "" {
			entry.RedirectURL = redirect
		}
		cfg.OAuth[p] = entry
	}

	for _, p := range []string{"anthropic", "openai"} {
		if v := os.Getenv(upperSnake(p) + "_API_KEY"); v != "" {
			cfg.ProviderAPIKeys[p] = v
		}
	}
}

func upperSnake(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

// DBPath is the SQLite database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "main.db")
}

// ViewerTmpDir is the per-user temp root for downloaded viewer attachments,
// "<DATA_DIR>/tmp/<userId>/…".
func (c *Config) ViewerTmpDir() string {
	return filepath.Join(c.DataDir, "tmp")
}

// EnsureDataDir creates DataDir and its subdirectories if they don't exist.
func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, c.ViewerTmpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
