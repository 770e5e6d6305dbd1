package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pellucid/hearth/internal/config"
	"github.com/pellucid/hearth/pkg/types"
)

// Registry holds every configured LLM provider, keyed by id.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *config.Config
}

// NewRegistry creates an empty provider registry.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    cfg,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by id.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, m := range provider.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns every model from every registered provider, sorted by
// a rough capability/quality priority.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns the model a new Role is created with when its
// Model field is left blank.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return m, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ResolveModel splits a Role's "provider/model" string (or a bare model
// id, assumed anthropic) and returns the matching provider and model id.
func (r *Registry) ResolveModel(spec string) (Provider, string, error) {
	providerID, modelID := ParseModelString(spec)
	if providerID == "" {
		providerID = "anthropic"
	}
	p, err := r.Get(providerID)
	if err != nil {
		return nil, "", err
	}
	return p, modelID, nil
}

// ParseModelString parses "provider/model" format, defaulting providerID
// to "" (caller decides the fallback) when no slash is present.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// InitializeProviders registers the Anthropic and OpenAI providers from
// cfg.ProviderAPIKeys. A provider with no configured key is skipped
// rather than erroring, since a deployment may run with only one of the
// two configured.
func InitializeProviders(ctx context.Context, cfg *config.Config) (*Registry, error) {
	registry := NewRegistry(cfg)

	if apiKey := cfg.ProviderAPIKeys["anthropic"]; apiKey != "" {
		p, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			ID:        "anthropic",
			APIKey:    apiKey,
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		registry.Register(p)
	}

	if apiKey := cfg.ProviderAPIKeys["openai"]; apiKey != "" {
		p, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			ID:        "openai",
			APIKey:    apiKey,
			MaxTokens: 4096,
		})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		registry.Register(p)
	}

	return registry, nil
}
