package provider

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/pellucid/hearth/internal/config"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	id     string
	name   string
	models []types.Model
}

func (m *mockProvider) ID() string            { return m.id }
func (m *mockProvider) Name() string          { return m.name }
func (m *mockProvider) Models() []types.Model { return m.models }
func (m *mockProvider) ChatModel() model.ToolCallingChatModel { return nil }
func (m *mockProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	return nil, nil
}

func newMockProvider(id, name string, models []types.Model) *mockProvider {
	return &mockProvider{id: id, name: name, models: models}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("test", "Test Provider", nil))

	got, err := registry.Get("test")
	require.NoError(t, err)
	assert.Equal(t, "test", got.ID())
}

func TestRegistryGetNotFound(t *testing.T) {
	registry := NewRegistry(nil)
	_, err := registry.Get("nonexistent")
	assert.Error(t, err)
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("p1", "Provider 1", nil))
	registry.Register(newMockProvider("p2", "Provider 2", nil))
	registry.Register(newMockProvider("p3", "Provider 3", nil))

	assert.Len(t, registry.List(), 3)
}

func TestRegistryGetModel(t *testing.T) {
	registry := NewRegistry(nil)
	models := []types.Model{
		{ID: "model-a", Name: "Model A", ProviderID: "test"},
		{ID: "model-b", Name: "Model B", ProviderID: "test"},
	}
	registry.Register(newMockProvider("test", "Test", models))

	m, err := registry.GetModel("test", "model-a")
	require.NoError(t, err)
	assert.Equal(t, "model-a", m.ID)
}

func TestRegistryGetModelNotFound(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("test", "Test", []types.Model{{ID: "model-a", ProviderID: "test"}}))

	_, err := registry.GetModel("test", "nonexistent")
	assert.Error(t, err)

	_, err = registry.GetModel("nonexistent", "model-a")
	assert.Error(t, err)
}

func TestRegistryAllModelsSortedByPriority(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("p1", "Provider 1", []types.Model{{ID: "gpt-4o-latest", Name: "GPT-4o"}}))
	registry.Register(newMockProvider("p2", "Provider 2", []types.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4"},
		{ID: "claude-3-5-sonnet", Name: "Claude 3.5 Sonnet"},
	}))

	models := registry.AllModels()
	require.Len(t, models, 3)
	assert.Equal(t, "claude-sonnet-4-20250514", models[0].ID)
}

func TestRegistryDefaultModelFallback(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("test", "Test", []types.Model{{ID: "some-model", ProviderID: "test"}}))

	m, err := registry.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "some-model", m.ID)
}

func TestRegistryDefaultModelPrefersAnthropicSonnet(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("anthropic", "Anthropic", []types.Model{
		{ID: "claude-sonnet-4-20250514", ProviderID: "anthropic"},
		{ID: "claude-3-5-haiku-20241022", ProviderID: "anthropic"},
	}))

	m, err := registry.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)
}

func TestRegistryDefaultModelNoModels(t *testing.T) {
	registry := NewRegistry(nil)
	_, err := registry.DefaultModel()
	assert.Error(t, err)
}

func TestRegistryResolveModel(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newMockProvider("anthropic", "Anthropic", nil))

	p, modelID, err := registry.ResolveModel("anthropic/claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.ID())
	assert.Equal(t, "claude-sonnet-4-20250514", modelID)

	p, modelID, err = registry.ResolveModel("claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.ID())
	assert.Equal(t, "claude-sonnet-4-20250514", modelID)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry(nil)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			id := "p" + string(rune('0'+n))
			registry.Register(newMockProvider(id, "Provider", nil))
			registry.List()
			registry.Get(id)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Len(t, registry.List(), 10)
}

func TestInitializeProvidersNoKeysRegistersNothing(t *testing.T) {
	cfg := &config.Config{ProviderAPIKeys: map[string]string{}}

	registry, err := InitializeProviders(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, registry.List())
}

func TestInitializeProvidersAnthropicKey(t *testing.T) {
	cfg := &config.Config{ProviderAPIKeys: map[string]string{"anthropic": "test-key"}}

	registry, err := InitializeProviders(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, registry.List(), 1)
	assert.Equal(t, "anthropic", registry.List()[0].ID())
}
