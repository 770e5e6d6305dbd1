package provider

import (
	"context"
	"os"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
	"github.com/pellucid/hearth/internal/config"
)

// providerTestConfigs names the two LLM providers this deployment wires
// up, and the env vars that carry live credentials for opt-in
// integration testing.
var providerTestConfigs = []struct {
	Name           string
	ProviderID     string
	APIKeyEnv      string
	ModelIDEnv     string
	DefaultModelID string
}{
	{"Anthropic", "anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL_ID", "claude-3-5-haiku-20241022"},
	{"OpenAI", "openai", "OPENAI_API_KEY", "OPENAI_MODEL_ID", "gpt-4o-mini"},
}

func TestRegistryLLMIntegration(t *testing.T) {
	_ = godotenv.Load("../../.env")

	for _, tc := range providerTestConfigs {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			apiKey := os.Getenv(tc.APIKeyEnv)
			if apiKey == "" {
				t.Skipf("%s not set, skipping %s integration test", tc.APIKeyEnv, tc.Name)
			}

			modelID := os.Getenv(tc.ModelIDEnv)
			if modelID == "" {
				modelID = tc.DefaultModelID
			}

			cfg := &config.Config{ProviderAPIKeys: map[string]string{tc.ProviderID: apiKey}}

			registry, err := InitializeProviders(context.Background(), cfg)
			if err != nil {
				t.Fatalf("failed to initialize providers: %v", err)
			}

			provider, err := registry.Get(tc.ProviderID)
			if err != nil {
				t.Fatalf("failed to get provider %s from registry: %v", tc.ProviderID, err)
			}

			runProviderIntegrationTests(t, provider, modelID)
		})
	}
}

func runProviderIntegrationTests(t *testing.T, provider Provider, modelID string) {
	ctx := context.Background()

	if provider.ID() == "" {
		t.Error("expected non-empty provider ID")
	}
	if provider.Name() == "" {
		t.Error("expected non-empty provider name")
	}

	t.Run("SimpleCompletion", func(t *testing.T) { testSimpleCompletion(t, ctx, provider, modelID) })
	t.Run("MultiTurnConversation", func(t *testing.T) { testMultiTurnConversation(t, ctx, provider, modelID) })
	t.Run("ToolBinding", func(t *testing.T) { testToolBinding(t, provider) })
}

func testSimpleCompletion(t *testing.T, ctx context.Context, provider Provider, modelID string) {
	req := &CompletionRequest{
		Model:       modelID,
		Messages:    []*schema.Message{{Role: schema.User, Content: "Say 'Hello, World!' and nothing else."}},
		MaxTokens:   100,
		Temperature: 0.0,
	}

	stream, err := provider.CreateCompletion(ctx, req)
	if err != nil {
		t.Fatalf("failed to create completion: %v", err)
	}
	defer stream.Close()

	var fullResponse string
	for {
		msg, err := stream.Recv()
		if err != nil {
			break
		}
		if msg != nil {
			fullResponse += msg.Content
		}
	}

	if fullResponse == "" {
		t.Error("expected non-empty response")
	}
	t.Logf("[%s] response: %s", provider.Name(), fullResponse)
}

func testMultiTurnConversation(t *testing.T, ctx context.Context, provider Provider, modelID string) {
	req := &CompletionRequest{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.User, Content: "Remember the number 42."},
			{Role: schema.Assistant, Content: "I'll remember the number 42."},
			{Role: schema.User, Content: "What number did I ask you to remember? Reply with just the number."},
		},
		MaxTokens:   50,
		Temperature: 0.0,
	}

	stream, err := provider.CreateCompletion(ctx, req)
	if err != nil {
		t.Fatalf("failed to create completion: %v", err)
	}
	defer stream.Close()

	var fullResponse string
	for {
		msg, err := stream.Recv()
		if err != nil {
			break
		}
		if msg != nil {
			fullResponse += msg.Content
		}
	}

	if fullResponse == "" {
		t.Error("expected non-empty response")
	}
	t.Logf("[%s] response: %s", provider.Name(), fullResponse)
}

func testToolBinding(t *testing.T, provider Provider) {
	tools := []*schema.ToolInfo{
		{
			Name: "calculator",
			Desc: "Performs arithmetic calculations",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {Type: schema.String, Desc: "The mathematical expression to evaluate"},
			}),
		},
	}

	boundModel, err := provider.ChatModel().WithTools(tools)
	if err != nil {
		t.Fatalf("failed to bind tools: %v", err)
	}
	if boundModel == nil {
		t.Error("expected non-nil bound model")
	}
}

func TestRegistryMultiProvider(t *testing.T) {
	_ = godotenv.Load("../../.env")

	apiKeys := map[string]string{}
	for _, tc := range providerTestConfigs {
		if v := os.Getenv(tc.APIKeyEnv); v != "" {
			apiKeys[tc.ProviderID] = v
		}
	}
	if len(apiKeys) == 0 {
		t.Skip("no provider API keys configured, skipping multi-provider test")
	}

	registry, err := InitializeProviders(context.Background(), &config.Config{ProviderAPIKeys: apiKeys})
	if err != nil {
		t.Fatalf("failed to initialize providers: %v", err)
	}

	providers := registry.List()
	if len(providers) != len(apiKeys) {
		t.Errorf("expected %d providers, got %d", len(apiKeys), len(providers))
	}

	for providerID := range apiKeys {
		if _, err := registry.Get(providerID); err != nil {
			t.Errorf("failed to get provider %s: %v", providerID, err)
		}
	}
}
