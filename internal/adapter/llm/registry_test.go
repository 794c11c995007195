package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

func TestRegistryBasic(t *testing.T) {
	reg := NewRegistry()

	provider := NewOpenAIProvider(config.ProviderConfig{Name: "b", Model: "m"}, newTestLogger())
	require.NoError(t, reg.Register(provider))
	require.NoError(t, reg.Register(NewOpenAIProvider(config.ProviderConfig{Name: "a"}, newTestLogger())))

	got, err := reg.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name())
	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	p := NewOpenAIProvider(config.ProviderConfig{Name: "dup"}, newTestLogger())

	require.NoError(t, reg.Register(p))
	assert.Error(t, reg.Register(p))
}

func TestRegistryNotFound(t *testing.T) {
	_, err := NewRegistry().Get("nonexistent")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.ProviderConfig{Name: "x", Type: "anthropic", APIKey: "k"}, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)

	p, err = NewProvider(config.ProviderConfig{Name: "y", Type: "openai"}, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = NewProvider(config.ProviderConfig{Name: "z", Type: "anthropic"}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)

	_, err = NewProvider(config.ProviderConfig{Name: "w", Type: "gemini"}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestBuildDefaultOnly(t *testing.T) {
	cfg := config.Defaults().LLM
	cfg.Provider("deepseek").APIKey = "k"

	p, reg, err := Build(cfg, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, &CircuitBreakerProvider{}, p)
	assert.Equal(t, "deepseek", p.Name())
	assert.Equal(t, []string{"deepseek"}, reg.List(), "unused providers are not built")
}

func TestBuildWithFallbacks(t *testing.T) {
	cfg := config.Defaults().LLM
	cfg.Provider("deepseek").APIKey = "k"
	cfg.Fallbacks = []string{"deepseek-openai"}
	cfg.CircuitBreaker.Enabled = false

	p, reg, err := Build(cfg, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, &FailoverProvider{}, p)
	assert.Equal(t, "deepseek+failover", p.Name())
	assert.Len(t, reg.List(), 2)
}

func TestBuildMissingKey(t *testing.T) {
	cfg := config.Defaults().LLM
	cfg.Provider("deepseek").APIKey = ""

	_, _, err := Build(cfg, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}
