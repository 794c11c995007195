package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds a single provider from its config.
func NewProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "anthropic":
		if pc.APIKey == "" {
			return nil, domain.NewDomainError("llm.NewProvider", domain.ErrAuthInvalid,
				fmt.Sprintf("provider %s has no api key (set DEEPSEEK_API_KEY, ANTHROPIC_API_KEY or MCPCHAT_LLM_API_KEY)", pc.Name))
		}
		return NewAnthropicProvider(pc, logger), nil
	case "openai":
		return NewOpenAIProvider(pc, logger), nil
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrProviderNotFound, "unknown provider type "+pc.Type)
	}
}

// Build registers the default provider and its fallbacks, each behind a
// circuit breaker when enabled, and returns the provider the engine should
// talk to. Providers that are neither default nor fallback are not built,
// so they need no credentials.
func Build(cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, *Registry, error) {
	registry := NewRegistry()

	names := append([]string{cfg.DefaultProvider}, cfg.Fallbacks...)
	for _, name := range names {
		pc := cfg.Provider(name)
		if pc == nil {
			return nil, nil, domain.NewDomainError("llm.Build", domain.ErrProviderNotFound, name)
		}
		provider, err := NewProvider(*pc, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("llm provider %s: %w", name, err)
		}
		if cfg.CircuitBreaker.Enabled {
			provider = NewCircuitBreakerProvider(provider, cfg.CircuitBreaker, logger)
		}
		if err := registry.Register(provider); err != nil {
			return nil, nil, fmt.Errorf("llm provider %s: %w", name, err)
		}
	}

	primary, err := registry.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, registry, nil
	}

	fallbacks := make([]domain.LLMProvider, 0, len(cfg.Fallbacks))
	for _, name := range cfg.Fallbacks {
		fb, err := registry.Get(name)
		if err != nil {
			return nil, nil, err
		}
		fallbacks = append(fallbacks, fb)
	}
	logger.Info("llm failover enabled", "primary", cfg.DefaultProvider, "fallbacks", cfg.Fallbacks)
	return NewFailoverProvider(primary, fallbacks, logger), registry, nil
}
