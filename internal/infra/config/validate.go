package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Missing API keys are not reported here; the LLM factory rejects them for
// the provider actually selected.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateRoster(cfg, ve)
	validateConsole(cfg, ve)
	validateResearch(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if cfg.Agent.MaxTokens < 0 {
		ve.Add("agent.max_tokens must be >= 0")
	}
	if cfg.Agent.ToolTimeout < 0 {
		ve.Add("agent.tool_timeout must be >= 0")
	}
	if cfg.Agent.LLMTimeout < 0 {
		ve.Add("agent.llm_timeout must be >= 0")
	}
	if cfg.Agent.ConnectTimeout < 0 {
		ve.Add("agent.connect_timeout must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic)", i, p.Type)
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	for _, name := range cfg.LLM.Fallbacks {
		if !seen[name] {
			ve.Add("llm.fallbacks: unknown provider %q", name)
		}
		if name == cfg.LLM.DefaultProvider {
			ve.Add("llm.fallbacks: %q is already the default provider", name)
		}
	}

	cb := cfg.LLM.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateRoster(cfg *Config, ve *ValidationError) {
	if cfg.Roster.Path == "" {
		ve.Add("roster.path must not be empty")
	}
}

func validateConsole(cfg *Config, ve *ValidationError) {
	if cfg.Console.ResourceScheme == "" {
		ve.Add("console.resource_scheme must not be empty")
	}
	if strings.Contains(cfg.Console.ResourceScheme, ":") {
		ve.Add("console.resource_scheme %q must not contain ':'", cfg.Console.ResourceScheme)
	}
	if cfg.Console.ListingKeyword == "" {
		ve.Add("console.listing_keyword must not be empty")
	}
}

var validResearchStores = map[string]bool{
	"json":   true,
	"sqlite": true,
}

func validateResearch(cfg *Config, ve *ValidationError) {
	r := cfg.Research
	switch r.Transport {
	case "stdio":
	case "http":
		if _, _, err := net.SplitHostPort(r.Addr); err != nil {
			ve.Add("research.addr %q is invalid: %v", r.Addr, err)
		}
	default:
		ve.Add("research.transport %q is invalid (want: stdio, http)", r.Transport)
	}
	if !validResearchStores[r.Store] {
		ve.Add("research.store %q is invalid (want: json, sqlite)", r.Store)
	}
	if r.Store == "json" && r.PaperDir == "" {
		ve.Add("research.paper_dir is required when store is json")
	}
	if r.ArxivURL == "" {
		ve.Add("research.arxiv_url must not be empty")
	}
	if r.RequestInterval < 0 {
		ve.Add("research.request_interval must be >= 0")
	}
	if r.DefaultResults <= 0 {
		ve.Add("research.default_results must be > 0")
	}
	if r.RateLimit.RequestsPerMin < 0 || r.RateLimit.Burst < 0 {
		ve.Add("research.rate_limit values must be >= 0")
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
