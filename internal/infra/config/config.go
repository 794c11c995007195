package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration shared by the chatbot
// and the research provider.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	LLM      LLMConfig      `yaml:"llm"`
	Roster   RosterConfig   `yaml:"roster"`
	Console  ConsoleConfig  `yaml:"console"`
	Research ResearchConfig `yaml:"research"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// AgentConfig holds conversation engine settings.
// A zero timeout disables the corresponding deadline.
type AgentConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	SystemPrompt   string        `yaml:"system_prompt"`
	MaxTokens      int           `yaml:"max_tokens"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ValidateArgs   bool          `yaml:"validate_args"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	// Fallbacks names providers tried in order when the default one fails.
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig configures the circuit breaker in front of the LLM.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// RosterConfig points at the provider roster file.
type RosterConfig struct {
	Path string `yaml:"path"`
}

// ConsoleConfig holds REPL settings.
type ConsoleConfig struct {
	Prompt         string `yaml:"prompt"`
	ResourceScheme string `yaml:"resource_scheme"`
	ListingKeyword string `yaml:"listing_keyword"`
	RenderMarkdown bool   `yaml:"render_markdown"`
	ASCIISymbols   bool   `yaml:"ascii_symbols"`
}

// ResearchConfig holds settings of the research provider process.
type ResearchConfig struct {
	Transport       string        `yaml:"transport"` // "stdio" or "http"
	Addr            string        `yaml:"addr"`
	PaperDir        string        `yaml:"paper_dir"`
	Store           string        `yaml:"store"` // "json" or "sqlite"
	SQLitePath      string        `yaml:"sqlite_path"`
	ArxivURL        string        `yaml:"arxiv_url"`
	RequestInterval time.Duration `yaml:"request_interval"`
	DefaultResults  int           `yaml:"default_results"`
	RateLimit       RateLimit     `yaml:"rate_limit"` // http transport only
}

// RateLimit caps requests per client on the research http endpoint.
// A zero RequestsPerMin disables the limit.
type RateLimit struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults. The default LLM is
// DeepSeek through its Anthropic-compatible endpoint.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations:  20,
			MaxTokens:      2024,
			ToolTimeout:    60 * time.Second,
			LLMTimeout:     120 * time.Second,
			ConnectTimeout: 30 * time.Second,
			ValidateArgs:   true,
		},
		LLM: LLMConfig{
			DefaultProvider: "deepseek",
			Providers: []ProviderConfig{
				{
					Name:    "deepseek",
					Type:    "anthropic",
					BaseURL: "https://api.deepseek.com/anthropic",
					Model:   "deepseek-chat",
				},
				{
					Name:    "deepseek-openai",
					Type:    "openai",
					BaseURL: "https://api.deepseek.com/v1",
					Model:   "deepseek-chat",
				},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Roster: RosterConfig{
			Path: "server_config.json",
		},
		Console: ConsoleConfig{
			Prompt:         "Query: ",
			ResourceScheme: "papers",
			ListingKeyword: "folders",
		},
		Research: ResearchConfig{
			Transport:       "stdio",
			Addr:            ":8090",
			PaperDir:        "papers",
			Store:           "json",
			ArxivURL:        "https://export.arxiv.org/api/query",
			RequestInterval: 3 * time.Second,
			DefaultResults:  5,
			RateLimit: RateLimit{
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("MCPCHAT_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps MCPCHAT_* env vars to config fields. The vendor
// key variables (DEEPSEEK_API_KEY, ANTHROPIC_API_KEY) fill keys left empty.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MCPCHAT_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("MCPCHAT_LLM_MODEL"); v != "" {
		if p := cfg.LLM.Provider(cfg.LLM.DefaultProvider); p != nil {
			p.Model = v
		}
	}
	if v := os.Getenv("MCPCHAT_LLM_API_KEY"); v != "" {
		if p := cfg.LLM.Provider(cfg.LLM.DefaultProvider); p != nil {
			p.APIKey = v
		}
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.APIKey != "" {
			continue
		}
		switch {
		case strings.Contains(p.BaseURL, "deepseek"):
			p.APIKey = os.Getenv("DEEPSEEK_API_KEY")
		case p.Type == "anthropic":
			p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case p.Type == "openai":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("MCPCHAT_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("MCPCHAT_ROSTER_PATH"); v != "" {
		cfg.Roster.Path = v
	}
	if v := os.Getenv("MCPCHAT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MCPCHAT_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("MCPCHAT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("MCPCHAT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("MCPCHAT_RESEARCH_PAPER_DIR"); v != "" {
		cfg.Research.PaperDir = v
	}
	if v := os.Getenv("MCPCHAT_RESEARCH_STORE"); v != "" {
		cfg.Research.Store = v
	}
	if v := os.Getenv("NO_COLOR"); v != "" {
		cfg.Console.RenderMarkdown = false
	}
	if v := os.Getenv("MCPCHAT_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		cfg.Console.ASCIISymbols = true
	}
}

// Provider returns the provider config with the given name, or nil.
func (c *LLMConfig) Provider(name string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i]
		}
	}
	return nil
}

func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	salt, data, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	sealed, err := hex.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, saltBytes)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
