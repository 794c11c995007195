package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"mcp-chatbot/internal/domain"
)

// Transport names accepted in the roster.
const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportSSE       = "sse"
	TransportInProcess = "inprocess"
)

// ServerConfig is the launch description of one tool provider.
// Stdio providers are started as child processes; http and sse providers
// are reached at URL.
type ServerConfig struct {
	Transport string            `json:"transport,omitempty" yaml:"transport,omitempty"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// EnvList renders Env as KEY=VALUE pairs sorted by key, with ${VAR}
// references expanded from the current environment.
func (s ServerConfig) EnvList() []string {
	if len(s.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+os.ExpandEnv(s.Env[k]))
	}
	return out
}

// ProviderDescriptor pairs a roster name with its launch description.
// Err is set when the entry itself is invalid; such a provider is skipped
// at connect time while the rest of the roster still starts.
type ProviderDescriptor struct {
	Name   string
	Server ServerConfig
	Err    error
}

// rosterFile is the on-disk shape: {"mcpServers": {name: ServerConfig}}.
type rosterFile struct {
	Servers *orderedmap.OrderedMap[string, ServerConfig] `json:"mcpServers" yaml:"mcpServers"`
}

// LoadRoster reads the provider roster and returns its entries in file
// order. JSON files are decoded with encoding/json, anything else as YAML.
// Every failure wraps domain.ErrRosterLoad.
func LoadRoster(path string) ([]ProviderDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewDomainError("LoadRoster", domain.ErrRosterLoad, err.Error())
	}
	return ParseRoster(data, strings.EqualFold(filepath.Ext(path), ".json"))
}

// ParseRoster decodes roster bytes. isJSON selects the decoder. Only an
// undecodable file is an error; invalid entries carry their own Err.
func ParseRoster(data []byte, isJSON bool) ([]ProviderDescriptor, error) {
	rf := rosterFile{Servers: orderedmap.New[string, ServerConfig]()}
	if isJSON {
		err := json.Unmarshal(data, &rf)
		if err != nil {
			return nil, domain.NewDomainError("ParseRoster", domain.ErrRosterLoad, err.Error())
		}
	} else {
		err := yaml.Unmarshal(data, &rf)
		if err != nil {
			return nil, domain.NewDomainError("ParseRoster", domain.ErrRosterLoad, err.Error())
		}
	}
	if rf.Servers == nil {
		return nil, domain.NewDomainError("ParseRoster", domain.ErrRosterLoad, `"mcpServers" must be an object`)
	}

	out := make([]ProviderDescriptor, 0, rf.Servers.Len())
	for pair := rf.Servers.Oldest(); pair != nil; pair = pair.Next() {
		desc := ProviderDescriptor{Name: pair.Key, Server: normalizeServer(pair.Value)}
		ve := &ValidationError{}
		validateServer(pair.Key, desc.Server, ve)
		if ve.HasErrors() {
			desc.Err = domain.NewDomainError("ParseRoster", domain.ErrInvalidInput, ve.Error())
		}
		out = append(out, desc)
	}
	return out, nil
}

func normalizeServer(sc ServerConfig) ServerConfig {
	if sc.Transport != "" {
		sc.Transport = strings.ToLower(sc.Transport)
		return sc
	}
	if sc.Command == "" && sc.URL != "" {
		sc.Transport = TransportHTTP
	} else {
		sc.Transport = TransportStdio
	}
	return sc
}

func validateServer(name string, sc ServerConfig, ve *ValidationError) {
	if strings.TrimSpace(name) == "" {
		ve.Add("mcpServers: provider name must not be empty")
		return
	}
	switch sc.Transport {
	case TransportStdio:
		if sc.Command == "" {
			ve.Add("mcpServers.%s.command is required for stdio transport", name)
		}
	case TransportHTTP, TransportSSE:
		if sc.URL == "" {
			ve.Add("mcpServers.%s.url is required for %s transport", name, sc.Transport)
		}
	case TransportInProcess:
	default:
		ve.Add("mcpServers.%s.transport %q is invalid (want: stdio, http, sse, inprocess)", name, sc.Transport)
	}
}

// String renders the descriptor for logs.
func (d ProviderDescriptor) String() string {
	if d.Server.Transport == TransportStdio {
		return fmt.Sprintf("%s (%s %s)", d.Name, d.Server.Command, strings.Join(d.Server.Args, " "))
	}
	return fmt.Sprintf("%s (%s %s)", d.Name, d.Server.Transport, d.Server.URL)
}
