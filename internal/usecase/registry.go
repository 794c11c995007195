package usecase

import (
	"slices"
	"strings"
	"sync"

	"mcp-chatbot/internal/domain"
)

// ProviderCapabilities is everything one provider listed during discovery.
type ProviderCapabilities struct {
	Tools     []domain.ToolInfo
	Prompts   []domain.PromptInfo
	Resources []domain.ResourceInfo
	Templates []domain.ResourceTemplateInfo
}

// registeredSession is a connected session together with the URI schemes
// it exposes through listed resources and resource templates.
type registeredSession struct {
	handle  domain.SessionHandle
	schemes []string
}

// Registry is the merged, process-wide capability index. Tool and prompt
// names resolve to the session that registered them last; listed resource
// URIs resolve to their session; sessions are kept in registration order.
type Registry struct {
	mu sync.RWMutex

	reservedScheme string

	tools       map[string]domain.Capability
	toolOrder   []string
	prompts     map[string]domain.Capability
	promptOrder []string
	resources   map[string]domain.SessionHandle
	sessions    []registeredSession
}

// NewRegistry creates an empty registry. Resource URIs of reservedScheme
// may fall back to any session exposing that scheme.
func NewRegistry(reservedScheme string) *Registry {
	return &Registry{
		reservedScheme: strings.ToLower(reservedScheme),
		tools:          make(map[string]domain.Capability),
		prompts:        make(map[string]domain.Capability),
		resources:      make(map[string]domain.SessionHandle),
	}
}

// Register adds a fully discovered session and all its capabilities in one
// step. It returns the tool and prompt names that replaced an entry of an
// earlier session.
func (r *Registry) Register(s domain.SessionHandle, caps ProviderCapabilities) (shadowed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range caps.Tools {
		if prev, ok := r.tools[t.Name]; ok {
			if prev.Session != s {
				shadowed = append(shadowed, t.Name)
			}
		} else {
			r.toolOrder = append(r.toolOrder, t.Name)
		}
		r.tools[t.Name] = domain.Capability{
			Name:        t.Name,
			Kind:        domain.KindTool,
			Description: t.Description,
			Schema:      t.InputSchema,
			Session:     s,
		}
	}

	for _, p := range caps.Prompts {
		if prev, ok := r.prompts[p.Name]; ok {
			if prev.Session != s {
				shadowed = append(shadowed, p.Name)
			}
		} else {
			r.promptOrder = append(r.promptOrder, p.Name)
		}
		r.prompts[p.Name] = domain.Capability{
			Name:        p.Name,
			Kind:        domain.KindPrompt,
			Description: p.Description,
			Arguments:   p.Arguments,
			Session:     s,
		}
	}

	var schemes []string
	addScheme := func(uri string) {
		if sc := uriScheme(uri); sc != "" && !slices.Contains(schemes, sc) {
			schemes = append(schemes, sc)
		}
	}
	for _, res := range caps.Resources {
		r.resources[res.URI] = s
		addScheme(res.URI)
	}
	for _, t := range caps.Templates {
		addScheme(t.URITemplate)
	}

	r.sessions = append(r.sessions, registeredSession{handle: s, schemes: schemes})
	return shadowed
}

// Tool returns the tool capability registered under name.
func (r *Registry) Tool(name string) (domain.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.tools[name]
	return c, ok
}

// Prompt returns the prompt capability registered under name.
func (r *Registry) Prompt(name string) (domain.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.prompts[name]
	return c, ok
}

// Tools returns the tool capabilities in first-registration order.
func (r *Registry) Tools() []domain.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Capability, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name])
	}
	return out
}

// ToolSchemas returns the LLM-facing schemas of all tools.
func (r *Registry) ToolSchemas() []domain.ToolSchema {
	tools := r.Tools()
	out := make([]domain.ToolSchema, 0, len(tools))
	for _, c := range tools {
		out = append(out, c.ToolSchema())
	}
	return out
}

// Prompts returns the prompt capabilities in first-registration order.
func (r *Registry) Prompts() []domain.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Capability, 0, len(r.promptOrder))
	for _, name := range r.promptOrder {
		out = append(out, r.prompts[name])
	}
	return out
}

// ResolveResource finds the session serving uri: an exact listed URI
// first, then for the reserved scheme the first-registered session that
// exposes it.
func (r *Registry) ResolveResource(uri string) (domain.SessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.resources[uri]; ok {
		return s, true
	}

	scheme := uriScheme(uri)
	if scheme == "" || scheme != r.reservedScheme {
		return nil, false
	}
	for _, rs := range r.sessions {
		if slices.Contains(rs.schemes, scheme) {
			return rs.handle, true
		}
	}
	return nil, false
}

// Sessions returns every registered session in registration order.
func (r *Registry) Sessions() []domain.SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SessionHandle, 0, len(r.sessions))
	for _, rs := range r.sessions {
		out = append(out, rs.handle)
	}
	return out
}

// uriScheme returns the scheme of uri ("papers" for "papers://x"), or "".
func uriScheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" || strings.ContainsAny(scheme, "/{}") {
		return ""
	}
	return strings.ToLower(scheme)
}
