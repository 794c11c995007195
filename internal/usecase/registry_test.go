package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-chatbot/internal/domain"
)

func TestRegistry_LastRegisteredWins(t *testing.T) {
	reg := NewRegistry("papers")
	p1 := &fakeSession{name: "p1"}
	p2 := &fakeSession{name: "p2"}

	shadowed := reg.Register(p1, ProviderCapabilities{
		Tools:   []domain.ToolInfo{{Name: "search"}, {Name: "fetch"}},
		Prompts: []domain.PromptInfo{{Name: "summarize"}},
	})
	assert.Empty(t, shadowed)

	shadowed = reg.Register(p2, ProviderCapabilities{
		Tools:   []domain.ToolInfo{{Name: "search", Description: "newer"}},
		Prompts: []domain.PromptInfo{{Name: "summarize"}},
	})
	assert.ElementsMatch(t, []string{"search", "summarize"}, shadowed)

	c, ok := reg.Tool("search")
	require.True(t, ok)
	assert.Same(t, p2, c.Session)
	assert.Equal(t, "newer", c.Description)

	c, ok = reg.Tool("fetch")
	require.True(t, ok)
	assert.Same(t, p1, c.Session)

	pc, ok := reg.Prompt("summarize")
	require.True(t, ok)
	assert.Same(t, p2, pc.Session)

	// Order is the first registration of each name.
	var names []string
	for _, c := range reg.Tools() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"search", "fetch"}, names)
}

func TestRegistry_ToolSchemas(t *testing.T) {
	reg := NewRegistry("papers")
	reg.Register(&fakeSession{name: "p"}, ProviderCapabilities{
		Tools: []domain.ToolInfo{
			{Name: "search_papers", Description: "search", InputSchema: json.RawMessage(`{"type":"object","properties":{"topic":{"type":"string"}}}`)},
			{Name: "bare"},
		},
	})

	schemas := reg.ToolSchemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "search_papers", schemas[0].Name)
	assert.JSONEq(t, `{"type":"object","properties":{"topic":{"type":"string"}}}`, string(schemas[0].Parameters))
	assert.JSONEq(t, `{"type":"object"}`, string(schemas[1].Parameters))
}

func TestRegistry_ResolveResource(t *testing.T) {
	reg := NewRegistry("papers")
	listed := &fakeSession{name: "listed"}
	templated := &fakeSession{name: "templated"}
	later := &fakeSession{name: "later"}
	other := &fakeSession{name: "other"}

	reg.Register(listed, ProviderCapabilities{
		Resources: []domain.ResourceInfo{{URI: "notes://today"}},
	})
	reg.Register(templated, ProviderCapabilities{
		Resources: []domain.ResourceInfo{{URI: "papers://folders"}},
		Templates: []domain.ResourceTemplateInfo{{URITemplate: "papers://{topic}"}},
	})
	reg.Register(later, ProviderCapabilities{
		Templates: []domain.ResourceTemplateInfo{{URITemplate: "papers://{topic}/{id}"}},
	})
	reg.Register(other, ProviderCapabilities{
		Templates: []domain.ResourceTemplateInfo{{URITemplate: "notes://{day}"}},
	})

	tests := []struct {
		uri  string
		want domain.SessionHandle
	}{
		{"notes://today", listed},       // exact match
		{"papers://folders", templated}, // exact match
		{"papers://quantum", templated}, // scheme fallback, first registered
		{"PAPERS://quantum", templated}, // scheme is case-insensitive
		{"notes://tomorrow", nil},       // not the reserved scheme: no fallback
		{"gopher://x", nil},             // nobody exposes it
		{"no-scheme", nil},              // not a URI
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, ok := reg.ResolveResource(tt.uri)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestRegistry_SessionsAndPromptsOrder(t *testing.T) {
	reg := NewRegistry("papers")
	a := &fakeSession{name: "a"}
	b := &fakeSession{name: "b"}
	reg.Register(a, ProviderCapabilities{Prompts: []domain.PromptInfo{{Name: "z"}}})
	reg.Register(b, ProviderCapabilities{Prompts: []domain.PromptInfo{{Name: "y"}}})

	sessions := reg.Sessions()
	require.Len(t, sessions, 2)
	assert.Same(t, a, sessions[0])
	assert.Same(t, b, sessions[1])

	prompts := reg.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, "z", prompts[0].Name)
	assert.Equal(t, "y", prompts[1].Name)
}

func TestURIScheme(t *testing.T) {
	assert.Equal(t, "papers", uriScheme("papers://folders"))
	assert.Equal(t, "papers", uriScheme("papers://{topic}"))
	assert.Equal(t, "", uriScheme("{scheme}://x"))
	assert.Equal(t, "", uriScheme("plain"))
	assert.Equal(t, "", uriScheme("://x"))
}
