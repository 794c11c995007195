package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-chatbot/internal/adapter/mcpsession"
	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

func TestConnector_UnconnectableProviderIsSkipped(t *testing.T) {
	good := &fakeSession{name: "good", tools: []domain.ToolInfo{{Name: "search"}}}
	dialer := &fakeDialer{
		sessions: map[string]*fakeSession{"good": good},
		fail:     map[string]error{"down": errors.New("connection refused")},
	}
	reg := NewRegistry("papers")
	lc := NewLifecycle(newTestLogger())
	c := NewConnector(dialer, reg, lc, time.Second, newTestLogger())

	report := c.Connect(context.Background(), roster("down", "good"))

	assert.Equal(t, []string{"down", "good"}, dialer.dialed)
	assert.Equal(t, []string{"good"}, report.Connected)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "down", report.Failed[0].Name)
	assert.ErrorIs(t, report.Failed[0].Err, domain.ErrProviderConnect)

	capability, ok := reg.Tool("search")
	require.True(t, ok)
	assert.Same(t, good, capability.Session)
	assert.Equal(t, 1, lc.pending())
}

func TestConnector_DiscoveryFailureReleasesSession(t *testing.T) {
	broken := &fakeSession{
		name:    "broken",
		tools:   []domain.ToolInfo{{Name: "half"}},
		listErr: errors.New("prompts/list: internal error"),
	}
	good := &fakeSession{name: "good", prompts: []domain.PromptInfo{{Name: "summarize"}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"broken": broken, "good": good}}
	reg := NewRegistry("papers")
	lc := NewLifecycle(newTestLogger())
	c := NewConnector(dialer, reg, lc, 0, newTestLogger())

	report := c.Connect(context.Background(), roster("broken", "good"))

	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, domain.ErrCapabilityListing)
	assert.Equal(t, 1, broken.closeCount(), "broken session released at once")

	_, ok := reg.Tool("half")
	assert.False(t, ok, "no capability of a failed provider is visible")
	assert.Len(t, reg.Sessions(), 1)

	require.NoError(t, lc.Close())
	assert.Equal(t, 1, broken.closeCount(), "teardown must not release it again")
	assert.Equal(t, 1, good.closeCount())
}

func TestConnector_CancelledContextStopsRoster(t *testing.T) {
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"a": {name: "a"}}}
	c := NewConnector(dialer, NewRegistry("papers"), NewLifecycle(newTestLogger()), 0, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := c.Connect(ctx, roster("a"))

	assert.Empty(t, dialer.dialed)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, context.Canceled)
}

func TestConnector_ReleaseOrderAcrossProviders(t *testing.T) {
	var closed []string
	mk := func(name string) *fakeSession {
		s := &fakeSession{name: name}
		s.onClose = func() { closed = append(closed, name) }
		return s
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"p1": mk("p1"), "p2": mk("p2"), "p3": mk("p3")}}
	lc := NewLifecycle(newTestLogger())
	c := NewConnector(dialer, NewRegistry("papers"), lc, 0, newTestLogger())

	c.Connect(context.Background(), []config.ProviderDescriptor{{Name: "p1"}, {Name: "p2"}, {Name: "p3"}})
	require.NoError(t, lc.Close())

	assert.Equal(t, []string{"p3", "p2", "p1"}, closed)
}

func TestConnector_InvalidRosterEntryIsSkipped(t *testing.T) {
	good := &fakeSession{name: "research", tools: []domain.ToolInfo{{Name: "search_papers"}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"research": good}}
	reg := NewRegistry("papers")
	c := NewConnector(dialer, reg, NewLifecycle(newTestLogger()), 0, newTestLogger())

	entries := []config.ProviderDescriptor{
		{Name: "broken", Err: domain.NewDomainError("ParseRoster", domain.ErrInvalidInput, "mcpServers.broken.command is required for stdio transport")},
		{Name: "research", Server: config.ServerConfig{Transport: config.TransportStdio, Command: "uv"}},
	}
	report := c.Connect(context.Background(), entries)

	assert.Equal(t, []string{"research"}, dialer.dialed, "invalid entry is never dialed")
	assert.Equal(t, []string{"research"}, report.Connected)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "broken", report.Failed[0].Name)
	assert.ErrorIs(t, report.Failed[0].Err, domain.ErrProviderConnect)
	assert.ErrorIs(t, report.Failed[0].Err, domain.ErrInvalidInput)
	assert.Contains(t, report.Failed[0].Err.Error(), "command is required")

	_, ok := reg.Tool("search_papers")
	assert.True(t, ok)
}

// noTemplatesServer is a streamable HTTP MCP server that advertises
// resources but answers resources/templates/list with method-not-found.
func noTemplatesServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params struct {
				ProtocolVersion string `json:"protocolVersion"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.ID) == 0 {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "initialize":
			resp["result"] = map[string]any{
				"protocolVersion": req.Params.ProtocolVersion,
				"capabilities":    map[string]any{"resources": map[string]any{}},
				"serverInfo":      map[string]any{"name": "docs", "version": "1.0.0"},
			}
		case "resources/list":
			resp["result"] = map[string]any{
				"resources": []map[string]any{{"uri": "papers://folders", "name": "folders"}},
			}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestConnector_TemplateListingNotSupported(t *testing.T) {
	ts := noTemplatesServer(t)
	defer ts.Close()

	reg := NewRegistry("papers")
	lc := NewLifecycle(newTestLogger())
	c := NewConnector(mcpsession.NewDialer(newTestLogger()), reg, lc, 5*time.Second, newTestLogger())

	entries := []config.ProviderDescriptor{
		{Name: "docs", Server: config.ServerConfig{Transport: config.TransportHTTP, URL: ts.URL}},
	}
	report := c.Connect(context.Background(), entries)

	require.Empty(t, report.Failed)
	assert.Equal(t, []string{"docs"}, report.Connected)

	owner, ok := reg.ResolveResource("papers://folders")
	require.True(t, ok)
	assert.Equal(t, "docs", owner.Name())
	assert.Equal(t, 1, lc.pending())
	_ = lc.Close()
}
