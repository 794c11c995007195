package research

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-chatbot/internal/adapter/mcpsession"
	"mcp-chatbot/internal/adapter/paperstore"
	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	svc "mcp-chatbot/internal/usecase/research"
)

type stubSearcher struct {
	papers []domain.Paper
	err    error
}

func (s *stubSearcher) Search(_ context.Context, _ string, maxResults int) ([]domain.Paper, error) {
	if s.err != nil {
		return nil, s.err
	}
	if maxResults < len(s.papers) {
		return s.papers[:maxResults], nil
	}
	return s.papers, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPapers = []domain.Paper{
	{ID: "2401.00001v1", Title: "Attention Again", Authors: []string{"A. Author"},
		Summary: "Transformers.", PDFURL: "http://arxiv.org/pdf/2401.00001v1", Published: "2024-01-01"},
	{ID: "2401.00002v1", Title: "Sparse Everything", Authors: []string{"B. Author"},
		Summary: "Sparsity.", PDFURL: "http://arxiv.org/pdf/2401.00002v1", Published: "2024-01-02"},
	{ID: "2401.00003v1", Title: "Scaling Down", Authors: []string{"C. Author"},
		Summary: "Small models.", PDFURL: "http://arxiv.org/pdf/2401.00003v1", Published: "2024-01-03"},
}

func newTestService(t *testing.T, searcher domain.PaperSearcher) *svc.Service {
	t.Helper()
	store, err := paperstore.NewJSONStore(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	return svc.NewService(svc.ServiceDeps{
		Searcher: searcher,
		Store:    store,
		Logger:   newTestLogger(),
	})
}

// connect serves a research server in process and dials it the way the
// chatbot does.
func connect(t *testing.T, searcher domain.PaperSearcher) domain.SessionHandle {
	t.Helper()
	d := mcpsession.NewDialer(newTestLogger())
	d.RegisterInProcess(ServerName, NewServer(newTestService(t, searcher), newTestLogger()))

	h, err := d.Dial(context.Background(), config.ProviderDescriptor{
		Name:   ServerName,
		Server: config.ServerConfig{Transport: config.TransportInProcess},
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestServerCapabilities(t *testing.T) {
	h := connect(t, &stubSearcher{})
	ctx := context.Background()

	tools, err := h.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_papers", "extract_info"}, names)

	for _, tool := range tools {
		if tool.Name != "search_papers" {
			continue
		}
		var schema struct {
			Required   []string       `json:"required"`
			Properties map[string]any `json:"properties"`
		}
		require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
		assert.Equal(t, []string{"topic"}, schema.Required)
		assert.Contains(t, schema.Properties, "max_results")
	}

	resources, err := h.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, FoldersURI, resources[0].URI)

	templates, err := h.ListResourceTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, TopicTemplate, templates[0].URITemplate)

	prompts, err := h.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "generate_search_prompt", prompts[0].Name)
}

func TestServerSearchAndExtract(t *testing.T) {
	h := connect(t, &stubSearcher{papers: testPapers})
	ctx := context.Background()

	res, err := h.CallTool(ctx, "search_papers", map[string]any{"topic": "Machine Learning", "max_results": 2})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, `["2401.00001v1", "2401.00002v1"]`, res.Content)

	res, err = h.CallTool(ctx, "extract_info", map[string]any{"paper_id": "2401.00002v1"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content), &info))
	assert.Equal(t, "Sparse Everything", info["title"])

	res, err = h.CallTool(ctx, "extract_info", map[string]any{"paper_id": "9999.99999"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "There's no saved information related to paper 9999.99999.", res.Content)
}

func TestServerSearchDefaultsToConfiguredCount(t *testing.T) {
	h := connect(t, &stubSearcher{papers: append(append([]domain.Paper{}, testPapers...), testPapers...)})

	res, err := h.CallTool(context.Background(), "search_papers", map[string]any{"topic": "physics"})
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(res.Content), &ids))
	assert.Len(t, ids, svc.DefaultMaxResults)
}

func TestServerToolErrors(t *testing.T) {
	h := connect(t, &stubSearcher{err: errors.New("arxiv unavailable")})
	ctx := context.Background()

	res, err := h.CallTool(ctx, "search_papers", map[string]any{"topic": "physics"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "arxiv unavailable")

	res, err = h.CallTool(ctx, "search_papers", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.CallTool(ctx, "extract_info", map[string]any{"paper_id": " "})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServerResources(t *testing.T) {
	h := connect(t, &stubSearcher{papers: testPapers})
	ctx := context.Background()

	contents, err := h.ReadResource(ctx, FoldersURI)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "text/markdown", contents[0].MIMEType)
	assert.Contains(t, contents[0].Text, "No topics found.")

	_, err = h.CallTool(ctx, "search_papers", map[string]any{"topic": "machine learning", "max_results": 3})
	require.NoError(t, err)

	contents, err = h.ReadResource(ctx, FoldersURI)
	require.NoError(t, err)
	assert.Contains(t, contents[0].Text, "- machine_learning\n")

	contents, err = h.ReadResource(ctx, "papers://machine_learning")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "papers://machine_learning", contents[0].URI)
	assert.Contains(t, contents[0].Text, "# Papers on Machine Learning")
	assert.Contains(t, contents[0].Text, "Total papers: 3")

	contents, err = h.ReadResource(ctx, "papers://chemistry")
	require.NoError(t, err)
	assert.Contains(t, contents[0].Text, "# No papers found for topic: chemistry")
}

func TestServerResourcesEncodedTopics(t *testing.T) {
	h := connect(t, &stubSearcher{papers: testPapers})
	ctx := context.Background()

	for _, topic := range []string{"machine learning", "émotion"} {
		_, err := h.CallTool(ctx, "search_papers", map[string]any{"topic": topic, "max_results": 1})
		require.NoError(t, err)
	}

	contents, err := h.ReadResource(ctx, "papers://machine%20learning")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Contains(t, contents[0].Text, "# Papers on Machine Learning")

	contents, err = h.ReadResource(ctx, "papers://%C3%A9motion")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Contains(t, contents[0].Text, "# Papers on Émotion\n")
	assert.NotContains(t, contents[0].Text, "\uFFFD")
}

func TestServerPrompt(t *testing.T) {
	h := connect(t, &stubSearcher{})
	ctx := context.Background()

	res, err := h.GetPrompt(ctx, "generate_search_prompt", map[string]string{"topic": "graph theory", "num_papers": "3"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "user", res.Messages[0].Role)
	require.Len(t, res.Messages[0].Parts, 1)
	assert.True(t, res.Messages[0].Parts[0].IsText)
	assert.Contains(t, res.Messages[0].Parts[0].Text, "Search for 3 academic papers about 'graph theory'")

	res, err = h.GetPrompt(ctx, "generate_search_prompt", map[string]string{"topic": "graph theory"})
	require.NoError(t, err)
	assert.Contains(t, res.Messages[0].Parts[0].Text, "Search for 5 academic papers")

	_, err = h.GetPrompt(ctx, "generate_search_prompt", map[string]string{"topic": "graph theory", "num_papers": "many"})
	assert.Error(t, err)

	_, err = h.GetPrompt(ctx, "generate_search_prompt", map[string]string{})
	assert.Error(t, err)
}

func TestServerOverHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(newTestService(t, &stubSearcher{papers: testPapers}), newTestLogger())
	ts := httptest.NewServer(NewHTTPHandler(ctx, srv, config.RateLimit{}, newTestLogger()))
	defer ts.Close()

	d := mcpsession.NewDialer(newTestLogger())
	h, err := d.Dial(ctx, config.ProviderDescriptor{
		Name:   "research-http",
		Server: config.ServerConfig{Transport: config.TransportHTTP, URL: ts.URL + EndpointPath},
	})
	require.NoError(t, err)
	defer h.Close()

	res, err := h.CallTool(ctx, "search_papers", map[string]any{"topic": "physics", "max_results": 1})
	require.NoError(t, err)
	assert.Equal(t, `["2401.00001v1"]`, res.Content)

	resp, err := http.Get(ts.URL + "/elsewhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerOverHTTPRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(newTestService(t, &stubSearcher{}), newTestLogger())
	ts := httptest.NewServer(NewHTTPHandler(ctx, srv, config.RateLimit{RequestsPerMin: 1, Burst: 1}, newTestLogger()))
	defer ts.Close()

	d := mcpsession.NewDialer(newTestLogger())
	_, err := d.Dial(ctx, config.ProviderDescriptor{
		Name:   "research-http",
		Server: config.ServerConfig{Transport: config.TransportHTTP, URL: ts.URL + EndpointPath},
	})
	// The handshake needs more than one request.
	assert.ErrorIs(t, err, domain.ErrProviderConnect)
}

func TestTemplateArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"string", map[string]any{"topic": "physics"}, "physics"},
		{"string slice", map[string]any{"topic": []string{"physics", "x"}}, "physics"},
		{"any slice", map[string]any{"topic": []any{"physics"}}, "physics"},
		{"empty slice", map[string]any{"topic": []string{}}, ""},
		{"missing", map[string]any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, templateArg(tt.args, "topic"))
		})
	}
}
