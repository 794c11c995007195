package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

// --- Mocks ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession is an in-memory domain.SessionHandle.
type fakeSession struct {
	name      string
	tools     []domain.ToolInfo
	prompts   []domain.PromptInfo
	resources []domain.ResourceInfo
	templates []domain.ResourceTemplateInfo

	listErr  error
	callFunc func(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, error)
	contents map[string][]domain.ResourceContent
	readErr  error
	prompt   func(name string, args map[string]string) (*domain.PromptResult, error)
	closeErr error

	mu          sync.Mutex
	calls       []string
	promptCalls []map[string]string
	closed      int
	onClose     func()
}

func (s *fakeSession) ID() string   { return "id-" + s.name }
func (s *fakeSession) Name() string { return s.name }

func (s *fakeSession) ListTools(context.Context) ([]domain.ToolInfo, error) {
	return s.tools, nil
}

func (s *fakeSession) ListPrompts(context.Context) ([]domain.PromptInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.prompts, nil
}

func (s *fakeSession) ListResources(context.Context) ([]domain.ResourceInfo, error) {
	return s.resources, nil
}

func (s *fakeSession) ListResourceTemplates(context.Context) ([]domain.ResourceTemplateInfo, error) {
	return s.templates, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
	if s.callFunc != nil {
		return s.callFunc(ctx, name, args)
	}
	return &domain.ToolResult{Content: fmt.Sprintf("%s result", name)}, nil
}

func (s *fakeSession) GetPrompt(_ context.Context, name string, args map[string]string) (*domain.PromptResult, error) {
	s.mu.Lock()
	s.promptCalls = append(s.promptCalls, args)
	s.mu.Unlock()
	if s.prompt != nil {
		return s.prompt(name, args)
	}
	return &domain.PromptResult{}, nil
}

func (s *fakeSession) ReadResource(_ context.Context, uri string) ([]domain.ResourceContent, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	c, ok := s.contents[uri]
	if !ok {
		return nil, fmt.Errorf("unknown resource %s", uri)
	}
	return c, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	if s.onClose != nil {
		s.onClose()
	}
	return s.closeErr
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer hands out sessions by roster name; names in fail are refused.
type fakeDialer struct {
	sessions map[string]*fakeSession
	fail     map[string]error
	dialed   []string
}

func (d *fakeDialer) Dial(_ context.Context, desc config.ProviderDescriptor) (domain.SessionHandle, error) {
	d.dialed = append(d.dialed, desc.Name)
	if err, ok := d.fail[desc.Name]; ok {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderConnect, desc.Name, err)
	}
	s, ok := d.sessions[desc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such provider", domain.ErrProviderConnect, desc.Name)
	}
	return s, nil
}

func roster(names ...string) []config.ProviderDescriptor {
	out := make([]config.ProviderDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, config.ProviderDescriptor{
			Name:   n,
			Server: config.ServerConfig{Transport: config.TransportStdio, Command: n},
		})
	}
	return out
}

// scriptedLLM returns canned responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*domain.ChatResponse
	errs      []error
	requests  []domain.ChatRequest
}

func (m *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.requests)
	m.requests = append(m.requests, cloneRequest(req))
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return textResponse("fallback"), nil
	}
	return m.responses[idx], nil
}

func (m *scriptedLLM) Name() string { return "scripted" }

func cloneRequest(req domain.ChatRequest) domain.ChatRequest {
	req.Messages = append([]domain.Message(nil), req.Messages...)
	return req
}

func textResponse(text string) *domain.ChatResponse {
	return &domain.ChatResponse{Parts: []domain.ContentPart{domain.TextPart{Text: text}}}
}

func toolResponse(text string, calls ...domain.ToolCall) *domain.ChatResponse {
	resp := &domain.ChatResponse{}
	if text != "" {
		resp.Parts = append(resp.Parts, domain.TextPart{Text: text})
	}
	for _, c := range calls {
		resp.Parts = append(resp.Parts, domain.ToolUsePart{Call: c})
	}
	return resp
}

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// recordingPrinter captures console output by channel.
type recordingPrinter struct {
	mu        sync.Mutex
	assistant []string
	toolCalls []string
	printed   []string
	notices   []string
	errors    []string
}

func (p *recordingPrinter) Assistant(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assistant = append(p.assistant, text)
}

func (p *recordingPrinter) ToolCall(name, args string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCalls = append(p.toolCalls, name+" "+args)
}

func (p *recordingPrinter) Print(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, text)
}

func (p *recordingPrinter) Notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, text)
}

func (p *recordingPrinter) Error(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, text)
}

func (p *recordingPrinter) allErrors() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.errors, "\n")
}

// chanSource adapts a channel to a LineSource; a closed channel is end of input.
type chanSource <-chan string

func (c chanSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{MaxIterations: 10, ValidateArgs: true}
}

func testConsoleConfig() config.ConsoleConfig {
	return config.ConsoleConfig{ResourceScheme: "papers", ListingKeyword: "folders"}
}
