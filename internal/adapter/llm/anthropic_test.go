package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

func newTestAnthropic(url string) *AnthropicProvider {
	return NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic-test",
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "deepseek-chat",
	}, newTestLogger())
}

func TestAnthropicRequestConversion(t *testing.T) {
	req := domain.ChatRequest{
		Model: "deepseek-chat",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are helpful."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
		MaxTokens: 100,
	}

	antReq := toAnthropicRequest(req)
	if antReq.System != "You are helpful." {
		t.Errorf("System = %q", antReq.System)
	}
	if len(antReq.Messages) != 1 {
		t.Fatalf("Messages len = %d, want 1 (system extracted)", len(antReq.Messages))
	}
	if antReq.MaxTokens != 100 {
		t.Errorf("MaxTokens = %d", antReq.MaxTokens)
	}
	if antReq.ToolChoice != nil {
		t.Error("ToolChoice should be omitted without tools")
	}
}

func TestAnthropicDefaultMaxTokens(t *testing.T) {
	antReq := toAnthropicRequest(domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if antReq.MaxTokens != defaultAnthropicMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", antReq.MaxTokens, defaultAnthropicMaxTokens)
	}
}

func TestAnthropicRequestWithToolsAndChoice(t *testing.T) {
	req := domain.ChatRequest{
		Messages:   []domain.Message{{Role: domain.RoleUser, Content: "find papers"}},
		ToolChoice: domain.ToolChoiceAuto,
		Tools: []domain.ToolSchema{{
			Name:        "search_papers",
			Description: "Search arXiv",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"topic":{"type":"string"}}}`),
		}},
	}

	antReq := toAnthropicRequest(req)
	if len(antReq.Tools) != 1 || antReq.Tools[0].Name != "search_papers" {
		t.Fatalf("Tools = %+v", antReq.Tools)
	}
	if antReq.ToolChoice == nil || antReq.ToolChoice.Type != "auto" {
		t.Errorf("ToolChoice = %+v", antReq.ToolChoice)
	}
}

func TestAnthropicRequestGroupsToolResults(t *testing.T) {
	req := domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "two things"},
			{
				Role:    domain.RoleAssistant,
				Content: "Calling both.",
				ToolCalls: []domain.ToolCall{
					{ID: "toolu_1", Name: "a", Arguments: json.RawMessage(`{"x":1}`)},
					{ID: "toolu_2", Name: "b"},
				},
			},
			{Role: domain.RoleTool, ToolCallID: "toolu_1", Content: "one"},
			{Role: domain.RoleTool, ToolCallID: "toolu_2", Content: "boom", IsError: true},
		},
	}

	antReq := toAnthropicRequest(req)
	if len(antReq.Messages) != 3 {
		t.Fatalf("Messages len = %d, want 3", len(antReq.Messages))
	}

	assistant := antReq.Messages[1]
	if len(assistant.Content) != 3 {
		t.Fatalf("assistant blocks = %d, want 3", len(assistant.Content))
	}
	if assistant.Content[0].Type != "text" || assistant.Content[1].Type != "tool_use" {
		t.Errorf("assistant block order = %s, %s", assistant.Content[0].Type, assistant.Content[1].Type)
	}
	if string(assistant.Content[2].Input) != `{}` {
		t.Errorf("empty arguments should become {}, got %s", assistant.Content[2].Input)
	}

	results := antReq.Messages[2]
	if results.Role != domain.RoleUser || len(results.Content) != 2 {
		t.Fatalf("tool results message = %+v", results)
	}
	if results.Content[0].ToolUseID != "toolu_1" || results.Content[1].ToolUseID != "toolu_2" {
		t.Errorf("tool_use_ids = %q, %q", results.Content[0].ToolUseID, results.Content[1].ToolUseID)
	}
	if !results.Content[1].IsError {
		t.Error("second result should carry is_error")
	}
}

func TestAnthropicResponsePreservesBlockOrder(t *testing.T) {
	resp := anthropicResponse{
		ID:    "msg_1",
		Model: "deepseek-chat",
		Content: []anthropicContent{
			{Type: "text", Text: "Let me look."},
			{Type: "tool_use", ID: "toolu_1", Name: "search_papers", Input: json.RawMessage(`{"topic":"llm"}`)},
			{Type: "text", Text: "Done."},
		},
		Usage: anthropicUsage{InputTokens: 10, OutputTokens: 5},
	}

	result := fromAnthropicResponse(resp)
	if len(result.Parts) != 3 {
		t.Fatalf("Parts len = %d, want 3", len(result.Parts))
	}
	if _, ok := result.Parts[1].(domain.ToolUsePart); !ok {
		t.Errorf("Parts[1] = %T, want ToolUsePart", result.Parts[1])
	}
	if result.Text() != "Let me look.Done." {
		t.Errorf("Text = %q", result.Text())
	}
	calls := result.ToolCalls()
	if len(calls) != 1 || calls[0].ID != "toolu_1" || string(calls[0].Arguments) != `{"topic":"llm"}` {
		t.Errorf("ToolCalls = %+v", calls)
	}
	if result.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", result.Usage.TotalTokens)
	}
}

func TestAnthropicProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("unexpected api key: %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != defaultAnthropicVersion {
			t.Errorf("unexpected version: %s", r.Header.Get("anthropic-version"))
		}

		body, _ := io.ReadAll(r.Body)
		var req anthropicRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "deepseek-chat" {
			t.Errorf("default model not applied: %q", req.Model)
		}

		resp := anthropicResponse{
			ID:      "msg_test",
			Model:   "deepseek-chat",
			Content: []anthropicContent{{Type: "text", Text: "Test response"}},
			Usage:   anthropicUsage{InputTokens: 5, OutputTokens: 3},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := newTestAnthropic(server.URL)
	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Text() != "Test response" {
		t.Errorf("Text = %q", resp.Text())
	}
	if provider.Name() != "anthropic-test" {
		t.Errorf("Name = %q", provider.Name())
	}
}

func TestAnthropicProviderErrorResponses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusServiceUnavailable, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer server.Close()

			_, err := newTestAnthropic(server.URL).Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnthropicChatInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := newTestAnthropic(server.URL).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestAnthropicChatContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAnthropic(server.URL).Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
