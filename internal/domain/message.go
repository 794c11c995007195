package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolChoiceAuto lets the model decide whether to call tools.
const ToolChoiceAuto = "auto"

// Message represents a single message in a conversation.
// Assistant messages carry the tool calls they requested; tool messages
// carry the ID of the call they answer in ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// ChatResponse is returned from an LLM provider. Parts preserve the order
// in which the model produced text and tool-use blocks.
type ChatResponse struct {
	ID        string        `json:"id"`
	Model     string        `json:"model"`
	Parts     []ContentPart `json:"-"`
	Usage     Usage         `json:"usage"`
	CreatedAt time.Time     `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ContentPart is one block of an assistant response. The set of
// implementations is closed: TextPart and ToolUsePart.
type ContentPart interface {
	contentPart()
}

// TextPart is visible assistant text.
type TextPart struct {
	Text string
}

// ToolUsePart is a tool-call request emitted by the model.
type ToolUsePart struct {
	Call ToolCall
}

func (TextPart) contentPart()    {}
func (ToolUsePart) contentPart() {}

// Text concatenates the text parts of the response.
func (r *ChatResponse) Text() string {
	var out string
	for _, p := range r.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// ToolCalls returns the tool-call requests of the response in order.
func (r *ChatResponse) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range r.Parts {
		if tu, ok := p.(ToolUsePart); ok {
			calls = append(calls, tu.Call)
		}
	}
	return calls
}
