package domain

import (
	"context"
	"encoding/json"
)

// CapabilityKind classifies a named capability advertised by a provider.
type CapabilityKind string

const (
	KindTool     CapabilityKind = "tool"
	KindPrompt   CapabilityKind = "prompt"
	KindResource CapabilityKind = "resource"
)

// PromptArgument describes one argument accepted by a prompt template.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolInfo is a tool as listed by a provider.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// PromptInfo is a prompt as listed by a provider.
type PromptInfo struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// ResourceInfo is a concrete resource as listed by a provider.
type ResourceInfo struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
}

// ResourceTemplateInfo is a parameterised resource URI (RFC 6570) listed by a provider.
type ResourceTemplateInfo struct {
	URITemplate string
	Name        string
	Description string
}

// PromptPart is one content block of an expanded prompt message.
// Non-text blocks keep IsText false and carry whatever textual form the
// provider supplied (possibly empty).
type PromptPart struct {
	Text   string
	IsText bool
}

// PromptMessage is one role-tagged message produced by prompt expansion.
type PromptMessage struct {
	Role  string
	Parts []PromptPart
}

// PromptResult is the outcome of expanding a prompt template.
type PromptResult struct {
	Description string
	Messages    []PromptMessage
}

// ResourceContent is one content item returned when reading a resource.
type ResourceContent struct {
	URI      string
	MIMEType string
	Text     string
	Blob     string
}

// SessionHandle is one live session with a tool-provider process.
// A handle is only published to callers after its handshake completed.
type SessionHandle interface {
	// ID is a process-unique identity for logs.
	ID() string
	// Name is the roster name of the provider.
	Name() string

	ListTools(ctx context.Context) ([]ToolInfo, error)
	ListPrompts(ctx context.Context) ([]PromptInfo, error)
	ListResources(ctx context.Context) ([]ResourceInfo, error)
	ListResourceTemplates(ctx context.Context) ([]ResourceTemplateInfo, error)

	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*PromptResult, error)
	ReadResource(ctx context.Context, uri string) ([]ResourceContent, error)

	// Close releases the session and its transport.
	Close() error
}

// Capability is one entry of the merged capability registry.
type Capability struct {
	Name        string
	Kind        CapabilityKind
	Description string
	Schema      json.RawMessage  // tools only
	Arguments   []PromptArgument // prompts only
	Session     SessionHandle
}

// ToolSchema returns the LLM-facing schema of a tool capability.
func (c Capability) ToolSchema() ToolSchema {
	params := c.Schema
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object"}`)
	}
	return ToolSchema{
		Name:        c.Name,
		Description: c.Description,
		Parameters:  params,
	}
}
