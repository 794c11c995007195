package mcpsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/trace"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/tracer"
)

// mcpClient abstracts the MCP client interface for testability.
// *client.Client satisfies it; its List* calls already follow pagination cursors.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ListResourceTemplates(ctx context.Context, request mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	Close() error
}

// Session is one initialized MCP client session. It implements domain.SessionHandle.
type Session struct {
	id     string
	name   string
	client mcpClient
	caps   mcp.ServerCapabilities
	server mcp.Implementation
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// newSession wraps a client whose initialize handshake already completed.
func newSession(name string, c mcpClient, initRes *mcp.InitializeResult, logger *slog.Logger) *Session {
	s := &Session{
		id:     uuid.NewString(),
		name:   name,
		client: c,
		logger: logger,
	}
	if initRes != nil {
		s.caps = initRes.Capabilities
		s.server = initRes.ServerInfo
	}
	return s
}

// ID implements domain.SessionHandle.
func (s *Session) ID() string { return s.id }

// Name implements domain.SessionHandle.
func (s *Session) Name() string { return s.name }

// ListTools implements domain.SessionHandle. Every MCP server answers
// tools/list, so it is requested regardless of the advertised capabilities.
func (s *Session) ListTools(ctx context.Context) ([]domain.ToolInfo, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, domain.WrapOp("list tools", err)
	}

	tools := make([]domain.ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, domain.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toolSchema(t),
		})
	}
	return tools, nil
}

// ListPrompts implements domain.SessionHandle. A server that did not
// advertise prompts has none.
func (s *Session) ListPrompts(ctx context.Context) ([]domain.PromptInfo, error) {
	if s.caps.Prompts == nil {
		return nil, nil
	}
	result, err := s.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, domain.WrapOp("list prompts", err)
	}

	prompts := make([]domain.PromptInfo, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		info := domain.PromptInfo{Name: p.Name, Description: p.Description}
		for _, a := range p.Arguments {
			info.Arguments = append(info.Arguments, domain.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		prompts = append(prompts, info)
	}
	return prompts, nil
}

// ListResources implements domain.SessionHandle.
func (s *Session) ListResources(ctx context.Context) ([]domain.ResourceInfo, error) {
	if s.caps.Resources == nil {
		return nil, nil
	}
	result, err := s.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, domain.WrapOp("list resources", err)
	}

	resources := make([]domain.ResourceInfo, 0, len(result.Resources))
	for _, r := range result.Resources {
		resources = append(resources, domain.ResourceInfo{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}
	return resources, nil
}

// ListResourceTemplates implements domain.SessionHandle.
func (s *Session) ListResourceTemplates(ctx context.Context) ([]domain.ResourceTemplateInfo, error) {
	if s.caps.Resources == nil {
		return nil, nil
	}
	result, err := s.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if errors.Is(err, mcp.ErrMethodNotFound) {
		s.logger.Debug("resource templates not supported", "server", s.name)
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapOp("list resource templates", err)
	}

	templates := make([]domain.ResourceTemplateInfo, 0, len(result.ResourceTemplates))
	for _, t := range result.ResourceTemplates {
		var raw string
		if t.URITemplate != nil && t.URITemplate.Template != nil {
			raw = t.URITemplate.Raw()
		}
		templates = append(templates, domain.ResourceTemplateInfo{
			URITemplate: raw,
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return templates, nil
}

// CallTool implements domain.SessionHandle. Transport failures are returned
// as errors; a tool that ran and failed comes back with IsError set.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "mcp.call_tool",
		trace.WithAttributes(
			tracer.StringAttr("mcp.server", s.name),
			tracer.StringAttr("mcp.tool", name),
		),
	)
	defer span.End()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	s.logger.Debug("mcp tool call", "server", s.name, "session", s.id, "tool", name)

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("call tool %q on %q: %w: %w", name, s.name, domain.ErrToolFailure, err)
	}

	span.SetAttributes(tracer.BoolAttr("mcp.is_error", result.IsError))
	tracer.SetOK(span)

	return &domain.ToolResult{
		Content: extractContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// GetPrompt implements domain.SessionHandle. Argument values travel as
// strings exactly as given.
func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]string) (*domain.PromptResult, error) {
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.client.GetPrompt(ctx, req)
	if err != nil {
		return nil, domain.WrapOp("get prompt "+name, err)
	}

	out := &domain.PromptResult{Description: result.Description}
	for _, m := range result.Messages {
		out.Messages = append(out.Messages, domain.PromptMessage{
			Role:  string(m.Role),
			Parts: []domain.PromptPart{promptPart(m.Content)},
		})
	}
	return out, nil
}

// ReadResource implements domain.SessionHandle.
func (s *Session) ReadResource(ctx context.Context, uri string) ([]domain.ResourceContent, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	result, err := s.client.ReadResource(ctx, req)
	if err != nil {
		return nil, domain.WrapOp("read resource "+uri, err)
	}

	contents := make([]domain.ResourceContent, 0, len(result.Contents))
	for _, c := range result.Contents {
		if rc, ok := resourceContent(c); ok {
			contents = append(contents, rc)
		}
	}
	return contents, nil
}

// Close implements domain.SessionHandle. Only the first call reaches the transport.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
		s.logger.Debug("mcp session closed", "server", s.name, "session", s.id, "error", s.closeErr)
	})
	return s.closeErr
}

// toolSchema returns the tool's input schema as raw JSON.
func toolSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	schema := t.InputSchema
	if schema.Type == "" {
		schema.Type = "object"
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

// extractContent converts MCP tool content to a string. Text parts are
// joined with newlines; other parts are JSON-encoded.
func extractContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func promptPart(c mcp.Content) domain.PromptPart {
	switch v := c.(type) {
	case mcp.TextContent:
		return domain.PromptPart{Text: v.Text, IsText: true}
	case *mcp.TextContent:
		return domain.PromptPart{Text: v.Text, IsText: true}
	case mcp.EmbeddedResource:
		rc, _ := resourceContent(v.Resource)
		return domain.PromptPart{Text: rc.Text}
	case *mcp.EmbeddedResource:
		rc, _ := resourceContent(v.Resource)
		return domain.PromptPart{Text: rc.Text}
	default:
		return domain.PromptPart{}
	}
}

func resourceContent(c mcp.ResourceContents) (domain.ResourceContent, bool) {
	switch v := c.(type) {
	case mcp.TextResourceContents:
		return domain.ResourceContent{URI: v.URI, MIMEType: v.MIMEType, Text: v.Text}, true
	case *mcp.TextResourceContents:
		return domain.ResourceContent{URI: v.URI, MIMEType: v.MIMEType, Text: v.Text}, true
	case mcp.BlobResourceContents:
		return domain.ResourceContent{URI: v.URI, MIMEType: v.MIMEType, Blob: v.Blob}, true
	case *mcp.BlobResourceContents:
		return domain.ResourceContent{URI: v.URI, MIMEType: v.MIMEType, Blob: v.Blob}, true
	default:
		return domain.ResourceContent{}, false
	}
}

var _ domain.SessionHandle = (*Session)(nil)
