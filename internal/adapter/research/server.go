// Package research exposes the paper research service as an MCP server.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcp-chatbot/internal/domain"
	svc "mcp-chatbot/internal/usecase/research"
)

// Server identity sent in the initialize handshake.
const (
	ServerName    = "research"
	ServerVersion = "1.0.0"
)

// Resource addresses.
const (
	FoldersURI    = "papers://folders"
	TopicTemplate = "papers://{topic}"
	markdownMIME  = "text/markdown"
)

type handlers struct {
	svc    *svc.Service
	logger *slog.Logger
}

// NewServer builds the MCP server with two tools (search_papers,
// extract_info), the folders resource, the per-topic resource template and
// the generate_search_prompt prompt.
func NewServer(service *svc.Service, logger *slog.Logger) *server.MCPServer {
	h := &handlers{svc: service, logger: logger}

	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("search_papers",
		mcp.WithDescription("Search for papers on arXiv based on a topic and store their information."),
		mcp.WithString("topic",
			mcp.Required(),
			mcp.Description("The topic to search for"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to retrieve"),
			mcp.DefaultNumber(float64(service.DefaultResults())),
			mcp.Min(1),
		),
	), h.searchPapers)

	s.AddTool(mcp.NewTool("extract_info",
		mcp.WithDescription("Search for information about a specific paper across all topic directories."),
		mcp.WithString("paper_id",
			mcp.Required(),
			mcp.Description("The ID of the paper to look for"),
		),
	), h.extractInfo)

	s.AddResource(mcp.NewResource(FoldersURI, "folders",
		mcp.WithResourceDescription("List all available topic folders in the papers directory."),
		mcp.WithMIMEType(markdownMIME),
	), h.folders)

	s.AddResourceTemplate(mcp.NewResourceTemplate(TopicTemplate, "topic",
		mcp.WithTemplateDescription("Detailed information about papers on a specific topic."),
		mcp.WithTemplateMIMEType(markdownMIME),
	), h.topic)

	s.AddPrompt(mcp.NewPrompt("generate_search_prompt",
		mcp.WithPromptDescription("Generate a prompt for Claude to find and discuss academic papers on a specific topic."),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("The topic to search for"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("num_papers",
			mcp.ArgumentDescription("Number of papers to search for"),
		),
	), h.searchPrompt)

	return s
}

func (h *handlers) searchPapers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil || strings.TrimSpace(topic) == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}
	maxResults := req.GetInt("max_results", h.svc.DefaultResults())

	ids, err := h.svc.SearchPapers(ctx, topic, maxResults)
	if err != nil {
		h.logger.Warn("search_papers failed", "topic", topic, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatIDs(ids)), nil
}

func (h *handlers) extractInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("paper_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("paper_id is required"), nil
	}

	info, err := h.svc.ExtractInfo(ctx, id)
	if errors.Is(err, domain.ErrPaperNotFound) {
		return mcp.NewToolResultText(svc.NotFoundMessage(id)), nil
	}
	if err != nil {
		h.logger.Warn("extract_info failed", "paper_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return mcp.NewToolResultText(info), nil
}

func (h *handlers) folders(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	md, err := h.svc.FoldersMarkdown(ctx)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{markdown(req.Params.URI, md)}, nil
}

func (h *handlers) topic(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	topic := templateArg(req.Params.Arguments, "topic")
	if topic == "" {
		topic = strings.TrimPrefix(req.Params.URI, "papers://")
		if unescaped, err := url.PathUnescape(topic); err == nil {
			topic = unescaped
		}
	}
	md, err := h.svc.TopicMarkdown(ctx, topic)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{markdown(req.Params.URI, md)}, nil
}

func (h *handlers) searchPrompt(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := strings.TrimSpace(req.Params.Arguments["topic"])
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}
	num := h.svc.DefaultResults()
	if raw := strings.TrimSpace(req.Params.Arguments["num_papers"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: num_papers must be a positive integer, got %q", domain.ErrInvalidInput, raw)
		}
		num = n
	}

	return mcp.NewGetPromptResult(
		fmt.Sprintf("Search and discuss papers about %s", topic),
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(svc.SearchPrompt(topic, num))),
		},
	), nil
}

func markdown(uri, text string) mcp.TextResourceContents {
	return mcp.TextResourceContents{URI: uri, MIMEType: markdownMIME, Text: text}
}

// formatIDs renders IDs the way the chatbot shows a list result.
func formatIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// templateArg reads a matched URI template variable, which arrives either
// as a string or as a list of strings.
func templateArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
