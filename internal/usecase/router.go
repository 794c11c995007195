package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

// QueryRunner runs a free-form query through the model/tool loop.
type QueryRunner interface {
	Query(ctx context.Context, text string) ([]domain.Message, error)
}

const helpText = `Commands:
  @folders                       list stored topics
  @<topic>                       show the papers stored for a topic
  /prompts                       list available prompts
  /prompt <name> [key=value ...] run a prompt through the assistant
  /help                          show this help
  quit                           exit
Anything else is sent to the assistant.`

// Router dispatches parsed input lines to the registry, a session, or the engine.
// Every failure is printed; none ends the loop.
type Router struct {
	registry       *Registry
	engine         QueryRunner
	out            Printer
	scheme         string
	listingKeyword string
	logger         *slog.Logger
}

// NewRouter creates a Router using the console's resource scheme and listing keyword.
func NewRouter(registry *Registry, engine QueryRunner, out Printer, cfg config.ConsoleConfig, logger *slog.Logger) *Router {
	return &Router{
		registry:       registry,
		engine:         engine,
		out:            out,
		scheme:         cfg.ResourceScheme,
		listingKeyword: cfg.ListingKeyword,
		logger:         logger,
	}
}

// Handle processes one input line. It returns false when the line asks to quit.
func (r *Router) Handle(ctx context.Context, line string) bool {
	d := ParseDirective(line)
	if d.Kind != DirectiveEmpty {
		r.logger.Debug("directive", "kind", d.Kind.String())
	}

	switch d.Kind {
	case DirectiveEmpty:
	case DirectiveQuit:
		return false
	case DirectiveResource:
		r.fetchResource(ctx, d.Topic)
	case DirectiveListPrompts:
		r.listPrompts()
	case DirectivePrompt:
		r.executePrompt(ctx, d)
	case DirectiveHelp:
		r.out.Print(helpText)
	case DirectiveUnknownCommand:
		r.out.Error(fmt.Sprintf("Unknown command: %s (try /help)", d.Name))
	case DirectiveQuery:
		r.query(ctx, d.Text)
	}
	return true
}

// ResourceURI maps a topic typed after the sigil to its canonical URI.
// Everything outside the unreserved set is percent-encoded so multi-word
// and non-ASCII topics still match a {topic} template.
func (r *Router) ResourceURI(topic string) string {
	if strings.EqualFold(topic, r.listingKeyword) {
		return r.scheme + "://" + r.listingKeyword
	}
	return r.scheme + "://" + strings.ReplaceAll(url.QueryEscape(topic), "+", "%20")
}

func (r *Router) fetchResource(ctx context.Context, topic string) {
	if topic == "" {
		r.out.Error(fmt.Sprintf("Usage: @%s or @<topic>", r.listingKeyword))
		return
	}

	uri := r.ResourceURI(topic)
	session, ok := r.registry.ResolveResource(uri)
	if !ok {
		r.out.Error(fmt.Sprintf("Resource %s not found", uri))
		return
	}

	contents, err := session.ReadResource(ctx, uri)
	if err != nil {
		r.logger.Warn("resource read failed", "uri", uri, "server", session.Name(), "error", err)
		r.out.Error(fmt.Sprintf("Error reading resource %s: %v", uri, err))
		return
	}
	if len(contents) == 0 {
		r.out.Notice(fmt.Sprintf("Resource %s is empty", uri))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Resource: %s\n", uri)
	for _, c := range contents {
		switch {
		case c.Text != "":
			b.WriteString(c.Text)
		case c.Blob != "":
			fmt.Fprintf(&b, "[binary content, %s, %d base64 bytes]", orUnknown(c.MIMEType), len(c.Blob))
		}
		b.WriteString("\n")
	}
	r.out.Print(strings.TrimRight(b.String(), "\n"))
}

// listPrompts only reads the registry, so repeated calls print the same text.
func (r *Router) listPrompts() {
	r.out.Print(FormatPrompts(r.registry.Prompts()))
}

// FormatPrompts renders prompt names, descriptions and argument names.
func FormatPrompts(prompts []domain.Capability) string {
	if len(prompts) == 0 {
		return "No prompts available."
	}
	var b strings.Builder
	b.WriteString("Available prompts:")
	for _, p := range prompts {
		fmt.Fprintf(&b, "\n- %s", p.Name)
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		if len(p.Arguments) > 0 {
			b.WriteString("\n  Arguments:")
			for _, a := range p.Arguments {
				fmt.Fprintf(&b, "\n    - %s", a.Name)
			}
		}
	}
	return b.String()
}

func (r *Router) executePrompt(ctx context.Context, d Directive) {
	if d.Name == "" {
		r.out.Error("Usage: /prompt <name> <arg1=value1> <arg2=value2>")
		return
	}
	for _, tok := range d.Ignored {
		r.out.Notice(fmt.Sprintf("Ignoring argument %q: expected key=value", tok))
	}

	capability, ok := r.registry.Prompt(d.Name)
	if !ok {
		r.out.Error(fmt.Sprintf("Prompt '%s' not found", d.Name))
		return
	}

	result, err := capability.Session.GetPrompt(ctx, d.Name, d.Args)
	if err != nil {
		r.logger.Warn("prompt expansion failed", "prompt", d.Name, "server", capability.Session.Name(), "error", err)
		r.out.Error(fmt.Sprintf("Error executing prompt '%s': %v", d.Name, err))
		return
	}

	text := PromptText(result)
	if text == "" {
		r.out.Notice(fmt.Sprintf("Prompt '%s' produced no text", d.Name))
		return
	}

	r.out.Print(fmt.Sprintf("Executing prompt '%s'...", d.Name))
	r.query(ctx, text)
}

// PromptText flattens an expanded prompt: parts of one message are joined
// by a space, messages by a blank line. Parts without text are skipped.
func PromptText(result *domain.PromptResult) string {
	if result == nil {
		return ""
	}
	var messages []string
	for _, m := range result.Messages {
		var parts []string
		for _, p := range m.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			messages = append(messages, strings.Join(parts, " "))
		}
	}
	return strings.Join(messages, "\n\n")
}

func (r *Router) query(ctx context.Context, text string) {
	if _, err := r.engine.Query(ctx, text); err != nil {
		r.out.Error(fmt.Sprintf("Error: %v", err))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown type"
	}
	return s
}
