package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/tracer"
)

// Printer is the console surface the engine and router write to.
type Printer interface {
	// Assistant shows model text as soon as it arrives.
	Assistant(text string)
	// ToolCall announces a tool invocation.
	ToolCall(name string, args string)
	// Print shows plain output such as resource contents and listings.
	Print(text string)
	// Notice shows a warning that does not stop the current directive.
	Notice(text string)
	// Error reports a failed directive or query.
	Error(text string)
}

// Engine runs the model/tool loop for one query at a time.
type Engine struct {
	llm       domain.LLMProvider
	registry  *Registry
	out       Printer
	cfg       config.AgentConfig
	validator *argValidator
	logger    *slog.Logger
}

// NewEngine creates an Engine. Zero-valued limits in cfg fall back to defaults.
func NewEngine(llm domain.LLMProvider, registry *Registry, out Printer, cfg config.AgentConfig, logger *slog.Logger) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	e := &Engine{
		llm:      llm,
		registry: registry,
		out:      out,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.ValidateArgs {
		e.validator = newArgValidator()
	}
	return e
}

// Query runs text through the loop until the model answers without tool
// calls. Model text is printed as each response arrives. The returned
// history belongs to this query only; on an LLM failure it is discarded
// and the error returned.
func (e *Engine) Query(ctx context.Context, text string) ([]domain.Message, error) {
	queryID := ulid.Make().String()
	ctx, span := tracer.StartSpan(ctx, "engine.query",
		trace.WithAttributes(tracer.StringAttr("query.id", queryID)),
	)
	defer span.End()

	var history []domain.Message
	if e.cfg.SystemPrompt != "" {
		history = append(history, domain.Message{Role: domain.RoleSystem, Content: e.cfg.SystemPrompt, Timestamp: time.Now()})
	}
	history = append(history, domain.Message{Role: domain.RoleUser, Content: text, Timestamp: time.Now()})

	for i := 0; i < e.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		span.AddEvent("engine.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		resp, err := e.complete(ctx, history)
		if err != nil {
			e.logger.Warn("llm call failed", "query_id", queryID, "code", domain.ErrorCodeOf(err), "error", err)
			tracer.RecordError(span, err)
			return nil, domain.WrapOp("Engine.Query", err)
		}

		msg := e.assistantMessage(resp)
		history = append(history, msg)

		e.logger.Debug("llm response",
			"query_id", queryID,
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return history, nil
		}

		// One call at a time, each result directly after the previous one:
		// providers may depend on state left by earlier calls.
		for _, call := range msg.ToolCalls {
			e.out.ToolCall(call.Name, string(call.Arguments))
			history = append(history, e.executeTool(ctx, queryID, call))
		}
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	return nil, domain.NewDomainError("Engine.Query", domain.ErrMaxIterations, fmt.Sprintf("%d iterations", e.cfg.MaxIterations))
}

// complete sends the history and the current tool schemas to the model.
func (e *Engine) complete(ctx context.Context, history []domain.Message) (*domain.ChatResponse, error) {
	if e.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.LLMTimeout)
		defer cancel()
	}

	req := domain.ChatRequest{
		Messages:  history,
		Tools:     e.registry.ToolSchemas(),
		MaxTokens: e.cfg.MaxTokens,
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = domain.ToolChoiceAuto
	}

	llmCtx, llmSpan := tracer.StartSpan(ctx, "engine.llm_call")
	defer llmSpan.End()
	return e.llm.Chat(llmCtx, req)
}

// assistantMessage prints the response text and records the tool calls.
func (e *Engine) assistantMessage(resp *domain.ChatResponse) domain.Message {
	msg := domain.Message{Role: domain.RoleAssistant, Timestamp: time.Now()}
	var text strings.Builder
	for _, part := range resp.Parts {
		switch p := part.(type) {
		case domain.TextPart:
			if p.Text != "" {
				e.out.Assistant(p.Text)
			}
			text.WriteString(p.Text)
		case domain.ToolUsePart:
			call := p.Call
			if call.ID == "" {
				call.ID = "call_" + ulid.Make().String()
			}
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}
	msg.Content = text.String()
	return msg
}

// executeTool runs one tool call and returns its tool-result message.
// Every failure becomes an error result the model can react to.
func (e *Engine) executeTool(ctx context.Context, queryID string, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "engine.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	result := e.callTool(ctx, call)
	if result.IsError {
		tracer.RecordError(span, errors.New(result.Content))
		e.logger.Warn("tool call failed", "query_id", queryID, "tool", call.Name, "error", result.Content)
	} else {
		tracer.SetOK(span)
		e.logger.Debug("tool call completed", "query_id", queryID, "tool", call.Name)
	}

	return domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    result.Content,
		ToolCallID: call.ID,
		IsError:    result.IsError,
		Timestamp:  time.Now(),
	}
}

func (e *Engine) callTool(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	capability, ok := e.registry.Tool(call.Name)
	if !ok {
		return errorResult(call, domain.NewDomainError("Engine.CallTool", domain.ErrToolNotFound, call.Name))
	}

	args, err := call.ParseArguments()
	if err != nil {
		return errorResult(call, err)
	}
	if e.validator != nil {
		if err := e.validator.validate(capability, args); err != nil {
			return errorResult(call, err)
		}
	}

	if e.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
		defer cancel()
	}

	res, err := capability.Session.CallTool(ctx, call.Name, args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", domain.ErrTimeout, e.cfg.ToolTimeout, err)
		}
		return errorResult(call, err)
	}

	out := *res
	out.ToolCallID = call.ID
	return out
}

func errorResult(call domain.ToolCall, err error) domain.ToolResult {
	return domain.ToolResult{
		ToolCallID: call.ID,
		Content:    "Error: " + err.Error(),
		IsError:    true,
	}
}

// argValidator checks tool arguments against the tool's input schema.
// Compiled schemas are cached per session and tool.
type argValidator struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func newArgValidator() *argValidator {
	return &argValidator{schemas: make(map[string]*jsonschema.Schema)}
}

func (v *argValidator) validate(c domain.Capability, args map[string]any) error {
	if len(c.Schema) == 0 {
		return nil
	}

	key := c.Session.ID() + "/" + c.Name
	v.mu.Lock()
	schema, ok := v.schemas[key]
	if !ok {
		var err error
		schema, err = jsonschema.NewCompiler().Compile(c.Schema)
		if err != nil {
			v.mu.Unlock()
			// Schemas that do not compile are left for the provider to enforce.
			return nil
		}
		v.schemas[key] = schema
	}
	v.mu.Unlock()

	result := schema.Validate(args)
	if !result.IsValid() {
		return domain.NewDomainError("Engine.ValidateArguments", domain.ErrInvalidInput, result.Error())
	}
	return nil
}
