package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
)

// OrchestratorDeps holds injected dependencies for the orchestrator.
type OrchestratorDeps struct {
	LLM     domain.LLMProvider
	Dialer  SessionDialer
	Printer Printer
	Agent   config.AgentConfig
	Console config.ConsoleConfig
	Logger  *slog.Logger
}

// Orchestrator owns the registry, lifecycle, engine and router of one run.
type Orchestrator struct {
	registry  *Registry
	lifecycle *Lifecycle
	connector *Connector
	engine    *Engine
	router    *Router
	logger    *slog.Logger
}

// NewOrchestrator wires the components together.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	registry := NewRegistry(deps.Console.ResourceScheme)
	lifecycle := NewLifecycle(deps.Logger)
	engine := NewEngine(deps.LLM, registry, deps.Printer, deps.Agent, deps.Logger)
	return &Orchestrator{
		registry:  registry,
		lifecycle: lifecycle,
		connector: NewConnector(deps.Dialer, registry, lifecycle, deps.Agent.ConnectTimeout, deps.Logger),
		engine:    engine,
		router:    NewRouter(registry, engine, deps.Printer, deps.Console, deps.Logger),
		logger:    deps.Logger,
	}
}

// Registry returns the capability registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Connect connects every roster provider it can.
func (o *Orchestrator) Connect(ctx context.Context, roster []config.ProviderDescriptor) ConnectReport {
	return o.connector.Connect(ctx, roster)
}

// LineSource yields input lines one at a time. Next returns io.EOF once
// input is exhausted.
type LineSource interface {
	Next(ctx context.Context) (string, error)
}

// Run feeds lines to the router until quit, end of input, or ctx cancellation.
func (o *Orchestrator) Run(ctx context.Context, src LineSource) error {
	for {
		line, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !o.router.Handle(ctx, line) {
			return nil
		}
	}
}

// Handle processes a single input line. It returns false on quit.
func (o *Orchestrator) Handle(ctx context.Context, line string) bool {
	return o.router.Handle(ctx, line)
}

// Close releases every session in reverse connection order.
func (o *Orchestrator) Close() error {
	err := o.lifecycle.Close()
	o.logger.Info("orchestrator closed")
	return err
}
