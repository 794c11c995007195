package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/tracer"
)

// SessionDialer opens an initialized session to one roster provider.
type SessionDialer interface {
	Dial(ctx context.Context, desc config.ProviderDescriptor) (domain.SessionHandle, error)
}

// ProviderFailure records why one roster entry was skipped.
type ProviderFailure struct {
	Name string
	Err  error
}

// ConnectReport summarises a roster connection pass.
type ConnectReport struct {
	Connected []string
	Failed    []ProviderFailure
}

// Connector connects the roster, one provider at a time, into the registry.
type Connector struct {
	dialer    SessionDialer
	registry  *Registry
	lifecycle *Lifecycle
	timeout   time.Duration
	logger    *slog.Logger
}

// NewConnector creates a Connector. A zero timeout leaves each provider
// bounded only by ctx.
func NewConnector(dialer SessionDialer, registry *Registry, lifecycle *Lifecycle, timeout time.Duration, logger *slog.Logger) *Connector {
	return &Connector{
		dialer:    dialer,
		registry:  registry,
		lifecycle: lifecycle,
		timeout:   timeout,
		logger:    logger,
	}
}

// Connect processes the roster in order. A provider that fails to connect
// or to list its capabilities is logged and skipped; it never stops the
// others. Cancelling ctx marks the remaining providers as failed.
func (c *Connector) Connect(ctx context.Context, roster []config.ProviderDescriptor) ConnectReport {
	ctx, span := tracer.StartSpan(ctx, "connector.connect",
		trace.WithAttributes(tracer.IntAttr("roster.size", len(roster))),
	)
	defer span.End()

	var report ConnectReport
	for _, desc := range roster {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, ProviderFailure{Name: desc.Name, Err: err})
			continue
		}
		if err := c.connectOne(ctx, desc); err != nil {
			c.logger.Warn("provider skipped",
				"server", desc.Name,
				"code", domain.ErrorCodeOf(err),
				"error", err,
			)
			report.Failed = append(report.Failed, ProviderFailure{Name: desc.Name, Err: err})
			continue
		}
		report.Connected = append(report.Connected, desc.Name)
	}

	span.SetAttributes(
		tracer.IntAttr("roster.connected", len(report.Connected)),
		tracer.IntAttr("roster.failed", len(report.Failed)),
	)
	tracer.SetOK(span)
	c.logger.Info("roster connected", "connected", len(report.Connected), "failed", len(report.Failed))
	return report
}

func (c *Connector) connectOne(ctx context.Context, desc config.ProviderDescriptor) error {
	if desc.Err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderConnect, desc.Name, desc.Err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	h, err := c.dialer.Dial(ctx, desc)
	if err != nil {
		return err
	}
	release := c.lifecycle.Push("provider "+desc.Name, h.Close)

	caps, err := discover(ctx, h)
	if err != nil {
		release()
		return fmt.Errorf("%s: %w: %w", desc.Name, domain.ErrCapabilityListing, err)
	}

	for _, name := range c.registry.Register(h, caps) {
		c.logger.Warn("capability shadowed by later provider", "server", desc.Name, "name", name)
	}
	c.logger.Info("provider registered",
		"server", desc.Name,
		"session", h.ID(),
		"tools", len(caps.Tools),
		"prompts", len(caps.Prompts),
		"resources", len(caps.Resources),
		"templates", len(caps.Templates),
	)
	return nil
}

// discover lists everything a session offers. Any listing error fails the
// whole provider so that no partially known session is registered.
func discover(ctx context.Context, h domain.SessionHandle) (ProviderCapabilities, error) {
	var caps ProviderCapabilities
	var err error

	if caps.Tools, err = h.ListTools(ctx); err != nil {
		return caps, err
	}
	if caps.Prompts, err = h.ListPrompts(ctx); err != nil {
		return caps, err
	}
	if caps.Resources, err = h.ListResources(ctx); err != nil {
		return caps, err
	}
	if caps.Templates, err = h.ListResourceTemplates(ctx); err != nil {
		return caps, err
	}
	return caps, nil
}
