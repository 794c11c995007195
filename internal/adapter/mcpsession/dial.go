package mcpsession

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/tracer"
)

// Client identity sent in the initialize handshake.
const (
	ClientName    = "mcp-chatbot"
	ClientVersion = "1.0.0"
)

// initializer is the handshake half of *client.Client.
type initializer interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
}

// Dialer opens sessions to the providers of a roster.
type Dialer struct {
	logger *slog.Logger

	mu        sync.RWMutex
	inProcess map[string]*server.MCPServer
}

// NewDialer creates a Dialer.
func NewDialer(logger *slog.Logger) *Dialer {
	return &Dialer{
		logger:    logger,
		inProcess: make(map[string]*server.MCPServer),
	}
}

// RegisterInProcess makes srv reachable by roster entries named name with
// transport "inprocess".
func (d *Dialer) RegisterInProcess(name string, srv *server.MCPServer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inProcess[name] = srv
}

// Dial establishes the transport and completes the initialize handshake.
// The returned session is ready for discovery; on error nothing is left open.
func (d *Dialer) Dial(ctx context.Context, desc config.ProviderDescriptor) (domain.SessionHandle, error) {
	ctx, span := tracer.StartSpan(ctx, "mcp.dial",
		trace.WithAttributes(
			tracer.StringAttr("mcp.server", desc.Name),
			tracer.StringAttr("mcp.transport", desc.Server.Transport),
		),
	)
	defer span.End()

	c, tail, err := d.open(ctx, desc)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderConnect, desc.Name, err)
	}

	initRes, err := handshake(ctx, c)
	if err != nil {
		// Read the tail before Close shuts the stderr pipe.
		if tail != nil {
			err = tail.annotate(err)
		}
		c.Close()
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderConnect, desc.Name, err)
	}

	s := newSession(desc.Name, c, initRes, d.logger)
	tracer.SetOK(span)
	d.logger.Info("mcp server connected",
		"server", desc.Name,
		"transport", desc.Server.Transport,
		"session", s.ID(),
		"server_name", s.server.Name,
		"server_version", s.server.Version,
	)
	return s, nil
}

// open creates and starts the client for desc. Stdio clients also return the
// tail of the child's stderr.
func (d *Dialer) open(ctx context.Context, desc config.ProviderDescriptor) (*mcpclient.Client, *stderrTail, error) {
	srv := desc.Server

	switch srv.Transport {
	case config.TransportStdio:
		c, err := mcpclient.NewStdioMCPClient(srv.Command, srv.EnvList(), srv.Args...)
		if err != nil {
			return nil, nil, fmt.Errorf("create stdio client: %w", err)
		}
		tail := newStderrTail(stderrTailBytes)
		if stderr, ok := mcpclient.GetStderr(c); ok {
			go d.drainStderr(desc.Name, stderr, tail)
		} else {
			tail.finish()
		}
		return c, tail, nil

	case config.TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(srv.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(srv.Headers))
		}
		t, err := transport.NewStreamableHTTP(srv.URL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create http transport: %w", err)
		}
		c, err := start(ctx, mcpclient.NewClient(t), "http")
		return c, nil, err

	case config.TransportSSE:
		var opts []transport.ClientOption
		if len(srv.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(srv.Headers))
		}
		c, err := mcpclient.NewSSEMCPClient(srv.URL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create sse client: %w", err)
		}
		c, err = start(ctx, c, "sse")
		return c, nil, err

	case config.TransportInProcess:
		d.mu.RLock()
		s, ok := d.inProcess[desc.Name]
		d.mu.RUnlock()
		if !ok {
			return nil, nil, fmt.Errorf("no in-process server registered as %q", desc.Name)
		}
		c, err := mcpclient.NewInProcessClient(s)
		if err != nil {
			return nil, nil, fmt.Errorf("create in-process client: %w", err)
		}
		c, err = start(ctx, c, "in-process")
		return c, nil, err

	default:
		return nil, nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}
}

// start starts a non-stdio client. The transport outlives the dial
// deadline, so only the deadline's values are passed on.
func start(ctx context.Context, c *mcpclient.Client, kind string) (*mcpclient.Client, error) {
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		c.Close()
		return nil, fmt.Errorf("start %s client: %w", kind, err)
	}
	return c, nil
}

func handshake(ctx context.Context, c initializer) (*mcp.InitializeResult, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: ClientVersion,
	}

	result, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, domain.WrapOp("initialize", err)
	}
	return result, nil
}

// drainStderr forwards a child's stderr to the debug log and into tail so
// the pipe never fills.
func (d *Dialer) drainStderr(name string, r io.Reader, tail *stderrTail) {
	defer tail.finish()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		d.logger.Debug("mcp server stderr", "server", name, "line", sc.Text())
		tail.Write([]byte(sc.Text() + "\n"))
	}
}
