package research

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/middleware"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// NewHTTPHandler mounts srv's streamable HTTP transport at EndpointPath
// behind request logging and per-client rate limiting. The limiter's
// sweeper stops when ctx ends.
func NewHTTPHandler(ctx context.Context, srv *server.MCPServer, limit config.RateLimit, logger *slog.Logger) http.Handler {
	mcpHandler := server.NewStreamableHTTPServer(srv, server.WithEndpointPath(EndpointPath))

	mux := http.NewServeMux()
	mux.Handle(EndpointPath, middleware.Chain(mcpHandler,
		middleware.RequestLog(logger),
		middleware.NoSniff,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: limit.RequestsPerMin,
			Burst:          limit.Burst,
		}),
	))
	return mux
}
