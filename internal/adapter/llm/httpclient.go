package llm

import (
	"net/http"

	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/httpclient"
)

// NewHTTPClient creates an *http.Client with pooled transport and timeout
// defaults suitable for LLM providers.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	return httpclient.New(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool)
}
