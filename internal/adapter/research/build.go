package research

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"mcp-chatbot/internal/adapter/arxiv"
	"mcp-chatbot/internal/adapter/paperstore"
	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	svc "mcp-chatbot/internal/usecase/research"
)

// OpenStore opens the paper store selected by cfg.Store.
func OpenStore(cfg config.ResearchConfig, logger *slog.Logger) (domain.PaperStore, error) {
	switch cfg.Store {
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.PaperDir, "papers.db")
		}
		return paperstore.NewSQLiteStore(path)
	case "json", "":
		return paperstore.NewJSONStore(cfg.PaperDir, logger)
	default:
		return nil, fmt.Errorf("unknown paper store %q", cfg.Store)
	}
}

// Build assembles the research MCP server from config. The returned
// store must be closed by the caller once the server stops.
func Build(cfg config.ResearchConfig, logger *slog.Logger) (*server.MCPServer, domain.PaperStore, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("paper store: %w", err)
	}

	service := svc.NewService(svc.ServiceDeps{
		Searcher:       arxiv.NewClient(cfg.ArxivURL, cfg.RequestInterval, logger),
		Store:          store,
		DefaultResults: cfg.DefaultResults,
		Logger:         logger,
	})

	logger.Info("research server built",
		"store", cfg.Store,
		"paper_dir", cfg.PaperDir,
		"arxiv_url", cfg.ArxivURL,
	)
	return NewServer(service, logger), store, nil
}
