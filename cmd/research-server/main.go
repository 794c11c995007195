package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"mcp-chatbot/internal/adapter/research"
	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/logger"
	"mcp-chatbot/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`research-server - arXiv paper search as an MCP tool provider

USAGE:
    research-server [FLAGS]

FLAGS:
    -h, --help           Show this help message
    --config PATH        Config file path (default: ./config.yaml)
    --transport NAME     stdio (default) or http
    --addr HOST:PORT     Listen address for the http transport (default: :8090)
                         The endpoint is served at /mcp

TOOLS:
    search_papers(topic, max_results)   Search arXiv and store the results
    extract_info(paper_id)              Show stored metadata of a paper

RESOURCES:
    papers://folders                    Stored topics
    papers://{topic}                    Papers stored for a topic

PROMPTS:
    generate_search_prompt(topic, num_papers)

Logs always go to stderr; stdout carries the MCP stream.`)
}

// cliFlags overrides the research section of the config file.
type cliFlags struct {
	ConfigPath string
	Transport  string
	Addr       string
}

func parseFlags(args []string) cliFlags {
	var flags cliFlags
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			flags.ConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--transport" && i+1 < len(args):
			flags.Transport = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--transport="):
			flags.Transport = strings.TrimPrefix(args[i], "--transport=")
		case args[i] == "--addr" && i+1 < len(args):
			flags.Addr = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--addr="):
			flags.Addr = strings.TrimPrefix(args[i], "--addr=")
		}
	}
	if flags.ConfigPath == "" {
		flags.ConfigPath = os.Getenv("MCPCHAT_CONFIG")
	}
	if flags.ConfigPath == "" {
		flags.ConfigPath = "config.yaml"
	}
	return flags
}

func run() error {
	flags := parseFlags(os.Args[1:])

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flags.Transport != "" {
		cfg.Research.Transport = flags.Transport
	}
	if flags.Addr != "" {
		cfg.Research.Addr = flags.Addr
	}

	// stdout is the MCP stream.
	if cfg.Logger.Output == "stdout" {
		cfg.Logger.Output = "stderr"
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, "research-server")
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	srv, store, err := research.Build(cfg.Research, log)
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}
	defer store.Close()

	switch cfg.Research.Transport {
	case "http":
		return serveHTTP(ctx, srv, cfg.Research, log)
	case "stdio":
		return serveStdio(ctx, srv, log)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Research.Transport)
	}
}

func serveStdio(ctx context.Context, srv *server.MCPServer, log *slog.Logger) error {
	stdio := server.NewStdioServer(srv)
	stdio.SetErrorLogger(slog.NewLogLogger(log.Handler(), slog.LevelError))

	log.Info("research server listening", "transport", "stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err == nil || errors.Is(err, context.Canceled) {
		log.Info("research server stopped")
		return nil
	}
	return fmt.Errorf("stdio: %w", err)
}

func serveHTTP(ctx context.Context, srv *server.MCPServer, cfg config.ResearchConfig, log *slog.Logger) error {
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           research.NewHTTPHandler(ctx, srv, cfg.RateLimit, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("research server listening", "transport", "http", "addr", cfg.Addr, "path", research.EndpointPath)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("research server stopped")
	return nil
}
