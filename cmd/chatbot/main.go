package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mcp-chatbot/internal/adapter/console"
	"mcp-chatbot/internal/adapter/llm"
	"mcp-chatbot/internal/adapter/mcpsession"
	"mcp-chatbot/internal/adapter/research"
	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/logger"
	"mcp-chatbot/internal/infra/tracer"
	"mcp-chatbot/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "doctor":
			if err := runDoctor(); err != nil {
				fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'mcp-chatbot --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`mcp-chatbot - chat with an LLM that can use tools from MCP servers

USAGE:
    mcp-chatbot [COMMAND] [FLAGS]

COMMANDS:
    doctor      Check config, roster and provider commands

    (no command) - Start the chat loop

FLAGS:
    -h, --help          Show this help message
    --config PATH       Config file path (default: ./config.yaml)
    --servers PATH      Provider roster (default: ./server_config.json)

IN THE CHAT:
    @folders            List stored topics
    @<topic>            Read the papers://<topic> resource
    /prompts            List available prompts
    /prompt <name> <arg1=value1> <arg2=value2>
                        Run a prompt through the model
    quit                Exit

CONFIGURATION:
    Config file: ./config.yaml
    Environment: MCPCHAT_* variables override config;
                 DEEPSEEK_API_KEY / ANTHROPIC_API_KEY supply the model key`)
}

// cliFlags holds the optional path flags.
type cliFlags struct {
	ConfigPath string
	RosterPath string
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
		case args[i] == "--servers" && i+1 < len(args):
			flags.RosterPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--servers="):
			flags.RosterPath = strings.TrimPrefix(args[i], "--servers=")
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

// loadConfig reads the config file and applies the path flags.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.RosterPath != "" {
		cfg.Roster.Path = flags.RosterPath
	}
	return cfg, nil
}

func run() error {
	// 1. Config
	flags := parseFlags(os.Args[1:])
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, "mcp-chatbot")
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. LLM
	provider, _, err := llm.Build(cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 4. Roster
	roster, err := config.LoadRoster(cfg.Roster.Path)
	if err != nil {
		return err
	}

	// 5. Providers served in this process
	dialer := mcpsession.NewDialer(log)
	closeInProcess, err := registerInProcess(dialer, roster, cfg.Research, log)
	if err != nil {
		return fmt.Errorf("in-process providers: %w", err)
	}
	defer closeInProcess()

	// 6. Console & orchestrator
	con := console.New(os.Stdin, os.Stdout, cfg.Console)
	defer con.Close()

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:     provider,
		Dialer:  dialer,
		Printer: con,
		Agent:   cfg.Agent,
		Console: cfg.Console,
		Logger:  log,
	})
	defer func() {
		if err := orch.Close(); err != nil {
			log.Error("session cleanup error", "error", err)
		}
	}()

	// 7. Connect
	report := orch.Connect(ctx, roster)
	for _, f := range report.Failed {
		con.ProviderFailed(f.Name, f.Err)
	}
	greet(con, orch.Registry(), report)

	log.Info("mcp-chatbot starting",
		"provider", cfg.LLM.DefaultProvider,
		"roster", len(roster),
		"connected", len(report.Connected),
		"tools", len(orch.Registry().Tools()),
	)

	// 8. Chat loop
	if err := orch.Run(ctx, con); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerInProcess serves the research provider inside this process for
// every roster entry with transport "inprocess". The returned function
// closes its paper store.
func registerInProcess(d *mcpsession.Dialer, roster []config.ProviderDescriptor, cfg config.ResearchConfig, log *slog.Logger) (func(), error) {
	var store domain.PaperStore
	for _, desc := range roster {
		if desc.Server.Transport != config.TransportInProcess {
			continue
		}
		if store == nil {
			srv, s, err := research.Build(cfg, log)
			if err != nil {
				return nil, err
			}
			store = s
			d.RegisterInProcess(desc.Name, srv)
			continue
		}
		log.Warn("only one in-process provider is served; entry skipped", "server", desc.Name)
	}
	return func() {
		if store == nil {
			return
		}
		if err := store.Close(); err != nil {
			log.Error("paper store close error", "error", err)
		}
	}, nil
}

func greet(con *console.Console, registry *usecase.Registry, report usecase.ConnectReport) {
	if len(report.Connected) == 0 {
		con.Notice("No tool providers connected; queries go to the model without tools.")
	} else {
		names := make([]string, 0, len(registry.Tools()))
		for _, t := range registry.Tools() {
			names = append(names, t.Name)
		}
		con.Success(fmt.Sprintf("Connected to %s", strings.Join(report.Connected, ", ")))
		if len(names) > 0 {
			con.Info("Tools: " + strings.Join(names, ", "))
		}
	}
	con.Print("\nMCP Chatbot Started!")
	con.Print("Type your queries or 'quit' to exit.")
	con.Print("Use @folders to see available topics")
	con.Print("Use @<topic> to search papers in that topic")
	con.Print("Use /prompts to list available prompts")
	con.Print("Use /prompt <name> <arg1=value1> to execute a prompt")
}
