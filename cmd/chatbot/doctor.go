package main

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mcp-chatbot/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	flags := parseFlags(os.Args[2:])
	cfg, cfgErr := loadConfig(flags)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(flags.ConfigPath, cfgErr)},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "Provider roster", Fn: checkRoster},
		{Name: "Provider commands", Fn: checkProviderCommands},
		{Name: "Paper store", Fn: checkPaperStore},
	}

	fmt.Println("mcp-chatbot doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file loaded. A missing file
// is only a warning since the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and values",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkLLMAPIKey verifies the default provider has a key.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	p := cfg.LLM.Provider(cfg.LLM.DefaultProvider)
	if p == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}
	if p.APIKey == "" {
		status := StatusFail
		if p.Type == "openai" {
			status = StatusWarn
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("no API key for provider %s", p.Name),
			Fix:     "Set DEEPSEEK_API_KEY, ANTHROPIC_API_KEY or MCPCHAT_LLM_API_KEY",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API key configured for %s (%s)", p.Name, p.Model),
	}
}

// checkRoster verifies the roster file parses.
func checkRoster(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	roster, err := config.LoadRoster(cfg.Roster.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     `Create the roster as {"mcpServers": {"name": {"command": "...", "args": [...]}}}`,
		}
	}
	if len(roster) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s lists no providers", cfg.Roster.Path),
		}
	}
	names := make([]string, len(roster))
	var invalid []string
	for i, d := range roster {
		names[i] = d.Name
		if d.Err != nil {
			invalid = append(invalid, fmt.Sprintf("%s: %v", d.Name, d.Err))
		}
	}
	if len(invalid) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%d invalid entr(ies) will be skipped: %s", len(invalid), strings.Join(invalid, "; ")),
			Fix:     "Give stdio providers a command and http/sse providers a url",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d provider(s): %s", len(roster), strings.Join(names, ", ")),
	}
}

// checkProviderCommands resolves stdio commands on PATH and parses remote URLs.
func checkProviderCommands(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check: config not loaded"}
	}
	roster, err := config.LoadRoster(cfg.Roster.Path)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: "skipped: roster not loaded"}
	}

	var problems []string
	for _, d := range roster {
		if d.Err != nil {
			continue
		}
		switch d.Server.Transport {
		case config.TransportStdio:
			if _, err := exec.LookPath(d.Server.Command); err != nil {
				problems = append(problems, fmt.Sprintf("%s: command %q not found", d.Name, d.Server.Command))
			}
		case config.TransportHTTP, config.TransportSSE:
			if u, err := url.Parse(d.Server.URL); err != nil || u.Host == "" {
				problems = append(problems, fmt.Sprintf("%s: invalid url %q", d.Name, d.Server.URL))
			}
		}
	}
	if len(problems) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: strings.Join(problems, "; "),
			Fix:     "Install the missing commands; unreachable providers are skipped at startup",
		}
	}
	return CheckResult{Status: StatusPass, Message: "all provider commands resolved"}
}

// checkPaperStore verifies the in-process research provider can write its cache.
func checkPaperStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check: config not loaded"}
	}
	dir := cfg.Research.PaperDir
	if cfg.Research.Store == "sqlite" && cfg.Research.SQLitePath != "" {
		dir = filepath.Dir(cfg.Research.SQLitePath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	tmp, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
			Fix:     "Point research.paper_dir at a writable directory",
		}
	}
	tmp.Close()
	os.Remove(tmp.Name())

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s store in %s", cfg.Research.Store, dir),
	}
}
