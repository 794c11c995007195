package console

import (
	"errors"
	"fmt"
	"strings"

	"mcp-chatbot/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error as an indented block using bullet for hints.
func (fe FriendlyError) Render(bullet string) string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", bullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// Domain sentinels come first so errors.Is works through wrapping; the
// string patterns catch transport errors from outside the domain.
var patterns = []errorPattern{
	{
		match:   isAny(domain.ErrCapabilityListing),
		produce: constantError("Capability Listing Failed", "The server started but could not list what it offers.", []string{"Check the server's own logs", "Make sure the server speaks the Model Context Protocol"}),
	},
	{
		match:   containsAny("executable file not found", "no such file or directory", "exec:"),
		produce: constantError("Server Command Not Found", "The roster command could not be started.", []string{"Check the command and args in the roster file", "Install the server or fix its PATH"}),
	},
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the server.", []string{"Check that the server is running", "Verify the url in the roster file"}),
	},
	{
		match:   isAny(domain.ErrTimeout, domain.ErrMaxIterations),
		produce: fromSentinel,
	},
	{
		match:   containsAny("deadline exceeded", "timeout", "timed out"),
		produce: constantError("Request Timed Out", "The operation took too long to complete.", []string{"Increase agent.connect_timeout or agent.tool_timeout in config", "Check your network connection"}),
	},
	{
		match:   containsAny("401", "unauthorized", "invalid api key", "authentication failed", "invalid x-api-key"),
		produce: constantError("Authentication Failed", "The API key or credentials were rejected.", []string{"Check your API key environment variable", "Verify the key hasn't expired"}),
	},
	{
		match:   containsAny("429", "rate limit", "too many requests"),
		produce: constantError("Rate Limited", "Too many requests sent to the API provider.", []string{"Wait a moment before retrying", "Reduce request frequency"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Run with MCPCHAT_LOGGER_LEVEL=debug for more details"},
		Raw:     err.Error(),
	}
}

func fromSentinel(err error) FriendlyError {
	if errors.Is(err, domain.ErrMaxIterations) {
		return FriendlyError{
			Title:   "Tool Loop Limit Reached",
			Message: "The assistant kept calling tools without giving an answer.",
			Hints:   []string{"Break the question into smaller steps", "Increase agent.max_iterations in config"},
			Raw:     err.Error(),
		}
	}
	return FriendlyError{
		Title:   "Request Timed Out",
		Message: "The operation took too long to complete.",
		Hints:   []string{"Increase the matching timeout under agent in config"},
		Raw:     err.Error(),
	}
}

func isAny(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
