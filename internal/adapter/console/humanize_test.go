package console

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"mcp-chatbot/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantTitle string
	}{
		{"nil", nil, "Unknown Error"},
		{"listing", fmt.Errorf("p: %w: %w", domain.ErrCapabilityListing, errors.New("boom")), "Capability Listing Failed"},
		{"missing command", errors.New(`exec: "uvx": executable file not found in $PATH`), "Server Command Not Found"},
		{"refused", errors.New("dial tcp 127.0.0.1:8090: connect: connection refused"), "Connection Failed"},
		{"max iterations", domain.NewDomainError("Engine.Query", domain.ErrMaxIterations, "20 iterations"), "Tool Loop Limit Reached"},
		{"domain timeout", fmt.Errorf("%w after 30s", domain.ErrTimeout), "Request Timed Out"},
		{"deadline", errors.New("context deadline exceeded"), "Request Timed Out"},
		{"auth", errors.New("anthropic: status 401: invalid x-api-key"), "Authentication Failed"},
		{"rate", errors.New("status 429 Too Many Requests"), "Rate Limited"},
		{"other", errors.New("something odd"), "Unexpected Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			if fe.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", fe.Title, tt.wantTitle)
			}
		})
	}
}

func TestFriendlyErrorRender(t *testing.T) {
	fe := FriendlyError{Title: "Rate Limited", Message: "Too many requests.", Hints: []string{"Wait", "Retry"}}
	got := fe.Render("*")
	want := "Rate Limited\n  Too many requests.\n  Suggestions:\n    * Wait\n    * Retry"
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
	if strings.Contains(FriendlyError{Title: "T"}.Render("*"), "Suggestions") {
		t.Error("no hints should render no suggestions block")
	}
}

func TestSymbols(t *testing.T) {
	if got := Symbols(true); got != asciiSymbols {
		t.Errorf("Symbols(true) = %+v, want ASCII", got)
	}

	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")
	t.Setenv("LANG", "en_US.UTF-8")
	if got := Symbols(false); got != unicodeSymbols {
		t.Errorf("UTF-8 locale: got %+v", got)
	}

	t.Setenv("LC_ALL", "C")
	if got := Symbols(false); got != asciiSymbols {
		t.Errorf("C locale: got %+v", got)
	}
}
