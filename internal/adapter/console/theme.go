package console

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette; works on light and dark terminals. NO_COLOR is honoured
// by the lipgloss renderer's color profile detection.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

// SymbolSet holds the glyphs used in console output.
type SymbolSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	ArrowR  string
	Bullet  string
}

var unicodeSymbols = SymbolSet{
	Success: "\u2713", // ✓
	Error:   "\u2717", // ✗
	Warning: "\u26A0", // ⚠
	Info:    "\u25CF", // ●
	ArrowR:  "\u2192", // →
	Bullet:  "\u2022", // •
}

var asciiSymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	Info:    "[i]",
	ArrowR:  "->",
	Bullet:  "*",
}

// Symbols picks the glyph set. forceASCII wins; otherwise a locale that
// names a non-UTF-8 charset falls back to ASCII.
func Symbols(forceASCII bool) SymbolSet {
	if forceASCII || !detectUnicodeSupport() {
		return asciiSymbols
	}
	return unicodeSymbols
}

func detectUnicodeSupport() bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		// The first variable set decides, as with setlocale.
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8")
	}
	return true
}

// styles are bound to one output so color detection follows that writer.
type styles struct {
	prompt  lipgloss.Style
	tool    lipgloss.Style
	notice  lipgloss.Style
	err     lipgloss.Style
	success lipgloss.Style
	info    lipgloss.Style
	bot     lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		prompt:  r.NewStyle().Foreground(colorInfo).Bold(true),
		tool:    r.NewStyle().Foreground(colorWarning).Bold(true),
		notice:  r.NewStyle().Foreground(colorWarning),
		err:     r.NewStyle().Foreground(colorError).Bold(true),
		success: r.NewStyle().Foreground(colorSuccess).Bold(true),
		info:    r.NewStyle().Foreground(colorInfo),
		bot:     r.NewStyle().Foreground(colorAccent),
		muted:   r.NewStyle().Foreground(colorMuted),
	}
}
