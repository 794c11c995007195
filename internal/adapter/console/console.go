// Package console is the line-oriented terminal surface of the chatbot: it
// reads queries and directives and prints assistant text, tool activity
// and errors.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"mcp-chatbot/internal/infra/config"
)

// wrapWidth is the markdown word-wrap column.
const wrapWidth = 100

// maxLineSize bounds one input line; long pasted prompts still fit.
const maxLineSize = 1 << 20

// Console reads input lines from in and writes all output to out.
// It is safe for concurrent use.
type Console struct {
	in      io.Reader
	out     io.Writer
	prompt  string
	symbols SymbolSet
	styles  styles
	md      *glamour.TermRenderer

	mu sync.Mutex // serialises writes

	startOnce sync.Once
	lines     chan string
	readErr   error
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Console. Markdown rendering is enabled by cfg.RenderMarkdown
// and silently disabled if the renderer cannot be built.
func New(in io.Reader, out io.Writer, cfg config.ConsoleConfig) *Console {
	c := &Console{
		in:      in,
		out:     out,
		prompt:  cfg.Prompt,
		symbols: Symbols(cfg.ASCIISymbols),
		styles:  newStyles(out),
		lines:   make(chan string),
		done:    make(chan struct{}),
	}
	if cfg.RenderMarkdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrapWidth),
		)
		if err == nil {
			c.md = r
		}
	}
	return c
}

// Next shows the prompt and waits for the next input line. It returns
// io.EOF at end of input and ctx.Err() on cancellation.
func (c *Console) Next(ctx context.Context) (string, error) {
	c.startOnce.Do(func() { go c.readLoop() })

	if c.prompt != "" {
		c.write(c.styles.prompt.Render(c.prompt))
	}

	select {
	case <-ctx.Done():
		c.write("\n")
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", fmt.Errorf("read input: %w", c.readErr)
			}
			c.write("\n")
			return "", io.EOF
		}
		return line, nil
	}
}

// readLoop feeds lines to Next until input ends or the console is closed.
// readErr is written before lines is closed, so Next may read it after
// observing the close. An over-long line is reported and skipped.
func (c *Console) readLoop() {
	defer close(c.lines)
	r := bufio.NewReaderSize(c.in, 64*1024)
	for {
		line, err := readLine(r, maxLineSize)
		if errors.Is(err, errLineTooLong) {
			c.Error(fmt.Sprintf("Input line longer than %d bytes was skipped.", maxLineSize))
			if c.prompt != "" {
				c.write(c.styles.prompt.Render(c.prompt))
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.readErr = err
			}
			return
		}
		select {
		case c.lines <- line:
		case <-c.done:
			return
		}
	}
}

var errLineTooLong = errors.New("input line too long")

// readLine returns the next line without its line ending. A final line
// without a newline is returned before io.EOF. Lines over limit bytes are
// consumed through their newline and reported as errLineTooLong.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			n := len(buf)
			if n > 0 && buf[n-1] == '\n' {
				n--
			}
			if n > limit {
				tooLong = true
				buf = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if tooLong {
			return "", errLineTooLong
		}
		if err != nil && len(buf) == 0 {
			return "", err
		}
		line := strings.TrimSuffix(string(buf), "\n")
		return strings.TrimSuffix(line, "\r"), nil
	}
}

// Close stops the input reader. Output methods keep working.
func (c *Console) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Assistant prints model text, rendered as markdown when enabled.
func (c *Console) Assistant(text string) {
	if c.md != nil {
		if rendered, err := c.md.Render(text); err == nil {
			c.write(rendered)
			return
		}
	}
	c.writeln(paint(c.styles.bot, text))
}

// ToolCall announces a tool invocation with its raw JSON arguments.
func (c *Console) ToolCall(name string, args string) {
	if args == "" {
		args = "{}"
	}
	c.writeln(fmt.Sprintf("%s %s %s",
		c.styles.tool.Render(c.symbols.ArrowR),
		c.styles.tool.Render("Calling tool "+name),
		c.styles.muted.Render("with args "+args),
	))
}

// Print shows plain output.
func (c *Console) Print(text string) {
	c.writeln(text)
}

// Notice shows a non-fatal warning.
func (c *Console) Notice(text string) {
	c.writeln(paint(c.styles.notice, c.symbols.Warning+" "+text))
}

// Error reports a failed directive or query.
func (c *Console) Error(text string) {
	c.writeln(paint(c.styles.err, c.symbols.Error+" "+text))
}

// Success shows a confirmation line.
func (c *Console) Success(text string) {
	c.writeln(paint(c.styles.success, c.symbols.Success+" "+text))
}

// Info shows a status line.
func (c *Console) Info(text string) {
	c.writeln(paint(c.styles.info, c.symbols.Info+" "+text))
}

// ProviderFailed explains why a roster provider was skipped.
func (c *Console) ProviderFailed(name string, err error) {
	fe := Humanize(err)
	c.writeln(c.styles.err.Render(fmt.Sprintf("%s %s: %s", c.symbols.Error, name, fe.Title)))
	body := fe.Render(c.symbols.Bullet)
	if _, rest, ok := strings.Cut(body, "\n"); ok {
		c.writeln(paint(c.styles.muted, rest))
	}
}

// paint styles each line on its own; lipgloss pads multi-line blocks to
// their widest line.
func paint(style lipgloss.Style, text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

func (c *Console) writeln(s string) {
	c.write(s + "\n")
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}
