package usecase

import (
	"strings"
)

// DirectiveKind classifies one line of user input.
type DirectiveKind int

const (
	DirectiveEmpty DirectiveKind = iota
	DirectiveQuit
	DirectiveResource
	DirectiveListPrompts
	DirectivePrompt
	DirectiveHelp
	DirectiveUnknownCommand
	DirectiveQuery
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveEmpty:
		return "empty"
	case DirectiveQuit:
		return "quit"
	case DirectiveResource:
		return "resource"
	case DirectiveListPrompts:
		return "list_prompts"
	case DirectivePrompt:
		return "prompt"
	case DirectiveHelp:
		return "help"
	case DirectiveUnknownCommand:
		return "unknown_command"
	case DirectiveQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Reserved console syntax.
const (
	quitKeyword      = "quit"
	resourceSigil    = "@"
	commandPrefix    = "/"
	cmdPrompts       = "/prompts"
	cmdPrompt        = "/prompt"
	cmdHelp          = "/help"
	promptArgDivider = "="
)

// Directive is one parsed input line.
type Directive struct {
	Kind DirectiveKind

	// Topic is the text after the resource sigil.
	Topic string
	// Name is the prompt name, or the unknown command.
	Name string
	// Args are prompt arguments; values are always strings.
	Args map[string]string
	// Ignored are prompt tokens without a key=value shape.
	Ignored []string
	// Text is the query text.
	Text string
}

// ParseDirective classifies a raw input line. It never fails: malformed
// commands come back as a kind the router reports on.
func ParseDirective(line string) Directive {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return Directive{Kind: DirectiveEmpty}
	case strings.EqualFold(line, quitKeyword):
		return Directive{Kind: DirectiveQuit}
	case strings.HasPrefix(line, resourceSigil):
		return Directive{Kind: DirectiveResource, Topic: strings.TrimSpace(line[len(resourceSigil):])}
	case strings.HasPrefix(line, commandPrefix):
		return parseCommand(line)
	default:
		return Directive{Kind: DirectiveQuery, Text: line}
	}
}

func parseCommand(line string) Directive {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case cmdPrompts:
		return Directive{Kind: DirectiveListPrompts}
	case cmdHelp:
		return Directive{Kind: DirectiveHelp}
	case cmdPrompt:
		d := Directive{Kind: DirectivePrompt, Args: map[string]string{}}
		if len(fields) < 2 {
			return d
		}
		d.Name = fields[1]
		for _, tok := range fields[2:] {
			key, value, ok := strings.Cut(tok, promptArgDivider)
			if !ok || key == "" {
				d.Ignored = append(d.Ignored, tok)
				continue
			}
			d.Args[key] = value
		}
		return d
	default:
		return Directive{Kind: DirectiveUnknownCommand, Name: fields[0]}
	}
}
