// Package commands handles slash command parsing for the chorus TUI.
package commands

import (
	"fmt"
	"strings"
)

// Command interface for all command types
type Command interface {
	Type() string
}

// Help returns help text
type Help struct{}

func (Help) Type() string { return "help" }

// ListModels shows the catalog and the current selection
type ListModels struct{}

func (ListModels) Type() string { return "models" }

// ToggleModel adds or removes a model from the selection
type ToggleModel struct {
	ID string
}

func (ToggleModel) Type() string { return "model" }

// ListModes shows the project modes
type ListModes struct{}

func (ListModes) Type() string { return "modes" }

// SetMode switches the project mode
type SetMode struct {
	ID string
}

func (SetMode) Type() string { return "mode" }

// Retry re-runs one model for the current turn
type Retry struct {
	ID string
}

func (Retry) Type() string { return "retry" }

// Boost rewrites a prompt and places it in the input
type Boost struct {
	Text string
}

func (Boost) Type() string { return "boost" }

// Copy puts one model's response on the clipboard
type Copy struct {
	ID string
}

func (Copy) Type() string { return "copy" }

// Export writes the current turn to markdown
type Export struct {
	Dir string
}

func (Export) Type() string { return "export" }

// Cancel stops every running stream
type Cancel struct{}

func (Cancel) Type() string { return "cancel" }

// Quit exits the application
type Quit struct{}

func (Quit) Type() string { return "quit" }

// ParseError represents a command parsing error
type ParseError struct {
	Message string
}

func (ParseError) Type() string { return "error" }

// Parse parses user input and returns the appropriate Command.
// Returns nil if the input is not a slash command.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	// Split into command and arguments
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	rest := strings.TrimSpace(input[len(parts[0]):])

	switch cmd {
	case "/help", "/?":
		return Help{}

	case "/models":
		return ListModels{}

	case "/model":
		if len(args) == 0 {
			return ParseError{Message: "/model requires a model id"}
		}
		return ToggleModel{ID: strings.ToLower(args[0])}

	case "/modes":
		return ListModes{}

	case "/mode":
		if len(args) == 0 {
			return ListModes{}
		}
		return SetMode{ID: strings.ToLower(args[0])}

	case "/retry":
		if len(args) == 0 {
			return ParseError{Message: "/retry requires a model id"}
		}
		return Retry{ID: strings.ToLower(args[0])}

	case "/boost":
		if rest == "" {
			return ParseError{Message: "/boost requires a prompt"}
		}
		return Boost{Text: rest}

	case "/copy":
		if len(args) == 0 {
			return ParseError{Message: "/copy requires a model id"}
		}
		return Copy{ID: strings.ToLower(args[0])}

	case "/export":
		return Export{Dir: rest}

	case "/cancel", "/stop":
		return Cancel{}

	case "/quit", "/exit", "/q":
		return Quit{}

	default:
		return ParseError{Message: "unknown command: " + cmd}
	}
}

// Usage describes one slash command for help listings
type Usage struct {
	Syntax  string
	Summary string
}

// Catalog lists every slash command in display order
var Catalog = []Usage{
	{"/help", "Show this help"},
	{"/models", "List models and the current selection"},
	{"/model <id>", "Add or remove a model (1 to 4 selected)"},
	{"/mode [id]", "Switch project mode, or list modes"},
	{"/retry <id>", "Re-run one model for the last message"},
	{"/boost <text>", "Improve a prompt and place it in the input"},
	{"/copy <id>", "Copy a model's response to the clipboard"},
	{"/export [dir]", "Export the current turn to markdown"},
	{"/cancel", "Stop all running streams"},
	{"/quit", "Exit"},
}

// HelpText returns the help text for all available commands.
func HelpText() string {
	var sb strings.Builder
	sb.WriteString("Available commands:")
	for _, u := range Catalog {
		fmt.Fprintf(&sb, "\n  %-14s - %s", u.Syntax, u.Summary)
	}
	return sb.String()
}
