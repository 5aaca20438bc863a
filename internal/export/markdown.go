// internal/export/markdown.go
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chorus/internal/models"
	"chorus/internal/orchestrator"
)

// Response is one model's answer to export
type Response struct {
	ModelID string
	Name    string
	Content string
	Error   string
	Words   int
	Chars   int
}

// TurnExport contains the data needed to export a turn
type TurnExport struct {
	ID        string
	Prompt    string
	Mode      string // display name
	CreatedAt time.Time
	Responses []Response
}

// FromTurn collects a finished turn, resolving display names from the catalog
func FromTurn(turn orchestrator.Turn, reg *models.Registry) *TurnExport {
	modeName := turn.Mode
	if mode, ok := reg.Mode(turn.Mode); ok {
		modeName = mode.Name
	}

	out := &TurnExport{
		ID:        turn.ID,
		Prompt:    turn.Message,
		Mode:      modeName,
		CreatedAt: turn.StartedAt,
	}
	for _, id := range turn.Models {
		st := turn.State(id)
		if st == nil {
			continue
		}
		out.Responses = append(out.Responses, Response{
			ModelID: id,
			Name:    reg.Name(id),
			Content: st.Content,
			Error:   st.Error,
			Words:   st.Words(),
			Chars:   st.Chars(),
		})
	}
	return out
}

// ExportTurn generates a formatted markdown string from a turn
func ExportTurn(turn *TurnExport) string {
	var sb strings.Builder

	// Title header
	sb.WriteString("# ")
	sb.WriteString(title(turn.Prompt))
	sb.WriteString("\n\n")

	// Metadata section
	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("**Turn ID:** `%s`\n\n", turn.ID))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n\n", turn.CreatedAt.Format("2006-01-02 15:04:05")))
	if turn.Mode != "" {
		sb.WriteString(fmt.Sprintf("**Mode:** %s\n\n", turn.Mode))
	}
	if len(turn.Responses) > 0 {
		names := make([]string, len(turn.Responses))
		for i, r := range turn.Responses {
			names[i] = r.Name
		}
		sb.WriteString("**Models:** ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n\n")

	// Prompt
	sb.WriteString("## Prompt\n\n")
	writeQuoted(&sb, turn.Prompt)
	sb.WriteString("\n---\n\n")

	// Responses
	sb.WriteString("## Responses\n\n")
	for i, r := range turn.Responses {
		sb.WriteString(fmt.Sprintf("### %s\n\n", r.Name))

		switch {
		case r.Error != "":
			sb.WriteString(fmt.Sprintf("**Error:** %s\n", r.Error))
		case strings.TrimSpace(r.Content) == "":
			sb.WriteString("*No response.*\n")
		default:
			sb.WriteString(strings.TrimSpace(r.Content))
			sb.WriteString("\n\n")
			sb.WriteString(fmt.Sprintf("*%d words, %d characters*\n", r.Words, r.Chars))
		}
		sb.WriteString("\n")

		// Add horizontal rule between responses (except after last)
		if i < len(turn.Responses)-1 {
			sb.WriteString("---\n\n")
		}
	}

	// Footer
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from Chorus on %s*\n", time.Now().Format("2006-01-02 15:04:05")))

	return sb.String()
}

// WriteTurn exports a turn to a markdown file under baseDir
func WriteTurn(turn *TurnExport, baseDir string) (string, error) {
	// Generate filename: YYYY-MM-DD-HHMMSS-prompt.md
	datePart := turn.CreatedAt.Format("2006-01-02-150405")
	namePart := sanitizeFilename(turn.Prompt)
	filename := fmt.Sprintf("%s-%s.md", datePart, namePart)

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(baseDir, filename)
	if err := os.WriteFile(path, []byte(ExportTurn(turn)), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return path, nil
}

// title uses the first line of the prompt, shortened
func title(prompt string) string {
	line := strings.TrimSpace(prompt)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	r := []rune(line)
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	if line == "" {
		return "Untitled turn"
	}
	return line
}

func writeQuoted(sb *strings.Builder, text string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

// sanitizeFilename removes/replaces characters unsuitable for filenames
func sanitizeFilename(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_':
			sb.WriteRune(r)
		}
	}

	result := sb.String()

	// Collapse multiple hyphens
	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	result = strings.Trim(result, "-")

	if result == "" {
		result = "turn"
	}
	if len(result) > 50 {
		result = strings.TrimRight(result[:50], "-")
	}

	return result
}
