package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chorus/internal/commands"
)

var (
	helpTitle   = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	helpHeading = lipgloss.NewStyle().Bold(true).Foreground(Yellow)
	helpKey     = lipgloss.NewStyle().Bold(true).Foreground(Green).Width(14)
	helpCommand = lipgloss.NewStyle().Foreground(Magenta).Width(16)
	helpText    = lipgloss.NewStyle().Foreground(White)
)

type helpRow struct {
	style lipgloss.Style
	label string
	text  string
}

var keyRows = []helpRow{
	{helpKey, "Enter", "Send to every selected model"},
	{helpKey, "PgUp / PgDn", "Scroll the response columns"},
	{helpKey, "F1", "Toggle this help"},
	{helpKey, "Esc", "Close help, or cancel running streams"},
	{helpKey, "Ctrl+C", "Quit"},
}

var statusRows = []helpRow{
	{StatusWarn.Width(3), "●", "Streaming"},
	{StatusOK.Width(3), "●", "Done"},
	{StatusCrit.Width(3), "✗", "Failed, /retry <id> runs that model again"},
}

func helpSection(sb *strings.Builder, heading string, rows []helpRow) {
	sb.WriteString("\n" + helpHeading.Render(heading) + "\n\n")
	for _, r := range rows {
		sb.WriteString("  " + r.style.Render(r.label) + "  " + helpText.Render(r.text) + "\n")
	}
}

func commandRows() []helpRow {
	rows := make([]helpRow, 0, len(commands.Catalog))
	for _, u := range commands.Catalog {
		rows = append(rows, helpRow{helpCommand, u.Syntax, u.Summary})
	}
	return rows
}

// HelpContent renders the help overlay centered in a width x height area
func HelpContent(width, height int) string {
	var sb strings.Builder
	sb.WriteString(helpTitle.Render("CHORUS HELP") + "\n")

	helpSection(&sb, "KEYS", keyRows)
	helpSection(&sb, "COMMANDS", commandRows())
	helpSection(&sb, "COLUMNS", statusRows)

	sb.WriteString("\n" + DimStyle.Render("A failing model never stops the others. F1 or Esc closes."))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3).
		MaxWidth(max(width-10, 20)).
		MaxHeight(max(height-4, 10))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(sb.String()))
}

func (m Model) renderHelp() string {
	return HelpContent(m.width, m.height)
}
