package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Cyan    = lipgloss.Color("#00FFFF")
	Green   = lipgloss.Color("#00FF00")
	Yellow  = lipgloss.Color("#FFD700")
	Orange  = lipgloss.Color("#FFA500")
	Red     = lipgloss.Color("#FF6B6B")
	Magenta = lipgloss.Color("#FF00FF")
	SkyBlue = lipgloss.Color("#87CEEB")
	Dim     = lipgloss.Color("#555555")
	White   = lipgloss.Color("#FFFFFF")

	// Text styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan)

	UserStyle = lipgloss.NewStyle().
			Foreground(SkyBlue).
			Bold(true)

	SystemStyle = lipgloss.NewStyle().
			Foreground(Yellow)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Dim)

	// Status indicators
	StatusOK   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusWarn = lipgloss.NewStyle().Foreground(Orange).Bold(true)
	StatusCrit = lipgloss.NewStyle().Foreground(Red).Bold(true)

	// Selection chips
	SelectedChipStyle = lipgloss.NewStyle().
				Bold(true).
				Padding(0, 1)
)

// ModelColor returns the catalog color, white when none is set
func ModelColor(hex string) lipgloss.Color {
	if hex == "" {
		return White
	}
	return lipgloss.Color(hex)
}

// ModelStyle returns the header style for a model color
func ModelStyle(hex string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ModelColor(hex)).Bold(true)
}

// ColumnBox returns the bordered box for one response column
func ColumnBox(hex string, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ModelColor(hex)).
		Padding(0, 1).
		Width(width)
}
