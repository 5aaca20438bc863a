// internal/ui/column.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"chorus/internal/models"
	"chorus/internal/orchestrator"
)

// minColumnWidth keeps narrow terminals readable
const minColumnWidth = 24

// columnWidth splits the available width between n columns
func columnWidth(total, n int) int {
	if n < 1 {
		n = 1
	}
	w := total / n
	if w < minColumnWidth {
		w = minColumnWidth
	}
	return w
}

// formatElapsedTime formats duration in a human-readable way
func formatElapsedTime(elapsed time.Duration) string {
	if elapsed < time.Second {
		return "<1s"
	}
	if elapsed < time.Minute {
		return fmt.Sprintf("%ds", int(elapsed.Seconds()))
	}
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", mins, secs)
}

// statusIndicator renders the state marker shown before the model name
func statusIndicator(st *orchestrator.ResponseState) string {
	switch {
	case st.IsStreaming:
		return StatusWarn.Render("●")
	case st.Failed():
		return StatusCrit.Render("✗")
	default:
		return StatusOK.Render("●")
	}
}

// column holds what is needed to draw one model's response
type column struct {
	info    models.ModelInfo
	state   *orchestrator.ResponseState
	width   int // outer width including border
	frame   string
	elapsed time.Duration
}

func (c column) render(md *markdownRenderer) string {
	// Border and padding take four cells
	inner := c.width - 4
	if inner < 1 {
		inner = 1
	}

	var sb strings.Builder

	header := statusIndicator(c.state) + " " + ModelStyle(c.info.Color).Render(c.info.Name)
	if c.state.IsStreaming {
		header += " " + DimStyle.Render("("+formatElapsedTime(c.elapsed)+")")
	}
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(DimStyle.Render(c.info.Provider))
	sb.WriteString("\n\n")

	switch {
	case c.state.Pending():
		sb.WriteString(c.frame + " " + DimStyle.Render("Thinking..."))

	case c.state.IsStreaming:
		sb.WriteString(wordwrap.String(c.state.Content, inner))
		sb.WriteString(StatusWarn.Render("▌"))

	case c.state.Failed():
		sb.WriteString(ErrorStyle.Render(wordwrap.String(c.state.Error, inner)))
		sb.WriteString("\n\n")
		sb.WriteString(DimStyle.Render("/retry " + c.state.ModelID))

	case strings.TrimSpace(c.state.Content) == "":
		sb.WriteString(DimStyle.Render("No response."))

	default:
		sb.WriteString(md.Render(c.state, inner))
		sb.WriteString("\n\n")
		sb.WriteString(DimStyle.Render(fmt.Sprintf("%d words · %d chars", c.state.Words(), c.state.Chars())))
	}

	// Width excludes the border
	return ColumnBox(c.info.Color, c.width-2).Render(sb.String())
}

// renderColumns lays out every model of the turn side by side
func renderColumns(turn orchestrator.Turn, reg *models.Registry, width int, frame string, md *markdownRenderer) string {
	if len(turn.Models) == 0 {
		return ""
	}

	w := columnWidth(width, len(turn.Models))
	elapsed := time.Since(turn.StartedAt)

	cols := make([]string, 0, len(turn.Models))
	for _, id := range turn.Models {
		st := turn.State(id)
		if st == nil {
			continue
		}
		info, ok := reg.Get(id)
		if !ok {
			info = models.ModelInfo{ID: id, Name: id}
		}
		cols = append(cols, column{
			info:    info,
			state:   st,
			width:   w,
			frame:   frame,
			elapsed: elapsed,
		}.render(md))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}
