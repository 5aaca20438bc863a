package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"chorus/internal/orchestrator"
)

// maxRendered bounds the finished-response cache
const maxRendered = 32

// markdownRenderer renders finished responses with glamour. Response states
// are immutable, so the rendered text is cached per state.
type markdownRenderer struct {
	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
	rendered map[*orchestrator.ResponseState]string
}

func newMarkdownRenderer() *markdownRenderer {
	return &markdownRenderer{rendered: make(map[*orchestrator.ResponseState]string)}
}

// Render returns the markdown rendering of a finished state, falling back
// to the raw content when glamour fails
func (r *markdownRenderer) Render(st *orchestrator.ResponseState, width int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if width != r.width || r.renderer == nil {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return st.Content
		}
		r.renderer = renderer
		r.width = width
		clear(r.rendered)
	}

	if out, ok := r.rendered[st]; ok {
		return out
	}

	out, err := r.renderer.Render(st.Content)
	if err != nil {
		return st.Content
	}
	out = strings.Trim(out, "\n")

	if len(r.rendered) >= maxRendered {
		clear(r.rendered)
	}
	r.rendered[st] = out
	return out
}
