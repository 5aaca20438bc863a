package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chorus/internal/boost"
	"chorus/internal/commands"
	"chorus/internal/export"
	"chorus/internal/models"
	"chorus/internal/orchestrator"
)

const (
	headerHeight = 2
	footerHeight = 2
)

// Booster rewrites prompts, keeping the original when boosting fails
type Booster interface {
	BoostOrOriginal(ctx context.Context, prompt string) (string, bool)
}

// Bridge forwards orchestrator updates into the program. Updates are
// coalesced so stream goroutines never block on the UI.
type Bridge struct {
	ch chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{ch: make(chan struct{}, 1)}
}

// Observe is an orchestrator.Observer
func (b *Bridge) Observe(orchestrator.Update) {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// wait blocks until the next update
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.ch
		return refreshMsg{}
	}
}

// Messages
type (
	refreshMsg  struct{}
	sendDoneMsg struct {
		err error
	}
	retryDoneMsg struct {
		id  string
		err error
	}
	boostDoneMsg struct {
		text    string
		boosted bool
	}
	exportDoneMsg struct {
		path string
		err  error
	}
)

// Options wires the model to the rest of the application
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *models.Registry
	Bridge       *Bridge
	Booster      Booster
	Selection    *Selection
	Mode         string
	ExportDir    string
	Logger       *slog.Logger
	Clipboard    func(string) error
}

type Model struct {
	// Input is the prompt line. Exported for test access.
	Input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	orch      *orchestrator.Orchestrator
	reg       *models.Registry
	bridge    *Bridge
	booster   Booster
	selection *Selection
	mode      string
	exportDir string
	logger    *slog.Logger
	copy      func(string) error
	md        *markdownRenderer

	ctx    context.Context
	cancel context.CancelFunc

	turn      orchestrator.Turn
	notice    string
	noticeErr bool
	boosting  bool
	showHelp  bool
	width     int
	height    int
	ready     bool
}

func New(opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask every model something... (/help for commands)"
	ti.Prompt = "› "
	ti.CharLimit = boost.MaxPromptChars
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	reg := opts.Registry
	if reg == nil {
		reg = models.DefaultRegistry()
	}
	mode := opts.Mode
	if _, ok := reg.Mode(mode); !ok {
		mode = models.DefaultModeID
	}
	sel := opts.Selection
	if sel == nil {
		known := func(id string) bool {
			_, ok := reg.Get(id)
			return ok
		}
		sel = NewSelection(nil, 4, known, reg.IDs())
	}
	bridge := opts.Bridge
	if bridge == nil {
		bridge = NewBridge()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	copyFn := opts.Clipboard
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}
	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		Input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   s,
		orch:      opts.Orchestrator,
		reg:       reg,
		bridge:    bridge,
		booster:   opts.Booster,
		selection: sel,
		mode:      mode,
		exportDir: opts.ExportDir,
		logger:    logger,
		copy:      copyFn,
		md:        newMarkdownRenderer(),
		ctx:       ctx,
		cancel:    cancel,
		turn:      opts.Orchestrator.Snapshot(),
	}
}

// Mode returns the current project mode id
func (m Model) Mode() string { return m.mode }

// Notice returns the status line text
func (m Model) Notice() string { return m.notice }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.bridge.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.Input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.turn.Streaming() {
			m.refresh()
		}
		return m, cmd

	case refreshMsg:
		m.turn = m.orch.Snapshot()
		m.refresh()
		return m, m.bridge.wait()

	case sendDoneMsg:
		if msg.err != nil {
			m.setError(msg.err.Error())
			return m, nil
		}
		m.turn = m.orch.Snapshot()
		m.refresh()
		m.setNotice(summarize(m.turn))
		return m, nil

	case retryDoneMsg:
		if msg.err != nil {
			m.setError(msg.err.Error())
			return m, nil
		}
		m.turn = m.orch.Snapshot()
		m.refresh()
		if st := m.turn.State(msg.id); st != nil && st.Failed() {
			m.setError(m.reg.Name(msg.id) + " failed again: " + st.Error)
		} else {
			m.setNotice(m.reg.Name(msg.id) + " answered")
		}
		return m, nil

	case boostDoneMsg:
		m.boosting = false
		m.Input.SetValue(msg.text)
		m.Input.CursorEnd()
		if msg.boosted {
			m.setNotice("Prompt boosted. Press Enter to send.")
		} else {
			m.setError("Boost failed, kept your prompt")
		}
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.setError("Export failed: " + msg.err.Error())
		} else {
			m.setNotice("Exported to " + msg.path)
		}
		return m, nil
	}

	// Cursor blink and mouse messages
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()

	case "f1":
		m.showHelp = !m.showHelp
		return m, nil

	case "esc":
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		if m.orch.Streaming() {
			m.orch.Cancel()
			m.setNotice("Cancelled")
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		if m.showHelp {
			m.showHelp = false
		}
		input := strings.TrimSpace(m.Input.Value())
		if input == "" {
			return m, nil
		}
		m.Input.Reset()
		if cmd := commands.Parse(input); cmd != nil {
			return m.runCommand(cmd)
		}
		return m.send(input)
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

func (m Model) send(text string) (tea.Model, tea.Cmd) {
	if err := boost.ValidatePrompt(text); err != nil {
		m.Input.SetValue(text)
		m.setError(err.Error())
		return m, nil
	}

	ids := m.selection.IDs()
	mode := m.mode
	orch := m.orch
	ctx := m.ctx
	m.setNotice(fmt.Sprintf("Asking %d models...", len(ids)))
	m.logger.Debug("sending message", "models", ids, "mode", mode)

	return m, func() tea.Msg {
		return sendDoneMsg{err: orch.Send(ctx, text, ids, mode)}
	}
}

func (m Model) runCommand(cmd commands.Command) (tea.Model, tea.Cmd) {
	switch c := cmd.(type) {
	case commands.Help:
		m.showHelp = true

	case commands.ListModels:
		m.setNotice(m.describeModels())

	case commands.ToggleModel:
		on, err := m.selection.Toggle(c.ID)
		switch {
		case err != nil:
			m.setError(err.Error())
		case on:
			m.setNotice(fmt.Sprintf("Added %s (%d/%d)", m.reg.Name(c.ID), m.selection.Len(), m.selection.Max()))
		default:
			m.setNotice(fmt.Sprintf("Removed %s (%d/%d)", m.reg.Name(c.ID), m.selection.Len(), m.selection.Max()))
		}

	case commands.ListModes:
		m.setNotice(m.describeModes())

	case commands.SetMode:
		mode, ok := m.reg.Mode(c.ID)
		if !ok {
			m.setError("unknown mode: " + c.ID)
			break
		}
		m.mode = mode.ID
		m.setNotice("Mode: " + mode.Name)

	case commands.Retry:
		return m.retry(c.ID)

	case commands.Boost:
		return m.boost(c.Text)

	case commands.Copy:
		st := m.turn.State(c.ID)
		switch {
		case st == nil:
			m.setError("no response from " + c.ID)
		case st.IsStreaming:
			m.setError(m.reg.Name(c.ID) + " is still streaming")
		case st.Content == "":
			m.setError(m.reg.Name(c.ID) + " has nothing to copy")
		default:
			if err := m.copy(st.Content); err != nil {
				m.setError("Copy failed: " + err.Error())
			} else {
				m.setNotice(fmt.Sprintf("Copied %s (%d chars)", m.reg.Name(c.ID), st.Chars()))
			}
		}

	case commands.Export:
		return m.export(c.Dir)

	case commands.Cancel:
		m.orch.Cancel()
		m.setNotice("Cancelled")

	case commands.Quit:
		return m.quit()

	case commands.ParseError:
		m.setError(c.Message)
	}
	return m, nil
}

func (m Model) retry(id string) (tea.Model, tea.Cmd) {
	if m.turn.ID == "" {
		m.setError(orchestrator.ErrNoTurn.Error())
		return m, nil
	}
	m.turn = m.orch.Snapshot()
	st := m.turn.State(id)
	if st == nil {
		m.setError(id + " was not part of the last message")
		return m, nil
	}
	if st.IsStreaming {
		m.setError(m.reg.Name(id) + " is still answering, retry once it finishes")
		return m, nil
	}

	orch := m.orch
	ctx := m.ctx
	m.setNotice("Retrying " + m.reg.Name(id) + "...")
	return m, func() tea.Msg {
		return retryDoneMsg{id: id, err: orch.Retry(ctx, id)}
	}
}

func (m Model) boost(text string) (tea.Model, tea.Cmd) {
	if m.booster == nil {
		m.setError("boost is not configured")
		return m, nil
	}
	if err := boost.ValidatePrompt(text); err != nil {
		m.setError(err.Error())
		return m, nil
	}
	m.boosting = true
	m.setNotice("Boosting prompt...")

	booster := m.booster
	ctx := m.ctx
	return m, func() tea.Msg {
		out, ok := booster.BoostOrOriginal(ctx, text)
		return boostDoneMsg{text: out, boosted: ok}
	}
}

func (m Model) export(dir string) (tea.Model, tea.Cmd) {
	if m.turn.ID == "" {
		m.setError("nothing to export yet")
		return m, nil
	}
	if m.turn.Streaming() {
		m.setError("wait for every model to finish before exporting")
		return m, nil
	}
	if dir == "" {
		dir = m.exportDir
	}
	dir = expandHome(dir)

	data := export.FromTurn(m.turn, m.reg)
	return m, func() tea.Msg {
		path, err := export.WriteTurn(data, dir)
		return exportDoneMsg{path: path, err: err}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.orch.Cancel()
	m.cancel()
	return m, tea.Quit
}

func (m *Model) setNotice(s string) {
	m.notice = s
	m.noticeErr = false
}

func (m *Model) setError(s string) {
	m.notice = s
	m.noticeErr = true
}

// refresh re-renders the response columns into the viewport
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	if m.turn.ID == "" {
		m.viewport.SetContent(DimStyle.Render("Responses appear here, one column per model."))
		return
	}

	var sb strings.Builder
	sb.WriteString(UserStyle.Render("You: "))
	sb.WriteString(m.turn.Message)
	sb.WriteString("\n\n")
	sb.WriteString(renderColumns(m.turn, m.reg, m.width, m.spinner.View(), m.md))
	m.viewport.SetContent(sb.String())
	if atBottom && m.turn.Streaming() {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderNotice(),
		m.Input.View(),
	)
}

func (m Model) renderHeader() string {
	var chips []string
	for _, info := range m.reg.All() {
		if m.selection.Has(info.ID) {
			chips = append(chips, SelectedChipStyle.Foreground(ModelColor(info.Color)).Render(info.Name))
		}
	}
	modeName := m.mode
	if mode, ok := m.reg.Mode(m.mode); ok {
		modeName = strings.TrimSpace(mode.Icon + " " + mode.Name)
	}

	title := TitleStyle.Render("CHORUS") + "  " + SystemStyle.Render(modeName) + "  " + strings.Join(chips, "")
	return lipgloss.NewStyle().MaxWidth(m.width).Render(title) + "\n"
}

func (m Model) renderNotice() string {
	prefix := ""
	if m.boosting || m.turn.Streaming() {
		prefix = m.spinner.View() + " "
	}
	if m.noticeErr {
		return prefix + ErrorStyle.Render(m.notice)
	}
	return prefix + DimStyle.Render(m.notice)
}

func (m Model) describeModels() string {
	var parts []string
	for _, info := range m.reg.All() {
		mark := "○"
		if m.selection.Has(info.ID) {
			mark = "●"
		}
		parts = append(parts, fmt.Sprintf("%s %s", mark, info.ID))
	}
	return strings.Join(parts, "  ")
}

func (m Model) describeModes() string {
	var parts []string
	for _, mode := range m.reg.Modes() {
		name := mode.ID
		if mode.ID == m.mode {
			name = "[" + name + "]"
		}
		parts = append(parts, name)
	}
	return "Modes: " + strings.Join(parts, " ")
}

// summarize describes a finished turn for the status line
func summarize(turn orchestrator.Turn) string {
	var ok, failed int
	for _, id := range turn.Models {
		st := turn.State(id)
		switch {
		case st == nil || st.IsStreaming:
		case st.Failed():
			failed++
		default:
			ok++
		}
	}
	if failed == 0 {
		return fmt.Sprintf("%d models answered", ok)
	}
	return fmt.Sprintf("%d answered, %d failed (use /retry <id>)", ok, failed)
}

func expandHome(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return dir
		}
		return filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return dir
}
