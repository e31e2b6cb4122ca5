// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view for the TUI.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatmux/internal/session"
	"github.com/jeranaias/chatmux/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// snapshotMsg carries a session state update into the Bubble Tea loop.
type snapshotMsg session.Snapshot

// updatesClosedMsg signals the session handle was closed.
type updatesClosedMsg struct{}

// errMsg carries an operational error for the status line.
type errMsg struct{ err error }

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	registry *session.Registry
	handle   *session.Handle
	snap     session.Snapshot

	theme    *styles.Theme
	renderer *glamour.TermRenderer

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	statusErr string
	quitting  bool
}

// New creates a chat model attached to an open session handle.
func New(registry *session.Registry, handle *session.Handle) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return Model{
		registry: registry,
		handle:   handle,
		snap:     handle.Snapshot(),
		theme:    styles.New(),
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
	}
}

// Init starts listening for session updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.handle),
		textinput.Blink,
	)
}

// waitForUpdate blocks on the session's snapshot channel.
func waitForUpdate(h *session.Handle) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-h.Updates()
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.refreshViewport()
		cmds := []tea.Cmd{waitForUpdate(m.handle)}
		if m.snap.Generating {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case updatesClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case errMsg:
		if msg.err != nil {
			m.statusErr = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		if m.snap.Generating {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// header + input + status
	chrome := 3
	m.viewport.Width = msg.Width
	m.viewport.Height = max(msg.Height-chrome, 1)
	m.input.Width = max(msg.Width-4, 10)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(msg.Width-2, 20)),
	)
	if err == nil {
		m.renderer = renderer
	}

	m.ready = true
	m.refreshViewport()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.snap.Generating {
			id := m.handle.ConversationID()
			reg := m.registry
			return m, func() tea.Msg {
				_ = reg.StopGeneration(id)
				return nil
			}
		}
		m.quitting = true
		m.handle.Close()
		return m, tea.Quit

	case "esc":
		if m.snap.Generating {
			id := m.handle.ConversationID()
			reg := m.registry
			return m, func() tea.Msg {
				_ = reg.StopGeneration(id)
				return nil
			}
		}
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.snap.Generating {
			return m, nil
		}
		m.input.Reset()
		m.statusErr = ""
		id := m.handle.ConversationID()
		reg := m.registry
		if after, ok := strings.CutPrefix(text, "/model "); ok {
			return m, func() tea.Msg {
				provider, modelID := "", strings.TrimSpace(after)
				if fields := strings.Fields(after); len(fields) == 2 {
					provider, modelID = fields[0], fields[1]
				}
				if err := reg.SetSelection(context.Background(), id, provider, modelID); err != nil {
					return errMsg{err}
				}
				return nil
			}
		}
		return m, tea.Batch(
			func() tea.Msg {
				if err := reg.SendMessage(context.Background(), id, text); err != nil {
					return errMsg{err}
				}
				if err := reg.StartGeneration(id); err != nil {
					return errMsg{err}
				}
				return nil
			},
			m.spinner.Tick,
		)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// refreshViewport re-renders the transcript and follows the tail.
func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.snap, m.theme, m.renderer))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the chat screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputPrompt.Render("> "))
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	return b.String()
}

func (m Model) headerView() string {
	title := m.snap.Title
	if title == "" {
		title = "New conversation"
	}
	left := m.theme.HeaderTitle.Render("chatmux") + "  " + title
	right := m.snap.Model
	pad := m.width - lenVisible(left) - lenVisible(right) - 2
	if pad < 1 {
		pad = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", pad) + right)
}

func (m Model) statusView() string {
	var parts []string

	switch {
	case m.snap.Retry != nil:
		parts = append(parts, m.theme.StatusRetry.Render(retryLine(*m.snap.Retry)))
	case m.snap.Generating:
		parts = append(parts, m.spinner.View()+" generating  "+
			m.theme.ShortcutKey.Render("esc")+m.theme.ShortcutDesc.Render(" stop"))
	case m.statusErr != "":
		parts = append(parts, m.theme.StatusError.Render(m.statusErr))
	case m.snap.LastError != "":
		parts = append(parts, m.theme.StatusError.Render(m.snap.LastError))
	default:
		parts = append(parts,
			m.theme.ShortcutKey.Render("enter")+m.theme.ShortcutDesc.Render(" send")+"  "+
				m.theme.ShortcutKey.Render("ctrl+c")+m.theme.ShortcutDesc.Render(" quit"))
	}

	if m.snap.TotalCostCents > 0 {
		parts = append(parts, m.theme.StatusCost.Render(costLine(m.snap.TotalCostCents, m.snap.TotalUsage.Total())))
	}

	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  |  "))
}

// retryLine formats the retry indicator.
func retryLine(rs session.RetryStatus) string {
	return fmt.Sprintf("%s Retrying in %s (attempt %d/%d)",
		rs.Message, rs.Delay.Round(100*time.Millisecond), rs.Attempt, rs.Max)
}

// costLine formats the session cost summary.
func costLine(cents float64, tokens int) string {
	if cents >= 100 {
		return fmt.Sprintf("$%.2f / %d tok", cents/100, tokens)
	}
	return fmt.Sprintf("%.2f¢ / %d tok", cents, tokens)
}

// lenVisible approximates display width ignoring ANSI sequences.
func lenVisible(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			n++
		}
	}
	return n
}
