package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aelwyn/ttvchat/pkg/client"
)

var (
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	statusErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	nickStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	selfNickStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	mentionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	presenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(lipgloss.Color("240"))
)

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	inputHeight := 2 // textarea plus its top border
	statusHeight := 1
	viewportHeight := height - inputHeight - statusHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.sized {
		m.viewport = viewport.New(width, viewportHeight)
		m.sized = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.input.SetWidth(width - 2)
	m.refreshViewport()
}

// refreshViewport re-renders the transcript and keeps the view pinned
// to the bottom unless the user scrolled up.
func (m *Model) refreshViewport() {
	if !m.sized {
		return
	}
	pinned := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderLines())
	if pinned {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderLines() string {
	lines := m.scrollback.Lines()
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		rendered = append(rendered, renderLine(line))
	}
	return strings.Join(rendered, "\n")
}

func renderLine(line Line) string {
	stamp := timeStyle.Render(line.Time.Format("15:04:05"))
	switch line.Kind {
	case LineChat:
		style := nickStyle
		if line.Self {
			style = selfNickStyle
		}
		text := line.Text
		if line.Mention {
			text = mentionStyle.Render(text)
		}
		return fmt.Sprintf("%s %s: %s", stamp, style.Render(line.Nick), text)
	case LinePresence:
		return fmt.Sprintf("%s %s", stamp, presenceStyle.Render("-- "+line.Text))
	case LineNotice:
		return fmt.Sprintf("%s %s", stamp, noticeStyle.Render("!! "+line.Text))
	default:
		return fmt.Sprintf("%s %s", stamp, statusStyle.Render("* "+line.Text))
	}
}

// View renders the status bar, transcript, and compose line.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.sized {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(m.statusBar())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(inputBorderStyle.Width(m.width).Render(m.input.View()))
	return b.String()
}

func (m *Model) statusBar() string {
	left := fmt.Sprintf("%s @ %s", m.cfg.Channel, m.conn.Address())

	var right string
	style := statusBarStyle
	switch m.connState {
	case client.StateReady:
		right = fmt.Sprintf("%d msgs left", m.limiter.Available())
		if n := m.pending.Len(); n > 0 {
			right = fmt.Sprintf("%s | %d queued", right, n)
		}
	case client.StateReconnecting:
		style = statusErrStyle
		wait := time.Until(m.nextRetry).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		right = fmt.Sprintf("reconnecting (attempt %d, %s)", m.reconnectAttempt, wait)
	default:
		style = statusErrStyle
		right = m.connState.String()
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return style.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
