package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gen2brain/beeep"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aelwyn/ttvchat/pkg/client"
	"github.com/aelwyn/ttvchat/pkg/irc"
)

// Update is the single reducer for every message the program receives.
// Every branch returns a new model state; unhandled messages fall
// through to the input and viewport components.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.handleEvent(msg.Event)
		m.refreshViewport()
		return m, listenForEvents(m.conn)

	case ErrorMsg:
		m.appendStatus(fmt.Sprintf("error: %v", msg.Err))
		m.refreshViewport()
		return m, listenForEvents(m.conn)

	case ConnStateMsg:
		m.handleStateChange(msg.Update)
		m.refreshViewport()
		return m, listenForEvents(m.conn)

	case TickMsg:
		m.drainPending()
		m.refreshViewport()
		return m, tickCmd()
	}

	return m.updateComponents(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		m.saveSession()
		m.conn.Close()
		return m, tea.Quit

	case "enter":
		return m, m.submitInput()

	case "pgup":
		m.viewport.HalfViewUp()
		return m, nil

	case "pgdown":
		m.viewport.HalfViewDown()
		return m, nil
	}

	return m.updateComponents(msg)
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var inputCmd, viewportCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewportCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewportCmd)
}

// submitInput sends the composed line, or queues it when the rate
// limiter has no token or the connection is not ready yet.
func (m *Model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()

	if m.connState == client.StateReady && m.limiter.TryAcquire() {
		switch err := m.conn.SendChat(text); {
		case err == nil:
			m.echoSelf(text)
		case errors.Is(err, client.ErrNotReady):
			// The connection dropped between the last state update and
			// the send: queue the line and let the tick drain retry it.
			m.queueForLater(text)
		default:
			m.appendStatus(fmt.Sprintf("send failed: %v", err))
		}
		m.refreshViewport()
		return nil
	}

	if m.connState == client.StateReady {
		client.RateLimitedInc()
	}
	m.queueForLater(text)
	m.refreshViewport()
	return nil
}

func (m *Model) queueForLater(text string) {
	_, dropped := m.pending.Push(text)
	if dropped != nil {
		m.appendStatus(fmt.Sprintf("send queue full, dropped: %s", truncate(dropped.Body, 40)))
	}
	m.appendStatus(fmt.Sprintf("queued (%d pending)", m.pending.Len()))
}

// drainPending flushes queued sends as tokens become available.
func (m *Model) drainPending() {
	for m.pending.Len() > 0 && m.connState == client.StateReady {
		if !m.limiter.TryAcquire() {
			return
		}
		req, _ := m.pending.Peek()
		if err := m.conn.SendChat(req.Body); err != nil {
			// Not ready after all: keep the line queued for a later tick.
			if !errors.Is(err, client.ErrNotReady) {
				m.appendStatus(fmt.Sprintf("send failed: %v", err))
				m.pending.Pop()
			}
			return
		}
		m.pending.Pop()
		m.echoSelf(req.Body)
	}
}

// echoSelf appends the user's own message to the transcript. The server
// does not echo it back.
func (m *Model) echoSelf(body string) {
	m.scrollback.Append(Line{
		Kind: LineChat,
		Time: time.Now(),
		Nick: m.cfg.Nick,
		Text: body,
		Self: true,
	})
}

func (m *Model) handleEvent(ev irc.Event) {
	switch e := ev.(type) {
	case irc.ChatMessage:
		mention := m.isMention(e.Body)
		m.scrollback.Append(Line{
			Kind:    LineChat,
			Time:    e.Time,
			Nick:    e.DisplayName,
			Text:    e.Body,
			Mention: mention,
		})
		if mention && m.cfg.MentionNotify {
			if err := beeep.Notify("ttvchat", fmt.Sprintf("%s: %s", e.DisplayName, truncate(e.Body, 80)), ""); err != nil {
				m.logf("Notification failed: %v", err)
			}
		}

	case irc.UserJoined:
		if m.cfg.ShowPresence {
			m.scrollback.Append(Line{Kind: LinePresence, Time: time.Now(), Text: fmt.Sprintf("%s joined", e.Nick)})
		}

	case irc.UserLeft:
		if m.cfg.ShowPresence {
			m.scrollback.Append(Line{Kind: LinePresence, Time: time.Now(), Text: fmt.Sprintf("%s left", e.Nick)})
		}

	case irc.Notice:
		m.scrollback.Append(Line{Kind: LineNotice, Time: time.Now(), Text: e.Text})

	case irc.ChannelJoined:
		m.appendStatus(fmt.Sprintf("joined %s", e.Channel))

	case irc.AuthFailed:
		m.appendStatus("authentication failed: " + e.Reason)

	case irc.Unknown:
		m.logf("Unhandled command %s", e.Raw.Command)

	default:
		// PING/PONG and auth progress are handled by the connection
		// manager before they reach us.
	}
}

func (m *Model) handleStateChange(update client.StateUpdate) {
	prev := m.connState
	m.connState = update.State
	m.reconnectAttempt = update.Attempt
	m.nextRetry = update.NextRetry

	switch update.State {
	case client.StateReady:
		m.appendStatus("connected")
	case client.StateReconnecting:
		m.appendStatus(fmt.Sprintf("connection lost, retry %d in %s",
			update.Attempt, time.Until(update.NextRetry).Round(time.Second)))
	case client.StateDisconnected:
		if prev != client.StateDisconnected && !m.quitting {
			m.appendStatus("disconnected")
		}
	}
}

func (m *Model) isMention(body string) bool {
	if m.cfg.Nick == "" {
		return false
	}
	return strings.Contains(strings.ToLower(body), strings.ToLower(m.cfg.Nick))
}

func (m *Model) appendStatus(text string) {
	m.scrollback.Append(Line{Kind: LineStatus, Time: time.Now(), Text: text})
}

// saveSession persists the session parameters for the next launch.
func (m *Model) saveSession() {
	if err := m.state.SetLastChannel(strings.TrimPrefix(m.cfg.Channel, "#")); err != nil {
		m.logf("Failed to save channel: %v", err)
	}
	if err := m.state.SetLastNickname(m.cfg.Nick); err != nil {
		m.logf("Failed to save nickname: %v", err)
	}
}

// truncate shortens s to at most max bytes, trimming on a rune boundary
// before appending the ellipsis.
func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
