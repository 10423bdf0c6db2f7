// Package ui is the terminal front end: a bubbletea program that merges
// connection events, user input, and timer ticks into a single update
// loop over an immutable-feeling model.
package ui

import (
	"log"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aelwyn/ttvchat/pkg/client"
	"github.com/aelwyn/ttvchat/pkg/irc"
)

// Config carries the display and input policy for a session.
type Config struct {
	Channel            string
	Nick               string
	ScrollbackCapacity int
	SendQueueCapacity  int
	MaxMessageLength   int
	MentionNotify      bool
	ShowPresence       bool
}

func (c Config) withDefaults() Config {
	if c.ScrollbackCapacity <= 0 {
		c.ScrollbackCapacity = 500
	}
	if c.SendQueueCapacity <= 0 {
		c.SendQueueCapacity = 32
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 500
	}
	return c
}

// Model is the application state.
type Model struct {
	conn    client.ConnectionInterface
	state   client.StateInterface
	limiter *client.RateLimiter
	pending *client.SendQueue
	cfg     Config
	logger  *log.Logger

	scrollback *Scrollback
	viewport   viewport.Model
	input      textarea.Model

	connState        client.ConnState
	reconnectAttempt int
	nextRetry        time.Time

	width, height int
	sized         bool
	quitting      bool
}

// Messages produced by the command side of the loop.

// EventMsg wraps a decoded protocol event.
type EventMsg struct {
	Event irc.Event
}

// ErrorMsg wraps a connection error.
type ErrorMsg struct {
	Err error
}

// ConnStateMsg wraps a connection lifecycle transition.
type ConnStateMsg struct {
	Update client.StateUpdate
}

// TickMsg fires once a second to drain the pending-send queue and
// refresh the status bar.
type TickMsg time.Time

// NewModel creates the application model.
func NewModel(conn client.ConnectionInterface, state client.StateInterface, limiter *client.RateLimiter, cfg Config, logger *log.Logger) *Model {
	cfg = cfg.withDefaults()

	input := textarea.New()
	input.Placeholder = "Say something..."
	input.CharLimit = cfg.MaxMessageLength
	input.SetHeight(1)
	input.ShowLineNumbers = false
	input.Focus()

	return &Model{
		conn:       conn,
		state:      state,
		limiter:    limiter,
		pending:    client.NewSendQueue(cfg.SendQueueCapacity),
		cfg:        cfg,
		logger:     logger,
		scrollback: NewScrollback(cfg.ScrollbackCapacity),
		input:      input,
		connState:  conn.State(),
	}
}

func (m *Model) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Init starts the merge loop: one listener command re-armed after every
// delivery, plus the periodic tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		listenForEvents(m.conn),
		tickCmd(),
		textarea.Blink,
	)
}

// listenForEvents waits for the next connection output, whichever
// channel produces one first.
func listenForEvents(conn client.ConnectionInterface) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return nil
			}
			return EventMsg{Event: ev}
		case err, ok := <-conn.Errors():
			if !ok {
				return nil
			}
			return ErrorMsg{Err: err}
		case update, ok := <-conn.StateChanges():
			if !ok {
				return nil
			}
			return ConnStateMsg{Update: update}
		}
	}
}

// tickCmd schedules the next once-per-second tick.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
