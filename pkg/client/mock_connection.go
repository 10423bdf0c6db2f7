package client

import (
	"fmt"
	"log"
	"sync"

	"github.com/aelwyn/ttvchat/pkg/irc"
)

// MockConnection is a test implementation of ConnectionInterface.
type MockConnection struct {
	mu sync.RWMutex

	state      ConnState
	address    string
	channel    string
	nick       string
	connectErr error
	sendErr    error

	events      chan irc.Event
	errs        chan error
	stateChange chan StateUpdate

	// Sent chat lines, for verification.
	SentChat []string
}

// NewMockConnection creates a mock for the given session parameters.
func NewMockConnection(address, channel, nick string) *MockConnection {
	return &MockConnection{
		state:       StateDisconnected,
		address:     address,
		channel:     channel,
		nick:        nick,
		events:      make(chan irc.Event, 100),
		errs:        make(chan error, 10),
		stateChange: make(chan StateUpdate, 32),
	}
}

func (m *MockConnection) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.state = StateReady
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateDisconnected
	close(m.events)
	close(m.errs)
	close(m.stateChange)
	return nil
}

func (m *MockConnection) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockConnection) DisableAutoReconnect()        {}
func (m *MockConnection) SetLogger(logger *log.Logger) {}

func (m *MockConnection) SendChat(body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.state != StateReady {
		return ErrNotReady
	}
	m.SentChat = append(m.SentChat, body)
	return nil
}

func (m *MockConnection) Events() <-chan irc.Event          { return m.events }
func (m *MockConnection) Errors() <-chan error              { return m.errs }
func (m *MockConnection) StateChanges() <-chan StateUpdate  { return m.stateChange }

func (m *MockConnection) Address() string { return m.address }
func (m *MockConnection) Channel() string { return m.channel }
func (m *MockConnection) Nick() string    { return m.nick }

// Test helpers

// SetState forces the lifecycle state.
func (m *MockConnection) SetState(s ConnState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// SetConnectError makes Connect fail.
func (m *MockConnection) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetSendError makes SendChat fail.
func (m *MockConnection) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SimulateEvent pushes an event as if decoded from the wire.
func (m *MockConnection) SimulateEvent(ev irc.Event) {
	m.events <- ev
}

// SimulateError pushes an error onto the error channel.
func (m *MockConnection) SimulateError(err error) {
	m.errs <- err
}

// SimulateStateChange pushes a lifecycle transition.
func (m *MockConnection) SimulateStateChange(update StateUpdate) {
	m.mu.Lock()
	m.state = update.State
	m.mu.Unlock()
	m.stateChange <- update
}

// SentChatCount returns the number of chat lines sent.
func (m *MockConnection) SentChatCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.SentChat)
}

// LastSentChat returns the most recent chat line sent.
func (m *MockConnection) LastSentChat() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.SentChat) == 0 {
		return "", fmt.Errorf("no chat sent")
	}
	return m.SentChat[len(m.SentChat)-1], nil
}

var _ ConnectionInterface = (*MockConnection)(nil)
