package client

import (
	"log"

	"github.com/aelwyn/ttvchat/pkg/irc"
)

// ConnectionInterface is the seam between the UI and the connection
// manager. The real Connection implements it; tests use MockConnection.
type ConnectionInterface interface {
	// Lifecycle
	Connect() error
	Close() error
	State() ConnState
	DisableAutoReconnect()
	SetLogger(logger *log.Logger)

	// Sending
	SendChat(body string) error

	// Receiving
	Events() <-chan irc.Event
	Errors() <-chan error
	StateChanges() <-chan StateUpdate

	// Session info
	Address() string
	Channel() string
	Nick() string
}

// StateInterface is the seam for client-side persistence. The real
// State is sqlite-backed; tests use MockState.
type StateInterface interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	GetLastChannel() string
	SetLastChannel(channel string) error
	GetLastNickname() string
	SetLastNickname(nickname string) error

	GetCachedToken() string
	SetCachedToken(token string) error
	ClearCachedToken() error

	GetFirstRun() bool
	SetFirstRunComplete() error

	GetStateDir() string
	Close() error
}

var (
	_ ConnectionInterface = (*Connection)(nil)
	_ StateInterface      = (*State)(nil)
)
