// Package client manages the TMI connection lifecycle: dialing,
// authentication, channel join, keepalive, and automatic reconnection
// with exponential backoff. Decoded events, errors, and state changes
// are surfaced on channels for the UI layer to merge.
package client

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aelwyn/ttvchat/pkg/irc"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticating
	StateJoiningChannel
	StateReady
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoiningChannel:
		return "joining channel"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateUpdate is published on the state-change channel whenever the
// connection transitions. Attempt and NextRetry are set only for
// StateReconnecting; Err carries the cause when a transition was
// triggered by a failure.
type StateUpdate struct {
	State     ConnState
	Attempt   int
	NextRetry time.Time
	Err       error
}

// DisconnectReason classifies why the transport dropped.
type DisconnectReason int

const (
	DisconnectUnknown DisconnectReason = iota
	DisconnectIdle
	DisconnectError
	DisconnectServerClosed
	DisconnectLiveness
	DisconnectAuthRejected
	DisconnectUserRequested
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectIdle:
		return "idle timeout"
	case DisconnectError:
		return "transport error"
	case DisconnectServerClosed:
		return "server closed connection"
	case DisconnectLiveness:
		return "keepalive timeout"
	case DisconnectAuthRejected:
		return "authentication rejected"
	case DisconnectUserRequested:
		return "user requested"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned by SendChat before the channel join
	// completes or after the connection drops.
	ErrNotReady = errors.New("connection not ready")
	// ErrOutgoingFull is returned when the outbound write buffer is
	// saturated; the line was not queued.
	ErrOutgoingFull = errors.New("outgoing buffer full")
	// ErrAuthFailed is surfaced on the error channel when the server
	// rejects credentials. Retried on the normal backoff path; the
	// token may be refreshed externally between attempts.
	ErrAuthFailed = errors.New("authentication failed")
)

// Capabilities requested at connect time: membership gives JOIN/PART,
// tags give display names and timestamps, commands gives NOTICE variants.
const requestedCaps = "twitch.tv/membership twitch.tv/tags twitch.tv/commands"

// ConnConfig carries connection parameters. Zero durations are replaced
// with defaults by withDefaults.
type ConnConfig struct {
	Address string // e.g. "ircs://irc.chat.twitch.tv:6697" or "wss://irc-ws.chat.twitch.tv"
	Nick    string
	Token   string // without the "oauth:" prefix
	Channel string // leading '#' optional

	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	JitterWindow  time.Duration
	PingInterval  time.Duration
	PongTimeout   time.Duration
	IdleTimeout   time.Duration
	JoinTimeout   time.Duration
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 1 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.JitterWindow <= 0 {
		c.JitterWindow = 1 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 60 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 6 * time.Minute
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 5 * time.Second
	}
	if c.Channel != "" && !strings.HasPrefix(c.Channel, "#") {
		c.Channel = "#" + c.Channel
	}
	c.Nick = strings.ToLower(c.Nick)
	return c
}

// Connection manages a single TMI session and its reconnect loop.
type Connection struct {
	cfg  ConnConfig
	dial func() (net.Conn, error)
	addr string // display form of the server address

	mu      sync.Mutex
	conn    net.Conn
	state   ConnState
	attempt int

	liveStop  chan struct{} // closed to stop the keepalive loop
	pingWait  bool          // a keepalive PING is awaiting its PONG
	joinTimer *time.Timer   // optimistic-join fallback, stopped on teardown

	events      chan irc.Event
	errs        chan error
	stateChange chan StateUpdate

	// outgoing is per transport: replaced on every successful dial so
	// a stale write loop can never drain lines meant for its successor.
	outgoing chan string

	autoReconnect bool
	reconnecting  bool

	logger *log.Logger

	shutdown chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewConnection creates a connection manager for the given server
// address. Supported schemes: ircs (TLS, default), irc/tcp (plaintext),
// wss/ws (IRC over WebSocket).
func NewConnection(cfg ConnConfig) (*Connection, error) {
	cfg = cfg.withDefaults()

	addr, dial, err := parseServerAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	return &Connection{
		cfg:           cfg,
		dial:          dial,
		addr:          addr,
		state:         StateDisconnected,
		events:        make(chan irc.Event, 100),
		errs:          make(chan error, 10),
		stateChange:   make(chan StateUpdate, 32),
		autoReconnect: true,
		shutdown:      make(chan struct{}),
	}, nil
}

// SetLogger directs debug logging. Nil disables it.
func (c *Connection) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// DisableAutoReconnect stops the connection from redialing after a
// disconnect. Used by tests and one-shot tools.
func (c *Connection) DisableAutoReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoReconnect = false
}

func (c *Connection) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Events returns the channel of decoded protocol events.
func (c *Connection) Events() <-chan irc.Event { return c.events }

// Errors returns the channel of connection errors.
func (c *Connection) Errors() <-chan error { return c.errs }

// StateChanges returns the channel of lifecycle transitions.
func (c *Connection) StateChanges() <-chan StateUpdate { return c.stateChange }

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Address returns the display form of the server address.
func (c *Connection) Address() string { return c.addr }

// Channel returns the configured channel, with leading '#'.
func (c *Connection) Channel() string { return c.cfg.Channel }

// Nick returns the configured login name.
func (c *Connection) Nick() string { return c.cfg.Nick }

// Connect dials the server and starts the handshake. Returns once the
// transport is up; authentication and join progress are reported via
// StateChanges.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect called in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.pushState(StateUpdate{State: StateConnecting})

	c.logf("Dialing %s", c.addr)
	conn, err := c.dial()
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.pushState(StateUpdate{State: StateDisconnected, Err: err})
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.outgoing = make(chan string, 100)
	outgoing := c.outgoing
	c.state = StateAuthenticating
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.writeLoop(conn, outgoing)

	// Registration order matters: caps first, then credentials.
	c.enqueueRaw(irc.CapReq(requestedCaps).String())
	c.enqueueRaw(irc.Pass(c.cfg.Token).String())
	c.enqueueRaw(irc.NickCmd(c.cfg.Nick).String())

	c.pushState(StateUpdate{State: StateAuthenticating})
	return nil
}

// Close tears the connection down and releases all resources. Safe to
// call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.autoReconnect = false
	close(c.shutdown)
	c.teardownLocked()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.wg.Wait()

	close(c.events)
	close(c.errs)
	close(c.stateChange)
	return nil
}

// SendChat sends a chat line to the configured channel. Only valid in
// the Ready state; callers apply rate limiting before calling.
func (c *Connection) SendChat(body string) error {
	c.mu.Lock()
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready {
		return ErrNotReady
	}

	if err := c.enqueueRaw(irc.Privmsg(c.cfg.Channel, body).String()); err != nil {
		return err
	}
	messagesSent.Inc()
	return nil
}

func (c *Connection) enqueueRaw(line string) error {
	c.mu.Lock()
	outgoing := c.outgoing
	c.mu.Unlock()
	if outgoing == nil {
		return ErrNotReady
	}
	select {
	case outgoing <- line:
		return nil
	default:
		return ErrOutgoingFull
	}
}

func (c *Connection) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	if s == StateReady {
		c.attempt = 0
	}
	c.mu.Unlock()
	c.pushState(StateUpdate{State: s})
}

func (c *Connection) pushState(update StateUpdate) {
	select {
	case c.stateChange <- update:
	default:
		// A slow consumer loses intermediate transitions, never the
		// connection itself.
		c.logf("State change dropped: %s", update.State)
	}
}

func (c *Connection) pushErr(err error) {
	select {
	case c.errs <- err:
	default:
		c.logf("Error dropped: %v", err)
	}
}

// readLoop reads CRLF-delimited lines, decodes them, and forwards the
// resulting events. A malformed line is logged and skipped.
func (c *Connection) readLoop(conn net.Conn) {
	defer c.wg.Done()

	reader := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-c.shutdown:
				return
			default:
			}
			reason := DisconnectError
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				reason = DisconnectIdle
			} else if errors.Is(err, net.ErrClosed) {
				return
			} else if errors.Is(err, io.EOF) {
				reason = DisconnectServerClosed
			}
			c.logf("Read failed (%s): %v", reason, err)
			c.handleDisconnect(conn, reason, err)
			return
		}

		msg, err := irc.ParseMessage(line)
		if err != nil {
			parseErrors.Inc()
			c.logf("Discarding malformed line %q: %v", strings.TrimSpace(line), err)
			continue
		}
		messagesReceived.Inc()

		ev := irc.ToEvent(msg)
		c.handleEvent(conn, ev)

		select {
		case c.events <- ev:
		case <-c.shutdown:
			return
		}
	}
}

// handleEvent drives the lifecycle state machine from inbound events
// before they are forwarded to the consumer.
func (c *Connection) handleEvent(conn net.Conn, ev irc.Event) {
	switch e := ev.(type) {
	case irc.PingChallenge:
		// Answer immediately; the UI never sees latency here.
		c.enqueueRaw(irc.Pong(e.Token).String())

	case irc.PongReply:
		c.mu.Lock()
		c.pingWait = false
		c.mu.Unlock()

	case irc.AuthAck:
		c.logf("Authenticated as %s", e.Nick)
		c.setState(StateJoiningChannel)
		c.enqueueRaw(irc.Join(c.cfg.Channel).String())
		c.armJoinTimeout()

	case irc.AuthFailed:
		c.logf("Authentication rejected: %s", e.Reason)
		c.pushErr(fmt.Errorf("%w: %s", ErrAuthFailed, e.Reason))
		c.handleDisconnect(conn, DisconnectAuthRejected, nil)

	case irc.ChannelJoined:
		if strings.EqualFold(e.Channel, c.cfg.Channel) {
			c.enterReady()
		}
	}
}

// armJoinTimeout promotes JoiningChannel to Ready if the end-of-names
// confirmation never arrives. Some server paths omit it; sends would
// otherwise stay blocked forever. The timer is stopped on teardown so
// it cannot fire into a closed connection.
func (c *Connection) armJoinTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
	c.joinTimer = time.AfterFunc(c.cfg.JoinTimeout, func() {
		c.mu.Lock()
		joining := c.state == StateJoiningChannel && !c.closed && c.conn != nil
		c.mu.Unlock()
		if joining {
			c.logf("Join confirmation timed out, assuming joined")
			c.enterReady()
		}
	})
}

func (c *Connection) enterReady() {
	c.mu.Lock()
	if c.closed || c.conn == nil || c.state == StateReady {
		c.mu.Unlock()
		return
	}
	c.liveStop = make(chan struct{})
	c.pingWait = false
	stop := c.liveStop
	// Registered under mu: Close sets closed before it calls Wait, so
	// either it sees this count or we saw closed above and bailed.
	c.wg.Add(1)
	c.mu.Unlock()

	c.logf("Joined %s, connection ready", c.cfg.Channel)
	c.setState(StateReady)

	go c.keepaliveLoop(stop)
}

// keepaliveLoop sends periodic PINGs while Ready and tears the
// connection down when a PONG does not arrive within the grace window.
func (c *Connection) keepaliveLoop(stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			token := fmt.Sprintf("keepalive-%d", time.Now().Unix())
			c.mu.Lock()
			c.pingWait = true
			conn := c.conn
			c.mu.Unlock()
			c.enqueueRaw(irc.Ping(token).String())

			select {
			case <-time.After(c.cfg.PongTimeout):
			case <-stop:
				return
			case <-c.shutdown:
				return
			}

			c.mu.Lock()
			missed := c.pingWait
			c.mu.Unlock()
			if missed {
				c.logf("Keepalive PONG missed, dropping connection")
				c.handleDisconnect(conn, DisconnectLiveness, nil)
				return
			}

		case <-stop:
			return
		case <-c.shutdown:
			return
		}
	}
}

// writeLoop serializes outbound lines onto the transport.
func (c *Connection) writeLoop(conn net.Conn, outgoing <-chan string) {
	defer c.wg.Done()

	for {
		select {
		case line := <-outgoing:
			c.logf("=> %s", sanitizeForLog(line))
			if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
				select {
				case <-c.shutdown:
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				c.logf("Write failed: %v", err)
				c.handleDisconnect(conn, DisconnectError, err)
				return
			}
		case <-c.shutdown:
			return
		}
	}
}

// sanitizeForLog masks credentials in outbound lines before logging.
func sanitizeForLog(line string) string {
	if strings.HasPrefix(line, "PASS ") {
		return "PASS ********"
	}
	return line
}

// teardownLocked closes the transport and stops the keepalive loop.
// Caller holds mu.
func (c *Connection) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.liveStop != nil {
		close(c.liveStop)
		c.liveStop = nil
	}
	if c.joinTimer != nil {
		c.joinTimer.Stop()
		c.joinTimer = nil
	}
}

// handleDisconnect tears down after a transport failure and hands off
// to the reconnect loop. The conn argument guards against a stale loop
// double-reporting after a newer connection was established.
func (c *Connection) handleDisconnect(conn net.Conn, reason DisconnectReason, cause error) {
	c.mu.Lock()
	if c.conn == nil || (conn != nil && c.conn != conn) {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	// Auth rejection rides the same backoff path: the token may be
	// refreshed externally between attempts.
	retry := c.autoReconnect && reason != DisconnectUserRequested
	c.mu.Unlock()

	if cause != nil {
		c.pushErr(fmt.Errorf("disconnected (%s): %w", reason, cause))
	} else if reason != DisconnectAuthRejected {
		c.pushErr(fmt.Errorf("disconnected: %s", reason))
	}

	if retry {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.reconnectLoop(cause)
		}()
		return
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	c.pushState(StateUpdate{State: StateDisconnected, Err: cause})
}

// reconnectLoop waits out the backoff delay and redials. One loop at a
// time; a failed redial re-enters via handleDisconnect/Connect error.
func (c *Connection) reconnectLoop(cause error) {
	c.mu.Lock()
	if c.reconnecting || c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.attempt++
	attempt := c.attempt
	c.state = StateReconnecting
	c.mu.Unlock()

	delay := c.backoffDelay(attempt)
	reconnects.Inc()
	c.logf("Reconnect attempt %d in %s", attempt, delay)
	c.pushState(StateUpdate{
		State:     StateReconnecting,
		Attempt:   attempt,
		NextRetry: time.Now().Add(delay),
		Err:       cause,
	})

	select {
	case <-time.After(delay):
	case <-c.shutdown:
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.reconnecting = false
	c.state = StateDisconnected
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		c.logf("Reconnect attempt %d failed: %v", attempt, err)
		c.mu.Lock()
		retry := c.autoReconnect && !c.closed
		if retry {
			c.wg.Add(1)
		}
		c.mu.Unlock()
		if retry {
			go func() {
				defer c.wg.Done()
				c.reconnectLoop(err)
			}()
		}
	}
}

// backoffDelay computes min(base * 2^(attempt-1), max) plus jitter.
func (c *Connection) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.ReconnectMax {
			delay = c.cfg.ReconnectMax
			break
		}
	}
	if delay > c.cfg.ReconnectMax {
		delay = c.cfg.ReconnectMax
	}
	if c.cfg.JitterWindow > 0 {
		delay += time.Duration(rand.Int63n(int64(c.cfg.JitterWindow)))
	}
	return delay
}

// parseServerAddress resolves a server URL into a display address and a
// dial function.
func parseServerAddress(address string) (string, func() (net.Conn, error), error) {
	const dialTimeout = 10 * time.Second

	switch {
	case strings.HasPrefix(address, "ircs://"):
		hostPort := splitHostPortWithDefault(strings.TrimPrefix(address, "ircs://"), "6697")
		host, _, _ := net.SplitHostPort(hostPort)
		dial := func() (net.Conn, error) {
			return tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", hostPort, &tls.Config{
				ServerName: host,
			})
		}
		return hostPort, dial, nil

	case strings.HasPrefix(address, "irc://"), strings.HasPrefix(address, "tcp://"):
		trimmed := strings.TrimPrefix(strings.TrimPrefix(address, "irc://"), "tcp://")
		hostPort := splitHostPortWithDefault(trimmed, "6667")
		dial := func() (net.Conn, error) {
			return net.DialTimeout("tcp", hostPort, dialTimeout)
		}
		return hostPort, dial, nil

	case strings.HasPrefix(address, "wss://"), strings.HasPrefix(address, "ws://"):
		dial := func() (net.Conn, error) {
			return DialWebSocket(address, dialTimeout)
		}
		return address, dial, nil

	case address == "":
		return "", nil, errors.New("server address required")

	default:
		// Bare host[:port] defaults to TLS IRC.
		hostPort := splitHostPortWithDefault(address, "6697")
		host, _, _ := net.SplitHostPort(hostPort)
		dial := func() (net.Conn, error) {
			return tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", hostPort, &tls.Config{
				ServerName: host,
			})
		}
		return hostPort, dial, nil
	}
}

func splitHostPortWithDefault(hostPort, defaultPort string) string {
	if _, _, err := net.SplitHostPort(hostPort); err != nil {
		return net.JoinHostPort(hostPort, defaultPort)
	}
	return hostPort
}
