package irc

import "time"

// Source distinguishes messages received from the network from local
// echoes of the user's own sends. TMI does not echo PRIVMSG back to the
// sender, so the client appends its own messages to the transcript.
type Source int

const (
	SourceRemote Source = iota
	SourceSelf
)

// Event is a semantic protocol event decoded from a Message. ToEvent is
// total: every parseable line maps to exactly one Event, with Unknown as
// the catch-all.
type Event interface {
	eventType() string
}

// ChatMessage is a channel chat line (PRIVMSG).
type ChatMessage struct {
	Sender      string            // login name from the prefix
	DisplayName string            // display-name tag, falls back to Sender
	Badges      map[string]string // raw message tags when present
	Channel     string
	Body        string
	Time        time.Time
	Source      Source
}

// UserJoined reports a membership JOIN for the channel.
type UserJoined struct {
	Nick    string
	Channel string
}

// UserLeft reports a membership PART for the channel.
type UserLeft struct {
	Nick    string
	Channel string
}

// PingChallenge is a server PING that must be answered with a PONG
// carrying the same token.
type PingChallenge struct {
	Token string
}

// PongReply is the server's answer to a client PING.
type PongReply struct {
	Token string
}

// Notice is a server NOTICE targeted at a channel or the user.
type Notice struct {
	Channel string
	Text    string
}

// AuthAck is the 001 welcome numeric: credentials accepted.
type AuthAck struct {
	Nick string
}

// AuthFailed is the pre-registration NOTICE rejecting credentials.
type AuthFailed struct {
	Reason string
}

// ChannelJoined is the 366 end-of-names numeric confirming channel entry.
type ChannelJoined struct {
	Channel string
}

// Unknown wraps any message with no dedicated event type. The raw
// message is preserved so callers can log it.
type Unknown struct {
	Raw *Message
}

func (ChatMessage) eventType() string   { return "chat_message" }
func (UserJoined) eventType() string    { return "user_joined" }
func (UserLeft) eventType() string      { return "user_left" }
func (PingChallenge) eventType() string { return "ping" }
func (PongReply) eventType() string     { return "pong" }
func (Notice) eventType() string        { return "notice" }
func (AuthAck) eventType() string       { return "auth_ack" }
func (AuthFailed) eventType() string    { return "auth_failed" }
func (ChannelJoined) eventType() string { return "channel_joined" }
func (Unknown) eventType() string       { return "unknown" }

// ToEvent maps a parsed message to its semantic event. Never returns
// nil: unrecognized commands become Unknown.
func ToEvent(m *Message) Event {
	switch m.Command {
	case "PRIVMSG":
		return chatMessageFrom(m)
	case "JOIN":
		return UserJoined{Nick: m.Nick(), Channel: param(m, 0)}
	case "PART":
		return UserLeft{Nick: m.Nick(), Channel: param(m, 0)}
	case "PING":
		return PingChallenge{Token: lastParam(m)}
	case "PONG":
		return PongReply{Token: lastParam(m)}
	case "NOTICE":
		// A NOTICE to "*" arrives before registration completes; the
		// only one TMI sends there is the login rejection.
		if param(m, 0) == "*" {
			return AuthFailed{Reason: lastParam(m)}
		}
		return Notice{Channel: param(m, 0), Text: lastParam(m)}
	case "001":
		return AuthAck{Nick: param(m, 0)}
	case "366":
		return ChannelJoined{Channel: param(m, 1)}
	default:
		return Unknown{Raw: m}
	}
}

func chatMessageFrom(m *Message) ChatMessage {
	ev := ChatMessage{
		Sender:  m.Nick(),
		Channel: param(m, 0),
		Body:    lastParam(m),
		Time:    time.Now(),
		Source:  SourceRemote,
	}
	ev.DisplayName = m.Tag("display-name")
	if ev.DisplayName == "" {
		ev.DisplayName = ev.Sender
	}
	if len(m.Tags) > 0 {
		ev.Badges = m.Tags
	}
	if ts := m.Tag("tmi-sent-ts"); ts != "" {
		if millis, ok := parseMillis(ts); ok {
			ev.Time = time.UnixMilli(millis)
		}
	}
	return ev
}

func parseMillis(s string) (int64, bool) {
	var n int64
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

func param(m *Message, i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

func lastParam(m *Message) string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Outbound message constructors.

// Privmsg builds a chat send to a channel.
func Privmsg(channel, body string) *Message {
	return &Message{Command: "PRIVMSG", Params: []string{channel, body}}
}

// Join builds a channel join request.
func Join(channel string) *Message {
	return &Message{Command: "JOIN", Params: []string{channel}}
}

// Pass builds the authentication line. TMI requires the "oauth:" scheme
// prefix on the token.
func Pass(token string) *Message {
	return &Message{Command: "PASS", Params: []string{"oauth:" + token}}
}

// NickCmd builds the nickname registration line.
func NickCmd(nick string) *Message {
	return &Message{Command: "NICK", Params: []string{nick}}
}

// CapReq builds a capability request for the given space-separated caps.
func CapReq(caps string) *Message {
	return &Message{Command: "CAP", Params: []string{"REQ", caps}}
}

// Ping builds a client keepalive probe.
func Ping(token string) *Message {
	return &Message{Command: "PING", Params: []string{token}}
}

// Pong answers a server PING, echoing its token.
func Pong(token string) *Message {
	return &Message{Command: "PONG", Params: []string{token}}
}
