package ui

import (
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aelwyn/ttvchat/pkg/client"
	"github.com/aelwyn/ttvchat/pkg/irc"
)

func newTestModel(t *testing.T) (*Model, *client.MockConnection) {
	t.Helper()

	conn := client.NewMockConnection("irc.chat.twitch.tv:6697", "#somechannel", "somenick")
	conn.SetState(client.StateReady)

	m := NewModel(conn, client.NewMockState(), client.NewRateLimiter(20, 30*time.Second), Config{
		Channel:       "#somechannel",
		Nick:          "somenick",
		MentionNotify: false,
		ShowPresence:  true,
	}, nil)
	m.connState = client.StateReady
	return m, conn
}

func lastLine(t *testing.T, m *Model) Line {
	t.Helper()
	lines := m.scrollback.Lines()
	if len(lines) == 0 {
		t.Fatal("scrollback is empty")
	}
	return lines[len(lines)-1]
}

func pressEnter(m *Model) {
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSubmitSendsAndEchoes(t *testing.T) {
	m, conn := newTestModel(t)

	m.input.SetValue("hello chat")
	pressEnter(m)

	if conn.SentChatCount() != 1 {
		t.Fatalf("sent %d messages, want 1", conn.SentChatCount())
	}
	sent, _ := conn.LastSentChat()
	if sent != "hello chat" {
		t.Errorf("sent %q", sent)
	}

	line := lastLine(t, m)
	if !line.Self || line.Text != "hello chat" || line.Nick != "somenick" {
		t.Errorf("echo line = %+v", line)
	}
	if m.input.Value() != "" {
		t.Error("input not cleared after submit")
	}
}

func TestSubmitBlankIgnored(t *testing.T) {
	m, conn := newTestModel(t)

	m.input.SetValue("   ")
	pressEnter(m)

	if conn.SentChatCount() != 0 {
		t.Errorf("sent %d messages, want 0", conn.SentChatCount())
	}
}

// Submitting with the limiter exhausted queues the message; the next
// tick with a token available sends it and reflects it in the
// transcript.
func TestSubmitQueuesWhenRateLimited(t *testing.T) {
	m, conn := newTestModel(t)

	// Drain the bucket.
	for m.limiter.TryAcquire() {
	}

	m.input.SetValue("gg")
	pressEnter(m)

	if conn.SentChatCount() != 0 {
		t.Fatalf("sent %d messages while limited, want 0", conn.SentChatCount())
	}
	if m.pending.Len() != 1 {
		t.Fatalf("pending = %d, want 1", m.pending.Len())
	}

	// A fresh limiter stands in for the refill after the interval.
	m.limiter = client.NewRateLimiter(20, 30*time.Second)
	m.Update(TickMsg(time.Now()))

	if conn.SentChatCount() != 1 {
		t.Fatalf("sent %d after tick, want 1", conn.SentChatCount())
	}
	sent, _ := conn.LastSentChat()
	if sent != "gg" {
		t.Errorf("sent %q, want gg", sent)
	}
	if m.pending.Len() != 0 {
		t.Errorf("pending = %d after drain, want 0", m.pending.Len())
	}
	line := lastLine(t, m)
	if !line.Self || line.Text != "gg" {
		t.Errorf("echo line = %+v", line)
	}
}

func TestSubmitQueuesWhenNotReady(t *testing.T) {
	m, conn := newTestModel(t)
	m.connState = client.StateReconnecting

	m.input.SetValue("hold this")
	pressEnter(m)

	if conn.SentChatCount() != 0 {
		t.Fatalf("sent while disconnected")
	}
	if m.pending.Len() != 1 {
		t.Fatalf("pending = %d, want 1", m.pending.Len())
	}

	// Tick while still reconnecting must not send.
	m.Update(TickMsg(time.Now()))
	if conn.SentChatCount() != 0 {
		t.Fatal("drained queue while not ready")
	}
}

// The model's connState snapshot can lag the connection: a drop between
// the last state update and the submit makes SendChat fail with
// ErrNotReady. The message must be re-queued, not lost.
func TestSubmitRequeuesWhenSendNotReady(t *testing.T) {
	m, conn := newTestModel(t)
	conn.SetState(client.StateDisconnected)

	m.input.SetValue("still here")
	pressEnter(m)

	if conn.SentChatCount() != 0 {
		t.Fatalf("sent %d messages on a dead connection", conn.SentChatCount())
	}
	if m.pending.Len() != 1 {
		t.Fatalf("pending = %d, want 1", m.pending.Len())
	}

	// Once the connection recovers, the tick drain delivers it.
	conn.SetState(client.StateReady)
	m.Update(TickMsg(time.Now()))

	if sent, _ := conn.LastSentChat(); sent != "still here" {
		t.Errorf("sent %q, want still here", sent)
	}
	if m.pending.Len() != 0 {
		t.Errorf("pending = %d after recovery, want 0", m.pending.Len())
	}
}

func TestDrainKeepsMessageWhenSendNotReady(t *testing.T) {
	m, conn := newTestModel(t)
	m.connState = client.StateReconnecting

	m.input.SetValue("patience")
	pressEnter(m)
	if m.pending.Len() != 1 {
		t.Fatalf("pending = %d, want 1", m.pending.Len())
	}

	// Stale Ready snapshot with a dead connection: the drain must leave
	// the message queued for a later tick.
	m.connState = client.StateReady
	conn.SetState(client.StateDisconnected)
	m.Update(TickMsg(time.Now()))

	if conn.SentChatCount() != 0 {
		t.Fatal("sent on a dead connection")
	}
	if m.pending.Len() != 1 {
		t.Fatalf("pending = %d, want 1", m.pending.Len())
	}

	conn.SetState(client.StateReady)
	m.Update(TickMsg(time.Now()))
	if sent, _ := conn.LastSentChat(); sent != "patience" {
		t.Errorf("sent %q, want patience", sent)
	}
}

func TestQueueOverflowSurfacesWarning(t *testing.T) {
	conn := client.NewMockConnection("addr", "#c", "somenick")
	m := NewModel(conn, client.NewMockState(), client.NewRateLimiter(1, 30*time.Second), Config{
		Channel:           "#c",
		Nick:              "somenick",
		SendQueueCapacity: 1,
	}, nil)
	m.connState = client.StateReconnecting

	m.input.SetValue("first")
	pressEnter(m)
	m.input.SetValue("second")
	pressEnter(m)

	if m.pending.Len() != 1 {
		t.Fatalf("pending = %d, want 1", m.pending.Len())
	}
	req, _ := m.pending.Peek()
	if req.Body != "second" {
		t.Errorf("kept %q, want second", req.Body)
	}

	found := false
	for _, line := range m.scrollback.Lines() {
		if line.Kind == LineStatus && line.Text == "send queue full, dropped: first" {
			found = true
		}
	}
	if !found {
		t.Error("drop warning not surfaced in transcript")
	}
}

func TestChatEventAppended(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(EventMsg{Event: irc.ChatMessage{
		Sender:      "alice",
		DisplayName: "Alice",
		Body:        "hi all",
		Time:        time.Now(),
	}})

	line := lastLine(t, m)
	if line.Kind != LineChat || line.Nick != "Alice" || line.Text != "hi all" {
		t.Errorf("line = %+v", line)
	}
	if line.Self {
		t.Error("remote message flagged as self")
	}
	if cmd == nil {
		t.Error("listener not re-armed after event")
	}
}

func TestMentionFlagged(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(EventMsg{Event: irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "hey @SomeNick how goes", Time: time.Now(),
	}})

	if !lastLine(t, m).Mention {
		t.Error("mention not flagged")
	}

	m.Update(EventMsg{Event: irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "unrelated", Time: time.Now(),
	}})
	if lastLine(t, m).Mention {
		t.Error("non-mention flagged")
	}
}

func TestPresenceLines(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(EventMsg{Event: irc.UserJoined{Nick: "bob", Channel: "#somechannel"}})
	if line := lastLine(t, m); line.Kind != LinePresence || line.Text != "bob joined" {
		t.Errorf("join line = %+v", line)
	}

	m.Update(EventMsg{Event: irc.UserLeft{Nick: "bob", Channel: "#somechannel"}})
	if line := lastLine(t, m); line.Kind != LinePresence || line.Text != "bob left" {
		t.Errorf("part line = %+v", line)
	}
}

func TestPresenceHiddenWhenDisabled(t *testing.T) {
	m, _ := newTestModel(t)
	m.cfg.ShowPresence = false

	m.Update(EventMsg{Event: irc.UserJoined{Nick: "bob", Channel: "#somechannel"}})
	if m.scrollback.Len() != 0 {
		t.Error("presence line appended while disabled")
	}
}

func TestErrorAppendsStatus(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(ErrorMsg{Err: errors.New("boom")})

	line := lastLine(t, m)
	if line.Kind != LineStatus || line.Text != "error: boom" {
		t.Errorf("line = %+v", line)
	}
	if cmd == nil {
		t.Error("listener not re-armed after error")
	}
}

func TestStateChangeUpdatesModel(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(ConnStateMsg{Update: client.StateUpdate{
		State:     client.StateReconnecting,
		Attempt:   3,
		NextRetry: time.Now().Add(4 * time.Second),
	}})

	if m.connState != client.StateReconnecting {
		t.Errorf("state = %v", m.connState)
	}
	if m.reconnectAttempt != 3 {
		t.Errorf("attempt = %d", m.reconnectAttempt)
	}
	if lastLine(t, m).Kind != LineStatus {
		t.Error("reconnect status not surfaced")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	m, _ := newTestModel(t)

	raw, err := irc.ParseMessage(":srv ROOMSTATE #somechannel")
	if err != nil {
		t.Fatal(err)
	}
	m.Update(EventMsg{Event: irc.Unknown{Raw: raw}})

	if m.scrollback.Len() != 0 {
		t.Error("unknown event produced transcript output")
	}
}

func TestScrollbackBoundedUnderFlood(t *testing.T) {
	conn := client.NewMockConnection("addr", "#c", "somenick")
	m := NewModel(conn, client.NewMockState(), client.NewRateLimiter(20, 30*time.Second), Config{
		Channel: "#c", Nick: "somenick", ScrollbackCapacity: 50,
	}, nil)

	for i := 0; i < 500; i++ {
		m.handleEvent(irc.ChatMessage{Sender: "alice", DisplayName: "Alice", Body: "spam", Time: time.Now()})
	}

	if m.scrollback.Len() != 50 {
		t.Errorf("scrollback len = %d, want 50", m.scrollback.Len())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short unchanged", "hello", 40, "hello"},
		{"ascii trimmed", "hello world", 8, "hello..."},
		{"exact length kept", "exactly8", 8, "exactly8"},
		{"multibyte boundary", "héllo wörld", 8, "héll..."},
		{"cjk not split", "こんにちは", 7, "こ..."},
		{"emoji not split", "ab🎉cd", 6, "ab..."},
		{"tiny max clamped", "hello", 1, "h..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8 %q", tt.in, tt.max, got)
			}
		})
	}
}

func TestQuitSavesSession(t *testing.T) {
	m, conn := newTestModel(t)
	state := m.state.(*client.MockState)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("quit command not returned")
	}
	if state.GetLastChannel() != "somechannel" {
		t.Errorf("channel not saved, got %q", state.GetLastChannel())
	}
	if state.GetLastNickname() != "somenick" {
		t.Errorf("nickname not saved, got %q", state.GetLastNickname())
	}
	if conn.State() != client.StateDisconnected {
		t.Error("connection not closed on quit")
	}
}
