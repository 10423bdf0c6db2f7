package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelwyn/ttvchat/pkg/client"
	"github.com/aelwyn/ttvchat/pkg/irc"
)

type stubBackend struct {
	reply string
	err   error
	seen  []string
}

func (s *stubBackend) Complete(ctx context.Context, prompt string) (string, error) {
	s.seen = append(s.seen, prompt)
	return s.reply, s.err
}

func newTestResponder(backend *stubBackend, capacity int) (*Responder, *client.MockConnection) {
	conn := client.NewMockConnection("addr", "#somechannel", "somebot")
	conn.SetState(client.StateReady)
	limiter := client.NewRateLimiter(capacity, 30*time.Second)
	r := New(conn, limiter, backend, Config{Nick: "somebot"})
	return r, conn
}

func runOneEvent(t *testing.T, r *Responder, conn *client.MockConnection, ev irc.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	conn.SimulateEvent(ev)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("responder never returned")
	}
}

func TestRespondsToTriggerPrefix(t *testing.T) {
	backend := &stubBackend{reply: "the answer is 42"}
	r, conn := newTestResponder(backend, 20)

	runOneEvent(t, r, conn, irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "!ask what is the answer",
	})

	require.Len(t, backend.seen, 1)
	assert.Equal(t, "what is the answer", backend.seen[0])

	sent, err := conn.LastSentChat()
	require.NoError(t, err)
	assert.Equal(t, "@Alice the answer is 42", sent)
}

func TestRespondsToMention(t *testing.T) {
	backend := &stubBackend{reply: "hello Alice"}
	r, conn := newTestResponder(backend, 20)

	runOneEvent(t, r, conn, irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "hey somebot, how are you?",
	})

	require.Len(t, backend.seen, 1)
	assert.Equal(t, 1, conn.SentChatCount())
}

func TestIgnoresUnrelatedChat(t *testing.T) {
	backend := &stubBackend{reply: "should not appear"}
	r, conn := newTestResponder(backend, 20)

	runOneEvent(t, r, conn, irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "just chatting with everyone",
	})

	assert.Empty(t, backend.seen)
	assert.Equal(t, 0, conn.SentChatCount())
}

func TestIgnoresOwnMessages(t *testing.T) {
	backend := &stubBackend{reply: "loop"}
	r, conn := newTestResponder(backend, 20)

	runOneEvent(t, r, conn, irc.ChatMessage{
		Sender: "somebot", DisplayName: "somebot",
		Body: "!ask did I say this",
	})

	assert.Empty(t, backend.seen)
}

func TestRateLimitSkipsReply(t *testing.T) {
	backend := &stubBackend{reply: "rate limited away"}
	r, conn := newTestResponder(backend, 1)

	// Exhaust the bucket.
	require.True(t, r.limiter.TryAcquire())

	runOneEvent(t, r, conn, irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "!ask anything",
	})

	assert.Empty(t, backend.seen)
	assert.Equal(t, 0, conn.SentChatCount())
}

func TestBackendErrorSuppressed(t *testing.T) {
	backend := &stubBackend{err: errors.New("model unavailable")}
	r, conn := newTestResponder(backend, 20)

	runOneEvent(t, r, conn, irc.ChatMessage{
		Sender: "alice", DisplayName: "Alice",
		Body: "!ask something",
	})

	assert.Equal(t, 0, conn.SentChatCount())
}

func TestFlattenReply(t *testing.T) {
	assert.Equal(t, "one two three", flatten("one\n two\t\nthree", 100))

	long := flatten("word word word word word word word word word word", 30)
	assert.LessOrEqual(t, len(long), 34)
	assert.True(t, len(long) > 0)
	assert.Contains(t, long, "...")
}

func TestExtractPromptEmptyTrigger(t *testing.T) {
	r, _ := newTestResponder(&stubBackend{}, 20)

	_, triggered := r.extractPrompt(irc.ChatMessage{Sender: "alice", Body: "!ask"})
	assert.False(t, triggered, "bare trigger with no prompt should not fire")
}
