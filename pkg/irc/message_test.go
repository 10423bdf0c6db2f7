package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivmsg(t *testing.T) {
	msg, err := ParseMessage(":alice!alice@alice.tmi.twitch.tv PRIVMSG #somechannel :hello world")
	require.NoError(t, err)

	assert.Equal(t, "alice!alice@alice.tmi.twitch.tv", msg.Prefix)
	assert.Equal(t, "alice", msg.Nick())
	assert.Equal(t, "PRIVMSG", msg.Command)
	require.Len(t, msg.Params, 2)
	assert.Equal(t, "#somechannel", msg.Params[0])
	assert.Equal(t, "hello world", msg.Params[1])
}

func TestParseTags(t *testing.T) {
	msg, err := ParseMessage("@badge-info=;color=#FF0000;display-name=Alice :alice!alice@alice.tmi.twitch.tv PRIVMSG #chan :hi")
	require.NoError(t, err)

	assert.Equal(t, "Alice", msg.Tag("display-name"))
	assert.Equal(t, "#FF0000", msg.Tag("color"))
	assert.Equal(t, "", msg.Tag("badge-info"))
	assert.Equal(t, "", msg.Tag("nonexistent"))
}

func TestParseTagEscaping(t *testing.T) {
	msg, err := ParseMessage(`@system-msg=raiders\sfrom\sSomeChannel;msg-id=raid\:now :tmi.twitch.tv USERNOTICE #chan`)
	require.NoError(t, err)

	assert.Equal(t, "raiders from SomeChannel", msg.Tag("system-msg"))
	assert.Equal(t, "raid;now", msg.Tag("msg-id"))
}

func TestParseNoPrefix(t *testing.T) {
	msg, err := ParseMessage("PING :tmi.twitch.tv")
	require.NoError(t, err)

	assert.Equal(t, "", msg.Prefix)
	assert.Equal(t, "PING", msg.Command)
	require.Len(t, msg.Params, 1)
	assert.Equal(t, "tmi.twitch.tv", msg.Params[0])
}

func TestParseCommandOnly(t *testing.T) {
	msg, err := ParseMessage("PONG")
	require.NoError(t, err)

	assert.Equal(t, "PONG", msg.Command)
	assert.Empty(t, msg.Params)
}

func TestParseNumeric(t *testing.T) {
	msg, err := ParseMessage(":tmi.twitch.tv 001 somenick :Welcome, GLHF!")
	require.NoError(t, err)

	assert.Equal(t, "001", msg.Command)
	require.Len(t, msg.Params, 2)
	assert.Equal(t, "somenick", msg.Params[0])
	assert.Equal(t, "Welcome, GLHF!", msg.Params[1])
}

func TestParseLowercaseCommandUppercased(t *testing.T) {
	msg, err := ParseMessage("ping :abc")
	require.NoError(t, err)
	assert.Equal(t, "PING", msg.Command)
}

func TestParseRepeatedSpaces(t *testing.T) {
	msg, err := ParseMessage(":srv  NOTICE  #chan  :spaced out")
	require.NoError(t, err)

	assert.Equal(t, "NOTICE", msg.Command)
	require.Len(t, msg.Params, 2)
	assert.Equal(t, "#chan", msg.Params[0])
	assert.Equal(t, "spaced out", msg.Params[1])
}

func TestParseEmptyTrailing(t *testing.T) {
	msg, err := ParseMessage("PRIVMSG #chan :")
	require.NoError(t, err)

	require.Len(t, msg.Params, 2)
	assert.Equal(t, "", msg.Params[1])
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"crlf only", "\r\n"},
		{"prefix without command", ":justaprefix"},
		{"tags without command", "@key=value"},
		{"invalid command char", "PRIV/MSG #chan :x"},
		{"two digit numeric", ":srv 01 nick"},
		{"four digit numeric", ":srv 0001 nick"},
		{"mixed alnum command", "P1NG :token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMessage(tc.line)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeBasic(t *testing.T) {
	assert.Equal(t, "PASS oauth:abc123", Pass("abc123").String())
	assert.Equal(t, "NICK somenick", NickCmd("somenick").String())
	assert.Equal(t, "JOIN #somechannel", Join("#somechannel").String())
}

func TestEncodeTrailing(t *testing.T) {
	assert.Equal(t, "PRIVMSG #chan :hello world", Privmsg("#chan", "hello world").String())
	assert.Equal(t, "PRIVMSG #chan one-word", Privmsg("#chan", "one-word").String())
	assert.Equal(t, "CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands",
		CapReq("twitch.tv/membership twitch.tv/tags twitch.tv/commands").String())
}

func TestEncodeTagsRoundTrip(t *testing.T) {
	original := &Message{
		Tags:    map[string]string{"display-name": "Alice", "system-msg": "hi there"},
		Prefix:  "alice!alice@alice.tmi.twitch.tv",
		Command: "PRIVMSG",
		Params:  []string{"#chan", "hello"},
	}

	decoded, err := ParseMessage(original.String())
	require.NoError(t, err)

	assert.Equal(t, original.Prefix, decoded.Prefix)
	assert.Equal(t, original.Command, decoded.Command)
	assert.Equal(t, original.Params, decoded.Params)
	assert.Equal(t, "Alice", decoded.Tag("display-name"))
	assert.Equal(t, "hi there", decoded.Tag("system-msg"))
}
