// Package irc implements the text-line message codec for the Twitch
// Messaging Interface (TMI), which speaks an IRCv3 dialect: one message
// per CRLF-terminated line, with optional message tags and prefix.
package irc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed indicates a line that could not be parsed as an IRC
// message. Callers log and discard; a single bad line never drops the
// connection.
var ErrMalformed = errors.New("malformed irc message")

// Message is a single parsed protocol line.
// Wire form: ['@'tags SPACE] [':'prefix SPACE] command [params] [' :'trailing]
type Message struct {
	Tags    map[string]string // nil when the line carried no tags
	Prefix  string            // source, e.g. "alice!alice@alice.tmi.twitch.tv"
	Command string            // e.g. "PRIVMSG", "JOIN", "001"
	Params  []string          // ordered; a trailing param may contain spaces
}

// Nick extracts the nickname portion of the prefix ("nick!user@host").
// Returns the whole prefix when it carries no user/host part.
func (m *Message) Nick() string {
	if i := strings.IndexByte(m.Prefix, '!'); i >= 0 {
		return m.Prefix[:i]
	}
	return m.Prefix
}

// Tag returns the value of a message tag, or "" when absent.
func (m *Message) Tag(key string) string {
	if m.Tags == nil {
		return ""
	}
	return m.Tags[key]
}

// ParseMessage decodes one raw protocol line. The line must not include
// the trailing CRLF. Parsing is purely functional: no I/O, no state.
func ParseMessage(line string) (*Message, error) {
	rest := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(rest) == "" {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	msg := &Message{}

	// Message tags: "@key=value;key2=value2 ..."
	if strings.HasPrefix(rest, "@") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: tags without command", ErrMalformed)
		}
		msg.Tags = parseTags(rest[1:sp])
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	// Prefix: ":nick!user@host ..."
	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: prefix without command", ErrMalformed)
		}
		msg.Prefix = rest[1:sp]
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	if rest == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}

	// Command token, then parameters. A parameter starting with ':'
	// is the trailing parameter and swallows the rest of the line.
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		msg.Command = rest[:i]
		rest = rest[i+1:]
		for rest != "" {
			if strings.HasPrefix(rest, ":") {
				msg.Params = append(msg.Params, rest[1:])
				break
			}
			if j := strings.IndexByte(rest, ' '); j >= 0 {
				if j > 0 {
					msg.Params = append(msg.Params, rest[:j])
				}
				rest = rest[j+1:]
				continue
			}
			msg.Params = append(msg.Params, rest)
			break
		}
	} else {
		msg.Command = rest
	}

	msg.Command = strings.ToUpper(msg.Command)
	if !validCommand(msg.Command) {
		return nil, fmt.Errorf("%w: invalid command token %q", ErrMalformed, msg.Command)
	}

	return msg, nil
}

// validCommand accepts alphabetic command words and 3-digit numerics.
func validCommand(cmd string) bool {
	if cmd == "" {
		return false
	}
	digits := 0
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			digits++
		default:
			return false
		}
	}
	if digits == 0 {
		return true
	}
	// Numeric replies are exactly three digits.
	return digits == len(cmd) && len(cmd) == 3
}

// String encodes the message back to a wire line (without CRLF).
// Round-trips ParseMessage semantically; whitespace is normalized.
func (m *Message) String() string {
	var b strings.Builder

	if len(m.Tags) > 0 {
		b.WriteByte('@')
		first := true
		for _, key := range sortedTagKeys(m.Tags) {
			if !first {
				b.WriteByte(';')
			}
			first = false
			b.WriteString(key)
			if v := m.Tags[key]; v != "" {
				b.WriteByte('=')
				b.WriteString(escapeTagValue(v))
			}
		}
		b.WriteByte(' ')
	}

	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}

	b.WriteString(m.Command)

	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && needsTrailing(p) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}

	return b.String()
}

// needsTrailing reports whether a final parameter must be sent as a
// trailing param (contains a space, starts with ':', or is empty).
func needsTrailing(p string) bool {
	return p == "" || strings.ContainsRune(p, ' ') || strings.HasPrefix(p, ":")
}

func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	// Insertion sort; tag sets are tiny.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if key == "" {
			continue
		}
		if !found {
			tags[key] = ""
			continue
		}
		tags[key] = unescapeTagValue(value)
	}
	return tags
}

// Tag value escaping per the IRCv3 message-tags spec.
func escapeTagValue(v string) string {
	if !strings.ContainsAny(v, "; \\\r\n") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 4)
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case ';':
			b.WriteString(`\:`)
		case ' ':
			b.WriteString(`\s`)
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

func unescapeTagValue(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			// Dangling escape: drop the backslash, keep the char.
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
