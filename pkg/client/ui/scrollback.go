package ui

import "time"

// LineKind classifies transcript lines for rendering.
type LineKind int

const (
	LineChat LineKind = iota
	LineStatus
	LinePresence
	LineNotice
)

// Line is one entry in the transcript.
type Line struct {
	Kind    LineKind
	Time    time.Time
	Nick    string // display name for chat lines, empty otherwise
	Text    string
	Self    bool // local echo of the user's own message
	Mention bool // remote message naming the user
}

// Scrollback is a bounded transcript. Appending beyond capacity evicts
// the oldest line, so memory stays flat during long sessions.
type Scrollback struct {
	lines []Line
	cap   int
}

// NewScrollback creates a transcript holding at most capacity lines.
func NewScrollback(capacity int) *Scrollback {
	if capacity < 1 {
		capacity = 1
	}
	return &Scrollback{cap: capacity}
}

// Append adds a line, evicting the oldest when full.
func (s *Scrollback) Append(line Line) {
	if len(s.lines) >= s.cap {
		copy(s.lines, s.lines[1:])
		s.lines[len(s.lines)-1] = line
		return
	}
	s.lines = append(s.lines, line)
}

// Lines returns the transcript oldest-first. The slice is shared;
// callers must not mutate it.
func (s *Scrollback) Lines() []Line {
	return s.lines
}

// Len returns the number of lines currently held.
func (s *Scrollback) Len() int {
	return len(s.lines)
}

// Cap returns the transcript capacity.
func (s *Scrollback) Cap() int {
	return s.cap
}
