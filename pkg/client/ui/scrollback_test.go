package ui

import (
	"fmt"
	"testing"
)

func TestScrollbackAppend(t *testing.T) {
	s := NewScrollback(10)

	s.Append(Line{Kind: LineChat, Text: "one"})
	s.Append(Line{Kind: LineChat, Text: "two"})

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if s.Lines()[0].Text != "one" {
		t.Errorf("first line = %q, want one", s.Lines()[0].Text)
	}
}

func TestScrollbackEvictsOldest(t *testing.T) {
	s := NewScrollback(3)

	for i := 1; i <= 5; i++ {
		s.Append(Line{Kind: LineChat, Text: fmt.Sprintf("msg %d", i)})
	}

	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	lines := s.Lines()
	if lines[0].Text != "msg 3" {
		t.Errorf("oldest = %q, want msg 3", lines[0].Text)
	}
	if lines[2].Text != "msg 5" {
		t.Errorf("newest = %q, want msg 5", lines[2].Text)
	}
}

func TestScrollbackMinimumCapacity(t *testing.T) {
	s := NewScrollback(0)

	s.Append(Line{Text: "a"})
	s.Append(Line{Text: "b"})

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if s.Lines()[0].Text != "b" {
		t.Errorf("kept = %q, want b", s.Lines()[0].Text)
	}
}
