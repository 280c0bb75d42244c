package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	specs := []struct {
		in  string
		exp Level
	}{
		{"debug", Debug},
		{"INFO", Info},
		{"notice", Notice},
		{"warn", Warning},
		{"error", Error},
	}

	for index, s := range specs {
		lvl, err := ParseLevel(s.in)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", index, err)
		}
		if lvl != s.exp {
			t.Fatalf("[spec %d] expected level %s; got %s", index, s.exp, lvl)
		}
	}

	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatal("expected to get an error for an unknown level")
	}
}

func TestSinkAndLevel(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer func() {
		SetSink(&bytes.Buffer{})
		SetLevel(Notice)
	}()

	logger := New("log test")
	SetLevel(Warning)
	logger.Notice("hidden")
	logger.Warning("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected notice message to be filtered; got %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "[log test]") {
		t.Fatalf("expected warning message with module name; got %q", out)
	}
}
