package masterd

import (
	"bytes"
	"testing"

	"pyproxy/wire"
)

func TestPipeFrameAttributesBracketedLines(t *testing.T) {
	p := NewPipeFrame()
	sessionHex := "00112233445566778899aabbccddeeff"[:32]

	data := []byte(wire.NewRequestStart + sessionHex + "\n" +
		"hello from the atom\n" +
		wire.NewRequestEnd + "\n" +
		"worker log line, no session\n")

	attributed, verbatim := p.Feed(data)

	if len(attributed) != 1 {
		t.Fatalf("got %d attributed lines, want 1: %+v", len(attributed), attributed)
	}
	if attributed[0].SessionID != sessionHex {
		t.Fatalf("attributed session = %q, want %q", attributed[0].SessionID, sessionHex)
	}
	if !bytes.Equal(attributed[0].Line, []byte("hello from the atom")) {
		t.Fatalf("attributed line = %q", attributed[0].Line)
	}

	if len(verbatim) != 1 || !bytes.Equal(verbatim[0], []byte("worker log line, no session")) {
		t.Fatalf("got verbatim=%v, want one line \"worker log line, no session\"", verbatim)
	}
}

func TestPipeFrameHoldsPartialLineAcrossFeeds(t *testing.T) {
	p := NewPipeFrame()

	attributed, verbatim := p.Feed([]byte("partial line wit"))
	if len(attributed) != 0 || len(verbatim) != 0 {
		t.Fatalf("expected nothing emitted before a newline arrives")
	}

	attributed, verbatim = p.Feed([]byte("hout a newline yet\n"))
	if len(attributed) != 0 {
		t.Fatalf("expected no attributed lines, got %+v", attributed)
	}
	if len(verbatim) != 1 || string(verbatim[0]) != "partial line without a newline yet" {
		t.Fatalf("got verbatim=%v, want the joined line", verbatim)
	}
}

func TestPipeFrameSessionScopeEndsAtSentinel(t *testing.T) {
	p := NewPipeFrame()
	sessionHex := "ffeeddccbbaa99887766554433221100"[:32]

	data := []byte(wire.NewRequestStart + sessionHex + "\n" +
		"inside session\n" +
		wire.NewRequestEnd + "\n" +
		"outside session\n")
	attributed, verbatim := p.Feed(data)

	if len(attributed) != 1 || string(attributed[0].Line) != "inside session" {
		t.Fatalf("got attributed=%+v", attributed)
	}
	if len(verbatim) != 1 || string(verbatim[0]) != "outside session" {
		t.Fatalf("got verbatim=%v", verbatim)
	}
}
