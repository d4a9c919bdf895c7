package masterd

import (
	"bytes"
	"os"
	"testing"

	"pyproxy/wire"
)

func TestOutputStreamFeedHelloResolvesToken(t *testing.T) {
	o := NewOutputStream(-1)

	body := wire.EncodeOutputHello(wire.OutputHello{StreamToken: "abc123"})
	frameBytes := wire.EncodeRequest(wire.KindHello, 0, body)

	// Feed one byte at a time to exercise partial-read handling.
	var resolved bool
	var err error
	for i := range frameBytes {
		resolved, err = o.FeedHello(frameBytes[i : i+1])
		if err != nil {
			t.Fatalf("FeedHello: unexpected error %v", err)
		}
		if resolved {
			break
		}
	}
	if !resolved {
		t.Fatalf("FeedHello: expected resolution once the full frame arrived")
	}
	if o.StreamToken != "abc123" {
		t.Fatalf("StreamToken = %q, want %q", o.StreamToken, "abc123")
	}
}

func TestOutputStreamFeedHelloRejectsWrongKind(t *testing.T) {
	o := NewOutputStream(-1)
	frameBytes := wire.EncodeRequest(wire.KindCodeString, 0, []byte{1, 2, 3})
	if _, err := o.FeedHello(frameBytes); err == nil {
		t.Fatalf("FeedHello: expected an error for a non-hello frame")
	}
}

func TestOutputStreamFlushWritesQueuedFrames(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	o := NewOutputStream(int(w.Fd()))
	o.PushStdout([]byte("hi"))
	if !o.HasPendingWrite() {
		t.Fatalf("HasPendingWrite: expected true after PushStdout")
	}

	if err := o.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if o.HasPendingWrite() {
		t.Fatalf("HasPendingWrite: expected false once Flush drains the buffer")
	}

	want := wire.EncodeOutput(wire.OutputStdout, []byte("hi"))
	got := make([]byte, len(want))
	if _, err := r.Read(got); err != nil {
		t.Fatalf("reading flushed bytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
