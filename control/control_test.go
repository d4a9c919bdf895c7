package control

import (
	"testing"
)

func TestLogMessageRoundTrip(t *testing.T) {
	r := LogRecord{Level: "info", Msg: "worker started", Ts: "2026-07-31T00:00:00Z", Tags: map[string]string{"component": "worker"}}
	raw, err := EncodeLogMessage(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var dec Decoder
	dec.Feed(raw)
	rec, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if rec.Kind != KindLogMessage {
		t.Fatalf("kind = %v, want KindLogMessage", rec.Kind)
	}
	got, err := DecodeLogMessage(rec.Body)
	if err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if got.Level != r.Level || got.Msg != r.Msg || got.Tags["component"] != "worker" {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, r)
	}
}

func TestSessionBindRoundTrip(t *testing.T) {
	b := SessionBind{SessionHex: "abc123", StreamTokenHex: "deadbeef"}
	raw, err := EncodeSessionBind(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var dec Decoder
	dec.Feed(raw)
	rec, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	got, err := DecodeSessionBind(rec.Body)
	if err != nil {
		t.Fatalf("decode session bind: %v", err)
	}
	if got != b {
		t.Fatalf("got %+v want %+v", got, b)
	}
}

func TestPartialFeed(t *testing.T) {
	raw, _ := EncodeSessionBind(SessionBind{SessionHex: "a", StreamTokenHex: "b"})
	var dec Decoder
	for i := 0; i < len(raw); i++ {
		dec.Feed(raw[i : i+1])
		_, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("unexpected error at byte %d: %v", i, err)
		}
		if ok && i != len(raw)-1 {
			t.Fatalf("decoded complete record too early, at byte %d of %d", i, len(raw))
		}
	}
}

func TestUnrecognizedKindIsTerminal(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 99
	var dec Decoder
	dec.Feed(buf)
	_, _, err := dec.Next()
	if err == nil {
		t.Fatalf("expected error for unrecognized kind")
	}
	dec.Feed(buf)
	_, _, err = dec.Next()
	if err != errControlDecoderDead {
		t.Fatalf("expected decoder to stay dead, got %v", err)
	}
}
