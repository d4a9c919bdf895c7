package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCodeRequestRoundTrip(t *testing.T) {
	cases := []CodeRequest{
		{FutureID: "f1", Code: []byte("x=1+1"), Locals: nil, Globals: nil},
		{FutureID: "f2", Code: []byte(`print("hello")`), Locals: []byte{1, 2, 3}, Globals: []byte{9}},
		{FutureID: "", Code: nil, Locals: nil, Globals: nil},
	}
	for _, c := range cases {
		body := EncodeCodeRequest(c)
		got, err := DecodeCodeRequest(body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.FutureID != c.FutureID || !bytes.Equal(got.Code, c.Code) ||
			!bytes.Equal(got.Locals, c.Locals) || !bytes.Equal(got.Globals, c.Globals) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, c)
		}
	}
}

func TestCodeResponseRoundTrip(t *testing.T) {
	cases := []CodeResponse{
		{FutureID: "f1", IsError: false, Payload: []byte("none")},
		{FutureID: "f1", IsError: true, Payload: []byte("ZeroDivisionError")},
	}
	for _, c := range cases {
		body := EncodeCodeResponse(c)
		got, err := DecodeCodeResponse(body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.FutureID != c.FutureID || got.IsError != c.IsError || !bytes.Equal(got.Payload, c.Payload) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, c)
		}
	}
}

func TestHelloResponseRoundTrip(t *testing.T) {
	h := HelloResponse{SessionHex: "abc123", StreamTokenHex: "deadbeef", OutputAddr: "127.0.0.1:9001"}
	got, err := DecodeHelloResponse(EncodeHelloResponse(h))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v want %+v", got, h)
	}
}

func TestOutputFrameRoundTrip(t *testing.T) {
	for _, k := range []OutputKind{OutputStdout, OutputStderr} {
		payload := []byte("hello\n")
		raw := EncodeOutput(k, payload)
		var dec OutputDecoder
		dec.Feed(raw)
		frame, ok, err := dec.Next()
		if err != nil || !ok {
			t.Fatalf("decode failed: ok=%v err=%v", ok, err)
		}
		if frame.Header.Kind != k || !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("mismatch: %+v", frame)
		}
	}
}

// TestPartialReadSafety is the spec §8 "Partial-read safety" property:
// feeding a message stream split into arbitrary byte chunks must produce the
// same sequence of frames as feeding the concatenation in one call.
func TestPartialReadSafety(t *testing.T) {
	var whole []byte
	var want []RequestFrame
	for i := 0; i < 20; i++ {
		body := EncodeCodeRequest(CodeRequest{
			FutureID: "f",
			Code:     bytes.Repeat([]byte{byte('a' + i)}, i+1),
		})
		frameBytes := EncodeRequest(KindCodeString, 0, body)
		whole = append(whole, frameBytes...)
		h, _ := DecodeRequestHeader(frameBytes[:RequestHeaderSize])
		want = append(want, RequestFrame{Header: h, Body: body})
	}

	rnd := rand.New(rand.NewSource(42))
	var chunks [][]byte
	for len(whole) > 0 {
		n := 1 + rnd.Intn(7)
		if n > len(whole) {
			n = len(whole)
		}
		chunks = append(chunks, whole[:n])
		whole = whole[n:]
	}

	var dec RequestDecoder
	var got []RequestFrame
	for _, c := range chunks {
		dec.Feed(c)
		for {
			f, ok, err := dec.Next()
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, f)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Header.Kind != want[i].Header.Kind || !bytes.Equal(got[i].Body, want[i].Body) {
			t.Fatalf("frame %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestHeaderRejection(t *testing.T) {
	t.Run("wrong version", func(t *testing.T) {
		buf := make([]byte, RequestHeaderSize)
		RequestHeader{Kind: KindHello, Length: 0}.Encode(buf)
		buf[1] = 7 // corrupt version
		var dec RequestDecoder
		dec.Feed(buf)
		_, _, err := dec.Next()
		if _, ok := err.(*WrongVersionError); !ok {
			t.Fatalf("expected WrongVersionError, got %v", err)
		}
		// Decoder must now be dead: no further bytes are consumed/decoded.
		dec.Feed(buf)
		_, _, err = dec.Next()
		if err != errDecoderDead {
			t.Fatalf("expected decoder to stay dead, got %v", err)
		}
	})

	t.Run("unrecognized kind", func(t *testing.T) {
		buf := make([]byte, RequestHeaderSize)
		RequestHeader{Kind: KindHello, Length: 0}.Encode(buf)
		buf[2] = 99 // corrupt kind
		var dec RequestDecoder
		dec.Feed(buf)
		_, _, err := dec.Next()
		if _, ok := err.(*UnrecognizedKindError); !ok {
			t.Fatalf("expected UnrecognizedKindError, got %v", err)
		}
	})
}

func TestRequireHelloRejectsOtherKinds(t *testing.T) {
	body := EncodeCodeRequest(CodeRequest{FutureID: "f"})
	frame := RequestFrame{Header: RequestHeader{Kind: KindCodeString, Length: uint32(len(body))}, Body: body}
	err := RequireHello(frame)
	if _, ok := err.(*UnexpectedKindError); !ok {
		t.Fatalf("expected UnexpectedKindError, got %v", err)
	}
}
