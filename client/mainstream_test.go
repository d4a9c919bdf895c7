package client

import (
	"os"
	"testing"

	"pyproxy/atom"
	"pyproxy/wire"
)

func TestMainStreamQueueAndWriteRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	m := newMainStream(int(w.Fd()))
	if m.hasOutData() {
		t.Fatalf("hasOutData: expected false before any request is queued")
	}

	m.queueRequest(atom.Request{
		FutureID: "f1",
		Kind:     atom.KindCodeString,
		Code:     []byte("1 + 1"),
	})
	if !m.hasOutData() {
		t.Fatalf("hasOutData: expected true after queueRequest")
	}

	if err := m.write(); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.hasOutData() {
		t.Fatalf("hasOutData: expected false once write drains the buffer")
	}

	buf := make([]byte, 256)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("reading written bytes: %v", err)
	}
	header, err := wire.DecodeRequestHeader(buf[:wire.RequestHeaderSize])
	if err != nil {
		t.Fatalf("DecodeRequestHeader: %v", err)
	}
	if header.Kind != wire.KindCodeString {
		t.Fatalf("header.Kind = %v, want KindCodeString", header.Kind)
	}
	body, err := wire.DecodeCodeRequest(buf[wire.RequestHeaderSize:n])
	if err != nil {
		t.Fatalf("DecodeCodeRequest: %v", err)
	}
	if body.FutureID != "f1" || string(body.Code) != "1 + 1" {
		t.Fatalf("got body=%+v", body)
	}
}

func TestMainStreamNextResponseDecodesFramedBody(t *testing.T) {
	m := newMainStream(-1)

	resp := wire.CodeResponse{FutureID: "f2", Payload: []byte("42")}
	body := wire.EncodeCodeResponse(resp)
	frameBytes := wire.EncodeResponse(wire.KindCodeString, 0, 1, body)

	m.feed(frameBytes)
	frame, ok, err := m.nextResponse()
	if err != nil {
		t.Fatalf("nextResponse: unexpected error %v", err)
	}
	if !ok {
		t.Fatalf("nextResponse: expected a complete frame")
	}
	decoded, err := wire.DecodeCodeResponse(frame.Body)
	if err != nil {
		t.Fatalf("DecodeCodeResponse: %v", err)
	}
	if decoded.FutureID != "f2" || string(decoded.Payload) != "42" {
		t.Fatalf("got decoded=%+v", decoded)
	}

	if _, ok, _ := m.nextResponse(); ok {
		t.Fatalf("nextResponse: expected no further frames")
	}
}
