package workerd

import (
	"os"
	"testing"

	"pyproxy/atom"
	"pyproxy/wire"
)

func TestNewClientStreamRejectsNonHello(t *testing.T) {
	header := wire.RequestHeader{Kind: wire.KindCodeString}
	if _, err := NewClientStream(-1, header, "127.0.0.1:9001"); err == nil {
		t.Fatalf("NewClientStream: expected an error for a non-hello header")
	}
}

func TestNewClientStreamStagesHelloResponse(t *testing.T) {
	header := wire.RequestHeader{Kind: wire.KindHello}
	cs, err := NewClientStream(-1, header, "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("NewClientStream: %v", err)
	}
	if cs.SessionIDHex == "" || cs.StreamTokenHex == "" {
		t.Fatalf("NewClientStream: expected minted session/stream credentials")
	}
	if !cs.HasPendingWrite() {
		t.Fatalf("HasPendingWrite: expected the hello response to be staged")
	}
}

func TestClientStreamRequestResponseRoundTrip(t *testing.T) {
	header := wire.RequestHeader{Kind: wire.KindHello}
	cs, err := NewClientStream(-1, header, "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("NewClientStream: %v", err)
	}

	reqBody := wire.EncodeCodeRequest(wire.CodeRequest{FutureID: "f1", Code: []byte("1+1")})
	cs.Feed(wire.EncodeRequest(wire.KindCodeString, 0, reqBody))

	req, ok, err := cs.NextRequest()
	if err != nil {
		t.Fatalf("NextRequest: unexpected error %v", err)
	}
	if !ok {
		t.Fatalf("NextRequest: expected a complete request")
	}
	if req.SessionID != cs.SessionIDHex || req.FutureID != "f1" {
		t.Fatalf("got request=%+v", req)
	}

	cs.QueueResponse(atom.Result{FutureID: "f1", Payload: []byte("2")})
	if !cs.HasPendingWrite() {
		t.Fatalf("HasPendingWrite: expected true after QueueResponse")
	}
}

func TestClientStreamFlushWritesBuffer(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	header := wire.RequestHeader{Kind: wire.KindHello}
	cs, err := NewClientStream(int(w.Fd()), header, "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("NewClientStream: %v", err)
	}

	if err := cs.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if cs.HasPendingWrite() {
		t.Fatalf("HasPendingWrite: expected false once Flush drains the hello response")
	}

	buf := make([]byte, 256)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("reading flushed bytes: %v", err)
	}
	respHeader, err := wire.DecodeResponseHeader(buf[:wire.ResponseHeaderSize])
	if err != nil {
		t.Fatalf("DecodeResponseHeader: %v", err)
	}
	if respHeader.Kind != wire.KindHello {
		t.Fatalf("respHeader.Kind = %v, want KindHello", respHeader.Kind)
	}
	hello, err := wire.DecodeHelloResponse(buf[wire.ResponseHeaderSize:n])
	if err != nil {
		t.Fatalf("DecodeHelloResponse: %v", err)
	}
	if hello.SessionHex != cs.SessionIDHex {
		t.Fatalf("hello.SessionHex = %q, want %q", hello.SessionHex, cs.SessionIDHex)
	}
}
