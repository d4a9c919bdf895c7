package client

import (
	"pyproxy/atom"
	"pyproxy/reactor"
	"pyproxy/wire"
)

// mainStream is the client's side of the request socket, adapted from the
// original Rust client's MainStream (original_source/client/client/
// mainstream.rs): an outbound byte buffer fed by queued atoms and drained by
// the reactor's write loop, plus an inbound response decoder.
type mainStream struct {
	fd       int
	interest reactor.Interest
	outbuf   []byte
	decoder  wire.ResponseDecoder
}

func newMainStream(fd int) *mainStream {
	return &mainStream{fd: fd, interest: reactor.ReadOnly}
}

func (m *mainStream) hasOutData() bool {
	return len(m.outbuf) > 0
}

// queueRequest frames req and appends it to the outbound buffer, the Go
// equivalent of the Rust original's queue_source_code/queue_pickle pair
// collapsed into one method since atom.Request already carries its own Kind.
func (m *mainStream) queueRequest(req atom.Request) {
	kind := wire.KindCodeString
	if req.Kind == atom.KindCodePickle {
		kind = wire.KindCodePickle
	}
	body := wire.EncodeCodeRequest(wire.CodeRequest{
		FutureID: req.FutureID,
		Code:     req.Code,
		Locals:   req.Locals,
		Globals:  req.Globals,
	})
	m.outbuf = append(m.outbuf, wire.EncodeRequest(kind, 0, body)...)
}

// write sends as much of the outbound buffer as the socket accepts now.
func (m *mainStream) write() error {
	if len(m.outbuf) == 0 {
		return nil
	}
	n, err := reactor.Write(m.fd, m.outbuf)
	if err != nil {
		if reactor.IsWouldBlock(err) {
			return nil
		}
		return err
	}
	m.outbuf = append(m.outbuf[:0], m.outbuf[n:]...)
	return nil
}

// feed appends freshly read bytes to the inbound response decoder.
func (m *mainStream) feed(p []byte) {
	m.decoder.Feed(p)
}

// nextResponse decodes the next complete response frame, if any.
func (m *mainStream) nextResponse() (wire.ResponseFrame, bool, error) {
	return m.decoder.Next()
}
