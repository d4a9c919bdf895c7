package workerd

import (
	"fmt"

	"pyproxy/atom"
	"pyproxy/reactor"
	"pyproxy/session"
	"pyproxy/wire"
)

// ClientStream is one client connection a worker has adopted from a
// fd-passed descriptor: it performs the handshake (spec §4.4
// "Client-stream handshake") and thereafter frames inbound requests and
// outbound responses. One ClientStream exists per inherited socket for the
// life of that socket.
type ClientStream struct {
	Fd int

	SessionIDHex   string
	StreamTokenHex string

	Interest reactor.Interest

	inbox      wire.RequestDecoder
	outbuf     []byte
	seq        uint32
	kindByAtom map[string]wire.Kind
}

// NewClientStream verifies the already-read 8-byte header is a hello, mints
// session credentials, and stages the server-hello response in the outbound
// buffer so the first writable event ships it (spec §4.4).
func NewClientStream(fd int, header wire.RequestHeader, outputAddr string) (*ClientStream, error) {
	if header.Kind != wire.KindHello {
		return nil, &wire.UnexpectedKindError{Kind: header.Kind}
	}

	_, sessionHex, err := session.NewID()
	if err != nil {
		return nil, fmt.Errorf("workerd: generate session id: %w", err)
	}
	_, streamHex, err := session.NewStreamToken()
	if err != nil {
		return nil, fmt.Errorf("workerd: generate stream token: %w", err)
	}

	body := wire.EncodeHelloResponse(wire.HelloResponse{
		SessionHex:     sessionHex,
		StreamTokenHex: streamHex,
		OutputAddr:     outputAddr,
	})
	respHeader := make([]byte, wire.ResponseHeaderSize)
	wire.ResponseHeader{Kind: wire.KindHello, Length: uint32(len(body)), Sequence: 1}.Encode(respHeader)

	outbuf := make([]byte, 0, len(respHeader)+len(body))
	outbuf = append(outbuf, respHeader...)
	outbuf = append(outbuf, body...)

	return &ClientStream{
		Fd:             fd,
		SessionIDHex:   sessionHex,
		StreamTokenHex: streamHex,
		Interest:       reactor.ReadWrite,
		outbuf:         outbuf,
		seq:            1,
		kindByAtom:     make(map[string]wire.Kind),
	}, nil
}

// Feed appends freshly read bytes to the inbound request decoder.
func (c *ClientStream) Feed(p []byte) {
	c.inbox.Feed(p)
}

// NextRequest decodes the next complete request frame as an atom.Request
// tagged with this stream's session. Returns ok=false when no full frame is
// buffered yet.
func (c *ClientStream) NextRequest() (atom.Request, bool, error) {
	frame, ok, err := c.inbox.Next()
	if err != nil {
		return atom.Request{}, false, err
	}
	if !ok {
		return atom.Request{}, false, nil
	}
	switch frame.Header.Kind {
	case wire.KindCodeString, wire.KindCodePickle:
		body, err := wire.DecodeCodeRequest(frame.Body)
		if err != nil {
			return atom.Request{}, false, err
		}
		kind := atom.KindCodeString
		if frame.Header.Kind == wire.KindCodePickle {
			kind = atom.KindCodePickle
		}
		c.kindByAtom[body.FutureID] = frame.Header.Kind
		return atom.Request{
			SessionID: c.SessionIDHex,
			FutureID:  body.FutureID,
			Kind:      kind,
			Code:      body.Code,
			Locals:    body.Locals,
			Globals:   body.Globals,
		}, true, nil
	default:
		return atom.Request{}, false, &wire.UnexpectedKindError{Kind: frame.Header.Kind}
	}
}

// QueueResponse frames res and appends it to the outbound buffer, echoing
// the wire kind (code-string vs code-pickle) the originating request used.
func (c *ClientStream) QueueResponse(res atom.Result) {
	kind, ok := c.kindByAtom[res.FutureID]
	if !ok {
		kind = wire.KindCodeString
	} else {
		delete(c.kindByAtom, res.FutureID)
	}

	body := wire.EncodeCodeResponse(wire.CodeResponse{
		FutureID: res.FutureID,
		IsError:  res.IsError,
		Payload:  res.Payload,
	})
	c.seq++
	header := make([]byte, wire.ResponseHeaderSize)
	wire.ResponseHeader{Kind: kind, Length: uint32(len(body)), Sequence: c.seq}.Encode(header)
	c.outbuf = append(c.outbuf, header...)
	c.outbuf = append(c.outbuf, body...)
}

// HasPendingWrite reports whether the outbound buffer has bytes to send.
func (c *ClientStream) HasPendingWrite() bool {
	return len(c.outbuf) > 0
}

// Flush writes as much of the outbound buffer as the socket accepts right
// now, shifting any remainder to the front.
func (c *ClientStream) Flush() error {
	if len(c.outbuf) == 0 {
		return nil
	}
	n, err := reactor.Write(c.Fd, c.outbuf)
	if err != nil {
		if reactor.IsWouldBlock(err) {
			return nil
		}
		return err
	}
	c.outbuf = append(c.outbuf[:0], c.outbuf[n:]...)
	return nil
}
