package masterd

import (
	"pyproxy/reactor"
	"pyproxy/wire"
)

// OutputStream is the master's side of one client's output-channel
// connection (spec §4.3 "Output channel socket readable (pre-hello)").
// Before the hello resolves it only accumulates inbound bytes looking for
// a framed hello body carrying the stream token; after that it is a
// write-only push of output frames.
type OutputStream struct {
	Fd       int
	Interest reactor.Interest

	inDecoder wire.RequestDecoder
	outbuf    []byte

	// StreamToken is set once the pre-hello decode succeeds. Per spec §9
	// ("Output-channel token confusion") this is the value the output
	// channel is indexed by — not the session identifier, which is a
	// separate credential the interpreter's sentinel lines carry.
	StreamToken string
}

// NewOutputStream wraps a freshly accepted output-channel connection.
func NewOutputStream(fd int) *OutputStream {
	return &OutputStream{Fd: fd, Interest: reactor.ReadOnly}
}

// FeedHello appends freshly read bytes and attempts to resolve the
// pre-hello handshake. Returns true once StreamToken has been populated.
func (o *OutputStream) FeedHello(p []byte) (bool, error) {
	if o.StreamToken != "" {
		return true, nil
	}
	o.inDecoder.Feed(p)
	frame, ok, err := o.inDecoder.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := wire.RequireHello(frame); err != nil {
		return false, err
	}
	hello, err := wire.DecodeOutputHello(frame.Body)
	if err != nil {
		return false, err
	}
	o.StreamToken = hello.StreamToken
	return true, nil
}

// PushStdout/PushStderr queue an output frame captured while a session's
// atom was executing (spec §3 "Output frame").
func (o *OutputStream) PushStdout(line []byte) {
	o.outbuf = append(o.outbuf, wire.EncodeOutput(wire.OutputStdout, line)...)
}

func (o *OutputStream) PushStderr(line []byte) {
	o.outbuf = append(o.outbuf, wire.EncodeOutput(wire.OutputStderr, line)...)
}

// HasPendingWrite reports whether there are buffered output frames to send.
func (o *OutputStream) HasPendingWrite() bool {
	return len(o.outbuf) > 0
}

// Flush writes as much of the outbound buffer as the socket accepts now.
func (o *OutputStream) Flush() error {
	if len(o.outbuf) == 0 {
		return nil
	}
	n, err := reactor.Write(o.Fd, o.outbuf)
	if err != nil {
		if reactor.IsWouldBlock(err) {
			return nil
		}
		return err
	}
	o.outbuf = append(o.outbuf[:0], o.outbuf[n:]...)
	return nil
}
